package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lkmo/lkmo-backend/internal/middleware"
	"github.com/lkmo/lkmo-backend/internal/services"
	"github.com/lkmo/lkmo-backend/internal/testutil"
	"github.com/lkmo/lkmo-backend/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockImageStorage struct {
	mock.Mock
}

func (m *MockImageStorage) Upload(ctx context.Context, file *multipart.FileHeader, folder string, ownerID uint) (string, error) {
	args := m.Called(ctx, file.Filename, folder, ownerID)
	return args.String(0), args.Error(1)
}

func (m *MockImageStorage) Delete(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

type apiFixture struct {
	router  *gin.Engine
	users   *services.UserDirectory
	tokens  *utils.TokenIssuer
	storage *MockImageStorage
}

func newAPIFixture(t *testing.T) *apiFixture {
	log := zaptest.NewLogger(t)
	users := services.NewUserDirectory(testutil.NewDB(t))
	tokens := utils.NewTokenIssuer("secret", time.Hour)
	storage := &MockImageStorage{}

	r := gin.New()
	api := r.Group("/api")
	api.GET("/health", Health())
	api.POST("/auth/register", Register(users, tokens, log))
	api.POST("/auth/login", Login(users, tokens, log))
	protected := api.Group("/", middleware.AuthMiddleware(tokens))
	protected.GET("/auth/me", Me(users))
	protected.GET("/users/profile", GetProfile(users))
	protected.PUT("/users/profile", UpdateProfile(users, storage, log))
	admin := api.Group("/admin", middleware.AuthMiddleware(tokens), middleware.RequireAdmin())
	admin.GET("/users", ListUsers(users, log))
	admin.PUT("/users/:id/role", UpdateUserRole(users, log))
	admin.DELETE("/users/:id", DeleteUser(users, log))

	return &apiFixture{router: r, users: users, tokens: tokens, storage: storage}
}

func (f *apiFixture) do(req *http.Request, token string) (int, map[string]any) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func (f *apiFixture) register(t *testing.T, name, email, password string) string {
	t.Helper()
	status, body := postJSON(t, f.router, "/api/auth/register", gin.H{"name": name, "email": email, "password": password})
	require.Equal(t, 201, status, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	status, body := f.do(httptest.NewRequest(http.MethodGet, "/api/health", nil), "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "OK", body["status"])
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAPIFixture(t)
	token := f.register(t, "Rina", "Rina@LKMO.id", "secret1")

	status, _ := postJSON(t, f.router, "/api/auth/register", gin.H{"name": "Rina", "email": "rina@lkmo.id", "password": "secret1"})
	assert.Equal(t, 400, status)
	status, _ = postJSON(t, f.router, "/api/auth/register", gin.H{"name": "R", "email": "r@lkmo.id", "password": "123"})
	assert.Equal(t, 400, status)

	status, body := postJSON(t, f.router, "/api/auth/login", gin.H{"email": "rina@lkmo.id", "password": "secret1"})
	assert.Equal(t, 200, status)
	assert.NotEmpty(t, body["token"])

	status, _ = postJSON(t, f.router, "/api/auth/login", gin.H{"email": "rina@lkmo.id", "password": "wrong"})
	assert.Equal(t, 401, status)
	status, _ = postJSON(t, f.router, "/api/auth/login", gin.H{"email": "nobody@lkmo.id", "password": "secret1"})
	assert.Equal(t, 401, status)

	status, body = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), token)
	require.Equal(t, 200, status)
	user := body["user"].(map[string]any)
	assert.Equal(t, "rina@lkmo.id", user["email"])
	assert.Equal(t, "user", user["role"])
}

func profileForm(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "me.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/users/profile", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUpdateProfile(t *testing.T) {
	f := newAPIFixture(t)
	token := f.register(t, "Rina", "rina@lkmo.id", "secret1")
	user, err := f.users.FindByEmail(context.Background(), "rina@lkmo.id")
	require.NoError(t, err)

	f.storage.On("Upload", mock.Anything, "me.png", "profile-images", user.ID).Return("http://localhost/uploads/a.png", nil).Once()
	status, body := f.do(profileForm(t, map[string]string{"name": "Rina S", "bio": "Cooks rendang", "location": " Padang "}, []byte("png")), token)
	require.Equal(t, 200, status, body)
	assert.Equal(t, "Rina S", body["name"])
	assert.Equal(t, "Padang", body["location"])
	assert.Equal(t, "http://localhost/uploads/a.png", body["image"])

	// replacing the image removes the previous one
	f.storage.On("Upload", mock.Anything, "me.png", "profile-images", user.ID).Return("http://localhost/uploads/b.png", nil).Once()
	f.storage.On("Delete", mock.Anything, "http://localhost/uploads/a.png").Return(nil).Once()
	status, body = f.do(profileForm(t, nil, []byte("png")), token)
	require.Equal(t, 200, status, body)
	assert.Equal(t, "Rina S", body["name"])
	assert.Equal(t, "http://localhost/uploads/b.png", body["image"])

	status, _ = f.do(profileForm(t, map[string]string{"name": "R"}, nil), token)
	assert.Equal(t, 400, status)
	status, _ = f.do(profileForm(t, map[string]string{"bio": strings.Repeat("x", 501)}, nil), token)
	assert.Equal(t, 400, status)

	status, body = f.do(httptest.NewRequest(http.MethodGet, "/api/users/profile", nil), token)
	require.Equal(t, 200, status)
	assert.Equal(t, "Cooks rendang", body["bio"])

	f.storage.AssertExpectations(t)
}
