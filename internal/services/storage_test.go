package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// fileHeader builds a *multipart.FileHeader the way gin hands one to a handler.
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(MaxImageSize))
	return req.MultipartForm.File["image"][0]
}

func TestLocalStorageUploadAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://localhost:8080/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := store.Upload(ctx, fileHeader(t, "Avatar.PNG", pngHeader), "profile images", 7)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/uploads/profile-images/7/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	path := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(url, "http://localhost:8080/uploads/")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	require.NoError(t, store.Delete(ctx, url))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// foreign or already removed URLs are ignored
	assert.NoError(t, store.Delete(ctx, url))
	assert.NoError(t, store.Delete(ctx, "https://cdn.example.com/a.png"))
	assert.NoError(t, store.Delete(ctx, "http://localhost:8080/uploads/../secret"))
}

func TestLocalStorageRejectsNonImages(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), fileHeader(t, "notes.png", []byte("just some text")), "profile-images", 1)
	assert.ErrorContains(t, err, "unsupported content type")
}

func TestObjectKey(t *testing.T) {
	key, err := objectKey(`..\weird folder!`, 0, "photo")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "weird-folder/"), key)
	assert.True(t, strings.HasSuffix(key, ".jpg"), key)
	assert.NotContains(t, key, "..")

	key, err = objectKey("", 3, "a.webp")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "uploads/3/"), key)

	other, err := objectKey("", 3, "a.webp")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
