package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lkmo/lkmo-backend/internal/config"
	"github.com/lkmo/lkmo-backend/internal/models"
	"github.com/lkmo/lkmo-backend/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg utils.Email) error {
	return m.Called(ctx, msg).Error(0)
}

func newTestNotifier(t *testing.T, mailer Mailer) *EmailNotifier {
	n := NewEmailNotifier(mailer, "LKMO", zaptest.NewLogger(t))
	n.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return n
}

func TestSendResetCode(t *testing.T) {
	mailer := &MockMailer{}
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg utils.Email) bool {
		return assert.ObjectsAreEqual([]string{"user@lkmo.id"}, msg.To) &&
			strings.Contains(msg.HTML, "482913") &&
			strings.Contains(msg.Text, "5 minutes")
	})).Return(nil).Once()

	err := newTestNotifier(t, mailer).SendResetCode(context.Background(), "user@lkmo.id", "482913", 5*time.Minute)

	require.NoError(t, err)
	mailer.AssertExpectations(t)
}

func TestSendPasswordResetAlert(t *testing.T) {
	user := &models.User{Name: "Rina", Email: "rina@lkmo.id"}

	t.Run("delivers to real admin", func(t *testing.T) {
		mailer := &MockMailer{}
		mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg utils.Email) bool {
			return msg.To[0] == "admin@lkmo.id" && strings.Contains(msg.HTML, "rina@lkmo.id")
		})).Return(nil).Once()

		require.NoError(t, newTestNotifier(t, mailer).SendPasswordResetAlert(context.Background(), "admin@lkmo.id", user))
		mailer.AssertExpectations(t)
	})

	t.Run("skips placeholder domains", func(t *testing.T) {
		mailer := &MockMailer{}
		n := newTestNotifier(t, mailer)
		for _, admin := range []string{"admin@lkmo.com", "root@example.com", "qa@TEST.com", "dev@localhost", "broken"} {
			assert.NoError(t, n.SendPasswordResetAlert(context.Background(), admin, user))
		}
		mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("wraps transport errors", func(t *testing.T) {
		mailer := &MockMailer{}
		boom := errors.New("smtp down")
		mailer.On("Send", mock.Anything, mock.Anything).Return(boom)

		err := newTestNotifier(t, mailer).SendPasswordResetAlert(context.Background(), "admin@lkmo.id", user)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "admin@lkmo.id")
	})
}

func TestNewMailer(t *testing.T) {
	log := zaptest.NewLogger(t)

	m, err := NewMailer(config.MailConfig{Provider: "log"}, log)
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)
	assert.NoError(t, m.Send(context.Background(), utils.Email{To: []string{"a@b.id"}, Subject: "hi"}))

	m, err = NewMailer(config.MailConfig{Provider: "smtp", SMTPHost: "smtp.lkmo.id", SMTPPort: 587, SMTPUser: "u", SMTPPassword: "p"}, log)
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)

	_, err = NewMailer(config.MailConfig{Provider: "smtp"}, log)
	assert.Error(t, err)

	m, err = NewMailer(config.MailConfig{Provider: "resend", ResendAPIKey: "re_test", From: "noreply@lkmo.id"}, log)
	require.NoError(t, err)
	assert.IsType(t, &ResendMailer{}, m)

	_, err = NewMailer(config.MailConfig{Provider: "pigeon"}, log)
	assert.Error(t, err)
}
