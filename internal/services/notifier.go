package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lkmo/lkmo-backend/internal/models"
	"github.com/lkmo/lkmo-backend/internal/passwordreset"
	"github.com/lkmo/lkmo-backend/pkg/utils"
	"go.uber.org/zap"
)

// placeholderDomains never receive admin alerts; seeded admin accounts often
// use them.
var placeholderDomains = map[string]bool{
	"lkmo.com":    true,
	"example.com": true,
	"test.com":    true,
	"localhost":   true,
}

// EmailNotifier delivers reset codes and admin alerts by email.
type EmailNotifier struct {
	mailer  Mailer
	appName string
	logger  *zap.Logger
	now     func() time.Time
}

func NewEmailNotifier(mailer Mailer, appName string, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, appName: appName, logger: logger, now: time.Now}
}

func (n *EmailNotifier) SendResetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	return n.mailer.Send(ctx, utils.ResetCodeEmail(n.appName, email, code, ttl, n.now()))
}

func (n *EmailNotifier) SendPasswordResetAlert(ctx context.Context, adminEmail string, user *models.User) error {
	if !deliverableAdminAddress(adminEmail) {
		n.logger.Warn("skipping admin alert to placeholder address", zap.String("admin", adminEmail))
		return nil
	}
	msg := utils.PasswordResetAlertEmail(n.appName, adminEmail, user.Email, user.Name, n.now())
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("alert %s: %w", adminEmail, err)
	}
	return nil
}

func deliverableAdminAddress(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	if !strings.Contains(domain, ".") {
		return false
	}
	return !placeholderDomains[domain]
}

var _ passwordreset.Notifier = (*EmailNotifier)(nil)
