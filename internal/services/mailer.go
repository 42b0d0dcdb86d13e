package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/lkmo/lkmo-backend/internal/config"
	"github.com/lkmo/lkmo-backend/pkg/utils"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer is an outbound email transport.
type Mailer interface {
	Send(ctx context.Context, msg utils.Email) error
}

// NewMailer selects the transport named by cfg.Provider.
func NewMailer(cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "smtp":
		return NewSMTPMailer(cfg, logger)
	case "resend":
		return NewResendMailer(cfg.ResendAPIKey, cfg.From, logger)
	case "log":
		return NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
	logger *zap.Logger
}

func NewSMTPMailer(cfg config.MailConfig, logger *zap.Logger) (*SMTPMailer, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP host is not configured")
	}
	if cfg.SMTPUser == "" || cfg.SMTPPassword == "" {
		return nil, fmt.Errorf("SMTP credentials are not configured")
	}
	from := cfg.From
	if from == "" {
		from = cfg.SMTPUser
	}
	return &SMTPMailer{
		from:   from,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		logger: logger,
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg utils.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To...)
	gm.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		gm.SetBody("text/plain", msg.Text)
		gm.AddAlternative("text/html", msg.HTML)
	} else {
		gm.SetBody("text/html", msg.HTML)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.logger.Info("email sent", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	from   string
	client *resend.Client
	logger *zap.Logger
}

func NewResendMailer(apiKey, from string, logger *zap.Logger) (*ResendMailer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("from email address is required")
	}
	return &ResendMailer{
		from:   from,
		client: resend.NewClient(apiKey),
		logger: logger,
	}, nil
}

func (m *ResendMailer) Send(ctx context.Context, msg utils.Email) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}

	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.logger.Info("email sent", zap.Strings("to", msg.To), zap.String("message_id", sent.Id))
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used in
// development, where it is the only way to read a reset code.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg utils.Email) error {
	m.logger.Info("[DEV MODE] email not sent",
		zap.String("to", strings.Join(msg.To, ",")),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text))
	return nil
}
