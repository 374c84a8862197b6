package mail

import (
	"context"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/spec-kit/opsdesk/internal/config"
)

// Notifier delivers one plain-text email. Implementations report failure
// through the return value only.
type Notifier interface {
	Notify(ctx context.Context, to, subject, body string) bool
}

// Dialer sends a prepared message. It exists so tests can replace SMTP.
type Dialer interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*gomail.Msg) error
}

// Sender is a best-effort SMTP notifier. A failed send is logged and
// reported as false; it never propagates an error to the caller.
type Sender struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
	dial   func() (Dialer, error)
}

// NewSender builds a Sender over go-mail.
func NewSender(cfg config.SMTPConfig, logger *zap.Logger) *Sender {
	s := &Sender{cfg: cfg, logger: logger}
	s.dial = s.newClient
	return s
}

func (s *Sender) newClient() (Dialer, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.TimeoutSeconds > 0 {
		opts = append(opts, gomail.WithTimeout(time.Duration(s.cfg.TimeoutSeconds)*time.Second))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return gomail.NewClient(s.cfg.Host, opts...)
}

// Notify sends body to a single recipient.
func (s *Sender) Notify(ctx context.Context, to, subject, body string) bool {
	to = strings.TrimSpace(to)
	log := s.logger.With(zap.String("to", to), zap.String("subject", subject))

	if s.cfg.Host == "" {
		log.Warn("smtp host not configured, notification skipped")
		return false
	}
	if to == "" {
		log.Warn("notification has no recipient")
		return false
	}

	msg := gomail.NewMsg()
	if err := msg.From(s.from()); err != nil {
		log.Error("invalid sender address", zap.Error(err))
		return false
	}
	if err := msg.To(to); err != nil {
		log.Error("invalid recipient address", zap.Error(err))
		return false
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := s.dial()
	if err != nil {
		log.Error("smtp client setup failed", zap.Error(err))
		return false
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		log.Error("smtp send failed", zap.Error(err))
		return false
	}
	log.Info("notification sent")
	return true
}

func (s *Sender) from() string {
	if s.cfg.From != "" {
		return s.cfg.From
	}
	return s.cfg.Username
}
