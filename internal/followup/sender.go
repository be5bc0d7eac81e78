package followup

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Sender delivers a rendered follow-up message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures the outgoing mail account.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"-"`
	From     string `mapstructure:"from"`
}

// SMTPSender delivers follow-ups over authenticated SMTP with STARTTLS.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg, logger: logger}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("set recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("build smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send follow-up to %q: %w", msg.To, err)
	}

	s.logger.Info("follow-up email delivered",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// LogSender records follow-ups instead of delivering them. Used for dry
// runs and when no SMTP account is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (l *LogSender) Send(_ context.Context, msg Message) error {
	l.Logger.Info("follow-up (dry run, not delivered)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
