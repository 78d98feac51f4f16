package mailer

import (
	"context"
	"crypto/tls"

	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"gopkg.in/gomail.v2"
)

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	TLS      bool
	SSL      bool
	FromName string
	From     string
}

// dialAndSend is a seam for testing gomail delivery.
var dialAndSend = func(d *gomail.Dialer, m ...*gomail.Message) error {
	return d.DialAndSend(m...)
}

// SMTPSender sends through an SMTP relay, one connection per message.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.SSL = cfg.SSL
	if cfg.TLS || cfg.SSL {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return &SMTPSender{cfg: cfg, dialer: d}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.HTML)

	return dialAndSend(s.dialer, msg)
}

// LogSender stands in when SMTP is not configured: it records that a
// message would have gone out, without its body.
type LogSender struct {
	Logger logging.Logger
}

func (s LogSender) Send(ctx context.Context, m Message) error {
	s.Logger.Info(ctx, "email delivery disabled, message not sent", "kind", string(m.Kind), "to", m.To)
	return nil
}
