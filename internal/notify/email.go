package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"

	"equity_bot/internal/metrics"
	"equity_bot/internal/modules/config"
	"equity_bot/pkg/logger"
)

const defaultSubject = "Trading System Alert"

// Email шлёт оповещения по SMTP. Send уходит с дефолтной темой, отчёты
// отправляются через SendAlert.
type Email struct {
	cfg config.EmailConfig
}

func NewEmail(cfg config.EmailConfig) *Email { return &Email{cfg: cfg} }

func (e *Email) Send(msg string) {
	if err := e.SendAlert(defaultSubject, msg); err != nil {
		logger.Warn("email send failed: %v", err)
		metrics.NotifySends.WithLabelValues("email", "error").Inc()
		return
	}
	metrics.NotifySends.WithLabelValues("email", "ok").Inc()
}

func (e *Email) Sendf(format string, args ...any) { e.Send(fmt.Sprintf(format, args...)) }

// SendAlert отправляет письмо: STARTTLS по флагу конфига, авторизация
// только при заданном пользователе.
func (e *Email) SendAlert(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPServer, e.cfg.SMTPPort)
	c, err := smtp.Dial(addr)
	if err != nil {
		return errors.Wrap(err, "smtp dial")
	}
	defer c.Close()

	if e.cfg.UseTLS {
		if err := c.StartTLS(&tls.Config{ServerName: e.cfg.SMTPServer}); err != nil {
			return errors.Wrap(err, "smtp starttls")
		}
	}
	if e.cfg.Username != "" {
		auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPServer)
		if err := c.Auth(auth); err != nil {
			return errors.Wrap(err, "smtp auth")
		}
	}

	if err := c.Mail(e.cfg.Username); err != nil {
		return errors.Wrap(err, "smtp mail from")
	}
	if err := c.Rcpt(e.cfg.Recipient); err != nil {
		return errors.Wrap(err, "smtp rcpt to")
	}

	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "smtp data")
	}
	if _, err := w.Write(e.message(subject, body)); err != nil {
		return errors.Wrap(err, "smtp write body")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "smtp finish body")
	}
	return c.Quit()
}

func (e *Email) message(subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.Username)
	fmt.Fprintf(&b, "To: %s\r\n", e.cfg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
