package authsvc

import (
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/crrserver/core/internal/apperror"
)

// EmailSender delivers a one-time-password to an address. The auth subsystem depends on this
// interface only, so the composition root can swap a no-op sender in tests without an SMTP
// server (§4.H).
type EmailSender interface {
	SendOTP(to, code string) error
}

// SMTPConfig is the subset of internal/config.SMTP the mailer needs.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPSender delivers OTP emails via go-mail's SMTP client.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender constructs an SMTPSender from cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// SendOTP sends code to the given address as a plain-text message.
func (s *SMTPSender) SendOTP(to, code string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return apperror.InvalidAddress(s.cfg.From)
	}
	if err := msg.To(to); err != nil {
		return apperror.InvalidAddress(to)
	}
	msg.Subject("Your sign-in code")
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf("Your one-time code is %s. It expires in 10 minutes.", code))

	opts := []gomail.Option{gomail.WithPort(s.cfg.Port)}
	if s.cfg.User != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.User),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return apperror.Smtp(fmt.Errorf("building smtp client: %w", err))
	}
	if err := client.DialAndSend(msg); err != nil {
		return apperror.Mailing(fmt.Sprintf("sending otp email: %s", err))
	}
	return nil
}

// NoopSender discards every message; used by tests and by the composition root when no SMTP
// configuration is supplied.
type NoopSender struct{}

func (NoopSender) SendOTP(string, string) error { return nil }
