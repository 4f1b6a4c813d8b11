// Package email delivers waitlist offers over SMTP.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
)

type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg SMTPConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// logService only logs; used when SMTP is disabled.
type logService struct {
	log *logger.Logger
}

func NewLogService(log *logger.Logger) Service {
	return &logService{log: log}
}

func (s *logService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	s.log.Info("email delivery disabled, dropping message", "to", to, "subject", subject)
	return nil
}

const offerSubject = "An appointment slot is available"

var offerBody = template.Must(template.New("offer").Parse(
	`Hello {{.PatientName}},

A slot you were waiting for has opened up:

  {{.StartTime.Format "Mon, 02 Jan 2006 15:04 MST"}} - {{.EndTime.Format "15:04 MST"}}

Claim it before {{.ClaimDeadline.Format "Mon, 02 Jan 2006 15:04 MST"}}. After that the offer lapses.
`))

// OfferRelay turns waitlist.offer broker messages into emails.
type OfferRelay struct {
	email Service
	log   *logger.Logger
}

func NewOfferRelay(email Service, log *logger.Logger) *OfferRelay {
	return &OfferRelay{email: email, log: log}
}

func (r *OfferRelay) Handle(ctx context.Context, payload []byte) error {
	var offer model.WaitlistOffer
	if err := json.Unmarshal(payload, &offer); err != nil {
		return fmt.Errorf("failed to decode waitlist offer: %w", err)
	}
	if offer.PatientEmail == "" {
		r.log.Warn("waitlist offer has no recipient", "entry_id", offer.EntryID.String())
		return nil
	}

	var body bytes.Buffer
	if err := offerBody.Execute(&body, offer); err != nil {
		return fmt.Errorf("failed to render waitlist offer: %w", err)
	}
	if err := r.email.SendCustom(ctx, offer.PatientEmail, offerSubject, body.String()); err != nil {
		return err
	}

	r.log.Info("waitlist offer sent", "entry_id", offer.EntryID.String(), "tenant_id", offer.TenantID.String())
	return nil
}
