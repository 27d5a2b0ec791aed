// Package email delivers new-lead notifications.
package email

import (
	"context"
	"fmt"
	"strings"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/logger"
)

// Sender delivers notification emails.
type Sender interface {
	SendNewLeadEmail(ctx context.Context, toEmail string, lead domain.CanonicalLead) error
}

// fieldLabels orders the canonical field map in the email body.
var fieldLabels = []struct {
	key   string
	label string
}{
	{"name", "Nome"},
	{"email", "E-mail"},
	{"phone", "Telefone"},
	{"service", "Serviço"},
	{"message", "Mensagem"},
	{"state", "Estado"},
	{"capital", "Capital"},
	{"region", "Região"},
	{"submittedAt", "Recebido em"},
}

// renderNewLead builds the subject and HTML body for lead.
func renderNewLead(lead domain.CanonicalLead) (string, string, error) {
	name := strings.TrimSpace(lead.Name)
	if name == "" {
		name = subjectUnnamedLead
	}
	subject := fmt.Sprintf(subjectNewLeadFmt, name)
	if lead.Urgent {
		subject = fmt.Sprintf(subjectNewLeadUrgentFmt, name)
	}

	fields := lead.Fields()
	rows := make([]fieldRow, 0, len(fieldLabels)+len(lead.ExtraFields)+1)
	for _, fl := range fieldLabels {
		if v := strings.TrimSpace(fields[fl.key]); v != "" {
			rows = append(rows, fieldRow{Label: fl.label, Value: v})
		}
	}
	if lead.Source != "" {
		rows = append(rows, fieldRow{Label: "Origem", Value: lead.Source})
	}
	for _, extra := range lead.ExtraFields {
		rows = append(rows, fieldRow{Label: extra.Key, Value: extra.Value})
	}

	content, err := renderEmailTemplate("new_lead.html", newLeadEmailData{
		baseEmailData: baseEmailData{
			Title:   "Novo lead recebido",
			Heading: "Novo lead recebido",
		},
		Urgent: lead.Urgent,
		Rows:   rows,
	})
	if err != nil {
		return "", "", err
	}
	return subject, content, nil
}

// NoopSender logs instead of sending. Used when SMTP is not configured.
type NoopSender struct {
	log *logger.Logger
}

func NewNoopSender(log *logger.Logger) *NoopSender {
	return &NoopSender{log: log}
}

func (s *NoopSender) SendNewLeadEmail(_ context.Context, toEmail string, lead domain.CanonicalLead) error {
	s.log.Info("email disabled, skipping new lead notification", "to", toEmail, "leadId", lead.ID)
	return nil
}

// Config provides the SMTP settings.
type Config interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NewSender returns an SMTPSender when email is enabled, otherwise a NoopSender.
func NewSender(cfg Config, log *logger.Logger) Sender {
	if !cfg.GetEmailEnabled() {
		return NewNoopSender(log)
	}
	return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}
