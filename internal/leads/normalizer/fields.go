// Package normalizer resolves schema-less inbound payloads into canonical lead fields.
package normalizer

import (
	"regexp"
	"strings"

	"leadflow_backend/internal/leads/domain"
)

// Field names one canonical lead attribute.
type Field string

const (
	FieldName    Field = "name"
	FieldEmail   Field = "email"
	FieldPhone   Field = "phone"
	FieldService Field = "service"
	FieldMessage Field = "message"
	FieldUrgent  Field = "urgent"
)

// resolutionOrder is the fixed order fields claim payload keys in.
var resolutionOrder = []Field{FieldName, FieldEmail, FieldPhone, FieldService, FieldMessage, FieldUrgent}

// ParseField maps a label such as "Phone" to its Field.
func ParseField(label string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(label)))
	for _, known := range resolutionOrder {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// Alias tables (Portuguese + English). Order matters: first non-empty match wins.
var (
	nameAliases = []string{
		"name", "nome", "Name", "Nome", "full_name", "fullName", "nome_completo",
		"first_name", "firstName", "userName", "username", "your-name", "contact_name",
	}
	emailAliases = []string{
		"email", "Email", "E-mail", "e-mail", "e_mail", "mail", "email_address",
		"emailAddress", "your-email", "userEmail",
	}
	phoneAliases = []string{
		"phone", "telefone", "Telefone", "Phone", "whatsapp", "WhatsApp", "celular",
		"tel", "fone", "phone_number", "phoneNumber", "telephone", "mobile", "your-phone", "userPhone",
	}
	serviceAliases = []string{
		"service", "servico", "serviço", "Serviço", "service_type", "tipo_servico",
		"interesse", "produto", "assunto", "subject",
	}
	messageAliases = []string{
		"message", "mensagem", "Mensagem", "msg", "comments", "comentario",
		"observacao", "observações", "descricao", "description", "your-message",
	}
	urgentAliases = []string{"urgent", "urgente", "urgencia", "is_urgent"}
)

// Semantic hints matched against folded key tokens.
var (
	PhoneHints   = []string{"telefone", "phone", "whatsapp", "tel", "celular"}
	nameHints    = []string{"nome", "name"}
	emailHints   = []string{"email", "mail"}
	serviceHints = []string{"servico", "service", "interesse"}
	messageHints = []string{"mensagem", "message", "msg", "duvida", "observacao"}
)

// mappedAnswerContainers hold question-text keyed answers from form builders.
var mappedAnswerContainers = []string{"respostas_mapeadas", "mapped_answers", "answers", "respostas"}

// metaKeys are transport metadata, never lead data.
var metaKeys = map[string]struct{}{
	"id": {}, "created_at": {}, "createdAt": {}, "updated_at": {}, "submitted_at": {},
	"session_id": {}, "sessionId": {}, "event_type": {}, "event_action": {},
	"form_id": {}, "formId": {}, "source": {}, "page_url": {}, "pageUrl": {},
	"user_agent": {}, "userAgent": {}, "ip": {}, "timestamp": {},
}

// IsMetaKey reports whether key is transport metadata.
func IsMetaKey(key string) bool {
	_, ok := metaKeys[key]
	return ok
}

var (
	phoneShapeRe = regexp.MustCompile(`^[0-9+().\-\s]+$`)
	emailShapeRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// minPhoneDigits keeps 8-digit postal codes out of phone detection.
const minPhoneDigits = 10

// LooksLikePhone reports whether value is only digits and phone punctuation
// and carries at least ten digits.
func LooksLikePhone(value string) bool {
	value = strings.TrimSpace(value)
	if !phoneShapeRe.MatchString(value) {
		return false
	}
	digits := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits
}

// LooksLikeEmail reports whether value has an email address shape.
func LooksLikeEmail(value string) bool {
	return emailShapeRe.MatchString(strings.TrimSpace(value))
}

// MatchesHints reports whether any folded token of key equals one of hints.
func MatchesHints(key string, hints []string) bool {
	for _, token := range domain.Tokens(key) {
		for _, h := range hints {
			if token == h {
				return true
			}
		}
	}
	return false
}

// isTruthy parses the urgency flag.
func isTruthy(value string) bool {
	switch domain.Fold(value) {
	case "true", "sim", "yes", "1", "s", "y":
		return true
	}
	return false
}
