package domain

import (
	"strings"
	"time"
)

// Status is the kanban funnel stage of a lead.
type Status string

const (
	StatusNovo        Status = "novo"
	StatusContatado   Status = "contatado"
	StatusQualificado Status = "qualificado"
	StatusProposta    Status = "proposta"
	StatusConvertido  Status = "convertido"
	StatusPerdido     Status = "perdido"
)

// DefaultStatus applies to every lead without a stored status row.
const DefaultStatus = StatusNovo

// AllStatuses lists the funnel stages in board order.
var AllStatuses = []Status{
	StatusNovo,
	StatusContatado,
	StatusQualificado,
	StatusProposta,
	StatusConvertido,
	StatusPerdido,
}

// statusSynonyms maps legacy and free-text labels (already folded) to the canonical status.
var statusSynonyms = map[string]Status{
	"novo":             StatusNovo,
	"novo lead":        StatusNovo,
	"new":              StatusNovo,
	"contatado":        StatusContatado,
	"contato":          StatusContatado,
	"em contato":       StatusContatado,
	"contacted":        StatusContatado,
	"qualificado":      StatusQualificado,
	"qualificacao":     StatusQualificado,
	"qualified":        StatusQualificado,
	"proposta":         StatusProposta,
	"orcamento":        StatusProposta,
	"proposta enviada": StatusProposta,
	"proposal":         StatusProposta,
	"convertido":       StatusConvertido,
	"ganho":            StatusConvertido,
	"fechado":          StatusConvertido,
	"cliente":          StatusConvertido,
	"won":              StatusConvertido,
	"perdido":          StatusPerdido,
	"descartado":       StatusPerdido,
	"perda":            StatusPerdido,
	"lost":             StatusPerdido,
}

// CanonicalizeStatus maps a stored or user-supplied label to its canonical status.
// Underscores and hyphens count as spaces; case and accents are ignored.
func CanonicalizeStatus(label string) (Status, bool) {
	key := strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(Fold(label))), " ")
	s, ok := statusSynonyms[key]
	return s, ok
}

// CanonicalStatusOrDefault is CanonicalizeStatus falling back to DefaultStatus.
func CanonicalStatusOrDefault(label string) Status {
	if s, ok := CanonicalizeStatus(label); ok {
		return s
	}
	return DefaultStatus
}

// IsValidStatusLabel reports whether label resolves to a canonical status.
func IsValidStatusLabel(label string) bool {
	_, ok := CanonicalizeStatus(label)
	return ok
}

// LeadStatus is the single mutable status row of a lead.
type LeadStatus struct {
	LeadID    string    `json:"leadId"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}
