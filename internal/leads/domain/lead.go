// Package domain provides the core types and business rules for the leads bounded context.
package domain

import (
	"time"
)

const (
	// PhoneNotAvailable is shown when no usable phone could be derived.
	PhoneNotAvailable = "N/A"
	// DegradedValue marks every text field of a lead whose payload could not be parsed.
	DegradedValue = "error"
)

// Event types written by the inbound channels.
const (
	EventTypeWebhookLead    = "webhook_lead"
	EventTypeFormSubmission = "form_submission"
)

// CanonicalLead is the normalized view of one inbound submission.
type CanonicalLead struct {
	ID                    string      `json:"id"`
	SubmittedAt           time.Time   `json:"submittedAt"`
	Source                string      `json:"source"`
	SessionID             string      `json:"sessionId,omitempty"`
	Name                  string      `json:"name"`
	Email                 string      `json:"email"`
	Phone                 string      `json:"phone"`
	NormalizedPhoneDigits string      `json:"normalizedPhoneDigits"`
	PhoneE164             string      `json:"phoneE164,omitempty"`
	AreaCode              *int        `json:"areaCode"`
	State                 *string     `json:"state"`
	Capital               *string     `json:"capital"`
	Region                *string     `json:"region"`
	Service               string      `json:"service"`
	Message               string      `json:"message"`
	Urgent                bool        `json:"urgent"`
	ExtraFields           ExtraFields `json:"extraFields"`
	Degraded              bool        `json:"degraded,omitempty"`
}

// DegradedLead builds the placeholder record for an unparseable payload.
func DegradedLead(id string, submittedAt time.Time) CanonicalLead {
	return CanonicalLead{
		ID:          id,
		SubmittedAt: submittedAt,
		Name:        DegradedValue,
		Email:       DegradedValue,
		Phone:       DegradedValue,
		Service:     DegradedValue,
		Message:     DegradedValue,
		ExtraFields: ExtraFields{},
		Degraded:    true,
	}
}

// Fields returns the canonical fields as a flat map, used by the email
// dispatch collaborator for template substitution.
func (l CanonicalLead) Fields() map[string]string {
	fields := map[string]string{
		"id":          l.ID,
		"submittedAt": l.SubmittedAt.Format(time.RFC3339),
		"name":        l.Name,
		"email":       l.Email,
		"phone":       l.Phone,
		"service":     l.Service,
		"message":     l.Message,
		"urgent":      "false",
	}
	if l.Urgent {
		fields["urgent"] = "true"
	}
	if l.State != nil {
		fields["state"] = *l.State
	}
	if l.Capital != nil {
		fields["capital"] = *l.Capital
	}
	if l.Region != nil {
		fields["region"] = *l.Region
	}
	return fields
}

// AreaCodeRecord is the read-only geographic reference for one DDD.
type AreaCodeRecord struct {
	AreaCode  int      `json:"areaCode" yaml:"area_code"`
	StateName string   `json:"stateName" yaml:"state_name"`
	Capital   string   `json:"capital" yaml:"capital"`
	Region    string   `json:"region" yaml:"region"`
	Cities    []string `json:"cities" yaml:"cities"`
}
