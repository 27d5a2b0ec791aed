package transport

import (
	"encoding/json"

	"leadflow_backend/internal/leads/domain"
)

// Request DTOs
type ListLeadsRequest struct {
	From   string   `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string   `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Types  []string `form:"types" validate:"omitempty,dive,oneof=webhook_lead form_submission"`
	Source string   `form:"source" validate:"max=100"`
}

type UpdateFieldRequest struct {
	Field string `json:"field" validate:"required,max=200"`
	Value string `json:"value" validate:"max=5000"`
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
}

type UpdateStatusRequest struct {
	Status    string `json:"status" validate:"required,leadstatus"`
	UpdatedBy string `json:"updatedBy" validate:"max=200"`
}

type StatusReportRequest struct {
	Window string `form:"window" validate:"omitempty,oneof=today week month custom"`
	From   string `form:"from" validate:"required_if=Window custom"`
	To     string `form:"to" validate:"required_if=Window custom"`
}

type FormSubmissionRequest struct {
	SessionID string          `json:"sessionId" validate:"max=100"`
	FormID    string          `json:"formId" validate:"max=100"`
	Data      json.RawMessage `json:"data" validate:"required"`
}

// Response DTOs
type LeadResponse struct {
	domain.CanonicalLead
	EventType string        `json:"eventType"`
	Status    domain.Status `json:"status"`
}

type ListLeadsResponse struct {
	Items     []LeadResponse `json:"items"`
	Total     int            `json:"total"`
	Received  int            `json:"received"`
	Degraded  int            `json:"degraded"`
	Truncated bool           `json:"truncated"`
}

type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

type SubmissionResponse struct {
	ID       string `json:"id"`
	Received bool   `json:"received"`
}
