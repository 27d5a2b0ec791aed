package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"time"

	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest  = "invalid request body"
	errValidation      = "validation error"
	errInvalidSourceID = "invalid source ID"
	maxDeliveryBytes   = 1 << 20
)

var sourceKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// WebhookService is the service surface used by the handler.
type WebhookService interface {
	Receive(ctx context.Context, in Inbound) (repository.Event, error)
	CreateSource(ctx context.Context, sourceKey, name string, allowedDomains []string) (CreatedSource, error)
	ListSources(ctx context.Context) ([]Source, error)
	RevokeSource(ctx context.Context, id uuid.UUID) error
	StartListening(ctx context.Context, id uuid.UUID) (ListenStatus, error)
	StopListening(id uuid.UUID) error
	GetMapping(ctx context.Context, id uuid.UUID) (MappingState, error)
	ConfirmMapping(ctx context.Context, id uuid.UUID, include []string, fields map[string]string) (Mapping, error)
}

// Handler handles webhook HTTP requests.
type Handler struct {
	service WebhookService
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service WebhookService, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// RegisterValidations adds the webhook-specific validation tags.
func RegisterValidations(val *validator.Validator) error {
	return val.RegisterStringRule("sourcekey", sourceKeyPattern.MatchString)
}

// ---- Deliveries (public, API-key authenticated) ----

// DeliveryResponse acknowledges a stored delivery.
type DeliveryResponse struct {
	ID       string `json:"id"`
	Received bool   `json:"received"`
}

// HandleDelivery stores an inbound webhook body as received.
// POST /api/v1/webhook/:sourceKey
func (h *Handler) HandleDelivery(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxDeliveryBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpkit.Error(c, http.StatusRequestEntityTooLarge, "payload too large", nil)
			return
		}
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}

	city, region, country := httpkit.GeoHeaders(c)
	ev, err := h.service.Receive(c.Request.Context(), Inbound{
		SourceKey:  c.GetString(ctxSourceKey),
		Body:       body,
		GeoCity:    city,
		GeoRegion:  region,
		GeoCountry: country,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, DeliveryResponse{ID: ev.ID.String(), Received: true})
}

// ---- Admin source management ----

// CreateSourceRequest is the request body for registering a webhook source.
type CreateSourceRequest struct {
	SourceKey      string   `json:"sourceKey" validate:"required,min=2,max=64,sourcekey"`
	Name           string   `json:"name" validate:"required,min=1,max=100"`
	AllowedDomains []string `json:"allowedDomains" validate:"max=20,dive,max=200"`
}

// SourceResponse is returned when listing or creating sources.
type SourceResponse struct {
	ID                uuid.UUID  `json:"id"`
	SourceKey         string     `json:"sourceKey"`
	Name              string     `json:"name"`
	KeyPrefix         string     `json:"keyPrefix"`
	AllowedDomains    []string   `json:"allowedDomains"`
	IsActive          bool       `json:"isActive"`
	HasPendingMapping bool       `json:"hasPendingMapping"`
	HasActiveMapping  bool       `json:"hasActiveMapping"`
	LastAppliedAt     *time.Time `json:"lastAppliedAt,omitempty"`
	CreatedAt         string     `json:"createdAt"`
}

// CreateSourceResponse includes the plaintext key (shown only once).
type CreateSourceResponse struct {
	SourceResponse
	Key        string `json:"key"` // plaintext, shown only once
	WebhookURL string `json:"webhookUrl"`
}

// HandleCreateSource registers a source and returns its API key.
// POST /api/v1/admin/webhook/sources
func (h *Handler) HandleCreateSource(c *gin.Context) {
	var req CreateSourceRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	created, err := h.service.CreateSource(c.Request.Context(), req.SourceKey, req.Name, req.AllowedDomains)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, CreateSourceResponse{
		SourceResponse: toSourceResponse(created.Source),
		Key:            created.Key,
		WebhookURL:     buildWebhookURL(c, "/api/v1/webhook/"+created.Source.SourceKey),
	})
}

// HandleListSources lists every webhook source.
// GET /api/v1/admin/webhook/sources
func (h *Handler) HandleListSources(c *gin.Context) {
	sources, err := h.service.ListSources(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]SourceResponse, len(sources))
	for i, src := range sources {
		result[i] = toSourceResponse(src)
	}
	httpkit.OK(c, result)
}

// HandleRevokeSource deactivates a source.
// DELETE /api/v1/admin/webhook/sources/:id
func (h *Handler) HandleRevokeSource(c *gin.Context) {
	id, ok := h.parseSourceID(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.service.RevokeSource(c.Request.Context(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- Mapping inference ----

// ListenResponse describes a started listener.
type ListenResponse struct {
	Listening      bool      `json:"listening"`
	StartedAt      time.Time `json:"startedAt"`
	TimeoutSeconds int       `json:"timeoutSeconds"`
}

// HandleStartListening starts the inference listener of a source.
// POST /api/v1/admin/webhook/sources/:id/listen
func (h *Handler) HandleStartListening(c *gin.Context) {
	id, ok := h.parseSourceID(c)
	if !ok {
		return
	}
	status, err := h.service.StartListening(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, ListenResponse{
		Listening:      status.Listening,
		StartedAt:      status.StartedAt,
		TimeoutSeconds: int(status.Timeout / time.Second),
	})
}

// HandleStopListening cancels the inference listener of a source.
// DELETE /api/v1/admin/webhook/sources/:id/listen
func (h *Handler) HandleStopListening(c *gin.Context) {
	id, ok := h.parseSourceID(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.service.StopListening(id)) {
		return
	}
	c.Status(http.StatusNoContent)
}

// MappingResponse is the pending and active mapping of a source.
type MappingResponse struct {
	Pending       *Mapping   `json:"pending"`
	Active        *Mapping   `json:"active"`
	LastAppliedAt *time.Time `json:"lastAppliedAt,omitempty"`
	Listening     bool       `json:"listening"`
}

// HandleGetMapping returns the mapping state of a source.
// GET /api/v1/admin/webhook/sources/:id/mapping
func (h *Handler) HandleGetMapping(c *gin.Context) {
	id, ok := h.parseSourceID(c)
	if !ok {
		return
	}
	state, err := h.service.GetMapping(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, MappingResponse{
		Pending:       state.Pending,
		Active:        state.Active,
		LastAppliedAt: state.LastAppliedAt,
		Listening:     state.Listening,
	})
}

// ConfirmMappingRequest lists the defaulted keys to keep and any field reassignments.
type ConfirmMappingRequest struct {
	Include []string          `json:"include" validate:"max=200,dive,max=200"`
	Fields  map[string]string `json:"fields" validate:"max=200"`
}

// HandleConfirmMapping activates the pending mapping.
// POST /api/v1/admin/webhook/sources/:id/mapping/confirm
func (h *Handler) HandleConfirmMapping(c *gin.Context) {
	id, ok := h.parseSourceID(c)
	if !ok {
		return
	}
	var req ConfirmMappingRequest
	if c.Request.ContentLength != 0 && !h.bindAndValidate(c, &req) {
		return
	}

	active, err := h.service.ConfirmMapping(c.Request.Context(), id, req.Include, req.Fields)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, active)
}

func toSourceResponse(src Source) SourceResponse {
	domains := src.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	return SourceResponse{
		ID:                src.ID,
		SourceKey:         src.SourceKey,
		Name:              src.Name,
		KeyPrefix:         src.KeyPrefix,
		AllowedDomains:    domains,
		IsActive:          src.IsActive,
		HasPendingMapping: src.PendingMapping != nil,
		HasActiveMapping:  src.ActiveMapping != nil,
		LastAppliedAt:     src.LastAppliedAt,
		CreatedAt:         src.CreatedAt.Format(time.RFC3339),
	}
}

func buildWebhookURL(c *gin.Context, path string) string {
	scheme := "https"
	if c.Request.TLS == nil {
		scheme = "http"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + c.Request.Host + path
}

func (h *Handler) parseSourceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidSourceID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}
