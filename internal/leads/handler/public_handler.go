package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"
)

// Ingester stores inbound submissions.
type Ingester interface {
	Ingest(ctx context.Context, params service.IngestParams) (repository.Event, error)
}

// PublicHandler receives in-app form submissions.
type PublicHandler struct {
	svc Ingester
	val *validator.Validator
}

const defaultFormSource = "site"

func NewPublicHandler(svc Ingester, val *validator.Validator) *PublicHandler {
	return &PublicHandler{svc: svc, val: val}
}

// RegisterRoutes registers public form routes under /forms.
func (h *PublicHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/submissions", h.Submit)
}

// Submit appends a form submission to the event store.
func (h *PublicHandler) Submit(c *gin.Context) {
	var req transport.FormSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if !gjson.ParseBytes(req.Data).IsObject() {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, "data must be a JSON object")
		return
	}

	source := strings.TrimSpace(req.FormID)
	if source == "" {
		source = defaultFormSource
	}

	city, region, country := httpkit.GeoHeaders(c)
	ev, err := h.svc.Ingest(c.Request.Context(), service.IngestParams{
		EventType:  domain.EventTypeFormSubmission,
		Source:     source,
		SessionID:  req.SessionID,
		Body:       req.Data,
		GeoCity:    city,
		GeoRegion:  region,
		GeoCountry: country,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.SubmissionResponse{ID: ev.ID.String(), Received: true})
}
