package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/status"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"
)

// LeadService is the part of service.Service the admin handler uses.
type LeadService interface {
	List(ctx context.Context, req transport.ListLeadsRequest) (transport.ListLeadsResponse, error)
	Get(ctx context.Context, id string) (transport.LeadResponse, error)
	UpdateField(ctx context.Context, id string, req transport.UpdateFieldRequest) (transport.LeadResponse, error)
	BulkDelete(ctx context.Context, ids []string) (int, error)
	GetStatus(ctx context.Context, leadID string) (domain.LeadStatus, error)
	SetStatus(ctx context.Context, leadID string, req transport.UpdateStatusRequest) (domain.LeadStatus, error)
	StatusReport(ctx context.Context, req transport.StatusReportRequest) (status.Report, error)
}

type Handler struct {
	svc LeadService
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

func New(svc LeadService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.DELETE("", h.BulkDelete)
	rg.GET("/status/report", h.StatusReport)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id", h.UpdateField)
	rg.GET("/:id/status", h.GetStatus)
	rg.PUT("/:id/status", h.UpdateStatus)
}

func (h *Handler) List(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.List(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) GetByID(c *gin.Context) {
	lead, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) UpdateField(c *gin.Context) {
	var req transport.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.UpdateField(c.Request.Context(), c.Param("id"), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) BulkDelete(c *gin.Context) {
	var req transport.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	deleted, err := h.svc.BulkDelete(c.Request.Context(), req.IDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.BulkDeleteResponse{Deleted: deleted})
}

func (h *Handler) GetStatus(c *gin.Context) {
	row, err := h.svc.GetStatus(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, row)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req transport.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = httpkit.Operator(c)
	}

	row, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, row)
}

func (h *Handler) StatusReport(c *gin.Context) {
	var req transport.StatusReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	report, err := h.svc.StatusReport(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// RegisterValidations adds the leads-specific validation tags.
func RegisterValidations(val *validator.Validator) error {
	return val.RegisterStringRule("leadstatus", domain.IsValidStatusLabel)
}
