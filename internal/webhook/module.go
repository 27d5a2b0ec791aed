// Package webhook provides the third-party webhook bounded context module.
// This file defines the module that encapsulates all webhook setup and route registration.
package webhook

import (
	"leadflow_backend/internal/adapters/storage"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
	repo    *Repository
}

// NewModule creates and initializes the webhook module with all its dependencies.
// storageSvc may be nil, in which case raw bodies are not archived.
func NewModule(pool *pgxpool.Pool, ingester LeadIngester, samples SampleReader, storageSvc storage.StorageService, storageBucket string, eventBus events.Bus, val *validator.Validator, cfg config.WebhookListenerConfig, log *logger.Logger) (*Module, error) {
	if err := RegisterValidations(val); err != nil {
		return nil, err
	}

	repo := NewRepository(pool)
	listenCfg := ListenerConfig{Interval: cfg.GetWebhookListenInterval(), Timeout: cfg.GetWebhookListenTimeout()}
	service := NewService(repo, ingester, samples, NewArchive(storageSvc, storageBucket, log), eventBus, listenCfg, log)

	return &Module{
		handler: NewHandler(service, val),
		service: service,
		repo:    repo,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// Service returns the webhook service.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public webhook endpoint (API key auth)
	inbound := ctx.Public.Group("/webhook")
	inbound.POST("/:sourceKey", APIKeyAuthMiddleware(m.repo), m.handler.HandleDelivery)

	sources := ctx.Admin.Group("/webhook/sources")
	sources.POST("", m.handler.HandleCreateSource)
	sources.GET("", m.handler.HandleListSources)
	sources.DELETE("/:id", m.handler.HandleRevokeSource)
	sources.POST("/:id/listen", m.handler.HandleStartListening)
	sources.DELETE("/:id/listen", m.handler.HandleStopListening)
	sources.GET("/:id/mapping", m.handler.HandleGetMapping)
	sources.POST("/:id/mapping/confirm", m.handler.HandleConfirmMapping)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
