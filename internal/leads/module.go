// Package leads provides the lead management bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads/handler"
	"leadflow_backend/internal/leads/normalizer"
	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/leads/region"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/leads/status"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	public   *handler.PublicHandler
	service  *service.Service
	pipeline *service.Pipeline
	events   *repository.Repository
}

// NewModule creates and initializes the leads module with all its dependencies.
// lookup is the area-code source (usually the Redis cache in front of Postgres).
func NewModule(pool *pgxpool.Pool, lookup region.Lookup, mappings ports.MappingOverrides, eventBus events.Bus, val *validator.Validator, cfg config.IngestionConfig, log *logger.Logger) (*Module, error) {
	if err := handler.RegisterValidations(val); err != nil {
		return nil, err
	}

	repo := repository.New(pool)
	extractor := region.NewExtractor(lookup, cfg.GetPhoneRegion(), log)
	pipeline := service.NewPipeline(normalizer.New(), extractor, mappings, cfg.GetDedupWindow(), log)
	tracker := status.NewTracker(status.NewRepository(pool), cfg.GetReportLocation(), log)
	svc := service.New(repo, pipeline, tracker, eventBus, cfg.GetReportLocation(), log)

	return &Module{
		handler:  handler.New(svc, val),
		public:   handler.NewPublicHandler(svc, val),
		service:  svc,
		pipeline: pipeline,
		events:   repo,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the lead service for other modules (webhook intake).
func (m *Module) Service() *service.Service {
	return m.service
}

// Pipeline returns the normalization pipeline used by background workers.
func (m *Module) Pipeline() *service.Pipeline {
	return m.pipeline
}

// Events returns the lead event store.
func (m *Module) Events() *repository.Repository {
	return m.events
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/leads"))
	m.public.RegisterRoutes(ctx.Public.Group("/forms"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
