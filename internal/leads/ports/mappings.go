// Package ports defines the interfaces the leads context needs from other modules.
package ports

import (
	"context"

	"leadflow_backend/internal/leads/normalizer"
)

// MappingOverrides supplies the operator-confirmed field mappings of every
// webhook source, keyed by source key.
type MappingOverrides interface {
	ActiveOverrides(ctx context.Context) (map[string]map[normalizer.Field][]string, error)
}

// NoMappingOverrides is used when no webhook module is wired.
type NoMappingOverrides struct{}

func (NoMappingOverrides) ActiveOverrides(context.Context) (map[string]map[normalizer.Field][]string, error) {
	return nil, nil
}
