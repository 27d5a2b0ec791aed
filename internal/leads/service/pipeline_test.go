package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/leads/dedup"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/normalizer"
	"leadflow_backend/internal/leads/region"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/logger"
)

func TestBatchLargeInputMatchesSequentialDedup(t *testing.T) {
	log := logger.Nop()
	p := NewPipeline(normalizer.New(), region.NewExtractor(noLookup{}, "BR", log), nil, 30*time.Second, log)

	evs := make([]repository.Event, 0, partitionThreshold+100)
	for i := 0; i < partitionThreshold+100; i++ {
		payload := fmt.Sprintf(`{"nome":"Lead %d","email":"u%d@x.com"}`, i, i%700)
		if i%50 == 0 {
			payload = `{"nome":`
		}
		evs = append(evs, repository.Event{
			ID:          uuid.New(),
			EventType:   domain.EventTypeFormSubmission,
			EventAction: "site",
			LeadData:    json.RawMessage(payload),
			CreatedAt:   t0.Add(time.Duration(i) * 100 * time.Millisecond),
		})
	}

	ctx := context.Background()
	leads := make([]domain.CanonicalLead, len(evs))
	for i, ev := range evs {
		leads[i] = p.One(ctx, ev)
	}
	want := dedup.Dedupe(leads, p.Window())

	got := p.Batch(ctx, evs)
	if len(got.Leads) != len(want) {
		t.Fatalf("kept %d, want %d", len(got.Leads), len(want))
	}
	for i := range want {
		if got.Leads[i].ID != want[i].ID {
			t.Fatalf("lead %d = %s, want %s", i, got.Leads[i].ID, want[i].ID)
		}
	}
	if got.Degraded != (partitionThreshold+100+49)/50 {
		t.Fatalf("degraded = %d", got.Degraded)
	}
}
