// Package status tracks the kanban funnel stage of each lead.
package status

import (
	"context"
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/logger"
)

// Tracker keeps one mutable status per lead id. Concurrent writers race
// under last-write-wins; any status may follow any other.
type Tracker struct {
	store Store
	log   *logger.Logger
	loc   *time.Location
	now   func() time.Time
}

// NewTracker creates a tracker. loc is the location reporting windows are computed in.
func NewTracker(store Store, loc *time.Location, log *logger.Logger) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{store: store, log: log, loc: loc, now: time.Now}
}

// Canonicalize maps any stored or user-supplied label to a canonical status.
// Unknown labels resolve to novo.
func Canonicalize(label string) domain.Status {
	return domain.CanonicalStatusOrDefault(label)
}

// GetStatus returns the current status of leadID, novo when no row exists.
// Read failures are logged and also report novo.
func (t *Tracker) GetStatus(ctx context.Context, leadID string) domain.Status {
	row, found, err := t.store.Get(ctx, leadID)
	if err != nil {
		t.log.Error("status: failed to read lead status", "leadId", leadID, "error", err)
		return domain.DefaultStatus
	}
	if !found {
		return domain.DefaultStatus
	}
	return Canonicalize(string(row.Status))
}

// GetRow returns the stored row for leadID, or a synthetic novo row.
func (t *Tracker) GetRow(ctx context.Context, leadID string) (domain.LeadStatus, error) {
	row, found, err := t.store.Get(ctx, leadID)
	if err != nil {
		return domain.LeadStatus{}, err
	}
	if !found {
		return domain.LeadStatus{LeadID: leadID, Status: domain.DefaultStatus}, nil
	}
	row.Status = Canonicalize(string(row.Status))
	return row, nil
}

// Statuses returns the canonical status for each id, defaulting to novo.
func (t *Tracker) Statuses(ctx context.Context, leadIDs []string) map[string]domain.Status {
	out := make(map[string]domain.Status, len(leadIDs))
	for _, id := range leadIDs {
		out[id] = domain.DefaultStatus
	}
	rows, err := t.store.GetMany(ctx, leadIDs)
	if err != nil {
		t.log.Error("status: failed to read lead statuses", "count", len(leadIDs), "error", err)
		return out
	}
	for _, row := range rows {
		out[row.LeadID] = Canonicalize(string(row.Status))
	}
	return out
}

// SetStatus upserts the status of leadID with updated_at = now. It returns
// false, after logging, for unknown labels and storage failures.
func (t *Tracker) SetStatus(ctx context.Context, leadID, newStatus, updatedBy string) bool {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		t.log.Warn("status: empty lead id")
		return false
	}
	canonical, ok := domain.CanonicalizeStatus(newStatus)
	if !ok {
		t.log.Warn("status: unknown status label", "leadId", leadID, "status", newStatus)
		return false
	}

	row := domain.LeadStatus{
		LeadID:    leadID,
		Status:    canonical,
		UpdatedAt: t.now().UTC(),
		UpdatedBy: updatedBy,
	}
	if err := t.store.Upsert(ctx, row); err != nil {
		t.log.Error("status: failed to store lead status", "leadId", leadID, "status", canonical, "error", err)
		return false
	}
	return true
}
