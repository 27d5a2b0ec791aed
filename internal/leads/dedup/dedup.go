// Package dedup collapses near-duplicate lead submissions that share an
// identity key within a short time window.
package dedup

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"leadflow_backend/internal/leads/domain"
)

// DefaultWindow is the duplicate suppression window.
const DefaultWindow = 30 * time.Second

// Key returns the provisional identity of a lead: lowercased email, else
// phone digits. ok=false means the lead has no key and is never deduplicated.
func Key(lead domain.CanonicalLead) (key string, ok bool) {
	if lead.Degraded {
		return "", false
	}
	if email := strings.ToLower(strings.TrimSpace(lead.Email)); email != "" {
		return "email:" + email, true
	}
	if lead.NormalizedPhoneDigits != "" {
		return "phone:" + lead.NormalizedPhoneDigits, true
	}
	return "", false
}

// Dedupe drops every lead whose key was kept less than or equal to window
// earlier. Input must be ordered by submission time. A candidate is compared
// with the first kept lead of its cluster, not its nearest neighbour, and a
// dropped candidate never moves that baseline.
func Dedupe(leads []domain.CanonicalLead, window time.Duration) []domain.CanonicalLead {
	if window <= 0 {
		window = DefaultWindow
	}
	kept := make([]domain.CanonicalLead, 0, len(leads))
	lastKept := make(map[string]time.Time)

	for _, lead := range leads {
		key, ok := Key(lead)
		if !ok {
			kept = append(kept, lead)
			continue
		}
		if prior, seen := lastKept[key]; seen && absDuration(lead.SubmittedAt.Sub(prior)) <= window {
			continue
		}
		lastKept[key] = lead.SubmittedAt
		kept = append(kept, lead)
	}
	return kept
}

// DedupePartitioned gives the same result as Dedupe, running each key's
// partition on its own goroutine with at most workers in flight.
func DedupePartitioned(ctx context.Context, leads []domain.CanonicalLead, window time.Duration, workers int) ([]domain.CanonicalLead, error) {
	if window <= 0 {
		window = DefaultWindow
	}

	keep := make([]bool, len(leads))
	partitions := make(map[string][]int)
	var order []string
	for i, lead := range leads {
		key, ok := Key(lead)
		if !ok {
			keep[i] = true
			continue
		}
		if _, exists := partitions[key]; !exists {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, key := range order {
		indexes := partitions[key]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var baseline time.Time
			for n, i := range indexes {
				at := leads[i].SubmittedAt
				if n > 0 && absDuration(at.Sub(baseline)) <= window {
					continue
				}
				baseline = at
				keep[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.CanonicalLead, 0, len(leads))
	for i, lead := range leads {
		if keep[i] {
			out = append(out, lead)
		}
	}
	return out, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
