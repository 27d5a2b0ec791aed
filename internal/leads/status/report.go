package status

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/apperr"
)

// WindowKind names a reporting window.
type WindowKind string

const (
	WindowToday  WindowKind = "today"
	WindowWeek   WindowKind = "week"
	WindowMonth  WindowKind = "month"
	WindowCustom WindowKind = "custom"
)

const dateLayout = "2006-01-02"

// Window is a reporting window request. From and To are dates (YYYY-MM-DD)
// used only by custom windows; To is inclusive.
type Window struct {
	Kind WindowKind
	From string
	To   string
}

// Report counts status changes per canonical status within a window.
type Report struct {
	Window WindowKind            `json:"window"`
	From   time.Time             `json:"from"`
	To     time.Time             `json:"to"`
	Counts map[domain.Status]int `json:"counts"`
	Total  int                   `json:"total"`
}

// Bounds resolves w to a half-open [start, end) range in loc relative to now.
// Weeks start on Monday.
func (w Window) Bounds(now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch w.Kind {
	case WindowToday, "":
		return today, today.AddDate(0, 0, 1), nil
	case WindowWeek:
		offset := (int(today.Weekday()) + 6) % 7
		start := today.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case WindowMonth:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0), nil
	case WindowCustom:
		from, err := time.ParseInLocation(dateLayout, w.From, loc)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Validation("invalid from date, expected YYYY-MM-DD")
		}
		to, err := time.ParseInLocation(dateLayout, w.To, loc)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.Validation("invalid to date, expected YYYY-MM-DD")
		}
		if to.Before(from) {
			return time.Time{}, time.Time{}, apperr.Validation("to must not be before from")
		}
		return from, to.AddDate(0, 0, 1), nil
	default:
		return time.Time{}, time.Time{}, apperr.Validation(fmt.Sprintf("unknown report window %q", w.Kind))
	}
}

// Report counts the leads whose status changed inside window, bucketed by
// canonical status. Stored labels go through Canonicalize before counting.
func (t *Tracker) Report(ctx context.Context, window Window) (Report, error) {
	start, end, err := window.Bounds(t.now(), t.loc)
	if err != nil {
		return Report{}, err
	}

	rows, err := t.store.ListUpdatedBetween(ctx, start.UTC(), end.UTC())
	if err != nil {
		return Report{}, apperr.Wrap(apperr.KindInternal, "failed to load status changes", err).WithOp("status.Report")
	}

	kind := window.Kind
	if kind == "" {
		kind = WindowToday
	}
	report := Report{
		Window: kind,
		From:   start,
		To:     end,
		Counts: make(map[domain.Status]int, len(domain.AllStatuses)),
	}
	for _, s := range domain.AllStatuses {
		report.Counts[s] = 0
	}
	for _, row := range rows {
		report.Counts[Canonicalize(string(row.Status))]++
		report.Total++
	}
	return report, nil
}
