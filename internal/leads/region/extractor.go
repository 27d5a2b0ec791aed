// Package region derives phone digits, DDD area code and geographic metadata
// for a lead from its raw phone string.
package region

import (
	"context"
	"strconv"
	"strings"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
)

const (
	minPhoneDigits = 10
	minAreaCode    = 11
	maxAreaCode    = 99
	countryPrefix  = "55"
)

// Lookup resolves one area code against the read-only reference table.
// found=false with a nil error is a miss.
type Lookup interface {
	LookupAreaCode(ctx context.Context, areaCode int) (rec domain.AreaCodeRecord, found bool, err error)
}

// Result is the outcome of one extraction.
type Result struct {
	Digits   string
	Valid    bool
	E164     string
	AreaCode *int
	State    *string
	Capital  *string
	Region   *string
}

// Extractor turns raw phone strings into digits and region data.
type Extractor struct {
	lookup      Lookup
	phoneRegion string
	log         *logger.Logger
}

// NewExtractor creates an extractor. lookup may be nil, in which case
// geographic fields are never filled.
func NewExtractor(lookup Lookup, phoneRegion string, log *logger.Logger) *Extractor {
	if phoneRegion == "" {
		phoneRegion = phone.DefaultRegion
	}
	return &Extractor{lookup: lookup, phoneRegion: phoneRegion, log: log}
}

// WithLookup returns a copy bound to another lookup, typically a per-batch memo.
func (e *Extractor) WithLookup(lookup Lookup) *Extractor {
	clone := *e
	clone.lookup = lookup
	return &clone
}

// ForBatch returns a copy whose lookups are memoized for one batch.
func (e *Extractor) ForBatch() *Extractor {
	if e.lookup == nil {
		return e
	}
	return e.WithLookup(NewBatchLookup(e.lookup))
}

// Extract derives digits and region data from phoneRaw. Lookup misses and
// failures leave the geographic fields nil.
func (e *Extractor) Extract(ctx context.Context, phoneRaw string) Result {
	digits := phone.Digits(phoneRaw)
	if len(digits) < minPhoneDigits {
		return Result{}
	}

	res := Result{Digits: digits, Valid: true}
	if formatted, ok := phone.FormatE164(dialable(digits), e.phoneRegion); ok {
		res.E164 = formatted
	}

	code, ok := DeriveAreaCode(digits)
	if !ok {
		return res
	}
	res.AreaCode = &code

	if e.lookup == nil {
		return res
	}
	rec, found, err := e.lookup.LookupAreaCode(ctx, code)
	if err != nil {
		e.log.Warn("region: area code lookup failed", "areaCode", code, "error", err)
		return res
	}
	if !found {
		e.log.Debug("region: area code not in reference table", "areaCode", code)
		return res
	}
	res.State = stringPtr(rec.StateName)
	res.Capital = stringPtr(rec.Capital)
	res.Region = stringPtr(rec.Region)
	return res
}

// Apply enriches lead in place from its raw phone. Degraded leads are left untouched.
func (e *Extractor) Apply(ctx context.Context, lead *domain.CanonicalLead) {
	if lead.Degraded {
		return
	}
	res := e.Extract(ctx, lead.Phone)
	if !res.Valid {
		lead.Phone = domain.PhoneNotAvailable
		lead.NormalizedPhoneDigits = ""
		lead.PhoneE164 = ""
		lead.AreaCode, lead.State, lead.Capital, lead.Region = nil, nil, nil, nil
		return
	}
	lead.NormalizedPhoneDigits = res.Digits
	lead.PhoneE164 = res.E164
	lead.AreaCode = res.AreaCode
	lead.State = res.State
	lead.Capital = res.Capital
	lead.Region = res.Region
}

// DeriveAreaCode picks the DDD out of a digit string of at least ten digits.
// A leading "55" on twelve or more digits is read as the country code, so a
// local number that happens to start with 55 is misread the same way.
func DeriveAreaCode(digits string) (int, bool) {
	if len(digits) < minPhoneDigits {
		return 0, false
	}
	raw := digits[0:2]
	if hasCountryPrefix(digits) {
		raw = digits[2:4]
	}
	code, err := strconv.Atoi(raw)
	if err != nil || code < minAreaCode || code > maxAreaCode {
		return 0, false
	}
	return code, true
}

func hasCountryPrefix(digits string) bool {
	return strings.HasPrefix(digits, countryPrefix) && len(digits) >= 12
}

func dialable(digits string) string {
	if hasCountryPrefix(digits) {
		return "+" + digits
	}
	return digits
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
