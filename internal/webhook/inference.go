package webhook

import (
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/normalizer"
)

// MappingEntry maps one sample key onto a canonical field.
type MappingEntry struct {
	Key      string           `json:"key"`
	Field    normalizer.Field `json:"field"`
	Required bool             `json:"required"`
	// Defaulted marks keys that matched no token and fell back to name.
	Defaulted bool `json:"defaulted"`
}

// Mapping is a field mapping proposed from (or confirmed for) one source.
type Mapping struct {
	Entries  []MappingEntry `json:"entries"`
	SampleID string         `json:"sampleId,omitempty"`
	SampleAt *time.Time     `json:"sampleAt,omitempty"`
}

// inferenceTokens is checked in order; the first field with a token
// contained in the folded key wins.
var inferenceTokens = []struct {
	field  normalizer.Field
	tokens []string
}{
	{normalizer.FieldName, []string{"name", "nome"}},
	{normalizer.FieldPhone, []string{"phone", "telefone", "whatsapp", "tel", "celular"}},
	{normalizer.FieldEmail, []string{"email"}},
	{normalizer.FieldMessage, []string{"message", "msg"}},
}

// InferMapping proposes a mapping for every top-level key of sample, in
// document order. Keys matching no token are mapped to name and flagged.
func InferMapping(sample []byte) (Mapping, error) {
	p, err := normalizer.ParsePayload(sample)
	if err != nil {
		return Mapping{}, err
	}

	keys := p.Keys()
	m := Mapping{Entries: make([]MappingEntry, 0, len(keys))}
	for _, key := range keys {
		m.Entries = append(m.Entries, inferKey(key))
	}
	return m, nil
}

func inferKey(key string) MappingEntry {
	folded := domain.Fold(key)
	for _, group := range inferenceTokens {
		for _, token := range group.tokens {
			if strings.Contains(folded, token) {
				return MappingEntry{Key: key, Field: group.field, Required: isRequiredField(group.field)}
			}
		}
	}
	return MappingEntry{Key: key, Field: normalizer.FieldName, Defaulted: true}
}

func isRequiredField(f normalizer.Field) bool {
	return f == normalizer.FieldName || f == normalizer.FieldPhone
}

// ConfirmOptions carries the operator's review of a pending mapping.
type ConfirmOptions struct {
	// Include lists defaulted keys the operator wants to keep.
	Include []string
	// Fields reassigns keys to another canonical field. A reassigned key is kept.
	Fields map[string]normalizer.Field
}

// Confirm returns the mapping to activate. Defaulted entries are dropped
// unless included or reassigned.
func (m Mapping) Confirm(opts ConfirmOptions) Mapping {
	include := make(map[string]bool, len(opts.Include))
	for _, k := range opts.Include {
		include[k] = true
	}

	out := Mapping{SampleID: m.SampleID, SampleAt: m.SampleAt, Entries: make([]MappingEntry, 0, len(m.Entries))}
	for _, e := range m.Entries {
		if f, ok := opts.Fields[e.Key]; ok {
			out.Entries = append(out.Entries, MappingEntry{Key: e.Key, Field: f, Required: isRequiredField(f)})
			continue
		}
		if e.Defaulted && !include[e.Key] {
			continue
		}
		e.Defaulted = false
		out.Entries = append(out.Entries, e)
	}
	return out
}

// Overrides groups the entries into per-field alias lists, keeping entry order.
func (m Mapping) Overrides() map[normalizer.Field][]string {
	out := make(map[normalizer.Field][]string)
	for _, e := range m.Entries {
		if e.Defaulted {
			continue
		}
		out[e.Field] = append(out[e.Field], e.Key)
	}
	return out
}
