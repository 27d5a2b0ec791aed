package normalizer

import (
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
)

// Normalizer turns raw payloads into canonical lead fields. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	rules map[Field][]Rule
}

// New builds a Normalizer with the static alias tables.
func New() *Normalizer {
	return &Normalizer{rules: DefaultRules()}
}

// WithOverrides returns a copy whose rule chains start with an ExactAliasRule
// holding the given keys, as confirmed for one webhook source.
func (n *Normalizer) WithOverrides(overrides map[Field][]string) *Normalizer {
	if len(overrides) == 0 {
		return n
	}
	out := &Normalizer{rules: make(map[Field][]Rule, len(n.rules))}
	for field, chain := range n.rules {
		keys := overrides[field]
		if len(keys) == 0 {
			out.rules[field] = chain
			continue
		}
		merged := make([]Rule, 0, len(chain)+1)
		merged = append(merged, ExactAliasRule{Aliases: keys})
		out.rules[field] = append(merged, chain...)
	}
	return out
}

// Normalize resolves raw into a CanonicalLead. Identity, timestamps and
// phone enrichment are left to the caller. An unparseable body yields a
// degraded lead instead of an error.
func (n *Normalizer) Normalize(raw []byte) domain.CanonicalLead {
	p, err := ParsePayload(raw)
	if err != nil {
		return domain.DegradedLead("", time.Time{})
	}
	return n.NormalizePayload(p)
}

// NormalizePayload resolves an already parsed payload.
func (n *Normalizer) NormalizePayload(p Payload) domain.CanonicalLead {
	lead, _ := n.resolve(p)
	return lead
}

// EditKey returns the top-level payload key an inline edit of field must
// write so that the edited value wins the next resolution: the key that
// currently supplies field, or the first alias of the chain.
func (n *Normalizer) EditKey(raw []byte, field Field) string {
	if p, err := ParsePayload(raw); err == nil {
		_, taken := n.resolve(p)
		for key, f := range taken {
			if f == field && !strings.Contains(key, "\x00") {
				return key
			}
		}
	}
	for _, rule := range n.rules[field] {
		if exact, ok := rule.(ExactAliasRule); ok && len(exact.Aliases) > 0 {
			return exact.Aliases[0]
		}
	}
	return string(field)
}

func (n *Normalizer) resolve(p Payload) (domain.CanonicalLead, claims) {
	taken := claims{}
	values := make(map[Field]string, len(resolutionOrder))

	for _, field := range resolutionOrder {
		for _, rule := range n.rules[field] {
			m, ok := rule.Resolve(p, taken)
			if !ok {
				continue
			}
			taken[m.claimKey()] = field
			values[field] = m.Value
			break
		}
	}

	return domain.CanonicalLead{
		Name:        values[FieldName],
		Email:       values[FieldEmail],
		Phone:       values[FieldPhone],
		Service:     values[FieldService],
		Message:     values[FieldMessage],
		Urgent:      isTruthy(values[FieldUrgent]),
		ExtraFields: extraFields(p, taken),
	}, taken
}

// extraFields keeps every scalar no rule claimed, including alias-keyed
// entries that lost to an earlier alias. Meta keys are dropped.
func extraFields(p Payload, taken claims) domain.ExtraFields {
	extra := domain.ExtraFields{}
	containers := make(map[string]struct{}, len(mappedAnswerContainers))
	for _, c := range mappedAnswerContainers {
		containers[c] = struct{}{}
	}

	for _, e := range p.entries {
		if _, isContainer := containers[e.Key]; isContainer && e.Value.IsObject() {
			nested := fromObject(e.Value)
			for _, ne := range nested.entries {
				if taken.has(e.Key, ne.Key) || IsMetaKey(ne.Key) {
					continue
				}
				if v, ok := scalarText(ne.Value); ok {
					extra.Set(ne.Key, v)
				}
			}
			continue
		}
		if taken.has("", e.Key) || IsMetaKey(e.Key) {
			continue
		}
		if v, ok := scalarText(e.Value); ok {
			extra.Set(e.Key, v)
		}
	}
	return extra
}
