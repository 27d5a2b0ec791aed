package normalizer

import "strings"

// Match is the payload entry a rule claimed.
type Match struct {
	Container string
	Key       string
	Value     string
}

func (m Match) claimKey() string { return claimKey(m.Container, m.Key) }

func claimKey(container, key string) string {
	if container == "" {
		return key
	}
	return container + "\x00" + key
}

// claims records payload entries already assigned to a canonical field.
type claims map[string]Field

func (c claims) has(container, key string) bool {
	_, ok := c[claimKey(container, key)]
	return ok
}

// Rule resolves one canonical field from a payload. Rules are pure.
type Rule interface {
	Resolve(p Payload, taken claims) (Match, bool)
}

// ExactAliasRule accepts the first top-level key of Aliases holding a non-empty scalar.
type ExactAliasRule struct {
	Aliases []string
}

func (r ExactAliasRule) Resolve(p Payload, taken claims) (Match, bool) {
	for _, alias := range r.Aliases {
		if taken.has("", alias) {
			continue
		}
		if v, ok := p.Scalar(alias); ok {
			return Match{Key: alias, Value: strings.TrimSpace(v)}, true
		}
	}
	return Match{}, false
}

// NestedMapScanRule scans the mapped-answers containers in insertion order,
// accepting an entry whose key token-matches Hints or whose value satisfies Shape.
type NestedMapScanRule struct {
	Containers []string
	Hints      []string
	Shape      func(string) bool
}

func (r NestedMapScanRule) Resolve(p Payload, taken claims) (Match, bool) {
	for _, container := range r.Containers {
		nested, ok := p.Object(container)
		if !ok {
			continue
		}
		if m, ok := scan(nested, container, r.Hints, nil, r.Shape, taken); ok {
			return m, true
		}
	}
	return Match{}, false
}

// RegexShapeRule scans the remaining top-level scalars with the same
// hint-or-shape acceptance as NestedMapScanRule. When HintValue is set, a
// hint match also needs a value it accepts.
type RegexShapeRule struct {
	Hints     []string
	HintValue func(string) bool
	Shape     func(string) bool
}

func (r RegexShapeRule) Resolve(p Payload, taken claims) (Match, bool) {
	return scan(p, "", r.Hints, r.HintValue, r.Shape, taken)
}

func scan(p Payload, container string, hints []string, hintValue, shape func(string) bool, taken claims) (Match, bool) {
	for _, e := range p.entries {
		if taken.has(container, e.Key) || (container == "" && IsMetaKey(e.Key)) {
			continue
		}
		v, ok := scalarText(e.Value)
		if !ok {
			continue
		}
		hinted := MatchesHints(e.Key, hints) && (hintValue == nil || hintValue(v))
		if hinted || (shape != nil && shape(v)) {
			return Match{Container: container, Key: e.Key, Value: strings.TrimSpace(v)}, true
		}
	}
	return Match{}, false
}

// DefaultRules returns the rule chain evaluated for each canonical field.
func DefaultRules() map[Field][]Rule {
	return map[Field][]Rule{
		FieldName: {
			ExactAliasRule{Aliases: nameAliases},
			NestedMapScanRule{Containers: mappedAnswerContainers, Hints: nameHints},
		},
		FieldEmail: {
			ExactAliasRule{Aliases: emailAliases},
			NestedMapScanRule{Containers: mappedAnswerContainers, Hints: emailHints, Shape: LooksLikeEmail},
			RegexShapeRule{Shape: LooksLikeEmail},
		},
		FieldPhone: {
			ExactAliasRule{Aliases: phoneAliases},
			NestedMapScanRule{Containers: mappedAnswerContainers, Hints: PhoneHints, Shape: LooksLikePhone},
			RegexShapeRule{Hints: PhoneHints, HintValue: hasDigit, Shape: LooksLikePhone},
		},
		FieldService: {
			ExactAliasRule{Aliases: serviceAliases},
			NestedMapScanRule{Containers: mappedAnswerContainers, Hints: serviceHints},
		},
		FieldMessage: {
			ExactAliasRule{Aliases: messageAliases},
			NestedMapScanRule{Containers: mappedAnswerContainers, Hints: messageHints},
		},
		FieldUrgent: {
			ExactAliasRule{Aliases: urgentAliases},
		},
	}
}

func hasDigit(v string) bool {
	return strings.ContainsAny(v, "0123456789")
}
