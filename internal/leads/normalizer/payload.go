package normalizer

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedPayload is returned for bodies that are not a JSON object.
var ErrMalformedPayload = errors.New("malformed payload")

type entry struct {
	Key   string
	Value gjson.Result
}

// Payload is a parsed RawPayload with its top-level keys in document order.
type Payload struct {
	entries []entry
	index   map[string]int
}

// ParsePayload reads raw as a JSON object. A JSON string whose content is
// itself an object is unwrapped once.
func ParsePayload(raw []byte) (Payload, error) {
	if !gjson.ValidBytes(raw) {
		return Payload{}, ErrMalformedPayload
	}
	doc := gjson.ParseBytes(raw)
	if doc.Type == gjson.String {
		inner := doc.String()
		if !gjson.Valid(inner) {
			return Payload{}, ErrMalformedPayload
		}
		doc = gjson.Parse(inner)
	}
	if !doc.IsObject() {
		return Payload{}, ErrMalformedPayload
	}
	return fromObject(doc), nil
}

func fromObject(obj gjson.Result) Payload {
	p := Payload{index: make(map[string]int)}
	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if i, dup := p.index[k]; dup {
			p.entries[i].Value = value
			return true
		}
		p.index[k] = len(p.entries)
		p.entries = append(p.entries, entry{Key: k, Value: value})
		return true
	})
	return p
}

// Keys returns the top-level keys in document order.
func (p Payload) Keys() []string {
	keys := make([]string, len(p.entries))
	for i, e := range p.entries {
		keys[i] = e.Key
	}
	return keys
}

// Len returns the number of top-level keys.
func (p Payload) Len() int { return len(p.entries) }

// Scalar returns the non-empty scalar text stored under key.
func (p Payload) Scalar(key string) (string, bool) {
	i, ok := p.index[key]
	if !ok {
		return "", false
	}
	return scalarText(p.entries[i].Value)
}

// Object returns the nested object stored under key.
func (p Payload) Object(key string) (Payload, bool) {
	i, ok := p.index[key]
	if !ok || !p.entries[i].Value.IsObject() {
		return Payload{}, false
	}
	return fromObject(p.entries[i].Value), true
}

// scalarText renders strings, numbers and booleans. Whitespace-only strings,
// nulls and nested values report false.
func scalarText(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		s := v.String()
		if strings.TrimSpace(s) == "" {
			return "", false
		}
		return s, true
	case gjson.Number:
		return v.Raw, true
	case gjson.True:
		return "true", true
	case gjson.False:
		return "false", true
	default:
		return "", false
	}
}
