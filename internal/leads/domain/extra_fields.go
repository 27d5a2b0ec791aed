package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ExtraField is one preserved unmapped scalar.
type ExtraField struct {
	Key   string
	Value string
}

// ExtraFields keeps unmapped scalars in the order they appeared in the payload.
// It encodes as a JSON object whose keys follow that order.
type ExtraFields []ExtraField

// Get returns the value stored under key.
func (e ExtraFields) Get(key string) (string, bool) {
	for _, f := range e {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (e ExtraFields) Has(key string) bool {
	_, ok := e.Get(key)
	return ok
}

// Set replaces the value for key in place, or appends it.
func (e *ExtraFields) Set(key, value string) {
	for i := range *e {
		if (*e)[i].Key == key {
			(*e)[i].Value = value
			return
		}
	}
	*e = append(*e, ExtraField{Key: key, Value: value})
}

// Keys returns the keys in order.
func (e ExtraFields) Keys() []string {
	keys := make([]string, len(e))
	for i, f := range e {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON encodes the fields as an ordered JSON object.
func (e ExtraFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping document order. Non-string
// scalars keep their raw JSON text.
func (e *ExtraFields) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("extra fields: invalid json")
	}
	parsed := gjson.ParseBytes(data)
	if parsed.Type == gjson.Null {
		*e = nil
		return nil
	}
	if !parsed.IsObject() {
		return fmt.Errorf("extra fields: expected object")
	}
	out := ExtraFields{}
	parsed.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			out = append(out, ExtraField{Key: key.String(), Value: value.String()})
		} else {
			out = append(out, ExtraField{Key: key.String(), Value: value.Raw})
		}
		return true
	})
	*e = out
	return nil
}
