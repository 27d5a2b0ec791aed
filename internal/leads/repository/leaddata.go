package repository

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

var ErrLeadDataNotObject = errors.New("lead data is not a JSON object")

// MergeLeadData sets the top-level key of raw to the string value. Existing
// keys keep their position and bytes; a new key is appended last. A payload
// stored as a JSON string wrapping an object is unwrapped first.
func MergeLeadData(raw []byte, key, value string) (json.RawMessage, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrLeadDataNotObject
	}
	doc := gjson.ParseBytes(raw)
	if doc.Type == gjson.String {
		doc = gjson.Parse(doc.String())
	}
	if !doc.IsObject() {
		return nil, ErrLeadDataNotObject
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	found := false
	first := true
	doc.ForEach(func(k, v gjson.Result) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(k.Raw)
		buf.WriteByte(':')
		if k.String() == key {
			found = true
			buf.Write(encoded)
		} else {
			buf.WriteString(v.Raw)
		}
		return true
	})
	if !found {
		if !first {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
