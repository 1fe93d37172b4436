package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// FromValue recognizes an envelope inside a generic decoded tree, as produced by encoding/json or a CBOR decoder.
// The second return is false when v does not have the shape of an envelope.
// A value with the right shape but an unreadable payload is returned as a TagNone envelope.
func FromValue(v any) (Envelope, bool) {
	switch t := v.(type) {
	case Envelope:
		return t, true
	case *Envelope:
		if t == nil {
			return Envelope{}, false
		}
		return *t, true
	case map[string]any:
		rawTag, hasTag := t[TagKey]
		rawVal, hasVal := t[PayloadKey]
		if !hasTag || !hasVal {
			return Envelope{}, false
		}
		name, ok := rawTag.(string)
		if !ok {
			return Envelope{Encoding: TagNone}, true
		}
		payload, ok := payloadFromValue(rawVal)
		if !ok {
			return Envelope{Encoding: TagNone}, true
		}
		return Envelope{Encoding: parseTag(name), Payload: payload}, true
	}
	return Envelope{}, false
}

func payloadFromValue(v any) ([]byte, bool) {
	switch t := v.(type) {
	case nil:
		return []byte{}, true
	case []byte:
		return t, true
	case string:
		b, err := base64.StdEncoding.DecodeString(t)
		if err != nil {
			return nil, false
		}
		return b, true
	case []any:
		out := make([]byte, len(t))
		for i, e := range t {
			b, ok := byteFromValue(e)
			if !ok {
				return nil, false
			}
			out[i] = b
		}
		return out, true
	}
	return nil, false
}

func byteFromValue(v any) (byte, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case uint64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if n < 0 || n > 255 || n != math.Trunc(n) {
		return 0, false
	}
	return byte(n), true
}

// DecodeValue replaces every envelope nested anywhere in v with its decoded text, or nil when it carries no value.
// Everything else is returned unchanged, so decoding a tree without envelopes is a no-op.
func DecodeValue(v any) any {
	if e, ok := FromValue(v); ok {
		s, ok := Decode(e)
		if !ok {
			return nil
		}
		return s
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = DecodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = DecodeValue(e)
		}
		return out
	}
	return v
}

// IsEnvelopeJSON reports whether raw is a JSON object with the envelope keys, without unmarshaling it.
func IsEnvelopeJSON(raw []byte) bool {
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return false
	}
	return res.Get(TagKey).Exists() && res.Get(PayloadKey).Exists()
}

// DecodeJSON unmarshals raw and decodes every envelope inside it.
func DecodeJSON(raw []byte) (any, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid JSON document of %d bytes", len(raw))
	}
	if IsEnvelopeJSON(raw) {
		var e Envelope
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("unmarshaling envelope: %w", err)
		}
		s, ok := Decode(e)
		if !ok {
			return nil, nil
		}
		return s, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unmarshaling JSON: %w", err)
	}
	return DecodeValue(v), nil
}
