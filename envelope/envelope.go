package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	// TagKey and PayloadKey are the wire keys of an envelope object.
	TagKey     = "__encoding_type__"
	PayloadKey = "__val__"
)

// Tag identifies how an envelope payload was produced from its source value.
type Tag uint8

const (
	// TagNone marks a value that could not be encoded. It always decodes to absence.
	TagNone Tag = iota
	// TagBytes carries UTF-8 text as its raw bytes.
	// The wire name is "base64" for compatibility with existing page bundles, even though the payload is a plain byte array.
	TagBytes

	tagUnknown
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagBytes:
		return "base64"
	default:
		return "unknown"
	}
}

func (t Tag) MarshalText() ([]byte, error) {
	if t == tagUnknown {
		return []byte(TagNone.String()), nil
	}
	return []byte(t.String()), nil
}

// UnmarshalText never fails, unrecognized names become an unknown tag which decodes to absence.
func (t *Tag) UnmarshalText(b []byte) error {
	*t = parseTag(string(b))
	return nil
}

func parseTag(s string) Tag {
	switch s {
	case "none":
		return TagNone
	case "base64":
		return TagBytes
	default:
		return tagUnknown
	}
}

// Envelope is a tagged byte payload that survives call boundaries which only carry JSON-representable values.
type Envelope struct {
	Encoding Tag    `json:"__encoding_type__" cbor:"__encoding_type__"`
	Payload  []byte `json:"__val__" cbor:"__val__"`
}

// Encode wraps s using the default tag.
func Encode(s string) Envelope {
	return EncodeAs(s, TagBytes)
}

// EncodeAs wraps s with the given tag. Tags that cannot encode text produce an empty TagNone envelope.
func EncodeAs(s string, tag Tag) Envelope {
	switch tag {
	case TagBytes:
		return Envelope{Encoding: TagBytes, Payload: []byte(s)}
	default:
		return Envelope{Encoding: TagNone, Payload: []byte{}}
	}
}

// EncodeBytes wraps b without interpreting it.
func EncodeBytes(b []byte) Envelope {
	p := make([]byte, len(b))
	copy(p, b)
	return Envelope{Encoding: TagBytes, Payload: p}
}

// Decode returns the text carried by e. The boolean is false when the tag does not carry a value.
func Decode(e Envelope) (string, bool) {
	switch e.Encoding {
	case TagBytes:
		return string(e.Payload), true
	case TagNone, tagUnknown:
		return "", false
	default:
		return "", false
	}
}

// MarshalJSON writes the payload as an array of byte values rather than base64, which is what page code expects.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	tag, err := e.Encoding.MarshalText()
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"` + TagKey + `":`)
	buf.WriteString(strconv.Quote(string(tag)))
	buf.WriteString(`,"` + PayloadKey + `":[`)
	for i, b := range e.Payload {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(b)))
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the payload either as an array of byte values or as a base64 string.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw struct {
		Encoding Tag             `json:"__encoding_type__"`
		Payload  json.RawMessage `json:"__val__"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	payload, err := payloadFromJSON(raw.Payload)
	if err != nil {
		return err
	}
	e.Encoding = raw.Encoding
	e.Payload = payload
	return nil
}

func payloadFromJSON(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return []byte{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 payload: %w", err)
		}
		return b, nil
	}
	var vals []int
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("decoding payload array: %w", err)
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("payload value %d at index %d is not a byte", v, i)
		}
		out[i] = byte(v)
	}
	return out, nil
}
