package native

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/guseggert/hostbridge/envelope"
)

var (
	ErrUnknownCall = errors.New("unknown call")
	ErrBadArgument = errors.New("bad argument")
)

// Args are the positional arguments of one bound call, as decoded from the transport.
// Numbers arrive as float64 from JSON and as int64/uint64/float from CBOR.
// Text arrives either as an envelope or as a plain string.
type Args []any

func (a Args) get(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

func badArg(i int, want string, v any) error {
	return fmt.Errorf("argument %d: expected %s, got %T: %w", i, want, v, ErrBadArgument)
}

// Present reports whether argument i was passed and is not null.
func (a Args) Present(i int) bool {
	return a.get(i) != nil
}

// String returns argument i as text, decoding it if it is an envelope.
// An envelope that decodes to absence is rejected.
func (a Args) String(i int) (string, error) {
	v := a.get(i)
	if s, ok := v.(string); ok {
		return s, nil
	}
	if e, ok := envelope.FromValue(v); ok {
		s, ok := envelope.Decode(e)
		if !ok {
			return "", badArg(i, "decodable envelope", v)
		}
		return s, nil
	}
	return "", badArg(i, "string", v)
}

// Bytes returns the raw payload of argument i. Plain strings and CBOR byte strings are taken as is.
func (a Args) Bytes(i int) ([]byte, error) {
	v := a.get(i)
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	}
	if e, ok := envelope.FromValue(v); ok {
		if e.Encoding != envelope.TagBytes {
			return nil, badArg(i, "decodable envelope", v)
		}
		return e.Payload, nil
	}
	return nil, badArg(i, "bytes", v)
}

func (a Args) OptString(i int, def string) (string, error) {
	if !a.Present(i) {
		return def, nil
	}
	return a.String(i)
}

// Strings returns argument i as a list of text values.
func (a Args) Strings(i int) ([]string, error) {
	v := a.get(i)
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, len(t))
		for j, elem := range t {
			s, err := Args{elem}.String(0)
			if err != nil {
				return nil, fmt.Errorf("argument %d element %d: %w", i, j, err)
			}
			out[j] = s
		}
		return out, nil
	}
	return nil, badArg(i, "array", v)
}

func (a Args) Int(i int) (int, error) {
	v := a.get(i)
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		if t > math.MaxInt {
			return 0, badArg(i, "int", v)
		}
		return int(t), nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, badArg(i, "integral number", v)
		}
		return int(t), nil
	case float32:
		return Args{float64(t)}.Int(0)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, badArg(i, "int", v)
		}
		return int(n), nil
	}
	return 0, badArg(i, "int", v)
}

func (a Args) OptInt(i int, def int) (int, error) {
	if !a.Present(i) {
		return def, nil
	}
	return a.Int(i)
}

func (a Args) Float(i int) (float64, error) {
	v := a.get(i)
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, badArg(i, "number", v)
		}
		return f, nil
	}
	return 0, badArg(i, "number", v)
}

func (a Args) Bool(i int) (bool, error) {
	v := a.get(i)
	b, ok := v.(bool)
	if !ok {
		return false, badArg(i, "bool", v)
	}
	return b, nil
}

func (a Args) OptBool(i int, def bool) (bool, error) {
	if !a.Present(i) {
		return def, nil
	}
	return a.Bool(i)
}

// Decode unmarshals argument i, typically an options object, into into.
// A missing argument leaves into untouched.
func (a Args) Decode(i int, into any) error {
	v := a.get(i)
	if v == nil {
		return nil
	}
	b, err := json.Marshal(envelope.DecodeValue(v))
	if err != nil {
		return badArg(i, "object", v)
	}
	if err := json.Unmarshal(b, into); err != nil {
		return fmt.Errorf("argument %d: %s: %w", i, err, ErrBadArgument)
	}
	return nil
}
