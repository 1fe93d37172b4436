package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/guseggert/hostbridge/envelope"
)

// ErrUnexpectedResult is returned when a result does not have the shape a call promises.
var ErrUnexpectedResult = errors.New("unexpected result")

// Result is the value a query call returned.
type Result struct {
	v any
}

func NewResult(v any) Result { return Result{v: v} }

func (r Result) unexpected(want string) error {
	return fmt.Errorf("expected %s, got %T: %w", want, r.v, ErrUnexpectedResult)
}

// IsAbsent reports whether the call returned nothing, or an envelope carrying nothing.
func (r Result) IsAbsent() bool {
	if r.v == nil {
		return true
	}
	if e, ok := envelope.FromValue(r.v); ok {
		_, ok := envelope.Decode(e)
		return !ok
	}
	return false
}

func (r Result) Bool() (bool, error) {
	b, ok := r.v.(bool)
	if !ok {
		return false, r.unexpected("bool")
	}
	return b, nil
}

func (r Result) Float() (float64, error) {
	switch n := r.v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, r.unexpected("number")
}

func (r Result) Int() (int, error) {
	switch n := r.v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt {
			return 0, r.unexpected("int")
		}
		return int(n), nil
	}
	f, err := r.Float()
	if err != nil {
		return 0, r.unexpected("int")
	}
	if f != math.Trunc(f) {
		return 0, r.unexpected("int")
	}
	return int(f), nil
}

// String decodes an envelope or returns a plain string. The boolean is false when nothing was returned.
func (r Result) String() (string, bool) {
	switch v := r.v.(type) {
	case string:
		return v, true
	case envelope.Envelope:
		return envelope.Decode(v)
	}
	e, ok := envelope.FromValue(r.v)
	if !ok {
		return "", false
	}
	return envelope.Decode(e)
}

// Strings decodes an array of envelopes or strings.
func (r Result) Strings() ([]string, error) {
	items, ok := r.v.([]any)
	if !ok {
		return nil, r.unexpected("array")
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := Result{v: item}.String()
		if !ok {
			return nil, fmt.Errorf("item %d: %w", i, Result{v: item}.unexpected("string"))
		}
		out[i] = s
	}
	return out, nil
}

// Value returns the result with every nested envelope decoded.
func (r Result) Value() any {
	if e, ok := r.v.(envelope.Envelope); ok {
		s, ok := envelope.Decode(e)
		if !ok {
			return nil
		}
		return s
	}
	return envelope.DecodeValue(r.v)
}

// Decode stores the decoded value in the value pointed to by into, following encoding/json rules.
func (r Result) Decode(into any) error {
	b, err := json.Marshal(r.Value())
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := json.Unmarshal(b, into); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}

// Raw returns the value as the executor returned it.
func (r Result) Raw() any { return r.v }
