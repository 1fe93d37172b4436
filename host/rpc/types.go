package rpc

import (
	"errors"
	"fmt"

	"github.com/guseggert/hostbridge/native"
	"github.com/guseggert/hostbridge/supervisor"
)

const (
	SubprotocolJSON = "hostbridge.json"
	SubprotocolCBOR = "hostbridge.cbor"
)

// readLimit bounds a single message in either direction.
const readLimit = 16 << 20

var (
	ErrClosed         = errors.New("session closed")
	ErrConnectionLost = errors.New("connection lost")
)

// requestMessage asks the server to run one bound call.
type requestMessage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args []any  `json:"args"`
}

// responseMessage is either the answer to a request (ID set) or an event (Event set).
type responseMessage struct {
	ID     string        `json:"id,omitempty"`
	Result any           `json:"result"`
	Err    *ErrorBody    `json:"error,omitempty"`
	Event  *eventMessage `json:"event,omitempty"`
}

// ErrorBody describes a rejected call on the wire.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CallError converts b into the error returned to the caller of name.
func (b *ErrorBody) CallError(name string) *CallError {
	return &CallError{Name: name, Code: b.Code, Message: b.Message}
}

// eventMessage asks the page to run a named callback.
type eventMessage struct {
	Callback string `json:"callback"`
	Args     []any  `json:"args"`
}

const codeRejected = "rejected"

// errorCodes lets sentinel errors survive the trip to the client.
var errorCodes = []struct {
	code string
	err  error
}{
	{"unknown_call", native.ErrUnknownCall},
	{"bad_argument", native.ErrBadArgument},
	{"unknown_property", native.ErrUnknownProperty},
	{"already_tracked", supervisor.ErrAlreadyTracked},
	{"not_tracked", supervisor.ErrNotTracked},
	{"empty_command", supervisor.ErrEmptyCommand},
	{"closed", supervisor.ErrClosed},
}

func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return codeRejected
}

// CallError is a call rejected by the host.
// errors.Is matches it against the sentinel error the host rejected the call with.
type CallError struct {
	Name    string
	Code    string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s rejected (%s): %s", e.Name, e.Code, e.Message)
}

func (e *CallError) Is(target error) bool {
	for _, c := range errorCodes {
		if c.code == e.Code && c.err == target {
			return true
		}
	}
	return false
}

func NewErrorBody(err error) *ErrorBody {
	return &ErrorBody{Code: errorCode(err), Message: err.Error()}
}
