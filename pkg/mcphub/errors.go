package mcphub

import (
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

var (
	// ErrNotFound is wrapped by every error reporting an unknown endpoint, or
	// a resource or prompt the endpoint does not have.
	ErrNotFound = errors.New("mcphub: not found")

	// ErrInvalidEndpoint is returned when Connect receives an empty endpoint
	// ID or an unusable URL.
	ErrInvalidEndpoint = errors.New("mcphub: invalid endpoint")
)

// Connect stages reported by ConnectError.
const (
	StageTransport = "transport"
	StageHandshake = "handshake"
)

// ConnectError reports a failure to establish an endpoint session.
type ConnectError struct {
	EndpointID string
	URL        string
	Stage      string
	Err        error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mcphub: connect %q (%s) failed during %s: %v", e.EndpointID, e.URL, e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// HandlerError is returned to the session in place of a result when a
// callback handler fails. The SDK sends it to the endpoint as a JSON-RPC
// error response carrying Message.
type HandlerError struct {
	Kind    string
	Message string
}

func (e *HandlerError) Error() string {
	if e.Message == "" {
		return e.Kind + " handler failed"
	}
	return e.Message
}

func endpointNotFound(endpointID string) error {
	return fmt.Errorf("%w: endpoint %q is not connected", ErrNotFound, endpointID)
}

// codeResourceNotFound is the MCP error code for a read of an unknown
// resource URI.
const codeResourceNotFound = -32002

// isNotFoundError reports whether err is the endpoint's answer that a
// resource or prompt does not exist. Failures to reach the endpoint, such as
// an expired transport session, are not.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var wireErr *jsonrpc.Error
	if errors.As(err, &wireErr) && wireErr.Code == codeResourceNotFound {
		return true
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "session not found") || strings.Contains(lower, "failed to send") {
		return false
	}
	return strings.Contains(lower, "resource not found") ||
		strings.Contains(lower, "prompt not found") ||
		strings.Contains(lower, "unknown prompt") ||
		strings.Contains(lower, "unknown resource")
}

// isMethodUnavailableError reports whether err says the endpoint does not
// implement method at all.
func isMethodUnavailableError(err error, method string) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	if !(strings.Contains(lower, "method not found") ||
		strings.Contains(lower, "not implemented") ||
		strings.Contains(lower, "unsupported") ||
		strings.Contains(lower, "does not support") ||
		strings.Contains(lower, "unimplemented")) {
		return false
	}
	method = strings.ToLower(method)
	if strings.Contains(lower, method) {
		return true
	}
	for _, part := range strings.FieldsFunc(method, func(r rune) bool {
		return r == '/' || r == ':' || r == '.' || r == '_' || r == '-'
	}) {
		if part != "" && strings.Contains(lower, part) {
			return true
		}
	}
	return strings.Contains(lower, "method not found")
}
