package imtypes

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotOpen is logged when an outbound frame is refused because the
	// connection is not open.
	ErrNotOpen = errors.New("connection is not open")
	// ErrEmptyBody is logged when an outbound message has no text.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrBufferFull is logged when the outbound buffer cannot take a frame.
	ErrBufferFull = errors.New("outbound buffer is full")
)

// ConfigurationError reports a missing or invalid connection setting. It is
// fatal to the call that returned it, never to the process.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ParseError reports a frame that could not be decoded. The frame is dropped.
type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed frame (%d bytes): %v", len(e.Raw), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ServerReportedError is an error field inside an otherwise valid frame. The
// connection stays open.
type ServerReportedError struct {
	Kind    EventKind
	Message string
}

func (e *ServerReportedError) Error() string {
	if e.Kind != "" && e.Kind != KindServerError {
		return fmt.Sprintf("server error (%s): %s", e.Kind, e.Message)
	}
	return "server error: " + e.Message
}

// TransportError is a socket level failure. It triggers the reconnect policy.
type TransportError struct {
	Op  string // "dial", "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
