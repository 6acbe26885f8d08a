package delivery

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// TransportError reports that no HTTP response status could be obtained
// because the connection failed.
type TransportError struct {
	URI string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("delivery: transport error for %s: %v", e.URI, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports that the peer did not return a valid HTTP response.
type ProtocolError struct {
	URI string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("delivery: protocol error for %s: %v", e.URI, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// UnexpectedStatus reports a well-formed response whose status differs from
// the expected one.
type UnexpectedStatus struct {
	Got  int
	Want int
}

func (e *UnexpectedStatus) Error() string {
	return fmt.Sprintf("delivery: unexpected status %d, want %d", e.Got, e.Want)
}

// CheckStatus returns nil when got equals want, else an *UnexpectedStatus.
func CheckStatus(got, want int) error {
	if got == want {
		return nil
	}
	return &UnexpectedStatus{Got: got, Want: want}
}

// classify wraps an error returned by http.Client.Do. net/http surfaces
// unparseable responses only through the error text, so that is what is
// matched. A response cut short after the peer started it (unexpected EOF)
// is a protocol failure; everything else happened before any response bytes.
func classify(uri string, err error) error {
	msg := err.Error()
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "malformed HTTP") ||
		strings.Contains(msg, "malformed MIME") {
		return &ProtocolError{URI: uri, Err: err}
	}
	return &TransportError{URI: uri, Err: err}
}
