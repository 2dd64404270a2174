// Package errs holds the error types shared by the feed, OAuth and platform
// clients, and the helpers the scheduler uses to decide skip vs. abort.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind tags a ProtocolError.
type Kind int

const (
	Unexpected Kind = iota
	Unauthorized
)

func (k Kind) String() string {
	if k == Unauthorized {
		return "unauthorized"
	}
	return "unexpected"
}

// TransportError is a network or connection failure: no HTTP status was read.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a non-2xx HTTP answer.
type ProtocolError struct {
	Op         string
	StatusCode int
	Body       []byte
	// Detail is an optional human reading of Body.
	Detail string
}

func (e *ProtocolError) Kind() Kind {
	if e.StatusCode == http.StatusUnauthorized {
		return Unauthorized
	}
	return Unexpected
}

func (e *ProtocolError) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = strings.TrimSpace(string(e.Body))
	}
	detail = truncate(detail, maxDetail)
	if detail == "" {
		return fmt.Sprintf("%s: HTTP %d (%s)", e.Op, e.StatusCode, e.Kind())
	}
	return fmt.Sprintf("%s: HTTP %d (%s): %s", e.Op, e.StatusCode, e.Kind(), detail)
}

const maxDetail = 512

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "…"
		}
		i++
	}
	return s
}

// DecodeError is a malformed body or a required field missing from one.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%s: decode: %v", e.Op, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// ConfigError lists required settings that were not provided.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "missing required env var: " + strings.Join(e.Missing, ", ")
}

// IsUnauthorized reports whether err carries a 401 ProtocolError.
func IsUnauthorized(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Kind() == Unauthorized
}

// IsDecode reports whether err carries a DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsFatal reports whether a fetch-step error must stop the relay: an
// unexpected status, a transport failure, or anything unclassified.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !IsUnauthorized(err) && !IsDecode(err)
}
