// Copyright 2018 Comcast Cable Communications Management, LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conn

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/relaypulsar/pulsar-client-go/pkg/api"
)

// ErrorKind enumerates the terminal and non-terminal error categories a
// connection can surface.
type ErrorKind int

const (
	// Disconnected means the transport has torn down, or any channel
	// tied to it has closed. Terminal.
	Disconnected ErrorKind = iota
	// NotFound means the URL scheme was invalid, or the host could not
	// be resolved.
	NotFound
	// PulsarErrorKind means the broker returned a server error, either
	// during the handshake or in response to an RPC.
	PulsarErrorKind
	// Unexpected means the handshake produced a frame we didn't expect.
	Unexpected
	// UnexpectedResponseKind means a correctly-correlated response
	// lacked the expected command variant.
	UnexpectedResponseKind
	// Shutdown means the executor refused to spawn a task, or setup
	// failed before the Receiver/Writer tasks started.
	Shutdown
	// IoKind wraps a lower-level connect/read/write failure.
	IoKind
	// TlsKind wraps a TLS handshake failure.
	TlsKind
)

// ConnectionError is the error type every public operation in this
// package returns. It carries enough structure for callers to
// distinguish terminal connection loss from a per-RPC broker error.
type ConnectionError struct {
	Kind       ErrorKind
	ServerErr  api.ServerError
	Message    string
	wrapped    error
}

func (e *ConnectionError) Error() string {
	switch e.Kind {
	case Disconnected:
		return "connection disconnected"
	case NotFound:
		return "not found"
	case PulsarErrorKind:
		return fmt.Sprintf("pulsar error %s: %s", e.ServerErr, e.Message)
	case Unexpected:
		return fmt.Sprintf("unexpected: %s", e.Message)
	case UnexpectedResponseKind:
		return fmt.Sprintf("unexpected response: %s", e.Message)
	case Shutdown:
		return "shutdown"
	case IoKind:
		return fmt.Sprintf("io error: %v", e.wrapped)
	case TlsKind:
		return fmt.Sprintf("tls error: %v", e.wrapped)
	default:
		return "connection error"
	}
}

func (e *ConnectionError) Unwrap() error {
	return e.wrapped
}

func errDisconnected() *ConnectionError {
	return &ConnectionError{Kind: Disconnected}
}

func errNotFound() *ConnectionError {
	return &ConnectionError{Kind: NotFound}
}

func errPulsar(kind api.ServerError, message string) *ConnectionError {
	return &ConnectionError{Kind: PulsarErrorKind, ServerErr: kind, Message: message}
}

func errUnexpected(format string, args ...interface{}) *ConnectionError {
	return &ConnectionError{Kind: Unexpected, Message: fmt.Sprintf(format, args...)}
}

func errUnexpectedResponse(format string, args ...interface{}) *ConnectionError {
	return &ConnectionError{Kind: UnexpectedResponseKind, Message: fmt.Sprintf(format, args...)}
}

func errShutdown() *ConnectionError {
	return &ConnectionError{Kind: Shutdown}
}

// errIO wraps a transport failure with a stack trace captured at the
// point it was first observed, via github.com/pkg/errors.
func errIO(err error) *ConnectionError {
	return &ConnectionError{Kind: IoKind, wrapped: errors.WithStack(err)}
}

// errTLS wraps a TLS handshake failure the same way errIO does.
func errTLS(err error) *ConnectionError {
	return &ConnectionError{Kind: TlsKind, wrapped: errors.WithStack(err)}
}

// SharedError is a reference-counted, first-writer-wins latch recording
// the first fatal error that invalidated a connection. Multiple readers
// may poll it; at most one write ever "wins".
type SharedError struct {
	mu  *sync.Mutex
	err **ConnectionError
}

// NewSharedError returns an empty SharedError. Clone (simply copying the
// struct, since its fields are pointers) gives every task/caller a handle
// onto the same underlying cell.
func NewSharedError() SharedError {
	var err *ConnectionError
	return SharedError{mu: &sync.Mutex{}, err: &err}
}

// Set stores err if the cell is currently empty; otherwise it is
// discarded (first error wins).
func (s SharedError) Set(err *ConnectionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *s.err == nil {
		*s.err = err
	}
}

// IsSet reports whether an error has been latched, without consuming it.
func (s SharedError) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.err != nil
}

// Take consumes and returns the stored error, if any, clearing the cell —
// matching the Rust original's `remove`. Note that IsSet is what the
// connection core's fast paths use to decide "still alive"; Take is for
// the one-time `Connection.Error()` read a caller does after noticing the
// connection died.
func (s SharedError) Take() *ConnectionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := *s.err
	*s.err = nil
	return err
}
