package transfer

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies transfer failures.
type Kind int

const (
	// KindConfig covers bad local input: missing or unreadable files,
	// non-directories, unsupported entries. Never retried.
	KindConfig Kind = iota
	// KindRemote is a failed call to the resource service.
	KindRemote
	// KindTransport is a failed HTTP exchange against a signed link.
	KindTransport
	// KindIO is a local filesystem failure while writing a download.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindRemote:
		return "remote"
	case KindTransport:
		return "transport"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is the error type returned at the transfer package boundary.
type Error struct {
	Kind     Kind
	Op       string
	ObjectID string
	Path     string
	// StatusCode is the HTTP status of a failed transport exchange, 0 when no
	// response was received.
	StatusCode int
	Err        error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error: ")
	b.WriteString(e.Op)
	if e.ObjectID != "" {
		b.WriteString(" object ")
		b.WriteString(e.ObjectID)
	}
	if e.Path != "" {
		b.WriteString(" path ")
		b.WriteString(e.Path)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause walk through to the underlying error.
func (e *Error) Cause() error { return e.Err }

// IsKind reports whether err, or any error it wraps, is a transfer Error of
// the given kind. Every branch of a MultiError is searched.
func IsKind(err error, kind Kind) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *Error:
		return e.Kind == kind || IsKind(e.Err, kind)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if IsKind(inner, kind) {
				return true
			}
		}
		return false
	}
	return IsKind(errors.Unwrap(err), kind)
}

// Retryable reports whether repeating the failed operation may succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *Error
	if errors.As(err, &te) {
		switch te.Kind {
		case KindConfig, KindIO:
			return false
		case KindTransport:
			if te.StatusCode != 0 {
				return te.StatusCode >= 500 || te.StatusCode == 429
			}
		}
	}

	if s, ok := status.FromError(errors.Cause(err)); ok && s.Code() != codes.Unknown {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// transport errors without a response, e.g. a reset connection
	return te != nil && te.Kind == KindTransport
}

// MultiError collects the per item failures of a pool run.
type MultiError struct {
	m      sync.Mutex
	Errors []error
}

func (me *MultiError) add(err error) {
	me.m.Lock()
	me.Errors = append(me.Errors, err)
	me.m.Unlock()
}

func (me *MultiError) Len() int {
	me.m.Lock()
	defer me.m.Unlock()
	return len(me.Errors)
}

// Unwrap returns a snapshot of the collected errors so errors.Is,
// errors.As and IsKind see every failure.
func (me *MultiError) Unwrap() []error {
	me.m.Lock()
	defer me.m.Unlock()
	out := make([]error, len(me.Errors))
	copy(out, me.Errors)
	return out
}

// ErrorOrNil returns nil when nothing failed.
func (me *MultiError) ErrorOrNil() error {
	if me == nil || me.Len() == 0 {
		return nil
	}
	return me
}

func (me *MultiError) Error() string {
	me.m.Lock()
	defer me.m.Unlock()
	if len(me.Errors) == 1 {
		return "1 transfer failed: " + me.Errors[0].Error()
	}
	msgs := make([]string, 0, len(me.Errors))
	for _, err := range me.Errors {
		msgs = append(msgs, "\t* "+err.Error())
	}
	return fmt.Sprintf("%d transfers failed:\n%s", len(me.Errors), strings.Join(msgs, "\n"))
}
