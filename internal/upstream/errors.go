package upstream

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCredential      = errors.New("credential is empty")
	ErrInvalidOrUnreachable = errors.New("credential invalid or game backend unreachable")

	ErrGrantFailed       = errors.New("grant request failed")
	ErrMissingInstanceID = errors.New("grant response carried no item instance id")
	ErrCustomizeFailed   = errors.New("item granted but customize request failed")
	ErrTimeout           = errors.New("game backend request timed out")
	ErrNetwork           = errors.New("game backend network error")
)

// Injection phases.
const (
	PhaseGrant     = "grant"
	PhaseExtract   = "extract"
	PhaseCustomize = "customize"
)

// InjectionError describes where an injection stopped.
//
// Kind is one of the Err* sentinels above. For the customize phase Kind is
// always ErrCustomizeFailed and Err holds the transport cause (ErrTimeout,
// ErrNetwork) when there is one, so errors.Is matches both.
// Error() never includes upstream payloads.
type InjectionError struct {
	Phase          string
	Kind           error
	Status         int    // HTTP status when the upstream answered
	ItemInstanceID string // set once the grant succeeded
	Err            error
}

func (e *InjectionError) Error() string {
	msg := e.Kind.Error()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *InjectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Partial reports whether the item was granted but left uncustomized.
func (e *InjectionError) Partial() bool {
	return e.Phase == PhaseCustomize
}

// IsPartial reports whether err is a partial-success injection failure.
func IsPartial(err error) bool {
	var injErr *InjectionError
	return errors.As(err, &injErr) && injErr.Partial()
}
