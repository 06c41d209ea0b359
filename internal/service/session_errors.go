package service

import (
	"errors"
	"fmt"
)

// Reason is the discriminator attached to domain session failures.
type Reason string

const (
	ReasonSessionCodeNotExist      Reason = "SESSION_CODE_NOT_EXIST"
	ReasonSessionExpired           Reason = "SESSION_EXPIRED"
	ReasonSessionKeyExchangeFailed Reason = "SESSION_KEY_EXCHANGE_FAILED"
	ReasonUntrustedRawData         Reason = "UNTRUSTED_RAW_DATA"
)

// SessionError is a terminal domain failure of session resolution.
type SessionError struct {
	Reason Reason
	Err    error
}

var (
	ErrSessionCodeNotExist      = &SessionError{Reason: ReasonSessionCodeNotExist}
	ErrSessionExpired           = &SessionError{Reason: ReasonSessionExpired}
	ErrSessionKeyExchangeFailed = &SessionError{Reason: ReasonSessionKeyExchangeFailed}
	ErrUntrustedRawData         = &SessionError{Reason: ReasonUntrustedRawData}

	// ErrInvalidRawData marks a client profile blob that could not be decoded.
	ErrInvalidRawData = errors.New("invalid raw data")

	// ErrProfileEnrichment marks a failed or malformed call to the user-info
	// service.
	ErrProfileEnrichment = errors.New("profile enrichment failed")
)

func newSessionError(reason Reason, err error) *SessionError {
	return &SessionError{Reason: reason, Err: err}
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Is matches any SessionError carrying the same reason.
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	return ok && t.Reason == e.Reason
}

// ReasonOf extracts the domain reason from err, if it carries one.
func ReasonOf(err error) (Reason, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}
