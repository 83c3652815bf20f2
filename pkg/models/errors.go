package models

import "errors"

var (
	// ErrCapabilityUnavailable means no biometric hardware or nothing enrolled.
	// Only the user can fix it, from device settings.
	ErrCapabilityUnavailable = errors.New("biometric capability unavailable")
	ErrUserCancel            = errors.New("authentication canceled by user")
	ErrSystemCancel          = errors.New("authentication canceled by system")
	ErrAuthenticationFailure = errors.New("authentication failed")
	// ErrBusy means another prompt is in flight; callers wait, users never see it.
	ErrBusy = errors.New("authenticator busy")
	// ErrSessionExpired means biometrics succeeded but the backing session is gone.
	ErrSessionExpired   = errors.New("session expired")
	ErrPasswordRequired = errors.New("password login required")
	ErrRetriesExhausted = errors.New("step-up retries exhausted")
	ErrGateClosed       = errors.New("step-up gate closed")
)

// AuthError carries the platform reason of an authentication failure.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return ErrAuthenticationFailure.Error()
	}
	return ErrAuthenticationFailure.Error() + ": " + e.Reason
}

func (e *AuthError) Unwrap() error { return ErrAuthenticationFailure }

// Retryable reports whether the user can simply try again.
func Retryable(err error) bool {
	return errors.Is(err, ErrUserCancel) ||
		errors.Is(err, ErrSystemCancel) ||
		errors.Is(err, ErrAuthenticationFailure) ||
		errors.Is(err, ErrBusy)
}
