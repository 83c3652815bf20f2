package models

// OutcomeKind is the normalized result of a biometric prompt.
type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeUserCancel   OutcomeKind = "user_cancel"
	OutcomeSystemCancel OutcomeKind = "system_cancel"
	OutcomeFailure      OutcomeKind = "failure"
	OutcomeBusy         OutcomeKind = "busy"
)

// Outcome is what the Authenticator returns. Reason is only set for failures.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

func Success() Outcome      { return Outcome{Kind: OutcomeSuccess} }
func UserCancel() Outcome   { return Outcome{Kind: OutcomeUserCancel} }
func SystemCancel() Outcome { return Outcome{Kind: OutcomeSystemCancel} }
func Busy() Outcome         { return Outcome{Kind: OutcomeBusy} }

// Failure builds a failed outcome with the platform's reason.
func Failure(reason string) Outcome {
	return Outcome{Kind: OutcomeFailure, Reason: reason}
}

func (o Outcome) IsSuccess() bool { return o.Kind == OutcomeSuccess }

// IsCancel is true for both user and system cancellation.
func (o Outcome) IsCancel() bool {
	return o.Kind == OutcomeUserCancel || o.Kind == OutcomeSystemCancel
}

// Err maps the outcome onto the error taxonomy. Success yields nil.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeUserCancel:
		return ErrUserCancel
	case OutcomeSystemCancel:
		return ErrSystemCancel
	case OutcomeBusy:
		return ErrBusy
	default:
		return &AuthError{Reason: o.Reason}
	}
}
