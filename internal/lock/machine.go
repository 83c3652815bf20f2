// Package lock gates the whole UI behind a biometric unlock.
//
// All transitions go through Reduce, a pure function over State and Event.
// The Controller feeds it platform results from a single event loop and
// runs the effects it returns.
package lock

import (
	"github.com/org/applock/pkg/models"
)

// Phase is the coarse lock state.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseUnlocked
	PhaseLocked
	PhaseAuthenticating
	PhaseLockedWithError
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseUnlocked:
		return "unlocked"
	case PhaseLocked:
		return "locked"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseLockedWithError:
		return "locked_with_error"
	default:
		return "unknown"
	}
}

// Locked reports whether the overlay covers the app.
func (p Phase) Locked() bool {
	return p == PhaseLocked || p == PhaseAuthenticating || p == PhaseLockedWithError
}

// Error texts carried by PhaseLockedWithError.
const (
	ErrorCanceled = "canceled"
	ErrorFailed   = "failed"
)

// Reason says why an evaluation pass was requested.
type Reason int

const (
	ReasonBoot Reason = iota
	ReasonForeground
	ReasonRender
	ReasonRecheck
)

func (r Reason) String() string {
	switch r {
	case ReasonBoot:
		return "boot"
	case ReasonForeground:
		return "foreground"
	case ReasonRender:
		return "render"
	default:
		return "recheck"
	}
}

// State is owned by the controller's event loop.
type State struct {
	Phase Phase
	// Episode increments every time the app enters a lock.
	Episode uint64
	// PromptedEpisode is the last episode that received its automatic prompt.
	PromptedEpisode uint64
	// Attempt identifies the prompt in flight; results for older attempts are dropped.
	Attempt   uint64
	ErrorText string
	AppState  models.AppState

	// set when the app went inactive because of a prompt
	promptInactive bool
}

// InitialState is the state of a freshly started process.
func InitialState() State {
	return State{Phase: PhaseInitial, AppState: models.AppActive}
}

// Event is an input to Reduce.
type Event interface{ event() }

// Evaluated carries the result of an evaluation pass: whether policy and
// capability currently require the lock.
type Evaluated struct {
	Reason   Reason
	Required bool
}

// LifecycleChanged is an OS lifecycle signal. PromptInFlight records
// whether a biometric prompt was showing when it arrived.
type LifecycleChanged struct {
	State          models.AppState
	PromptInFlight bool
}

// OverlayRendered is sent by the UI each time the lock overlay renders.
type OverlayRendered struct{}

// RetryPressed is the overlay's retry button.
type RetryPressed struct{}

// RecheckRequested asks for a fresh evaluation, e.g. after a policy change.
type RecheckRequested struct{}

// AuthCompleted is the outcome of the prompt with the given Attempt.
type AuthCompleted struct {
	Attempt uint64
	Outcome models.Outcome
}

func (Evaluated) event()        {}
func (LifecycleChanged) event() {}
func (OverlayRendered) event()  {}
func (RetryPressed) event()     {}
func (RecheckRequested) event() {}
func (AuthCompleted) event()    {}

// Effect is work Reduce asks the controller to do.
type Effect interface{ effect() }

// Evaluate reads policy and capability and reports back with Evaluated.
type Evaluate struct{ Reason Reason }

// Prompt shows the unlock prompt and reports back with AuthCompleted.
type Prompt struct{ Attempt uint64 }

func (Evaluate) effect() {}
func (Prompt) effect()   {}

// Reduce applies one event. It never performs I/O.
func Reduce(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case Evaluated:
		return reduceEvaluated(s, e)

	case LifecycleChanged:
		prev := s.AppState
		s.AppState = e.State
		switch e.State {
		case models.AppInactive:
			if e.PromptInFlight {
				s.promptInactive = true
			}
		case models.AppBackground:
			s.promptInactive = false
		case models.AppActive:
			if prev != models.AppInactive && prev != models.AppBackground {
				return s, nil
			}
			if s.promptInactive {
				s.promptInactive = false
				return s, nil
			}
			if s.Phase == PhaseInitial {
				// The boot evaluation covers this edge.
				return s, nil
			}
			return s, []Effect{Evaluate{Reason: ReasonForeground}}
		}
		return s, nil

	case OverlayRendered:
		if s.Phase == PhaseLocked && s.PromptedEpisode != s.Episode {
			return s, []Effect{Evaluate{Reason: ReasonRender}}
		}
		return s, nil

	case RetryPressed:
		if s.Phase != PhaseLocked && s.Phase != PhaseLockedWithError {
			return s, nil
		}
		s.PromptedEpisode = s.Episode
		return startPrompt(s)

	case RecheckRequested:
		if s.Phase == PhaseInitial {
			return s, nil
		}
		return s, []Effect{Evaluate{Reason: ReasonRecheck}}

	case AuthCompleted:
		if s.Phase != PhaseAuthenticating || e.Attempt != s.Attempt {
			return s, nil
		}
		switch {
		case e.Outcome.IsSuccess():
			s.Phase, s.ErrorText = PhaseUnlocked, ""
			return s, nil
		case e.Outcome.Kind == models.OutcomeBusy:
			s.Phase, s.ErrorText = PhaseLocked, ""
			return s, nil
		case e.Outcome.IsCancel():
			s.Phase, s.ErrorText = PhaseLockedWithError, ErrorCanceled
		default:
			s.Phase, s.ErrorText = PhaseLockedWithError, ErrorFailed
		}
		// A failure may mean enrollment was removed; check whether the
		// lock can still be satisfied.
		return s, []Effect{Evaluate{Reason: ReasonRecheck}}
	}
	return s, nil
}

func reduceEvaluated(s State, e Evaluated) (State, []Effect) {
	if !e.Required {
		if s.Phase != PhaseUnlocked {
			s.Phase, s.ErrorText = PhaseUnlocked, ""
		}
		return s, nil
	}

	switch s.Phase {
	case PhaseInitial:
		return startEpisode(s), nil
	case PhaseUnlocked:
		if e.Reason == ReasonForeground {
			return startEpisode(s), nil
		}
	case PhaseLocked:
		if e.Reason == ReasonRender && s.PromptedEpisode != s.Episode {
			s.PromptedEpisode = s.Episode
			return startPrompt(s)
		}
	}
	return s, nil
}

func startEpisode(s State) State {
	s.Episode++
	s.Phase, s.ErrorText = PhaseLocked, ""
	return s
}

func startPrompt(s State) (State, []Effect) {
	s.Attempt++
	s.Phase, s.ErrorText = PhaseAuthenticating, ""
	return s, []Effect{Prompt{Attempt: s.Attempt}}
}

// Overlay is the lock overlay view model.
type Overlay struct {
	Visible   bool   `json:"visible"`
	Busy      bool   `json:"busy"`
	ErrorText string `json:"error_text,omitempty"`
	CanRetry  bool   `json:"can_retry"`
	Phase     string `json:"phase"`
	Episode   uint64 `json:"episode"`
}

// Overlay projects the state for the UI. Before the first evaluation the
// overlay covers the app.
func (s State) Overlay() Overlay {
	return Overlay{
		Visible:   s.Phase != PhaseUnlocked,
		Busy:      s.Phase == PhaseAuthenticating || s.Phase == PhaseInitial,
		ErrorText: s.ErrorText,
		CanRetry:  s.Phase == PhaseLocked || s.Phase == PhaseLockedWithError,
		Phase:     s.Phase.String(),
		Episode:   s.Episode,
	}
}
