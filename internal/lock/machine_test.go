package lock

import (
	"testing"

	"github.com/org/applock/pkg/models"
)

func step(t *testing.T, s State, ev Event) (State, []Effect) {
	t.Helper()
	return Reduce(s, ev)
}

func lockedState() State {
	s, _ := Reduce(InitialState(), Evaluated{Reason: ReasonBoot, Required: true})
	return s
}

func TestBootEvaluation(t *testing.T) {
	tests := []struct {
		name     string
		required bool
		want     Phase
		episode  uint64
	}{
		{"required", true, PhaseLocked, 1},
		{"not required", false, PhaseUnlocked, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, effects := step(t, InitialState(), Evaluated{Reason: ReasonBoot, Required: tt.required})
			if s.Phase != tt.want || s.Episode != tt.episode {
				t.Errorf("got phase %s episode %d", s.Phase, s.Episode)
			}
			if len(effects) != 0 {
				t.Errorf("boot must not prompt from state entry, got %v", effects)
			}
		})
	}
}

func TestRenderPromptsOncePerEpisode(t *testing.T) {
	s := lockedState()

	s, effects := step(t, s, OverlayRendered{})
	if len(effects) != 1 || effects[0] != (Evaluate{Reason: ReasonRender}) {
		t.Fatalf("expected render evaluation, got %v", effects)
	}
	s, effects = step(t, s, Evaluated{Reason: ReasonRender, Required: true})
	if s.Phase != PhaseAuthenticating || len(effects) != 1 {
		t.Fatalf("expected prompt, got %s %v", s.Phase, effects)
	}
	if p, ok := effects[0].(Prompt); !ok || p.Attempt != s.Attempt {
		t.Fatalf("unexpected effect %v", effects[0])
	}

	// A stale render evaluation for the same episode does nothing.
	s2, effects := step(t, s, Evaluated{Reason: ReasonRender, Required: true})
	if s2 != s || len(effects) != 0 {
		t.Errorf("duplicate render evaluation changed state: %+v %v", s2, effects)
	}

	// Back in Locked via Busy, further renders do not re-prompt.
	s, _ = step(t, s, AuthCompleted{Attempt: s.Attempt, Outcome: models.Busy()})
	if s.Phase != PhaseLocked || s.ErrorText != "" {
		t.Fatalf("busy should return to locked without error, got %s %q", s.Phase, s.ErrorText)
	}
	if _, effects = step(t, s, OverlayRendered{}); len(effects) != 0 {
		t.Errorf("re-render in the same episode must not prompt, got %v", effects)
	}
}

func TestTwoRendersBeforeEvaluationPromptOnce(t *testing.T) {
	s := lockedState()
	s, _ = step(t, s, OverlayRendered{})
	s, _ = step(t, s, OverlayRendered{})

	prompts := 0
	for i := 0; i < 2; i++ {
		var effects []Effect
		s, effects = step(t, s, Evaluated{Reason: ReasonRender, Required: true})
		for _, e := range effects {
			if _, ok := e.(Prompt); ok {
				prompts++
			}
		}
	}
	if prompts != 1 {
		t.Errorf("expected exactly one prompt, got %d", prompts)
	}
}

func authenticating(t *testing.T) State {
	t.Helper()
	s := lockedState()
	s, _ = step(t, s, Evaluated{Reason: ReasonRender, Required: true})
	if s.Phase != PhaseAuthenticating {
		t.Fatalf("setup: phase %s", s.Phase)
	}
	return s
}

func TestAuthOutcomes(t *testing.T) {
	tests := []struct {
		outcome models.Outcome
		phase   Phase
		errText string
		recheck bool
	}{
		{models.Success(), PhaseUnlocked, "", false},
		{models.UserCancel(), PhaseLockedWithError, ErrorCanceled, true},
		{models.SystemCancel(), PhaseLockedWithError, ErrorCanceled, true},
		{models.Failure("lockout"), PhaseLockedWithError, ErrorFailed, true},
		{models.Busy(), PhaseLocked, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome.Kind), func(t *testing.T) {
			s := authenticating(t)
			s, effects := step(t, s, AuthCompleted{Attempt: s.Attempt, Outcome: tt.outcome})
			if s.Phase != tt.phase || s.ErrorText != tt.errText {
				t.Errorf("got %s %q, want %s %q", s.Phase, s.ErrorText, tt.phase, tt.errText)
			}
			if got := len(effects) == 1; got != tt.recheck {
				t.Errorf("recheck effect = %v, want %v", effects, tt.recheck)
			}
		})
	}
}

func TestStaleAuthResultIgnored(t *testing.T) {
	s := authenticating(t)
	stale := s.Attempt - 1
	s2, effects := step(t, s, AuthCompleted{Attempt: stale, Outcome: models.Success()})
	if s2 != s || effects != nil {
		t.Errorf("stale result applied: %+v", s2)
	}

	// A result arriving after a forced unlock is dropped too.
	s, _ = step(t, s, Evaluated{Reason: ReasonRecheck, Required: false})
	s2, _ = step(t, s, AuthCompleted{Attempt: s.Attempt, Outcome: models.UserCancel()})
	if s2.Phase != PhaseUnlocked {
		t.Errorf("late cancel relocked the app: %s", s2.Phase)
	}
}

func TestRetry(t *testing.T) {
	s := authenticating(t)
	s, _ = step(t, s, AuthCompleted{Attempt: s.Attempt, Outcome: models.UserCancel()})
	before := s.Attempt

	s, effects := step(t, s, RetryPressed{})
	if s.Phase != PhaseAuthenticating || s.ErrorText != "" {
		t.Fatalf("retry should authenticate, got %s %q", s.Phase, s.ErrorText)
	}
	if len(effects) != 1 || effects[0] != (Prompt{Attempt: before + 1}) {
		t.Errorf("unexpected effects %v", effects)
	}

	// Retry while a prompt is showing is ignored.
	if _, effects = step(t, s, RetryPressed{}); len(effects) != 0 {
		t.Errorf("retry during prompt should be ignored, got %v", effects)
	}
	// Retry while unlocked is ignored.
	s, _ = step(t, s, AuthCompleted{Attempt: s.Attempt, Outcome: models.Success()})
	if _, effects = step(t, s, RetryPressed{}); len(effects) != 0 {
		t.Errorf("retry while unlocked should be ignored, got %v", effects)
	}
}

func TestRetryFromLockedMarksEpisodePrompted(t *testing.T) {
	s := lockedState()
	s, _ = step(t, s, RetryPressed{})
	s, _ = step(t, s, AuthCompleted{Attempt: s.Attempt, Outcome: models.Busy()})
	if _, effects := step(t, s, OverlayRendered{}); len(effects) != 0 {
		t.Errorf("render after manual retry must not auto-prompt, got %v", effects)
	}
}

func TestForegroundStartsNewEpisode(t *testing.T) {
	s := authenticating(t)
	s, _ = step(t, s, AuthCompleted{Attempt: s.Attempt, Outcome: models.Success()})

	s, _ = step(t, s, LifecycleChanged{State: models.AppBackground})
	s, effects := step(t, s, LifecycleChanged{State: models.AppActive})
	if len(effects) != 1 || effects[0] != (Evaluate{Reason: ReasonForeground}) {
		t.Fatalf("expected foreground evaluation, got %v", effects)
	}
	s, _ = step(t, s, Evaluated{Reason: ReasonForeground, Required: true})
	if s.Phase != PhaseLocked || s.Episode != 2 {
		t.Errorf("expected episode 2 locked, got %s %d", s.Phase, s.Episode)
	}
	if s.PromptedEpisode == s.Episode {
		t.Error("new episode must be eligible for its auto-prompt")
	}

	// Foreground while already locked does not start another episode.
	s, _ = step(t, s, Evaluated{Reason: ReasonForeground, Required: true})
	if s.Episode != 2 {
		t.Errorf("episode advanced while locked: %d", s.Episode)
	}
}

func TestForegroundNotRequiredStaysUnlocked(t *testing.T) {
	s, _ := step(t, InitialState(), Evaluated{Reason: ReasonBoot, Required: false})
	s, _ = step(t, s, Evaluated{Reason: ReasonForeground, Required: false})
	if s.Phase != PhaseUnlocked || s.Episode != 0 {
		t.Errorf("got %s episode %d", s.Phase, s.Episode)
	}
}

func TestRecheckWhileUnlockedDoesNotLock(t *testing.T) {
	s, _ := step(t, InitialState(), Evaluated{Reason: ReasonBoot, Required: false})
	s, effects := step(t, s, RecheckRequested{})
	if len(effects) != 1 {
		t.Fatalf("expected evaluation, got %v", effects)
	}
	s, _ = step(t, s, Evaluated{Reason: ReasonRecheck, Required: true})
	if s.Phase != PhaseUnlocked {
		t.Errorf("enabling the lock should take effect on the next foreground, got %s", s.Phase)
	}
}

func TestLifecycleEdges(t *testing.T) {
	unlocked, _ := Reduce(InitialState(), Evaluated{Reason: ReasonBoot, Required: false})
	tests := []struct {
		name  string
		from  State
		seq   []LifecycleChanged
		wants bool
	}{
		{"background to active", unlocked, []LifecycleChanged{{State: models.AppBackground}, {State: models.AppActive}}, true},
		{"inactive to active", unlocked, []LifecycleChanged{{State: models.AppInactive}, {State: models.AppActive}}, true},
		{"active to active", unlocked, []LifecycleChanged{{State: models.AppActive}}, false},
		{"prompt induced inactive", unlocked, []LifecycleChanged{{State: models.AppInactive, PromptInFlight: true}, {State: models.AppActive}}, false},
		{"prompt inactive then real background", unlocked, []LifecycleChanged{
			{State: models.AppInactive, PromptInFlight: true}, {State: models.AppBackground}, {State: models.AppActive},
		}, true},
		{"before boot evaluation", InitialState(), []LifecycleChanged{{State: models.AppBackground}, {State: models.AppActive}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.from
			var effects []Effect
			for _, ev := range tt.seq {
				s, effects = Reduce(s, ev)
			}
			if got := len(effects) == 1; got != tt.wants {
				t.Errorf("evaluation emitted = %v, want %v", got, tt.wants)
			}
		})
	}
}

func TestAntiLockout(t *testing.T) {
	for _, s := range []State{lockedState(), authenticating(t)} {
		next, _ := Reduce(s, Evaluated{Reason: ReasonForeground, Required: false})
		if next.Phase != PhaseUnlocked {
			t.Errorf("%s: expected forced unlock, got %s", s.Phase, next.Phase)
		}
	}
	s := authenticating(t)
	s, _ = Reduce(s, AuthCompleted{Attempt: s.Attempt, Outcome: models.Failure("not_enrolled")})
	s, _ = Reduce(s, Evaluated{Reason: ReasonRecheck, Required: false})
	if s.Phase != PhaseUnlocked || s.ErrorText != "" {
		t.Errorf("expected forced unlock with cleared error, got %s %q", s.Phase, s.ErrorText)
	}
}

func TestOverlay(t *testing.T) {
	tests := []struct {
		state State
		want  Overlay
	}{
		{InitialState(), Overlay{Visible: true, Busy: true, Phase: "initial"}},
		{lockedState(), Overlay{Visible: true, CanRetry: true, Phase: "locked", Episode: 1}},
		{State{Phase: PhaseAuthenticating, Episode: 1}, Overlay{Visible: true, Busy: true, Phase: "authenticating", Episode: 1}},
		{State{Phase: PhaseLockedWithError, ErrorText: ErrorFailed, Episode: 3}, Overlay{Visible: true, ErrorText: ErrorFailed, CanRetry: true, Phase: "locked_with_error", Episode: 3}},
		{State{Phase: PhaseUnlocked, Episode: 3}, Overlay{Phase: "unlocked", Episode: 3}},
	}
	for _, tt := range tests {
		if got := tt.state.Overlay(); got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.state.Phase, got, tt.want)
		}
	}
}
