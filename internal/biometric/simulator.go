package biometric

import (
	"context"
	"sync"
)

// EnrolledDevice is a capability report for a phone with face and
// fingerprint sensors and at least one enrollment.
func EnrolledDevice() PlatformCapability {
	return PlatformCapability{HasHardware: true, IsEnrolled: true, ModalityCodes: []int{CodeFingerprint, CodeFace}}
}

// Simulator is a scriptable Platform. The daemon uses it in dev mode and
// tests use it everywhere a real sensor would be.
type Simulator struct {
	mu         sync.Mutex
	capability PlatformCapability
	capErr     error
	queue      []PromptResult
	fallback   PromptResult
	gate       chan struct{}
	prompts    int
	last       PromptOptions
}

// NewSimulator starts with the given capability; prompts succeed by default.
func NewSimulator(c PlatformCapability) *Simulator {
	return &Simulator{capability: c, fallback: PromptResult{Success: true}}
}

func (s *Simulator) Capability(_ context.Context) (PlatformCapability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capErr != nil {
		return PlatformCapability{}, s.capErr
	}
	c := s.capability
	c.ModalityCodes = append([]int(nil), s.capability.ModalityCodes...)
	return c, nil
}

// Prompt blocks while the simulator is held, then returns the next queued
// result or the default one.
func (s *Simulator) Prompt(ctx context.Context, opts PromptOptions) (PromptResult, error) {
	s.mu.Lock()
	s.prompts++
	s.last = opts
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return PromptResult{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		res := s.queue[0]
		s.queue = s.queue[1:]
		return res, nil
	}
	return s.fallback, nil
}

// SetCapability replaces the reported capability, e.g. to simulate the
// user removing their last fingerprint.
func (s *Simulator) SetCapability(c PlatformCapability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capability = c
	s.capErr = nil
}

// SetCapabilityError makes capability queries fail.
func (s *Simulator) SetCapabilityError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capErr = err
}

// Enqueue schedules results for the next prompts, in order.
func (s *Simulator) Enqueue(results ...PromptResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, results...)
}

// SetDefault sets the result used when the queue is empty.
func (s *Simulator) SetDefault(res PromptResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = res
}

// Hold makes subsequent prompts block until the returned release func is called.
func (s *Simulator) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Prompts returns how many native prompts were shown.
func (s *Simulator) Prompts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts
}

// LastPrompt returns the options of the most recent prompt.
func (s *Simulator) LastPrompt() PromptOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
