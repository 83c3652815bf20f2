package lock

import (
	"context"
	"sync"

	"github.com/org/applock/internal/audit"
	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/policy"
	"github.com/org/applock/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultPrompt is the unlock prompt copy.
func DefaultPrompt() biometric.PromptOptions {
	return biometric.PromptOptions{
		Message:     "Unlock to continue",
		CancelLabel: "Cancel",
		Purpose:     "app_lock",
	}
}

// Controller runs the lock state machine. It only ever reads the policy.
type Controller struct {
	policy   policy.FlagReader
	resolver policy.CapabilityQuerier
	auth     policy.Prompter
	audit    audit.Recorder
	prompt   biometric.PromptOptions
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	wg     sync.WaitGroup
	start  sync.Once
	stop   sync.Once

	mu    sync.RWMutex
	state State
	subs  map[chan State]struct{}
}

// NewController wires a Controller. rec may be nil.
func NewController(flags policy.FlagReader, resolver policy.CapabilityQuerier, auth policy.Prompter, rec audit.Recorder) *Controller {
	if rec == nil {
		rec = audit.Discard{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		policy:   flags,
		resolver: resolver,
		auth:     auth,
		audit:    rec,
		prompt:   DefaultPrompt(),
		log:      log.With().Str("component", "lock").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan Event, 64),
		state:    InitialState(),
		subs:     make(map[chan State]struct{}),
	}
}

// SetPrompt overrides the unlock prompt copy. Call before Start.
func (c *Controller) SetPrompt(p biometric.PromptOptions) {
	p.Purpose = "app_lock"
	c.prompt = p
}

// Start launches the event loop and the cold-start evaluation. The
// controller stops when ctx is done or Close is called.
func (c *Controller) Start(ctx context.Context) {
	c.start.Do(func() {
		context.AfterFunc(ctx, c.cancel)
		c.wg.Add(1)
		go c.loop()
	})
}

// Close stops the loop and waits for in-flight effects. Their results
// are discarded.
func (c *Controller) Close() {
	c.stop.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.mu.Lock()
		for ch := range c.subs {
			close(ch)
			delete(c.subs, ch)
		}
		c.mu.Unlock()
	})
}

// Lifecycle forwards an OS lifecycle signal.
func (c *Controller) Lifecycle(s models.AppState) {
	c.send(LifecycleChanged{State: s, PromptInFlight: c.auth.InFlight()})
}

// OverlayRendered is called by the UI after drawing the lock overlay.
func (c *Controller) OverlayRendered() { c.send(OverlayRendered{}) }

// Retry is the overlay retry button.
func (c *Controller) Retry() { c.send(RetryPressed{}) }

// Reevaluate re-reads policy and capability, e.g. after a settings change.
func (c *Controller) Reevaluate() { c.send(RecheckRequested{}) }

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Overlay returns the current overlay view.
func (c *Controller) Overlay() Overlay {
	return c.State().Overlay()
}

// Subscribe returns a channel that receives the latest state after every
// change, and a func to unsubscribe. Slow readers only see the newest state.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	ch <- c.state
	if c.ctx.Err() != nil {
		close(ch)
		c.mu.Unlock()
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
}

func (c *Controller) send(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Controller) loop() {
	defer c.wg.Done()
	c.spawn(Evaluate{Reason: ReasonBoot})
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.apply(ev)
		}
	}
}

func (c *Controller) apply(ev Event) {
	c.mu.Lock()
	prev := c.state
	next, effects := Reduce(prev, ev)
	c.state = next
	if next != prev {
		for ch := range c.subs {
			publish(ch, next)
		}
	}
	c.mu.Unlock()

	c.observe(prev, next, ev)
	for _, eff := range effects {
		c.spawn(eff)
	}
}

func publish(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func (c *Controller) observe(prev, next State, ev Event) {
	if next.Episode != prev.Episode {
		lockEpisodes.Inc()
		c.log.Info().Uint64("episode", next.Episode).Msg("lock episode started")
		c.audit.Record(c.ctx, &models.AuditEntry{Event: models.EventLockEpisodeStarted, Metadata: map[string]any{"episode": next.Episode}})
	}
	if !prev.Phase.Locked() || next.Phase != PhaseUnlocked {
		if next.Phase != prev.Phase {
			c.log.Debug().Str("from", prev.Phase.String()).Str("to", next.Phase.String()).Msg("lock transition")
		}
		return
	}
	if _, ok := ev.(AuthCompleted); ok {
		c.log.Info().Uint64("episode", next.Episode).Msg("unlocked")
		c.audit.Record(c.ctx, &models.AuditEntry{Event: models.EventLockUnlocked, Outcome: "success", Metadata: map[string]any{"episode": next.Episode}})
		return
	}
	forcedUnlocks.Inc()
	c.log.Warn().Uint64("episode", next.Episode).Msg("lock no longer satisfiable, unlocking")
	c.audit.Record(c.ctx, &models.AuditEntry{Event: models.EventLockForcedUnlock, Metadata: map[string]any{"episode": next.Episode}})
}

// spawn runs an effect off the loop. Only the loop goroutine calls it.
func (c *Controller) spawn(eff Effect) {
	if c.ctx.Err() != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		switch e := eff.(type) {
		case Evaluate:
			c.send(Evaluated{Reason: e.Reason, Required: c.required(c.ctx)})
		case Prompt:
			out := c.auth.Authenticate(c.ctx, c.prompt)
			c.send(AuthCompleted{Attempt: e.Attempt, Outcome: out})
		}
	}()
}

// required reads policy and capability concurrently. An unreadable policy
// counts as enabled; unmet capability never requires the lock.
func (c *Controller) required(ctx context.Context) bool {
	var (
		g          errgroup.Group
		enabled    bool
		capability models.BiometricCapability
	)
	g.Go(func() error {
		v, err := policy.ReadFlag(ctx, c.policy, models.FlagAppLock)
		enabled = v
		return err
	})
	g.Go(func() error {
		capability = c.resolver.Query(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		c.log.Warn().Err(err).Msg("reading app lock policy, assuming enabled")
		enabled = true
	}
	return enabled && capability.Satisfied()
}
