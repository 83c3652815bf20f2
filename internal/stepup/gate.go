// Package stepup asks for a fresh biometric proof right before a sensitive
// action, independent of whether the app itself is unlocked.
package stepup

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/org/applock/internal/audit"
	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/policy"
	"github.com/org/applock/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxRetries is the number of manual retries after the first prompt.
const DefaultMaxRetries = 3

const keepClosed = 128

// Amount is a money amount in minor units (kobo, cents).
type Amount struct {
	Minor    int64  `json:"minor"`
	Currency string `json:"currency"`
}

func (a Amount) String() string {
	sign, v := "", uint64(a.Minor)
	if a.Minor < 0 {
		// Two's complement negation stays correct for math.MinInt64.
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s %s%d.%02d", a.Currency, sign, v/100, v%100)
}

// Request describes one pending sensitive action.
type Request struct {
	Title       string
	Description string
	Amount      *Amount
	AutoTrigger bool
	// Flag gates the step-up; the zero value means transfer_step_up.
	Flag models.PolicyFlag
	// Prompt overrides the native prompt copy; by default Title is shown.
	Prompt *biometric.PromptOptions
	// OnSuccess is the continuation, run once after a successful proof or
	// when the gate is bypassed.
	OnSuccess func(ctx context.Context) error
}

// Status is where a step-up session stands.
type Status string

const (
	StatusPending        Status = "pending"
	StatusAuthenticating Status = "authenticating"
	StatusFailed         Status = "failed"
	StatusSucceeded      Status = "succeeded"
	StatusBypassed       Status = "bypassed"
	StatusCanceled       Status = "canceled"
	StatusExhausted      Status = "exhausted"
	StatusUnavailable    Status = "unavailable"
)

func (s Status) closed() bool {
	switch s {
	case StatusSucceeded, StatusBypassed, StatusCanceled, StatusExhausted, StatusUnavailable:
		return true
	}
	return false
}

// Modal is the step-up modal view model.
type Modal struct {
	ID          string  `json:"id"`
	Visible     bool    `json:"visible"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Amount      *Amount `json:"amount,omitempty"`
	AutoTrigger bool    `json:"auto_trigger"`
	Status      Status  `json:"status"`
	Busy        bool    `json:"busy"`
	ErrorText   string  `json:"error_text,omitempty"`
	RetriesLeft int     `json:"retries_left"`
}

// Gate opens step-up sessions. It reads policy flags but never writes them.
type Gate struct {
	flags      policy.FlagReader
	resolver   policy.CapabilityQuerier
	auth       policy.Prompter
	audit      audit.Recorder
	maxRetries int
	log        zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
}

// NewGate wires a Gate. maxRetries <= 0 selects DefaultMaxRetries.
func NewGate(flags policy.FlagReader, resolver policy.CapabilityQuerier, auth policy.Prompter, rec audit.Recorder, maxRetries int) *Gate {
	if rec == nil {
		rec = audit.Discard{}
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Gate{
		flags:      flags,
		resolver:   resolver,
		auth:       auth,
		audit:      rec,
		maxRetries: maxRetries,
		log:        log.With().Str("component", "stepup").Logger(),
		sessions:   make(map[string]*Session),
	}
}

// Open registers a session for req. Nothing is shown until Mount.
func (g *Gate) Open(req Request) *Session {
	if req.Flag == "" {
		req.Flag = models.FlagTransferStepUp
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     uuid.NewString(),
		gate:   g,
		req:    req,
		status: StatusPending,
		left:   g.maxRetries + 1,
		ctx:    ctx,
		cancel: cancel,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s.id] = s
	g.order = append(g.order, s.id)
	g.prune()
	return s
}

// prune forgets the oldest closed sessions beyond keepClosed.
func (g *Gate) prune() {
	if len(g.order) <= keepClosed {
		return
	}
	kept := g.order[:0]
	excess := len(g.order) - keepClosed
	for _, id := range g.order {
		s := g.sessions[id]
		if excess > 0 && s.View().Status.closed() {
			delete(g.sessions, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	g.order = kept
}

// Lookup finds an open or recently closed session.
func (g *Gate) Lookup(id string) (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	return s, ok
}

// RequestStepUp runs a whole step-up without UI: it mounts with
// auto-trigger and returns the first outcome. A bypassed gate yields
// Success.
func (g *Gate) RequestStepUp(ctx context.Context, req Request) (models.Outcome, error) {
	req.AutoTrigger = true
	s := g.Open(req)
	out, err := s.Mount(ctx)
	if !s.View().Status.closed() {
		s.Cancel()
	}
	return out, err
}

// Session is one mounted step-up modal.
type Session struct {
	id   string
	gate *Gate
	req  Request

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	status  Status
	mounted bool
	errText string
	left    int
}

// ID identifies the session to the UI.
func (s *Session) ID() string { return s.id }

// View returns the modal view model.
func (s *Session) View() Modal {
	s.mu.Lock()
	defer s.mu.Unlock()
	retries := min(s.left, s.gate.maxRetries)
	return Modal{
		ID:          s.id,
		Visible:     s.mounted && !s.status.closed(),
		Title:       s.req.Title,
		Description: s.req.Description,
		Amount:      s.req.Amount,
		AutoTrigger: s.req.AutoTrigger,
		Status:      s.status,
		Busy:        s.status == StatusAuthenticating,
		ErrorText:   s.errText,
		RetriesLeft: retries,
	}
}

// Mount shows the modal. If the feature flag is off the continuation runs
// immediately and the gate closes. Otherwise, with AutoTrigger, the first
// prompt is shown and its outcome returned; without it the outcome is the
// zero value and the caller waits for Authenticate.
func (s *Session) Mount(ctx context.Context) (models.Outcome, error) {
	s.mu.Lock()
	if s.mounted || s.status.closed() {
		s.mu.Unlock()
		return models.Outcome{}, models.ErrGateClosed
	}
	s.mounted = true
	s.mu.Unlock()

	enabled, err := s.flagEnabled(ctx)
	if err != nil {
		// Unreadable policy keeps the gate closed.
		s.gate.log.Warn().Err(err).Str("flag", string(s.req.Flag)).Msg("reading step-up policy, requiring proof")
		enabled = true
	}
	if !enabled {
		s.finish(ctx, StatusBypassed, "")
		return models.Success(), s.proceed(ctx)
	}
	if !s.req.AutoTrigger {
		return models.Outcome{}, nil
	}
	return s.Authenticate(ctx)
}

// flagEnabled reads the guarding flag. A flag name outside the known set
// is an error so that a typo can never bypass the gate.
func (s *Session) flagEnabled(ctx context.Context) (bool, error) {
	if _, err := models.ParsePolicyFlag(string(s.req.Flag)); err != nil {
		return false, err
	}
	return policy.ReadFlag(ctx, s.gate.flags, s.req.Flag)
}

// Authenticate shows the native prompt; it is also the manual retry.
// Success runs the continuation and closes the gate. Cancel and failure
// leave the modal open with an inline error until retries run out.
func (s *Session) Authenticate(ctx context.Context) (models.Outcome, error) {
	s.mu.Lock()
	switch {
	case !s.mounted || s.status.closed():
		s.mu.Unlock()
		return models.Outcome{}, models.ErrGateClosed
	case s.status == StatusAuthenticating:
		s.mu.Unlock()
		return models.Busy(), models.ErrBusy
	case s.left <= 0:
		s.mu.Unlock()
		return models.Outcome{}, models.ErrRetriesExhausted
	}
	s.status, s.errText = StatusAuthenticating, ""
	s.mu.Unlock()

	if !s.gate.resolver.Query(ctx).Satisfied() {
		s.finish(ctx, StatusUnavailable, models.ErrCapabilityUnavailable.Error())
		return models.Outcome{}, models.ErrCapabilityUnavailable
	}

	// Cancel must abort the prompt even if ctx outlives the session.
	pctx, stop := context.WithCancel(ctx)
	defer stop()
	unlink := context.AfterFunc(s.ctx, stop)
	defer unlink()

	out := s.gate.auth.Authenticate(pctx, s.promptOptions())

	s.mu.Lock()
	if s.status.closed() {
		s.mu.Unlock()
		return out, models.ErrGateClosed
	}
	switch {
	case out.IsSuccess():
		s.closeLocked(StatusSucceeded, "")
		s.mu.Unlock()
		s.record(ctx, StatusSucceeded)
		return out, s.proceed(ctx)
	case out.Kind == models.OutcomeBusy:
		s.status = StatusPending
		s.mu.Unlock()
		return out, out.Err()
	}

	s.left--
	text := "failed"
	if out.IsCancel() {
		text = "canceled"
	}
	if s.left <= 0 {
		s.closeLocked(StatusExhausted, text)
		s.mu.Unlock()
		s.record(ctx, StatusExhausted)
		return out, models.ErrRetriesExhausted
	}
	s.status, s.errText = StatusFailed, text
	s.mu.Unlock()
	return out, out.Err()
}

// Cancel unmounts the modal. A prompt in flight is aborted and its result
// discarded; the continuation never runs.
func (s *Session) Cancel() {
	s.mu.Lock()
	closed := s.status.closed()
	s.mu.Unlock()
	if closed {
		return
	}
	s.finish(s.ctx, StatusCanceled, "")
	s.cancel()
}

func (s *Session) promptOptions() biometric.PromptOptions {
	opts := biometric.PromptOptions{Message: s.req.Title, CancelLabel: "Cancel"}
	if s.req.Amount != nil && opts.Message != "" {
		opts.Message = fmt.Sprintf("%s (%s)", opts.Message, s.req.Amount)
	}
	if s.req.Prompt != nil {
		opts = *s.req.Prompt
	}
	if opts.Message == "" {
		opts.Message = "Confirm it's you"
	}
	opts.Purpose = "step_up"
	return opts
}

func (s *Session) proceed(ctx context.Context) error {
	if s.req.OnSuccess == nil {
		return nil
	}
	if err := s.req.OnSuccess(ctx); err != nil {
		return fmt.Errorf("step-up continuation: %w", err)
	}
	return nil
}

func (s *Session) finish(ctx context.Context, st Status, errText string) {
	s.mu.Lock()
	closed := s.closeLocked(st, errText)
	s.mu.Unlock()
	if closed {
		s.record(ctx, st)
	}
}

// closeLocked moves to a terminal status. Callers hold s.mu.
func (s *Session) closeLocked(st Status, errText string) bool {
	if s.status.closed() {
		return false
	}
	s.status, s.errText = st, errText
	return true
}

func (s *Session) record(ctx context.Context, st Status) {
	stepUps.WithLabelValues(string(st)).Inc()
	entry := &models.AuditEntry{Event: models.EventStepUp, Subject: string(s.req.Flag), Outcome: string(st), Detail: s.req.Title}
	if s.req.Amount != nil {
		entry.Metadata = map[string]any{"amount_minor": s.req.Amount.Minor, "currency": s.req.Amount.Currency}
	}
	s.gate.audit.Record(ctx, entry)
	s.gate.log.Info().Str("session", s.id).Str("status", string(st)).Msg("step-up closed")
}
