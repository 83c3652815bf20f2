package biometric

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/org/applock/pkg/models"
	"github.com/rs/zerolog/log"
)

// Authenticator is the single serialization point for native prompts.
// A call made while another is in flight returns Busy immediately.
type Authenticator struct {
	platform Platform
	inFlight atomic.Bool
}

// NewAuthenticator creates an Authenticator over the platform driver.
func NewAuthenticator(p Platform) *Authenticator {
	return &Authenticator{platform: p}
}

// InFlight reports whether a native prompt is currently showing.
func (a *Authenticator) InFlight() bool {
	return a.inFlight.Load()
}

// Authenticate shows the native prompt and normalizes its result.
// It never returns an error; every failure becomes an Outcome.
func (a *Authenticator) Authenticate(ctx context.Context, opts PromptOptions) models.Outcome {
	if !a.inFlight.CompareAndSwap(false, true) {
		authAttempts.WithLabelValues(purposeLabel(opts.Purpose), string(models.OutcomeBusy)).Inc()
		return models.Busy()
	}
	defer a.inFlight.Store(false)

	out := a.prompt(ctx, opts)
	authAttempts.WithLabelValues(purposeLabel(opts.Purpose), string(out.Kind)).Inc()
	log.Debug().
		Str("component", "biometric").
		Str("purpose", opts.Purpose).
		Str("outcome", string(out.Kind)).
		Str("reason", out.Reason).
		Msg("prompt finished")
	return out
}

func (a *Authenticator) prompt(ctx context.Context, opts PromptOptions) (out models.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = models.Failure(fmt.Sprintf("platform panic: %v", rec))
		}
	}()

	if err := ctx.Err(); err != nil {
		return models.SystemCancel()
	}
	res, err := a.platform.Prompt(ctx, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.SystemCancel()
		}
		return models.Failure(err.Error())
	}
	return normalize(res)
}

func normalize(res PromptResult) models.Outcome {
	if res.Success {
		return models.Success()
	}
	switch res.Error {
	case ErrCodeUserCancel:
		return models.UserCancel()
	case ErrCodeSystemCancel, ErrCodeAppCancel:
		return models.SystemCancel()
	case "":
		return models.Failure("unknown")
	default:
		return models.Failure(res.Error)
	}
}

func purposeLabel(p string) string {
	if p == "" {
		return "unspecified"
	}
	return p
}
