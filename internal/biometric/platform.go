// Package biometric adapts the platform biometric sensor into the two
// primitives the gate needs: a fail-closed capability query and a
// serialized authenticate call.
package biometric

import (
	"context"

	"github.com/org/applock/pkg/models"
)

// Platform modality codes as reported by the native layer.
const (
	CodeFingerprint = 1
	CodeFace        = 2
	CodeIris        = 3
)

// Platform error codes returned in PromptResult.Error.
const (
	ErrCodeUserCancel   = "user_cancel"
	ErrCodeSystemCancel = "system_cancel"
	ErrCodeAppCancel    = "app_cancel"
	ErrCodeLockout      = "lockout"
	ErrCodeNotEnrolled  = "not_enrolled"
	ErrCodeNotAvailable = "not_available"
)

// PlatformCapability is the raw capability report.
type PlatformCapability struct {
	HasHardware   bool
	IsEnrolled    bool
	ModalityCodes []int
}

// PromptOptions configures one native prompt.
type PromptOptions struct {
	Message             string `json:"message"`
	CancelLabel         string `json:"cancel_label"`
	AllowDeviceFallback bool   `json:"allow_device_fallback"`
	// Purpose labels the prompt for metrics and audit (app_lock, settings, login, step_up).
	Purpose string `json:"purpose"`
}

// PromptResult is the raw native prompt result.
type PromptResult struct {
	Success bool
	Error   string
}

// Platform is the native biometric driver.
type Platform interface {
	Capability(ctx context.Context) (PlatformCapability, error)
	Prompt(ctx context.Context, opts PromptOptions) (PromptResult, error)
}

// modalityFromCode maps a native code; unknown codes are dropped.
func modalityFromCode(code int) (models.Modality, bool) {
	switch code {
	case CodeFingerprint:
		return models.ModalityFingerprint, true
	case CodeFace:
		return models.ModalityFace, true
	case CodeIris:
		return models.ModalityIris, true
	}
	return "", false
}
