package models

import "fmt"

// PolicyFlag names one of the three persisted lock policies.
type PolicyFlag string

const (
	FlagAppLock        PolicyFlag = "app_lock"
	FlagBiometricLogin PolicyFlag = "biometric_login"
	FlagTransferStepUp PolicyFlag = "transfer_step_up"
)

// AllFlags lists the policy flags in settings order.
var AllFlags = []PolicyFlag{FlagAppLock, FlagBiometricLogin, FlagTransferStepUp}

// ParsePolicyFlag validates a flag name coming from an outer surface.
func ParsePolicyFlag(s string) (PolicyFlag, error) {
	for _, f := range AllFlags {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown policy flag %q", s)
}

// VaultKey is the vault key the flag is persisted under.
func (f PolicyFlag) VaultKey() string {
	return "policy." + string(f)
}

// LockPolicy is the persisted policy record.
type LockPolicy struct {
	AppLockEnabled        bool `json:"app_lock_enabled"`
	BiometricLoginEnabled bool `json:"biometric_login_enabled"`
	TransferStepUpEnabled bool `json:"transfer_step_up_enabled"`
}

// Get returns the value of a single flag.
func (p LockPolicy) Get(f PolicyFlag) bool {
	switch f {
	case FlagAppLock:
		return p.AppLockEnabled
	case FlagBiometricLogin:
		return p.BiometricLoginEnabled
	case FlagTransferStepUp:
		return p.TransferStepUpEnabled
	}
	return false
}

// Set returns a copy of p with the flag set to v.
func (p LockPolicy) Set(f PolicyFlag, v bool) LockPolicy {
	switch f {
	case FlagAppLock:
		p.AppLockEnabled = v
	case FlagBiometricLogin:
		p.BiometricLoginEnabled = v
	case FlagTransferStepUp:
		p.TransferStepUpEnabled = v
	}
	return p
}

// AppState is the coarse OS lifecycle state.
type AppState string

const (
	AppActive     AppState = "active"
	AppInactive   AppState = "inactive"
	AppBackground AppState = "background"
)

// ParseAppState validates a lifecycle state name.
func ParseAppState(s string) (AppState, error) {
	switch AppState(s) {
	case AppActive, AppInactive, AppBackground:
		return AppState(s), nil
	}
	return "", fmt.Errorf("unknown app state %q", s)
}
