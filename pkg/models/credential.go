package models

import "time"

// CredentialRecord lets a biometric success stand in for password entry.
// It is only ever stored encrypted.
type CredentialRecord struct {
	Identity  string    `json:"identity" cbor:"1,keyasint"`
	SubjectID string    `json:"subject_id" cbor:"2,keyasint"`
	CreatedAt time.Time `json:"created_at" cbor:"3,keyasint,omitempty"`
}

// AuditEntry records a single gate decision. Never carries identities or tokens.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Subject   string         `json:"subject,omitempty"`
	Outcome   string         `json:"outcome,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Audit event names.
const (
	EventLockEpisodeStarted = "lock.episode_started"
	EventLockUnlocked       = "lock.unlocked"
	EventLockForcedUnlock   = "lock.forced_unlock"
	EventPolicyChanged      = "policy.changed"
	EventPolicyRejected     = "policy.rejected"
	EventCredentialCreated  = "credential.created"
	EventCredentialDeleted  = "credential.deleted"
	EventBiometricLogin     = "credential.biometric_login"
	EventStepUp             = "stepup.completed"
)
