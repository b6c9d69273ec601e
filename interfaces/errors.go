package interfaces

import (
	"errors"
	"fmt"
)

// Stable error codes carried by the typed errors below. Codes are part of the
// API surface: clients and HTTP handlers dispatch on them.
const (
	CodeInvalidInput       = "invalid_input"
	CodeWalletExists       = "wallet_exists"
	CodeWalletNotFound     = "wallet_not_found"
	CodeGuardianNotFound   = "guardian_not_found"
	CodeGuardianRevoked    = "guardian_revoked"
	CodeDuplicateSignature = "duplicate_signature"
	CodeEncryptionFailed   = "encryption_failed"
	CodeDecryptionFailed   = "decryption_failed"
	CodeSignatureInvalid   = "signature_invalid"
	CodeShareCorrupted     = "share_corrupted"
	CodeRecoveryNotFound   = "recovery_not_found"
	CodeRecoveryNotActive  = "recovery_not_active"
	CodeRecoveryExpired    = "recovery_expired"
	CodeThresholdNotMet    = "threshold_not_met"
	CodeChainBroken        = "chain_broken"
	CodeConfigInvalid      = "config_invalid"
	CodeStorageUnavailable = "storage_unavailable"
	CodeOperationFailed    = "operation_failed"
)

// ValidationError reports caller input that fails structural validation
// before any state changes.
type ValidationError struct {
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
	Msg   string `json:"message"`
	Err   error  `json:"-"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("validation failed: %s", e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError with the default code.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Code: CodeInvalidInput, Field: field, Msg: msg}
}

// GuardianError reports a problem with a specific guardian: unknown id,
// revoked status, or a duplicate contribution.
type GuardianError struct {
	Code       string `json:"code"`
	GuardianID string `json:"guardian_id,omitempty"`
	Msg        string `json:"message"`
	Err        error  `json:"-"`
}

func (e *GuardianError) Error() string {
	if e.GuardianID != "" {
		return fmt.Sprintf("guardian %s: %s", e.GuardianID, e.Msg)
	}
	return fmt.Sprintf("guardian error: %s", e.Msg)
}

func (e *GuardianError) Unwrap() error { return e.Err }

// CryptoError reports a failed cryptographic operation. The message never
// includes key material or plaintext.
type CryptoError struct {
	Code string `json:"code"`
	Op   string `json:"op"`
	Msg  string `json:"message"`
	Err  error  `json:"-"`
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %s", e.Op, e.Msg)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// ProtocolError reports a violation of the recovery state machine: wrong
// state for an operation, an expired attempt, or an unmet threshold.
type ProtocolError struct {
	Code     string `json:"code"`
	WalletID string `json:"wallet_id,omitempty"`
	Msg      string `json:"message"`
	Err      error  `json:"-"`
}

func (e *ProtocolError) Error() string {
	if e.WalletID != "" {
		return fmt.Sprintf("protocol violation on wallet %s: %s", e.WalletID, e.Msg)
	}
	return fmt.Sprintf("protocol violation: %s", e.Msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ErrorCode extracts the stable code from any protocol error type. Returns an
// empty string for plain errors.
func ErrorCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var ge *GuardianError
	if errors.As(err, &ge) {
		return ge.Code
	}
	var ce *CryptoError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
