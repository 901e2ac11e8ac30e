// Package errors provides the kernel's structured error taxonomy.
//
// Validation, risk, and storage errors are returned as *KernelError values
// the caller can recover from. Chain corruption and invariant-violation
// ("bug") errors are returned as *FatalError: the kernel refuses further
// writes once one is raised, per spec.md section 7.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies a kernel error without depending on its message text.
type Code string

const (
	// Structural validation errors (spec.md 4.1).
	CodeNotBalanced           Code = "LEDGER_NOT_BALANCED"
	CodeTooFewPostings        Code = "LEDGER_TOO_FEW_POSTINGS"
	CodeAccountAssetMismatch  Code = "LEDGER_ACCOUNT_ASSET_MISMATCH"
	CodeIntentViolation       Code = "LEDGER_INTENT_VIOLATION"
	CodeMetadataTooLarge      Code = "LEDGER_METADATA_TOO_LARGE"
	CodeInvalidAccountKey     Code = "LEDGER_INVALID_ACCOUNT_KEY"
	CodeAmountNotPositive     Code = "LEDGER_AMOUNT_NOT_POSITIVE"
	CodeInvalidCorrelationID  Code = "LEDGER_INVALID_CORRELATION_ID"
	CodeUnknownAsset          Code = "LEDGER_UNKNOWN_ASSET"
	CodePrecisionExceeded     Code = "LEDGER_PRECISION_EXCEEDED"
	CodeCandidatePreSealed    Code = "LEDGER_CANDIDATE_PRE_SEALED"

	// Risk violations (spec.md 4.4).
	CodeInsufficientFunds     Code = "RISK_INSUFFICIENT_FUNDS"
	CodeVaultUnderflow        Code = "RISK_VAULT_UNDERFLOW"
	CodeIntentDisabled        Code = "RISK_INTENT_DISABLED"
	CodeAdjustmentUnauth      Code = "RISK_ADJUSTMENT_UNAUTHORIZED"
	CodeVelocityExceeded      Code = "RISK_VELOCITY_EXCEEDED"

	// Storage errors (operational, caller may retry).
	CodeStorageIO       Code = "STORAGE_IO_ERROR"
	CodeStorageLocked   Code = "STORAGE_LOCKED"
	CodeStorageNotFound Code = "STORAGE_NOT_FOUND"

	// Fatal: chain corruption.
	CodeHashMismatch    Code = "CHAIN_HASH_MISMATCH"
	CodeSequenceGap     Code = "CHAIN_SEQUENCE_GAP"
	CodeTruncationFailed Code = "CHAIN_TRUNCATION_FAILED"

	// Fatal: bug / invariant violation.
	CodeDoubleCommit   Code = "BUG_DOUBLE_COMMIT"
	CodeOverflow       Code = "BUG_ARITHMETIC_OVERFLOW"
	CodeInvariantBreak Code = "BUG_INVARIANT_VIOLATION"
)

// KernelError is a structured, recoverable error returned from the write
// path or a query path.
type KernelError struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *KernelError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a structured detail and returns the same error for chaining.
func (e *KernelError) WithDetail(key string, value interface{}) *KernelError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a KernelError with no underlying cause.
func New(code Code, message string) *KernelError {
	return &KernelError{Code: code, Message: message}
}

// Wrap creates a KernelError around an underlying cause.
func Wrap(code Code, message string, err error) *KernelError {
	return &KernelError{Code: code, Message: message, Err: err}
}

// FatalError signals chain corruption or an invariant violation: the kernel
// must refuse to accept further writes after one is raised.
type FatalError struct {
	Code    Code
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[FATAL %s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[FATAL %s] %s", e.Code, e.Message)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal creates a FatalError.
func Fatal(code Code, message string, err error) *FatalError {
	return &FatalError{Code: code, Message: message, Err: err}
}

// --- Structural validation constructors ---

func NotBalanced(asset string, debit, credit string) *KernelError {
	return New(CodeNotBalanced, "postings are not balanced for asset").
		WithDetail("asset", asset).WithDetail("debit_total", debit).WithDetail("credit_total", credit)
}

func TooFewPostings(count int) *KernelError {
	return New(CodeTooFewPostings, "journal entry requires at least two postings").WithDetail("count", count)
}

func AccountAssetMismatch(account, postingAsset string) *KernelError {
	return New(CodeAccountAssetMismatch, "posting asset does not match account key asset segment").
		WithDetail("account", account).WithDetail("posting_asset", postingAsset)
}

func IntentViolation(reason string) *KernelError {
	return New(CodeIntentViolation, reason)
}

func MetadataTooLarge(reason string) *KernelError {
	return New(CodeMetadataTooLarge, reason)
}

func InvalidAccountKey(key, reason string) *KernelError {
	return New(CodeInvalidAccountKey, reason).WithDetail("key", key)
}

func AmountNotPositive(account string) *KernelError {
	return New(CodeAmountNotPositive, "posting amount must be greater than zero").WithDetail("account", account)
}

func InvalidCorrelationID(reason string) *KernelError {
	return New(CodeInvalidCorrelationID, reason)
}

func UnknownAsset(asset string) *KernelError {
	return New(CodeUnknownAsset, "asset has no registered precision").WithDetail("asset", asset)
}

func PrecisionExceeded(asset string, maxDigits int) *KernelError {
	return New(CodePrecisionExceeded, "amount fractional digits exceed asset precision").
		WithDetail("asset", asset).WithDetail("max_digits", maxDigits)
}

func CandidatePreSealed() *KernelError {
	return New(CodeCandidatePreSealed, "candidate entry must not carry a sequence or hash")
}

// --- Risk violation constructors ---

func InsufficientFunds(account, required, available string) *KernelError {
	return New(CodeInsufficientFunds, "insufficient funds").
		WithDetail("account", account).WithDetail("required", required).WithDetail("available", available)
}

func VaultUnderflow(account, required, available string) *KernelError {
	return New(CodeVaultUnderflow, "vault balance would go negative").
		WithDetail("account", account).WithDetail("required", required).WithDetail("available", available)
}

func IntentDisabled(intent string) *KernelError {
	return New(CodeIntentDisabled, "intent is disabled by configuration").WithDetail("intent", intent)
}

func AdjustmentUnauthorized() *KernelError {
	return New(CodeAdjustmentUnauth, "adjustment entries require metadata.approval_ref")
}

func VelocityExceeded(account string) *KernelError {
	return New(CodeVelocityExceeded, "withdrawal velocity limit exceeded").WithDetail("account", account)
}

// --- Storage error constructors ---

func StorageIO(op string, err error) *KernelError {
	return Wrap(CodeStorageIO, "storage I/O failed", err).WithDetail("operation", op)
}

func StorageLocked(path string) *KernelError {
	return New(CodeStorageLocked, "event store file is locked by another writer").WithDetail("path", path)
}

func StorageNotFound(what string) *KernelError {
	return New(CodeStorageNotFound, "not found").WithDetail("what", what)
}

// --- Fatal constructors ---

func HashMismatch(sequence uint64) *FatalError {
	return Fatal(CodeHashMismatch, fmt.Sprintf("hash mismatch at sequence %d", sequence), nil)
}

func SequenceGap(expected, got uint64) *FatalError {
	return Fatal(CodeSequenceGap, fmt.Sprintf("sequence gap: expected %d, got %d", expected, got), nil)
}

func TruncationFailed(err error) *FatalError {
	return Fatal(CodeTruncationFailed, "failed to truncate corrupt trailing entry", err)
}

func DoubleCommit(sequence uint64) *FatalError {
	return Fatal(CodeDoubleCommit, fmt.Sprintf("sequence %d already committed", sequence), nil)
}

func Overflow(op string) *FatalError {
	return Fatal(CodeOverflow, fmt.Sprintf("arithmetic overflow during %s", op), nil)
}

func InvariantBreak(reason string) *FatalError {
	return Fatal(CodeInvariantBreak, reason, nil)
}

// --- helpers ---

// AsKernelError extracts a *KernelError from an error chain.
func AsKernelError(err error) (*KernelError, bool) {
	var ke *KernelError
	if stderrors.As(err, &ke) {
		return ke, true
	}
	return nil, false
}

// AsFatalError extracts a *FatalError from an error chain.
func AsFatalError(err error) (*FatalError, bool) {
	var fe *FatalError
	if stderrors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// ExitCode maps an error to the kernel's stable CLI exit code (spec.md 6.3).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if fe, ok := AsFatalError(err); ok {
		switch fe.Code {
		case CodeHashMismatch, CodeSequenceGap, CodeTruncationFailed:
			return 6
		default:
			return 6
		}
	}
	if ke, ok := AsKernelError(err); ok {
		switch ke.Code {
		case CodeInsufficientFunds, CodeVaultUnderflow, CodeIntentDisabled, CodeAdjustmentUnauth, CodeVelocityExceeded:
			return 4
		case CodeStorageIO, CodeStorageLocked, CodeStorageNotFound:
			return 5
		default:
			return 3
		}
	}
	return 1
}
