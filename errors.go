package txpipe

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed taxonomy every externally surfaced pipeline error
// is classified into. Node implementations disagree on numeric error codes,
// so classification is message-pattern based (see Classify).
type ErrorKind int

const (
	// KindGeneric covers any error that doesn't match a more specific kind.
	KindGeneric ErrorKind = iota
	// KindInvalidNonce means the node rejected the transaction because of
	// its nonce (too-low, known, or underpriced-replacement).
	KindInvalidNonce
	// KindNotDeployed means the target address has no code.
	KindNotDeployed
	// KindNoNetworkInContract means the contract artifact has no binding
	// for the active network.
	KindNoNetworkInContract
	// KindSignerMismatch means the signer recovered from a signed
	// transaction does not equal the declared sender.
	KindSignerMismatch
	// KindFailedTxChain means one transaction in an ordered chain failed;
	// the ClassifiedError carries the unsent remainder.
	KindFailedTxChain
	// KindTimeout means signing or receipt polling exceeded its budget.
	KindTimeout
	// KindNotFound means a lookup resolved to an absence sentinel.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidNonce:
		return "InvalidNonce"
	case KindNotDeployed:
		return "NotDeployed"
	case KindNoNetworkInContract:
		return "NoNetworkInContract"
	case KindSignerMismatch:
		return "SignerMismatch"
	case KindFailedTxChain:
		return "FailedTxChain"
	case KindTimeout:
		return "Timeout"
	case KindNotFound:
		return "NotFound"
	default:
		return "Generic"
	}
}

// ClassifiedError is the single error type the pipeline ever returns to a
// caller. Classify is idempotent: classifying an already-classified error
// returns it unchanged.
type ClassifiedError struct {
	Kind  ErrorKind
	Cause error

	// Unsent holds the transactions a chain send did not manage to submit.
	// Only populated when Kind == KindFailedTxChain.
	Unsent []*RawTransaction
}

func (e *ClassifiedError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

// Unwrap lets errors.Is/errors.As reach the original cause.
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Is reports whether target names the same ErrorKind, so callers can write
// errors.Is(err, txpipe.ErrInvalidNonce) without needing *ClassifiedError.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel values usable with errors.Is to test the Kind of a returned
// *ClassifiedError without constructing one by hand.
var (
	ErrInvalidNonce        = &ClassifiedError{Kind: KindInvalidNonce}
	ErrNotDeployed         = &ClassifiedError{Kind: KindNotDeployed}
	ErrNoNetworkInContract = &ClassifiedError{Kind: KindNoNetworkInContract}
	ErrSignerMismatch      = &ClassifiedError{Kind: KindSignerMismatch}
	ErrFailedTxChain       = &ClassifiedError{Kind: KindFailedTxChain}
	ErrTimeout             = &ClassifiedError{Kind: KindTimeout}
	ErrNotFound            = &ClassifiedError{Kind: KindNotFound}
	ErrGeneric             = &ClassifiedError{Kind: KindGeneric}
)

// ErrLockTimeout is returned by LockingKVStore.Lock when a key stays held
// past the store's configured acquire timeout.
var ErrLockTimeout = errors.New("txpipe: lock acquire timed out")

// nonceErrorPatterns are matched case-insensitively against the raw error
// message. Centralizing them here is the whole point of ErrorClassifier:
// nodes disagree on numeric codes, but these substrings are stable across
// go-ethereum, geth forks, and most L2 clients.
var nonceErrorPatterns = []string{
	"nonce",
	"replacement transaction underpriced",
	"known transaction",
}

// methodNotSupportedPatterns are matched to recognize a node that doesn't
// implement a txpool RPC method, which degrades mempool-aware components to
// an explicit unsupported state rather than an error.
var methodNotSupportedPatterns = []string{
	"method not supported",
	"not supported",
	"method not found",
}

// Classify maps a raw error into the closed ErrorKind taxonomy. It is
// idempotent: classifying an already-classified error returns it unchanged.
func Classify(raw error) *ClassifiedError {
	if raw == nil {
		return nil
	}
	if ce, ok := raw.(*ClassifiedError); ok {
		return ce
	}

	msg := strings.ToLower(raw.Error())
	for _, pattern := range nonceErrorPatterns {
		if strings.Contains(msg, pattern) {
			return &ClassifiedError{Kind: KindInvalidNonce, Cause: raw}
		}
	}
	return &ClassifiedError{Kind: KindGeneric, Cause: raw}
}

// IsMethodNotSupported reports whether raw's message looks like a node
// telling us an RPC method (almost always a txpool method) doesn't exist.
func IsMethodNotSupported(raw error) bool {
	if raw == nil {
		return false
	}
	msg := strings.ToLower(raw.Error())
	for _, pattern := range methodNotSupportedPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// newTimeout builds a KindTimeout classified error wrapping cause.
func newTimeout(cause error) *ClassifiedError {
	return &ClassifiedError{Kind: KindTimeout, Cause: cause}
}

// newSignerMismatch builds a KindSignerMismatch classified error.
func newSignerMismatch(cause error) *ClassifiedError {
	return &ClassifiedError{Kind: KindSignerMismatch, Cause: cause}
}

// newFailedTxChain builds a KindFailedTxChain classified error carrying the
// cause of the failing step and the unsent remainder (including the failing
// transaction itself, per the chain-send contract).
func newFailedTxChain(cause error, unsent []*RawTransaction) *ClassifiedError {
	classified := Classify(cause)
	return &ClassifiedError{
		Kind:   KindFailedTxChain,
		Cause:  classified,
		Unsent: unsent,
	}
}
