package domain

import (
	"context"
	"errors"
)

// Adapter errors. Adapters wrap their failures with one of these so the
// pipeline can classify them without knowing the transport.
var (
	// ErrAuth means the session was rejected by the source.
	ErrAuth = errors.New("authentication failed")

	// ErrAuthRequired means no session could be established with the configured credentials.
	ErrAuthRequired = errors.New("authentication required")

	// ErrChallengeRequired means the source demands interactive verification.
	// It is never retried automatically.
	ErrChallengeRequired = errors.New("interactive challenge required")

	// ErrTransient covers network failures, rate limits and upstream 5xx.
	ErrTransient = errors.New("transient failure")

	// ErrQuotaExceeded means the enrichment service refused for quota reasons.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidResponse means the enrichment output could not be parsed.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrPermanent means the sink rejected the message and retrying cannot help.
	ErrPermanent = errors.New("permanent failure")
)

// Store and orchestration errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidHandle     = errors.New("invalid handle")
	ErrInvalidTransition = errors.New("invalid ledger transition")
	ErrCycleInProgress   = errors.New("poll cycle already running")
)

// Verdict is the pipeline's decision about an adapter result.
type Verdict int

const (
	// VerdictSuccess means the call succeeded.
	VerdictSuccess Verdict = iota
	// VerdictRetryable means the same call may succeed later.
	VerdictRetryable
	// VerdictAuthExpired means the session must be invalidated and renewed.
	VerdictAuthExpired
	// VerdictNeedsOperator means nothing proceeds until a human intervenes.
	VerdictNeedsOperator
	// VerdictFatal means retrying the call cannot help.
	VerdictFatal
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictRetryable:
		return "retryable"
	case VerdictAuthExpired:
		return "auth_expired"
	case VerdictNeedsOperator:
		return "needs_operator"
	default:
		return "fatal"
	}
}

// Classify maps an adapter error onto a Verdict. Unrecognised errors are treated
// as transient so an unexpected failure never loses an item.
func Classify(err error) Verdict {
	switch {
	case err == nil:
		return VerdictSuccess
	case errors.Is(err, ErrChallengeRequired):
		return VerdictNeedsOperator
	case errors.Is(err, ErrAuth), errors.Is(err, ErrAuthRequired):
		return VerdictAuthExpired
	case errors.Is(err, ErrPermanent), errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrInvalidResponse):
		return VerdictFatal
	case errors.Is(err, context.Canceled):
		return VerdictFatal
	default:
		return VerdictRetryable
	}
}
