// internal/blockchain/errors.go
package blockchain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrPlatformMismatch is returned when a signer backend is not available on the host platform.
	ErrPlatformMismatch = errors.New("signer backend not supported on this platform")
	// ErrBlockhashExpired marks a message whose blockhash is no longer accepted by the cluster.
	ErrBlockhashExpired = errors.New("blockhash expired")
	// ErrBudgetOrdering marks a compute budget instruction placed after business instructions.
	ErrBudgetOrdering = errors.New("compute budget instruction out of order")
	// ErrMissingPayer is returned when a message is built without a fee payer.
	ErrMissingPayer = errors.New("fee payer is not set")
	// ErrInvalidInstruction is returned for an empty or malformed instruction list.
	ErrInvalidInstruction = errors.New("invalid instruction")
	// ErrSignerSpent is returned when a single-use signer session is reused.
	ErrSignerSpent = errors.New("signer session already used")
)

// AuthorizationError - the signing backend declined or timed out during the handshake.
type AuthorizationError struct {
	Backend string
	Err     error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s authorization failed: %v", e.Backend, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// SerializationError - a signer returned no usable signed payload.
type SerializationError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s returned unusable payload: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s returned unusable payload: %s", e.Backend, e.Reason)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// SubmissionError - broadcasting the transaction failed (connectivity, rate limit, stale blockhash).
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// AnchorError represents an error from Anchor framework
type AnchorError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// OnChainExecutionError - the cluster processed the transaction and a program returned failure.
type OnChainExecutionError struct {
	Signature solana.Signature
	// Code is the raw error value reported by the cluster.
	Code   interface{}
	Logs   []string
	Anchor *AnchorError
}

func (e *OnChainExecutionError) Error() string {
	var b strings.Builder
	b.WriteString("transaction failed on-chain")
	if !e.Signature.IsZero() {
		b.WriteString(" (")
		b.WriteString(e.Signature.String())
		b.WriteString(")")
	}
	if e.Code != nil {
		fmt.Fprintf(&b, ": %v", e.Code)
	}
	if e.Anchor != nil {
		fmt.Fprintf(&b, " [anchor %s #%d: %s]", e.Anchor.Name, e.Anchor.Code, e.Anchor.Msg)
	}
	return b.String()
}

// TimeoutError - confirmation was not observed in time. The transaction may still land.
type TimeoutError struct {
	Signature solana.Signature
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("confirmation of %s not observed after %s, status unknown", e.Signature, e.After)
}

// ProgramLogs returns the program logs attached to an on-chain failure, if any.
func ProgramLogs(err error) []string {
	var execErr *OnChainExecutionError
	if errors.As(err, &execErr) {
		return execErr.Logs
	}
	return nil
}

// IsRetryable reports whether re-entering the pipeline (fresh blockhash, new signature)
// can change the outcome.
func IsRetryable(err error) bool {
	var subErr *SubmissionError
	var timeoutErr *TimeoutError
	return errors.As(err, &subErr) || errors.As(err, &timeoutErr)
}

// IsInsufficientFunds checks whether the error came from a payer that cannot cover fees or transfers.
func IsInsufficientFunds(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient") {
		return true
	}
	for _, l := range ProgramLogs(err) {
		if strings.Contains(strings.ToLower(l), "insufficient") {
			return true
		}
	}
	return false
}
