// internal/blockchain/solbc/transaction/types.go
package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
)

var (
	ErrInvalidSignature = errors.New("invalid transaction signature")
	ErrInvalidBlockhash = errors.New("invalid blockhash")
)

const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
	// DefaultBlockhashTTL - консервативная оценка жизни blockhash (~150 слотов).
	DefaultBlockhashTTL = 60 * time.Second
)

type Config struct {
	ConfirmTimeout      time.Duration
	PollInterval        time.Duration
	BlockhashTTL        time.Duration
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ConfirmTimeout:      DefaultConfirmTimeout,
		PollInterval:        DefaultPollInterval,
		BlockhashTTL:        DefaultBlockhashTTL,
		PreflightCommitment: rpc.CommitmentConfirmed,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = d.ConfirmTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BlockhashTTL <= 0 {
		c.BlockhashTTL = d.BlockhashTTL
	}
	if c.PreflightCommitment == "" {
		c.PreflightCommitment = d.PreflightCommitment
	}
	return c
}

// ConfirmState - состояние транзакции после отправки.
type ConfirmState int

const (
	StateSubmitted ConfirmState = iota
	StateConfirming
	StateConfirmed
	StateFailed
	StateTimedOut
)

func (s ConfirmState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateConfirming:
		return "confirming"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal сообщает, является ли состояние конечным.
func (s ConfirmState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimedOut
}

// Outcome - результат ожидания подтверждения.
type Outcome struct {
	Signature solana.Signature
	State     ConfirmState
	Slot      uint64
	// Code - исходное значение ошибки из статуса подписи.
	Code    interface{}
	Logs    []string
	Anchor  *blockchain.AnchorError
	Elapsed time.Duration
}

// Err переводит исход в ошибку таксономии; nil для Confirmed.
func (o *Outcome) Err() error {
	switch o.State {
	case StateConfirmed:
		return nil
	case StateFailed:
		return &blockchain.OnChainExecutionError{
			Signature: o.Signature,
			Code:      o.Code,
			Logs:      o.Logs,
			Anchor:    o.Anchor,
		}
	case StateTimedOut:
		return &blockchain.TimeoutError{Signature: o.Signature, After: o.Elapsed}
	default:
		return fmt.Errorf("confirmation of %s ended in non-terminal state %s", o.Signature, o.State)
	}
}
