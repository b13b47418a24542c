// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	soltx "github.com/rovshanmuradov/txdispatch/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/txdispatch/internal/events"
	txn "github.com/rovshanmuradov/txdispatch/internal/transaction"
	"github.com/rovshanmuradov/txdispatch/internal/types"
	"github.com/rovshanmuradov/txdispatch/internal/utils/logger"
	"github.com/rovshanmuradov/txdispatch/internal/utils/metrics"
	"github.com/rovshanmuradov/txdispatch/internal/wallet"
)

// ErrPayerMismatch is returned when the requested fee payer is not the account the signer authorized.
var ErrPayerMismatch = errors.New("fee payer does not match the authorized account")

// Pipeline stages, used as error context and metric labels.
const (
	stageAuthorization = "authorization"
	stageBuilding      = "building"
	stageSigning       = "signing"
	stageSubmission    = "submission"
	stageConfirmation  = "confirmation"
)

// FeeResolver maps a dispatch config to compute budget instructions.
type FeeResolver interface {
	Resolve(mode types.TransactionMode, tier types.FeeTier) []solana.Instruction
}

// MessageBuilder compiles a message against a freshly fetched blockhash.
type MessageBuilder interface {
	Build(ctx context.Context, payer solana.PublicKey, budget, instructions []solana.Instruction) (*txn.CompiledMessage, error)
}

// Confirmer waits for a submitted signature to reach a commitment level.
type Confirmer interface {
	Confirm(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) (*soltx.Outcome, error)
}

// TransactionRequest is what a caller wants executed.
type TransactionRequest struct {
	Instructions []solana.Instruction
	// Compose appends instructions that depend on the authorized account.
	Compose func(account solana.PublicKey) ([]solana.Instruction, error)
	// FeePayer defaults to the account the signer authorizes.
	FeePayer solana.PublicKey
	// Commitment to wait for. Empty means return right after submission.
	Commitment rpc.CommitmentType
}

// Result is the terminal state of one dispatch.
type Result struct {
	DispatchID string
	Signature  solana.Signature
	State      soltx.ConfirmState
	Slot       uint64
	Logs       []string
	Elapsed    time.Duration
}

// Components wires the pipeline stages.
type Components struct {
	Fees      FeeResolver
	Builder   MessageBuilder
	Submitter wallet.Submitter
	Confirmer Confirmer
	Balances  BalanceSource
	Metrics   *metrics.Collector
}

// Dispatcher runs authorize -> resolve fees -> build -> sign -> submit -> confirm.
// It holds no per-dispatch state and may serve concurrent dispatches; signers may not be shared.
type Dispatcher struct {
	fees      FeeResolver
	builder   MessageBuilder
	submitter wallet.Submitter
	confirmer Confirmer
	balances  BalanceSource
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewDispatcher(c Components, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		fees:      c.Fees,
		builder:   c.Builder,
		submitter: c.Submitter,
		confirmer: c.Confirmer,
		balances:  c.Balances,
		metrics:   c.Metrics,
		logger:    log.Named("dispatcher"),
	}
}

// Dispatch executes one request. Status events reach sink in order and sanitized;
// the returned error keeps its type with the failing stage prepended.
// When confirmation ends Failed or TimedOut both the result and the error are returned,
// so the caller still has the signature.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	req TransactionRequest,
	cfg types.DispatchConfig,
	signer wallet.Signer,
	sink events.Sink,
) (*Result, error) {
	if signer == nil {
		return nil, errors.New("dispatch requires a signer")
	}

	id := logger.NewDispatchID()
	log := logger.WithDispatch(d.logger, id).With(
		zap.String("signer", signer.Kind().String()),
		zap.String("mode", string(cfg.Mode)),
		zap.String("tier", string(cfg.Tier)))
	em := events.NewEmitter(id, sink, log)
	run := &run{d: d, id: id, log: log, em: em, start: time.Now()}

	// сессия, открытая Authorize, не должна пережить dispatch
	if closer, ok := signer.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Debug("Signer release failed", zap.Error(err))
			}
		}()
	}

	res, stage, err := run.execute(ctx, req, cfg, signer)

	state := "error"
	if res != nil {
		res.Elapsed = time.Since(run.start)
		state = res.State.String()
	}
	d.metrics.RecordDispatch(state, string(cfg.Mode), signer.Kind().String(), time.Since(run.start))

	if err != nil {
		d.metrics.RecordStageFailure(stage)
		emitTerminal(ctx, em, events.StageFailed)
		log.Error("Dispatch failed",
			zap.String("stage", stage),
			zap.Bool("retryable", blockchain.IsRetryable(err)),
			zap.Error(err))
		return res, fmt.Errorf("during %s: %w", stage, err)
	}

	if res.State == soltx.StateConfirmed {
		emitTerminal(ctx, em, events.StageConfirmed)
	} else {
		emitTerminal(ctx, em, events.StageSubmitted)
	}
	log.Info("Dispatch finished",
		zap.String("signature", res.Signature.String()),
		zap.String("state", res.State.String()),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// terminalEmitTimeout bounds delivery of the final event when ctx is already cancelled.
const terminalEmitTimeout = 5 * time.Second

// emitTerminal delivers the final event even after ctx is cancelled, so the sink always sees it.
func emitTerminal(ctx context.Context, em *events.Emitter, stage events.Stage) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalEmitTimeout)
	defer cancel()
	em.Stage(tctx, stage)
}

// run carries the state of a single dispatch.
type run struct {
	d     *Dispatcher
	id    string
	log   *zap.Logger
	em    *events.Emitter
	start time.Time
}

func (r *run) execute(ctx context.Context, req TransactionRequest, cfg types.DispatchConfig, signer wallet.Signer) (*Result, string, error) {
	if len(req.Instructions) == 0 && req.Compose == nil {
		return nil, stageBuilding, fmt.Errorf("%w: no instructions supplied", blockchain.ErrInvalidInstruction)
	}

	r.em.Stage(ctx, events.StageAuthorizing)
	account, err := signer.Authorize(ctx)
	if err != nil {
		return nil, stageAuthorization, err
	}
	payer := req.FeePayer
	if payer.IsZero() {
		payer = account
	} else if !payer.Equals(account) {
		return nil, stageAuthorization, fmt.Errorf("%w: payer %s, signer %s", ErrPayerMismatch, payer, account)
	}

	r.em.Stage(ctx, events.StageBuilding)
	instructions := req.Instructions
	if req.Compose != nil {
		extra, err := req.Compose(account)
		if err != nil {
			return nil, stageBuilding, err
		}
		instructions = append(append([]solana.Instruction(nil), instructions...), extra...)
	}
	budget := r.d.fees.Resolve(cfg.Mode, cfg.Tier)
	msg, err := r.d.builder.Build(ctx, payer, budget, instructions)
	if err != nil {
		return nil, stageBuilding, err
	}
	r.log.Debug("Message built",
		zap.String("payer", payer.String()),
		zap.String("blockhash", msg.Blockhash.String()),
		zap.Int("instructions", len(msg.Instructions)))

	sig, stage, err := r.signAndSubmit(ctx, signer, msg)
	if err != nil {
		return nil, stage, err
	}
	res := &Result{DispatchID: r.id, Signature: sig, State: soltx.StateSubmitted}

	if req.Commitment == "" {
		return res, "", nil
	}

	r.em.Stage(ctx, events.StageConfirming)
	outcome, err := r.d.confirmer.Confirm(ctx, sig, req.Commitment)
	if err != nil {
		return res, stageConfirmation, err
	}
	res.State = outcome.State
	res.Slot = outcome.Slot
	res.Logs = outcome.Logs
	if err := outcome.Err(); err != nil {
		return res, stageConfirmation, err
	}
	return res, "", nil
}

// signAndSubmit uses SignAndSend for fused backends and Sign then Submit otherwise.
func (r *run) signAndSubmit(ctx context.Context, signer wallet.Signer, msg *txn.CompiledMessage) (solana.Signature, string, error) {
	r.em.Stage(ctx, events.StageSigning)

	if signer.Fused() {
		sig, err := signer.SignAndSend(ctx, msg, r.d.submitter)
		if err != nil {
			return solana.Signature{}, fusedStage(err), err
		}
		return sig, "", nil
	}

	signed, err := signer.Sign(ctx, msg)
	if err != nil {
		return solana.Signature{}, stageSigning, err
	}

	r.em.Stage(ctx, events.StageSubmitting)
	sig, err := r.d.submitter.Submit(ctx, signed)
	if err != nil {
		return solana.Signature{}, stageSubmission, err
	}
	return sig, "", nil
}

// fusedStage attributes a SignAndSend failure to the stage that produced it.
func fusedStage(err error) string {
	var authErr *blockchain.AuthorizationError
	var serErr *blockchain.SerializationError
	if errors.As(err, &authErr) || errors.As(err, &serErr) {
		return stageSigning
	}
	return stageSubmission
}
