// internal/blockchain/solbc/transaction/manager.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	"github.com/rovshanmuradov/txdispatch/internal/blockchain/solbc"
	txn "github.com/rovshanmuradov/txdispatch/internal/transaction"
)

// Sender - часть RPC клиента, нужная для отправки.
type Sender interface {
	SendRawTransaction(ctx context.Context, raw []byte, opts blockchain.TransactionOptions) (solana.Signature, error)
}

// Manager отправляет подписанные транзакции. Ровно одна попытка на вызов:
// повтор с новым blockhash - решение вызывающего.
type Manager struct {
	client    Sender
	logger    *zap.Logger
	config    Config
	validator *Validator
	analyzer  *solbc.ErrorAnalyzer
	metrics   *Metrics
	now       func() time.Time
}

func NewManager(client Sender, logger *zap.Logger, config Config, metrics *Metrics) *Manager {
	return &Manager{
		client:    client,
		logger:    logger.Named("tx-manager"),
		config:    config.withDefaults(),
		validator: NewValidator(logger),
		analyzer:  solbc.NewErrorAnalyzer(logger),
		metrics:   metrics,
		now:       time.Now,
	}
}

// Submit отправляет транзакцию через sendTransaction и возвращает ее подпись.
func (tm *Manager) Submit(ctx context.Context, signed *txn.SignedTransaction) (solana.Signature, error) {
	if signed == nil || signed.Message == nil {
		return solana.Signature{}, &blockchain.SerializationError{Backend: "submitter", Reason: "nothing to submit"}
	}

	if err := tm.validator.ValidateTransaction(signed.Tx); err != nil {
		tm.logger.Error("Transaction validation failed", zap.Error(err))
		return solana.Signature{}, &blockchain.SerializationError{Backend: "submitter", Reason: "signed transaction rejected", Err: err}
	}

	if signed.Message.Expired(tm.now(), tm.config.BlockhashTTL) {
		age := tm.now().Sub(signed.Message.FetchedAt)
		tm.metrics.trackSubmit("expired")
		tm.logger.Warn("Refusing to submit transaction with stale blockhash",
			zap.String("blockhash", signed.Message.Blockhash.String()),
			zap.Duration("age", age))
		return solana.Signature{}, &blockchain.SubmissionError{
			Err: fmt.Errorf("%w: fetched %s ago", blockchain.ErrBlockhashExpired, age.Round(time.Millisecond)),
		}
	}

	raw, err := signed.Serialize()
	if err != nil {
		return solana.Signature{}, &blockchain.SerializationError{Backend: "submitter", Reason: "encode transaction", Err: err}
	}

	expected := signed.Signature()
	sig, err := tm.client.SendRawTransaction(ctx, raw, blockchain.TransactionOptions{
		SkipPreflight:       tm.config.SkipPreflight,
		PreflightCommitment: tm.config.PreflightCommitment,
	})
	if err != nil {
		tm.metrics.trackSubmit("error")
		classified := tm.analyzer.ClassifySendError(err)
		var execErr *blockchain.OnChainExecutionError
		if errors.As(classified, &execErr) {
			execErr.Signature = expected
		}
		tm.logger.Error("Failed to send transaction",
			zap.String("signature", expected.String()),
			zap.Error(err))
		return solana.Signature{}, classified
	}
	tm.metrics.trackSubmit("sent")

	if !sig.Equals(expected) {
		tm.logger.Warn("Node returned unexpected signature",
			zap.String("expected", expected.String()),
			zap.String("got", sig.String()))
	}
	tm.logger.Debug("Transaction sent", zap.String("signature", sig.String()))
	return sig, nil
}
