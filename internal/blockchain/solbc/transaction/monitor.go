// internal/blockchain/solbc/transaction/monitor.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain/solbc"
)

// StatusSource - часть RPC клиента, нужная для ожидания подтверждения.
type StatusSource interface {
	GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransactionLogs(ctx context.Context, signature solana.Signature) ([]string, error)
}

var errPending = errors.New("signature not yet at requested commitment")

type Monitor struct {
	client   StatusSource
	logger   *zap.Logger
	config   Config
	analyzer *solbc.ErrorAnalyzer
	metrics  *Metrics
	now      func() time.Time
}

func NewMonitor(client StatusSource, logger *zap.Logger, config Config, metrics *Metrics) *Monitor {
	return &Monitor{
		client:   client,
		logger:   logger.Named("tx-monitor"),
		config:   config.withDefaults(),
		analyzer: solbc.NewErrorAnalyzer(logger),
		metrics:  metrics,
		now:      time.Now,
	}
}

// commitmentRank упорядочивает уровни: processed < confirmed < finalized.
func commitmentRank(level string) int {
	switch level {
	case string(rpc.CommitmentProcessed):
		return 1
	case string(rpc.CommitmentConfirmed):
		return 2
	case string(rpc.CommitmentFinalized):
		return 3
	default:
		return 0
	}
}

// Confirm опрашивает getSignatureStatuses до достижения commitment, ошибки
// исполнения или истечения ConfirmTimeout. Ошибка возвращается только при
// отмене ctx или неверном commitment; исход Failed/TimedOut передается в Outcome.
func (m *Monitor) Confirm(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) (*Outcome, error) {
	want := commitmentRank(string(commitment))
	if want == 0 {
		return nil, fmt.Errorf("unsupported commitment %q", commitment)
	}

	start := m.now()
	confirmCtx, cancel := context.WithTimeout(ctx, m.config.ConfirmTimeout)
	defer cancel()

	attempts := 0
	check := func() (*rpc.SignatureStatusesResult, error) {
		attempts++
		response, err := m.client.GetSignatureStatuses(confirmCtx, signature)
		if err != nil {
			m.logger.Warn("Confirmation check failed", zap.Error(err))
			return nil, err
		}
		if response == nil || len(response.Value) == 0 || response.Value[0] == nil {
			return nil, errPending
		}
		status := response.Value[0]
		if status.Err != nil {
			return status, nil
		}
		if commitmentRank(string(status.ConfirmationStatus)) >= want {
			return status, nil
		}
		return nil, errPending
	}

	// Единственная граница ожидания - confirmCtx: TimedOut не объявляется раньше ConfirmTimeout.
	status, err := backoff.Retry(confirmCtx, check,
		backoff.WithBackOff(backoff.NewConstantBackOff(m.config.PollInterval)),
	)

	outcome := &Outcome{Signature: signature, State: StateConfirming}
	switch {
	case ctx.Err() != nil:
		return nil, fmt.Errorf("await confirmation of %s: %w", signature, ctx.Err())
	case err != nil:
		outcome.State = StateTimedOut
		m.logger.Warn("Confirmation timed out",
			zap.String("signature", signature.String()),
			zap.Int("polls", attempts),
			zap.NamedError("last_error", err))
	case status.Err != nil:
		outcome.State = StateFailed
		outcome.Slot = status.Slot
		outcome.Code = status.Err
		outcome.Logs = m.fetchLogs(ctx, signature)
		outcome.Anchor = m.analyzer.FindAnchorError(outcome.Logs)
		m.logger.Error("Transaction failed on-chain",
			zap.String("signature", signature.String()),
			zap.Any("err", status.Err))
	default:
		outcome.State = StateConfirmed
		outcome.Slot = status.Slot
		m.logger.Info("Transaction confirmed",
			zap.String("signature", signature.String()),
			zap.Uint64("slot", status.Slot),
			zap.String("commitment", string(status.ConfirmationStatus)))
	}

	outcome.Elapsed = m.now().Sub(start)
	m.metrics.trackOutcome(outcome)
	return outcome, nil
}

// fetchLogs берет логи программ из getTransaction; при ошибке логов нет.
func (m *Monitor) fetchLogs(ctx context.Context, signature solana.Signature) []string {
	logs, err := m.client.GetTransactionLogs(ctx, signature)
	if err != nil {
		m.logger.Debug("Program logs unavailable", zap.String("signature", signature.String()), zap.Error(err))
		return nil
	}
	return logs
}
