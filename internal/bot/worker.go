// internal/bot/worker.go
package bot

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/txdispatch/internal/dispatch"
	"github.com/rovshanmuradov/txdispatch/internal/events"
	"github.com/rovshanmuradov/txdispatch/internal/task"
	"github.com/rovshanmuradov/txdispatch/internal/utils/logger"
)

// BatchResult - итог одного перевода из пакета.
type BatchResult struct {
	Transfer *task.Transfer
	Result   *dispatch.Result
	Err      error
}

// SinkFactory выдает приемник событий для каждого перевода.
type SinkFactory func(t *task.Transfer) events.Sink

// RunBatch выполняет переводы с ограничением параллелизма cfg.Workers.
// Ошибка одного перевода не останавливает остальные; результаты идут в порядке входа.
func (r *Runner) RunBatch(ctx context.Context, transfers []*task.Transfer, sinks SinkFactory) []BatchResult {
	results := make([]BatchResult, len(transfers))

	workers := r.config.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	r.logger.Info("Starting batch", zap.Int("transfers", len(transfers)), zap.Int("workers", workers))
	defer logger.TrackPerformance(r.logger, "batch")()
	start := time.Now()

	for i, t := range transfers {
		results[i].Transfer = t
		g.Go(func() error {
			log := r.logger.With(zap.Int("transfer_id", t.ID), zap.String("transfer", t.Name))
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}

			var sink events.Sink
			if sinks != nil {
				sink = sinks(t)
			}
			res, err := r.Transfer(gctx, t, sink)
			results[i].Result = res
			results[i].Err = err
			if err != nil {
				log.Warn("Transfer failed", zap.Error(err))
				return nil
			}
			log.Info("Transfer finished",
				zap.String("signature", res.Signature.String()),
				zap.String("state", res.State.String()))
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	r.logger.Info("Batch finished",
		zap.Int("succeeded", len(transfers)-failed),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)))
	return results
}
