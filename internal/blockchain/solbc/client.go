package solbc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	"github.com/rovshanmuradov/txdispatch/internal/utils/metrics"
)

const (
	DefaultRequestTimeout = 10 * time.Second
)

// Client – тонкий адаптер для взаимодействия с блокчейном Solana через solana-go.
// Чтения переключаются на следующий узел пула при сетевой ошибке, отправка - никогда.
type Client struct {
	pool    *nodePool
	logger  *zap.Logger
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Collector
}

// Options задает таймаут и ограничение частоты запросов к RPC.
type Options struct {
	// RequestTimeout ограничивает каждый отдельный RPC вызов.
	RequestTimeout time.Duration
	// RateLimit - максимальное число запросов в секунду; 0 отключает ограничение.
	RateLimit float64
	Metrics   *metrics.Collector
}

// NewClient создаёт новый клиент, принимая список RPC URL и логгер через dependency injection.
func NewClient(rpcURLs []string, opts Options, logger *zap.Logger) (*Client, error) {
	pool, err := newNodePool(rpcURLs)
	if err != nil {
		return nil, err
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Client{
		pool:    pool,
		logger:  logger.Named("solbc-client"),
		limiter: limiter,
		timeout: opts.RequestTimeout,
		metrics: opts.Metrics,
	}, nil
}

// do выполняет один вызов на узле: ждет токен лимитера, ограничивает таймаутом, пишет метрики.
func (c *Client) do(ctx context.Context, node *rpcNode, method string, fn func(context.Context, *rpc.Client) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx, node.client)
	elapsed := time.Since(start)

	node.updateMetrics(err == nil, elapsed)
	c.metrics.RecordRPCLatency(method, node.url, elapsed)
	if err != nil {
		return &NodeError{Err: err, NodeURL: node.url, Method: method}
	}
	return nil
}

// read выполняет идемпотентный вызов, переходя к следующему узлу при транспортной ошибке.
func (c *Client) read(ctx context.Context, method string, fn func(context.Context, *rpc.Client) error) error {
	var lastErr error
	for _, node := range c.pool.candidates() {
		err := c.do(ctx, node, method, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !isTransportError(err) {
			return err
		}
		node.setActive(false)
		ok, failed, latency := node.stats()
		c.logger.Warn("RPC node unavailable, switching",
			zap.String("method", method),
			zap.String("node", node.url),
			zap.Uint64("success", ok),
			zap.Uint64("errors", failed),
			zap.Duration("avg_latency", latency),
			zap.Error(err))
	}
	return lastErr
}

// isTransportError отделяет сетевые сбои от ответов узла с ошибкой.
func isTransportError(err error) bool {
	var rpcErr *jsonrpc.RPCError
	return !errors.As(err, &rpcErr) && !errors.Is(err, rpc.ErrNotFound)
}

// GetLatestBlockhash получает последний blockhash. Результат не кэшируется.
func (c *Client) GetLatestBlockhash(ctx context.Context) (*blockchain.LatestBlockhash, error) {
	var result *rpc.GetLatestBlockhashResult
	err := c.read(ctx, "getLatestBlockhash", func(ctx context.Context, r *rpc.Client) error {
		var err error
		result, err = r.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		return err
	})
	if err != nil {
		c.logger.Error("GetLatestBlockhash error", zap.Error(err))
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("empty getLatestBlockhash response")
	}
	return &blockchain.LatestBlockhash{
		Blockhash:            result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
	}, nil
}

// SendRawTransaction отправляет уже сериализованную транзакцию одним вызовом, без повторов.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte, opts blockchain.TransactionOptions) (solana.Signature, error) {
	node := c.pool.primary()

	var sig solana.Signature
	err := c.do(ctx, node, "sendTransaction", func(ctx context.Context, r *rpc.Client) error {
		var err error
		sig, err = r.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: opts.PreflightCommitment,
		})
		return err
	})
	if err != nil {
		if ctx.Err() == nil && isTransportError(err) {
			node.setActive(false)
		}
		c.logger.Error("SendRawTransaction error", zap.Error(err))
		return solana.Signature{}, err
	}
	return sig, nil
}

// GetSignatureStatuses получает статусы транзакций.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	var result *rpc.GetSignatureStatusesResult
	err := c.read(ctx, "getSignatureStatuses", func(ctx context.Context, r *rpc.Client) error {
		var err error
		result, err = r.GetSignatureStatuses(ctx, false, signatures...)
		return err
	})
	if err != nil {
		c.logger.Debug("GetSignatureStatuses error", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// GetTransactionLogs возвращает логи программ из meta транзакции.
func (c *Client) GetTransactionLogs(ctx context.Context, signature solana.Signature) ([]string, error) {
	maxVersion := uint64(0)
	var result *rpc.GetTransactionResult
	err := c.read(ctx, "getTransaction", func(ctx context.Context, r *rpc.Client) error {
		var err error
		result, err = r.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		return err
	})
	if err != nil {
		c.logger.Debug("GetTransaction error",
			zap.String("signature", signature.String()),
			zap.Error(err))
		return nil, err
	}
	if result == nil || result.Meta == nil {
		return nil, nil
	}
	return result.Meta.LogMessages, nil
}

// GetBalance получает баланс аккаунта.
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	var result *rpc.GetBalanceResult
	err := c.read(ctx, "getBalance", func(ctx context.Context, r *rpc.Client) error {
		var err error
		result, err = r.GetBalance(ctx, pubkey, commitment)
		return err
	})
	if err != nil {
		c.logger.Error("GetBalance error", zap.Error(err))
		return 0, err
	}
	return result.Value, nil
}

// Гарантируем, что Client реализует интерфейс blockchain.Client.
var _ blockchain.Client = (*Client)(nil)
