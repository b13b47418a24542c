// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain/solbc"
	soltx "github.com/rovshanmuradov/txdispatch/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/txdispatch/internal/config"
	"github.com/rovshanmuradov/txdispatch/internal/dispatch"
	"github.com/rovshanmuradov/txdispatch/internal/events"
	"github.com/rovshanmuradov/txdispatch/internal/task"
	txn "github.com/rovshanmuradov/txdispatch/internal/transaction"
	"github.com/rovshanmuradov/txdispatch/internal/types"
	"github.com/rovshanmuradov/txdispatch/internal/utils/metrics"
	"github.com/rovshanmuradov/txdispatch/internal/wallet"
)

// Runner собирает конвейер dispatch из конфигурации и выполняет переводы.
type Runner struct {
	logger     *zap.Logger
	config     *config.Config
	client     *solbc.Client
	dispatcher *dispatch.Dispatcher
	registry   *prometheus.Registry
	base       types.DispatchConfig
	commitment rpc.CommitmentType

	desc     wallet.Descriptor
	platform wallet.Platform
	// shared охраняет сессию провайдера; nil, если каждый dispatch получает свой signer.
	shared *wallet.Exclusive

	shutdown *ShutdownHandler
}

// NewRunner: принимает cfg и logger
func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	return newRunner(cfg, wallet.HostPlatform(), logger)
}

func newRunner(cfg *config.Config, platform wallet.Platform, logger *zap.Logger) (*Runner, error) {
	base, err := cfg.DispatchConfig()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	client, err := solbc.NewClient(cfg.RPCList, solbc.Options{
		RequestTimeout: cfg.RPCTimeout(),
		RateLimit:      cfg.RPCRateLimit,
		Metrics:        collector,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create rpc client: %w", err)
	}

	txCfg := soltx.Config{
		ConfirmTimeout: cfg.ConfirmTimeout(),
		PollInterval:   cfg.ConfirmInterval(),
		BlockhashTTL:   cfg.BlockhashTTL(),
		SkipPreflight:  cfg.SkipPreflight,
	}
	txMetrics := soltx.NewMetrics(registry)

	dispatcher := dispatch.NewDispatcher(dispatch.Components{
		Fees:      txn.NewFeeManager(logger),
		Builder:   txn.NewBuilder(client, logger),
		Submitter: soltx.NewManager(client, logger, txCfg, txMetrics),
		Confirmer: soltx.NewMonitor(client, logger, txCfg, txMetrics),
		Balances:  client,
		Metrics:   collector,
	}, logger)

	desc, err := descriptorFromConfig(&cfg.Wallet, logger)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		logger:     logger.Named("runner"),
		config:     cfg,
		client:     client,
		dispatcher: dispatcher,
		registry:   registry,
		base:       base,
		commitment: rpc.CommitmentType(cfg.Commitment),
		desc:       desc,
		platform:   platform,
		shutdown:   NewShutdownHandler(logger, 10*time.Second),
	}

	if desc.Type == wallet.ProviderTypeRequest {
		signer, err := wallet.Select(desc, platform, logger)
		if err != nil {
			return nil, err
		}
		r.shared = wallet.NewExclusive(signer)
	}
	return r, nil
}

func descriptorFromConfig(w *config.WalletConfig, logger *zap.Logger) (wallet.Descriptor, error) {
	desc := wallet.Descriptor{Type: wallet.ProviderType(w.Type)}
	switch desc.Type {
	case wallet.ProviderTypeLocal:
		desc.PrivateKey = w.PrivateKey
		if desc.PrivateKey == "" {
			wallets, err := wallet.LoadWallets(w.WalletsFile)
			if err != nil {
				return desc, fmt.Errorf("load wallets: %w", err)
			}
			named, ok := wallets[w.Name]
			if !ok {
				return desc, fmt.Errorf("wallet %q not found in %s", w.Name, w.WalletsFile)
			}
			desc.PrivateKey = named.PrivateKey.String()
		}
	case wallet.ProviderTypeRequest:
		address, err := solana.PublicKeyFromBase58(w.ProviderAddress)
		if err != nil {
			return desc, fmt.Errorf("invalid wallet.provider_address: %w", err)
		}
		desc.Provider = wallet.NewHTTPProvider(w.ProviderURL, w.ProviderToken, address, w.AuthTimeout(), logger)
		desc.Fused = w.Fused
	case wallet.ProviderTypeMobile:
		desc.Dial = wallet.WSDialer(w.SessionURL)
		desc.Cluster = w.Cluster
		desc.Identity = wallet.AppIdentity{Name: w.AppName, URI: w.AppURI}
		desc.AuthTimeout = w.AuthTimeout()
	default:
		return desc, fmt.Errorf("unknown wallet type %q", w.Type)
	}
	return desc, nil
}

// withSigner передает fn signer для одного dispatch. Mobile и local signer создаются заново,
// сессия провайдера используется по очереди.
func (r *Runner) withSigner(ctx context.Context, fn func(wallet.Signer) error) error {
	if r.shared != nil {
		return r.shared.Do(ctx, fn)
	}
	signer, err := wallet.Select(r.desc, r.platform, r.logger)
	if err != nil {
		return err
	}
	return fn(signer)
}

// Transfer отправляет SOL с авторизованного аккаунта кошелька.
func (r *Runner) Transfer(ctx context.Context, t *task.Transfer, sink events.Sink) (*dispatch.Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	commitment := t.Commitment
	if commitment == "" {
		commitment = r.commitment
	}
	req := dispatch.TransactionRequest{
		Compose: func(from solana.PublicKey) ([]solana.Instruction, error) {
			return []solana.Instruction{system.NewTransferInstruction(t.Lamports, from, t.Recipient).Build()}, nil
		},
		Commitment: commitment,
	}

	var res *dispatch.Result
	err := r.withSigner(ctx, func(signer wallet.Signer) error {
		var err error
		res, err = r.dispatcher.Dispatch(ctx, req, t.DispatchConfig(r.base), signer, sink)
		return err
	})
	return res, err
}

// Balance возвращает баланс аккаунта на уровне commitment из конфигурации.
func (r *Runner) Balance(ctx context.Context, owner solana.PublicKey) (*dispatch.Balance, error) {
	return r.dispatcher.Balance(ctx, owner, r.commitment)
}

// ServeMetrics starts the prometheus endpoint, registers it for shutdown and returns the bound address.
func (r *Runner) ServeMetrics(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	r.logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))

	r.shutdown.AddFunc("metrics", func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	return ln.Addr().String(), nil
}

// Close releases everything registered for shutdown.
func (r *Runner) Close(ctx context.Context) error {
	return r.shutdown.Shutdown(ctx)
}
