// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/rovshanmuradov/txdispatch/internal/types"
)

// WalletConfig описывает бэкенд подписи.
type WalletConfig struct {
	Type            string `mapstructure:"type"`
	PrivateKey      string `mapstructure:"private_key"`
	WalletsFile     string `mapstructure:"wallets_file"`
	Name            string `mapstructure:"name"`
	ProviderURL     string `mapstructure:"provider_url"`
	ProviderToken   string `mapstructure:"provider_token"`
	ProviderAddress string `mapstructure:"provider_address"`
	Fused           bool   `mapstructure:"fused"`
	SessionURL      string `mapstructure:"session_url"`
	Cluster         string `mapstructure:"cluster"`
	AppName         string `mapstructure:"app_name"`
	AppURI          string `mapstructure:"app_uri"`
	AuthTimeoutMs   int    `mapstructure:"auth_timeout_ms"`
}

type Config struct {
	RPCList           []string     `mapstructure:"rpc_list"`
	RPCTimeoutMs      int          `mapstructure:"rpc_timeout_ms"`
	RPCRateLimit      float64      `mapstructure:"rpc_rate_limit"`
	ConfirmTimeoutMs  int          `mapstructure:"confirm_timeout_ms"`
	ConfirmIntervalMs int          `mapstructure:"confirm_interval_ms"`
	BlockhashTTLMs    int          `mapstructure:"blockhash_ttl_ms"`
	Commitment        string       `mapstructure:"commitment"`
	SkipPreflight     bool         `mapstructure:"skip_preflight"`
	FeeMode           string       `mapstructure:"fee_mode"`
	FeeTier           string       `mapstructure:"fee_tier"`
	Wallet            WalletConfig `mapstructure:"wallet"`
	LogFile           string       `mapstructure:"log_file"`
	DebugLogging      bool         `mapstructure:"debug_logging"`
	MetricsAddr       string       `mapstructure:"metrics_addr"`
	Workers           int          `mapstructure:"workers"`
}

const (
	DefaultRPCTimeoutMs      = 10_000
	DefaultConfirmTimeoutMs  = 60_000
	DefaultConfirmIntervalMs = 500
	DefaultBlockhashTTLMs    = 60_000
	DefaultAuthTimeoutMs     = 60_000
	DefaultCommitment        = "confirmed"
	DefaultFeeMode           = "priority_fee"
	DefaultFeeTier           = "medium"
	DefaultCluster           = "mainnet-beta"

	envPrefix = "TXDISPATCH"
)

var defaults = map[string]interface{}{
	"rpc_list":                []string{},
	"rpc_timeout_ms":          DefaultRPCTimeoutMs,
	"rpc_rate_limit":          0,
	"confirm_timeout_ms":      DefaultConfirmTimeoutMs,
	"confirm_interval_ms":     DefaultConfirmIntervalMs,
	"blockhash_ttl_ms":        DefaultBlockhashTTLMs,
	"commitment":              DefaultCommitment,
	"skip_preflight":          false,
	"fee_mode":                DefaultFeeMode,
	"fee_tier":                DefaultFeeTier,
	"log_file":                "txdispatch.log",
	"debug_logging":           false,
	"metrics_addr":            "",
	"workers":                 1,
	"wallet.type":             "local",
	"wallet.private_key":      "",
	"wallet.wallets_file":     "",
	"wallet.name":             "",
	"wallet.provider_url":     "",
	"wallet.provider_token":   "",
	"wallet.provider_address": "",
	"wallet.fused":            false,
	"wallet.session_url":      "",
	"wallet.cluster":          DefaultCluster,
	"wallet.app_name":         "txdispatch",
	"wallet.app_uri":          "",
	"wallet.auth_timeout_ms":  DefaultAuthTimeoutMs,
}

// LoadConfig читает файл (если path не пуст), затем переменные окружения TXDISPATCH_*.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	normalizeRPCList(&cfg)

	return &cfg, validateConfig(&cfg)
}

// normalizeRPCList принимает и список, и строку через запятую (TXDISPATCH_RPC_LIST).
func normalizeRPCList(cfg *Config) {
	var cleanRPCs []string
	for _, entry := range cfg.RPCList {
		for _, rpc := range strings.Split(entry, ",") {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
	}
	cfg.RPCList = cleanRPCs
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	switch cfg.Commitment {
	case "", "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid commitment %q", cfg.Commitment)
	}
	if _, err := types.ParseTransactionMode(cfg.FeeMode); err != nil {
		return err
	}
	return validateWallet(&cfg.Wallet)
}

func validateNumericParams(cfg *Config) error {
	if cfg.RPCTimeoutMs <= 0 {
		return errors.New("invalid rpc_timeout_ms")
	}
	if cfg.RPCRateLimit < 0 {
		return errors.New("invalid rpc_rate_limit")
	}
	if cfg.ConfirmTimeoutMs <= 0 {
		return errors.New("invalid confirm_timeout_ms")
	}
	if cfg.ConfirmIntervalMs <= 0 || cfg.ConfirmIntervalMs > cfg.ConfirmTimeoutMs {
		return errors.New("invalid confirm_interval_ms")
	}
	if cfg.BlockhashTTLMs <= 0 {
		return errors.New("invalid blockhash_ttl_ms")
	}
	if cfg.Wallet.AuthTimeoutMs < 0 {
		return errors.New("invalid wallet.auth_timeout_ms")
	}
	if cfg.Workers <= 0 {
		return errors.New("invalid workers")
	}
	return nil
}

func validateWallet(w *WalletConfig) error {
	switch w.Type {
	case "local":
		if w.PrivateKey == "" && (w.WalletsFile == "" || w.Name == "") {
			return errors.New("wallet.private_key or wallet.wallets_file with wallet.name is required for a local wallet")
		}
	case "provider":
		if err := validateURLWithCache(w.ProviderURL, "http"); err != nil {
			return fmt.Errorf("invalid wallet.provider_url: %w", err)
		}
		if w.ProviderAddress == "" {
			return errors.New("wallet.provider_address is required for a provider wallet")
		}
	case "mobile":
		if err := validateURLWithCache(w.SessionURL, "ws"); err != nil {
			return fmt.Errorf("invalid wallet.session_url: %w", err)
		}
	default:
		return fmt.Errorf("unknown wallet.type %q", w.Type)
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// DispatchConfig собирает режим и уровень комиссии для вызова dispatch.
func (c *Config) DispatchConfig() (types.DispatchConfig, error) {
	mode, err := types.ParseTransactionMode(c.FeeMode)
	if err != nil {
		return types.DispatchConfig{}, err
	}
	return types.DispatchConfig{Mode: mode, Tier: types.ParseFeeTier(c.FeeTier)}, nil
}

func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutMs) * time.Millisecond
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutMs) * time.Millisecond
}

func (c *Config) ConfirmInterval() time.Duration {
	return time.Duration(c.ConfirmIntervalMs) * time.Millisecond
}

func (c *Config) BlockhashTTL() time.Duration {
	return time.Duration(c.BlockhashTTLMs) * time.Millisecond
}

func (w *WalletConfig) AuthTimeout() time.Duration {
	return time.Duration(w.AuthTimeoutMs) * time.Millisecond
}
