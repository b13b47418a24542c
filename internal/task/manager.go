package task

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rovshanmuradov/txdispatch/internal/types"
)

// Manager loads and parses Transfer definitions.
type Manager struct {
	logger *zap.Logger
}

// TransferFile represents the structure of transfers YAML file
type TransferFile struct {
	Transfers []struct {
		Name       string `yaml:"name"`
		Recipient  string `yaml:"recipient"`
		AmountSol  string `yaml:"amount_sol"`
		FeeMode    string `yaml:"fee_mode"`
		FeeTier    string `yaml:"fee_tier"`
		Commitment string `yaml:"commitment"`
	} `yaml:"transfers"`
}

// NewManager constructs a Manager with the given logger.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger.Named("task-manager")}
}

func parseCommitment(s string) (rpc.CommitmentType, error) {
	switch c := rpc.CommitmentType(s); c {
	case "", rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported commitment: %q", s)
	}
}

// LoadTransfers reads transfers from YAML file. Invalid entries are skipped with a warning.
func (m *Manager) LoadTransfers(path string) ([]*Transfer, error) {
	if filepath.IsAbs(path) {
		m.logger.Debug("Using absolute path for transfers file", zap.String("path", path))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file TransferFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Transfers) == 0 {
		return nil, fmt.Errorf("no transfers found in file")
	}

	transfers := make([]*Transfer, 0, len(file.Transfers))
	for i, entry := range file.Transfers {
		skip := func(err error) {
			m.logger.Warn("Skipping invalid transfer", zap.String("name", entry.Name), zap.Error(err))
		}

		recipient, err := solana.PublicKeyFromBase58(entry.Recipient)
		if err != nil {
			skip(fmt.Errorf("recipient: %w", err))
			continue
		}
		amount, err := decimal.NewFromString(entry.AmountSol)
		if err != nil {
			skip(fmt.Errorf("amount_sol: %w", err))
			continue
		}
		lamports, err := SolToLamports(amount)
		if err != nil {
			skip(err)
			continue
		}
		commitment, err := parseCommitment(entry.Commitment)
		if err != nil {
			skip(err)
			continue
		}

		t := &Transfer{
			ID:         i + 1,
			Name:       entry.Name,
			Recipient:  recipient,
			Lamports:   lamports,
			Commitment: commitment,
			CreatedAt:  time.Now(),
		}
		if entry.FeeMode != "" {
			mode, err := types.ParseTransactionMode(entry.FeeMode)
			if err != nil {
				skip(err)
				continue
			}
			t.FeeMode = mode
		}
		if entry.FeeTier != "" {
			t.FeeTier = types.ParseFeeTier(entry.FeeTier)
		}
		if err := t.Validate(); err != nil {
			skip(err)
			continue
		}
		transfers = append(transfers, t)
	}

	if len(transfers) == 0 {
		return nil, fmt.Errorf("no valid transfers loaded")
	}

	m.logger.Info("Loaded transfers", zap.Int("count", len(transfers)))
	return transfers, nil
}
