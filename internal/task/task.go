// =============================================
// File: internal/task/task.go
// =============================================
package task

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/txdispatch/internal/types"
)

// LamportsPerSOL - количество lamports в одном SOL.
const LamportsPerSOL = 1_000_000_000

var lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)

// Transfer - одна задача пакетной отправки SOL.
type Transfer struct {
	ID        int
	Name      string
	Recipient solana.PublicKey
	Lamports  uint64
	// Пустые поля берутся из общей конфигурации.
	FeeMode    types.TransactionMode
	FeeTier    types.FeeTier
	Commitment rpc.CommitmentType
	CreatedAt  time.Time
}

// NewTransfer создает задачу перевода с суммой в SOL.
func NewTransfer(name string, recipient solana.PublicKey, amountSol decimal.Decimal) (*Transfer, error) {
	lamports, err := SolToLamports(amountSol)
	if err != nil {
		return nil, err
	}
	t := &Transfer{
		Name:      name,
		Recipient: recipient,
		Lamports:  lamports,
		CreatedAt: time.Now(),
	}
	return t, t.Validate()
}

// Validate checks if the transfer has valid parameters
func (t *Transfer) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("transfer name cannot be empty")
	}
	if t.Recipient.IsZero() {
		return fmt.Errorf("recipient cannot be empty")
	}
	if t.Lamports == 0 {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}

// DispatchConfig накладывает переопределения задачи на общую конфигурацию.
func (t *Transfer) DispatchConfig(base types.DispatchConfig) types.DispatchConfig {
	if t.FeeMode != "" {
		base.Mode = t.FeeMode
	}
	if t.FeeTier != "" {
		base.Tier = t.FeeTier
	}
	return base
}

// SolToLamports переводит сумму в SOL в lamports без потери точности.
// Дробная часть меньше одного lamport считается ошибкой.
func SolToLamports(amount decimal.Decimal) (uint64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}
	lamports := amount.Mul(lamportsPerSOL)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, fmt.Errorf("amount %s SOL is finer than one lamport", amount)
	}
	if !lamports.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s SOL overflows", amount)
	}
	return lamports.BigInt().Uint64(), nil
}
