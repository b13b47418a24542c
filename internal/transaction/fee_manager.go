package transaction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	"github.com/rovshanmuradov/txdispatch/internal/types"
	"github.com/rovshanmuradov/txdispatch/internal/utils/binary"
)

// ComputeUnitLimit - лимит compute units для режимов priority fee и jito bundle.
const ComputeUnitLimit uint32 = 2_000_000

// FeeManager превращает режим и уровень комиссии в compute budget инструкции.
type FeeManager struct {
	logger *zap.Logger
}

func NewFeeManager(logger *zap.Logger) *FeeManager {
	return &FeeManager{logger: logger.Named("fee-manager")}
}

// Resolve никогда не возвращает ошибку: неизвестный уровень становится Medium,
// неизвестный режим - None, чтобы опечатка в конфиге не прерывала перевод.
func (fm *FeeManager) Resolve(mode types.TransactionMode, tier types.FeeTier) []solana.Instruction {
	if !tier.Known() {
		fm.logger.Warn("Unknown fee tier, falling back to medium", zap.String("tier", string(tier)))
		tier = types.FeeTierMedium
	}

	switch mode {
	case types.ModePriorityFee:
		return []solana.Instruction{
			computebudget.NewSetComputeUnitLimitInstruction(ComputeUnitLimit).Build(),
			computebudget.NewSetComputeUnitPriceInstruction(tier.MicroLamports()).Build(),
		}
	case types.ModeJitoBundle:
		// цена за CU не нужна: экономика бандла решается через tip вне транзакции
		return []solana.Instruction{
			computebudget.NewSetComputeUnitLimitInstruction(ComputeUnitLimit).Build(),
		}
	case types.ModeNone:
		return nil
	default:
		fm.logger.Warn("Unknown transaction mode, no budget instructions", zap.String("mode", string(mode)))
		return nil
	}
}

// IsComputeBudget сообщает, адресована ли инструкция программе ComputeBudget.
func IsComputeBudget(instr solana.Instruction) bool {
	return instr != nil && instr.ProgramID().Equals(computebudget.ProgramID)
}

// Дискриминаторы инструкций ComputeBudget.
const (
	budgetTagSetUnitLimit uint8 = 2
	budgetTagSetUnitPrice uint8 = 3
)

// BudgetSettings - значения, заданные compute budget инструкциями сообщения.
type BudgetSettings struct {
	UnitLimit uint32
	UnitPrice uint64
	HasLimit  bool
	HasPrice  bool
}

// ParseBudget разбирает compute budget инструкции; прочие инструкции пропускаются.
func ParseBudget(instructions []solana.Instruction) (BudgetSettings, error) {
	var out BudgetSettings
	for i, instr := range instructions {
		if !IsComputeBudget(instr) {
			continue
		}
		data, err := instr.Data()
		if err != nil {
			return out, fmt.Errorf("%w: budget instruction %d: %v", blockchain.ErrInvalidInstruction, i, err)
		}
		tag, err := binary.ReadUint8(data, 0)
		if err != nil {
			return out, fmt.Errorf("budget instruction %d: %w", i, err)
		}
		switch tag {
		case budgetTagSetUnitLimit:
			if out.UnitLimit, err = binary.ReadUint32LittleEndian(data, 1); err != nil {
				return out, fmt.Errorf("budget instruction %d: %w", i, err)
			}
			out.HasLimit = true
		case budgetTagSetUnitPrice:
			if out.UnitPrice, err = binary.ReadUint64LittleEndian(data, 1); err != nil {
				return out, fmt.Errorf("budget instruction %d: %w", i, err)
			}
			out.HasPrice = true
		}
	}
	return out, nil
}
