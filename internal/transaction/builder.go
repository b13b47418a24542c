package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
)

// BlockhashSource определяет интерфейс получения свежего blockhash.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context) (*blockchain.LatestBlockhash, error)
}

// Builder помогает конструировать транзакции
type Builder struct {
	client BlockhashSource
	logger *zap.Logger
	now    func() time.Time
}

// NewBuilder создает новый билдер транзакций
func NewBuilder(client BlockhashSource, logger *zap.Logger) *Builder {
	return &Builder{
		client: client,
		logger: logger.Named("tx-builder"),
		now:    time.Now,
	}
}

// Build собирает версионированное сообщение: сначала budget инструкции, затем
// инструкции вызывающего в исходном порядке. Blockhash запрашивается прямо перед компиляцией.
func (b *Builder) Build(
	ctx context.Context,
	payer solana.PublicKey,
	budget []solana.Instruction,
	instructions []solana.Instruction,
) (*CompiledMessage, error) {
	if payer.IsZero() {
		return nil, blockchain.ErrMissingPayer
	}
	if len(instructions) == 0 {
		return nil, fmt.Errorf("%w: no instructions supplied", blockchain.ErrInvalidInstruction)
	}

	ordered, err := orderInstructions(budget, instructions)
	if err != nil {
		return nil, err
	}

	latest, err := b.client.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(ordered, latest.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	tx.Message.SetVersion(solana.MessageVersionV0)

	if err := verifyBudgetFirst(tx.Message); err != nil {
		return nil, err
	}

	b.logger.Debug("Message compiled",
		zap.String("payer", payer.String()),
		zap.String("blockhash", latest.Blockhash.String()),
		zap.Uint64("last_valid_block_height", latest.LastValidBlockHeight),
		zap.Int("budget_instructions", len(budget)),
		zap.Int("instructions", len(ordered)))

	return &CompiledMessage{
		Payer:                payer,
		Blockhash:            latest.Blockhash,
		LastValidBlockHeight: latest.LastValidBlockHeight,
		FetchedAt:            b.now(),
		Instructions:         ordered,
		message:              tx.Message,
	}, nil
}

// orderInstructions копирует инструкции в итоговом порядке. Budget инструкции
// вызывающего поднимаются в начало, если резолвер ничего не добавил, и
// отклоняются как дубликаты в противном случае.
func orderInstructions(budget, instructions []solana.Instruction) ([]solana.Instruction, error) {
	for i, instr := range budget {
		if !IsComputeBudget(instr) {
			return nil, fmt.Errorf("%w: budget slot %d targets %s", blockchain.ErrInvalidInstruction, i, instr.ProgramID())
		}
	}

	var hoisted, business []solana.Instruction
	for i, instr := range instructions {
		if instr == nil {
			return nil, fmt.Errorf("%w: instruction %d is nil", blockchain.ErrInvalidInstruction, i)
		}
		if IsComputeBudget(instr) {
			if len(budget) > 0 {
				return nil, fmt.Errorf("%w: caller instruction %d duplicates the resolved fee policy",
					blockchain.ErrBudgetOrdering, i)
			}
			hoisted = append(hoisted, instr)
			continue
		}
		business = append(business, instr)
	}
	if len(business) == 0 {
		return nil, fmt.Errorf("%w: no business instructions", blockchain.ErrInvalidInstruction)
	}

	ordered := make([]solana.Instruction, 0, len(budget)+len(instructions))
	ordered = append(ordered, budget...)
	ordered = append(ordered, hoisted...)
	ordered = append(ordered, business...)
	return ordered, nil
}

// verifyBudgetFirst проверяет уже скомпилированное сообщение.
func verifyBudgetFirst(msg solana.Message) error {
	seenBusiness := false
	for i, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(msg.AccountKeys) {
			return fmt.Errorf("%w: program index %d out of range", blockchain.ErrInvalidInstruction, ci.ProgramIDIndex)
		}
		isBudget := msg.AccountKeys[ci.ProgramIDIndex].Equals(computebudget.ProgramID)
		if isBudget && seenBusiness {
			return fmt.Errorf("%w: instruction %d", blockchain.ErrBudgetOrdering, i)
		}
		if !isBudget {
			seenBusiness = true
		}
	}
	return nil
}
