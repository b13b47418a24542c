// internal/dispatch/balance.go
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const lamportsDecimals = 9

// BalanceSource reads native balances.
type BalanceSource interface {
	GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
}

// Balance is a native SOL balance.
type Balance struct {
	Owner    solana.PublicKey
	Lamports uint64
	SOL      decimal.Decimal
}

// LamportsToSOL converts without float rounding.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -lamportsDecimals)
}

// Balance fetches the owner's SOL balance, for example to explain an insufficient-funds failure.
func (d *Dispatcher) Balance(ctx context.Context, owner solana.PublicKey, commitment rpc.CommitmentType) (*Balance, error) {
	if d.balances == nil {
		return nil, errors.New("no balance source configured")
	}
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	lamports, err := d.balances.GetBalance(ctx, owner, commitment)
	if err != nil {
		return nil, fmt.Errorf("get balance of %s: %w", owner, err)
	}
	d.logger.Debug("Balance fetched", zap.String("owner", owner.String()), zap.Uint64("lamports", lamports))
	return &Balance{Owner: owner, Lamports: lamports, SOL: LamportsToSOL(lamports)}, nil
}
