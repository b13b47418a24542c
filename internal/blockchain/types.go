// internal/blockchain/types.go
package blockchain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TransactionOptions определяет опции для отправки транзакций.
type TransactionOptions struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// LatestBlockhash - blockhash вместе с высотой блока, после которой он недействителен.
type LatestBlockhash struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// Client определяет общий интерфейс для взаимодействия с блокчейном.
type Client interface {
	// Получить последний blockhash.
	GetLatestBlockhash(ctx context.Context) (*LatestBlockhash, error)
	// Отправить сериализованную транзакцию.
	SendRawTransaction(ctx context.Context, raw []byte, opts TransactionOptions) (solana.Signature, error)
	// Получить статусы подписей транзакций.
	GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	// Получить логи программ выполненной транзакции.
	GetTransactionLogs(ctx context.Context, signature solana.Signature) ([]string, error)
	// Получить баланс аккаунта.
	GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
}
