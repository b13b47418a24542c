package transaction

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	txn "github.com/rovshanmuradov/txdispatch/internal/transaction"
)

// MockRPC реализует Sender и StatusSource
type MockRPC struct {
	mock.Mock
}

func (m *MockRPC) SendRawTransaction(ctx context.Context, raw []byte, opts blockchain.TransactionOptions) (solana.Signature, error) {
	args := m.Called(ctx, raw, opts)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *MockRPC) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	args := m.Called(ctx, signatures)
	if v := args.Get(0); v != nil {
		return v.(*rpc.GetSignatureStatusesResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRPC) GetTransactionLogs(ctx context.Context, signature solana.Signature) ([]string, error) {
	args := m.Called(ctx, signature)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

type fixedBlockhash struct{}

func (fixedBlockhash) GetLatestBlockhash(context.Context) (*blockchain.LatestBlockhash, error) {
	return &blockchain.LatestBlockhash{
		Blockhash:            solana.MustHashFromBase58("4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZAMdL4VZHirAn"),
		LastValidBlockHeight: 100,
	}, nil
}

// signedFixture собирает и подписывает перевод локальным ключом.
func signedFixture(t *testing.T) *txn.SignedTransaction {
	t.Helper()
	key := solana.NewWallet().PrivateKey
	payer := key.PublicKey()

	msg, err := txn.NewBuilder(fixedBlockhash{}, zap.NewNop()).Build(context.Background(), payer, nil,
		[]solana.Instruction{system.NewTransferInstruction(1, payer, solana.NewWallet().PublicKey()).Build()})
	require.NoError(t, err)

	tx := msg.UnsignedTransaction()
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(payer) {
			return &key
		}
		return nil
	})
	require.NoError(t, err)

	signed, err := txn.NewSignedTransaction(msg, tx)
	require.NoError(t, err)
	return signed
}

func statusResult(status *rpc.SignatureStatusesResult) *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{status}}
}
