// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	"github.com/rovshanmuradov/txdispatch/internal/transaction"
)

// Wallet представляет кошелёк Solana.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet создаёт новый кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// LoadWallets загружает кошельки из CSV-файла с колонками: [Name, PrivateKeyBase58].
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		w, err := NewWallet(record[1])
		if err != nil {
			continue
		}
		wallets[record[0]] = w
	}
	return wallets, nil
}

// SignTransaction подписывает транзакцию с помощью приватного ключа кошелька.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// String возвращает строковое представление кошелька (его публичный ключ).
func (w *Wallet) String() string {
	return w.PublicKey.String()
}

// LocalKeypairSigner подписывает в процессе. Только для доверенных и тестовых окружений.
type LocalKeypairSigner struct {
	wallet *Wallet
	logger *zap.Logger
}

// NewLocalKeypairSigner оборачивает кошелек в Signer.
func NewLocalKeypairSigner(w *Wallet, logger *zap.Logger) *LocalKeypairSigner {
	return &LocalKeypairSigner{wallet: w, logger: logger.Named("local-signer")}
}

func (s *LocalKeypairSigner) Kind() Kind { return KindLocalKeypair }

func (s *LocalKeypairSigner) Fused() bool { return false }

func (s *LocalKeypairSigner) Authorize(_ context.Context) (solana.PublicKey, error) {
	return s.wallet.PublicKey, nil
}

func (s *LocalKeypairSigner) Sign(_ context.Context, msg *transaction.CompiledMessage) (*transaction.SignedTransaction, error) {
	tx := msg.UnsignedTransaction()
	if err := s.wallet.SignTransaction(tx); err != nil {
		return nil, &blockchain.SerializationError{Backend: s.Kind().String(), Reason: "local signing failed", Err: err}
	}
	signed, err := transaction.NewSignedTransaction(msg, tx)
	if err != nil {
		return nil, &blockchain.SerializationError{Backend: s.Kind().String(), Reason: "invalid signed transaction", Err: err}
	}
	s.logger.Debug("Transaction signed", zap.String("signature", signed.Signature().String()))
	return signed, nil
}

func (s *LocalKeypairSigner) SignAndSend(ctx context.Context, msg *transaction.CompiledMessage, submitter Submitter) (solana.Signature, error) {
	signed, err := s.Sign(ctx, msg)
	if err != nil {
		return solana.Signature{}, err
	}
	return submitter.Submit(ctx, signed)
}

var _ Signer = (*LocalKeypairSigner)(nil)
