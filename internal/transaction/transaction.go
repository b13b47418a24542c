package transaction

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// CompiledMessage - версионированное сообщение, собранное для одной попытки dispatch.
// После истечения blockhash сообщение нужно собрать заново.
type CompiledMessage struct {
	Payer                solana.PublicKey
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	FetchedAt            time.Time
	Instructions         []solana.Instruction

	message solana.Message
}

// Message возвращает копию скомпилированного сообщения.
func (m *CompiledMessage) Message() solana.Message {
	return m.message
}

// Bytes сериализует сообщение в wire-формат (версия V0).
func (m *CompiledMessage) Bytes() ([]byte, error) {
	return m.message.MarshalBinary()
}

// Expired сообщает, старше ли blockhash заданного TTL.
func (m *CompiledMessage) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(m.FetchedAt) > ttl
}

// UnsignedTransaction возвращает новую транзакцию без подписей для передачи подписанту.
func (m *CompiledMessage) UnsignedTransaction() *solana.Transaction {
	return &solana.Transaction{Message: m.message}
}

// UnsignedWire сериализует транзакцию с нулевыми подписями-заглушками,
// как её ожидают внешние кошельки.
func (m *CompiledMessage) UnsignedWire() ([]byte, error) {
	tx := m.UnsignedTransaction()
	tx.Signatures = make([]solana.Signature, m.message.Header.NumRequiredSignatures)
	return tx.MarshalBinary()
}

// SignedTransaction принадлежит только тому вызову dispatch, который её создал.
type SignedTransaction struct {
	Message *CompiledMessage
	Tx      *solana.Transaction
}

var errNoSignature = errors.New("transaction carries no signature")

// ErrMessageMismatch - подписанная транзакция собрана не из того сообщения, которое отдали на подпись.
var ErrMessageMismatch = errors.New("signed message differs from the compiled message")

// NewSignedTransaction проверяет подписи и связывает транзакцию с сообщением.
// Подписант не может менять сообщение: blockhash, плательщик и инструкции должны совпасть байт в байт.
func NewSignedTransaction(msg *CompiledMessage, tx *solana.Transaction) (*SignedTransaction, error) {
	if tx == nil || len(tx.Signatures) == 0 {
		return nil, errNoSignature
	}
	want, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serialize compiled message: %w", err)
	}
	got, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize signed message: %w", err)
	}
	if !bytes.Equal(want, got) {
		return nil, ErrMessageMismatch
	}
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return nil, fmt.Errorf("expected %d signatures, got %d",
			tx.Message.Header.NumRequiredSignatures, len(tx.Signatures))
	}
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			return nil, fmt.Errorf("signature %d is empty: %w", i, errNoSignature)
		}
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}
	return &SignedTransaction{Message: msg, Tx: tx}, nil
}

// Signature возвращает подпись плательщика, она же идентификатор транзакции.
func (s *SignedTransaction) Signature() solana.Signature {
	return s.Tx.Signatures[0]
}

// Serialize кодирует транзакцию для sendRawTransaction.
func (s *SignedTransaction) Serialize() ([]byte, error) {
	return s.Tx.MarshalBinary()
}
