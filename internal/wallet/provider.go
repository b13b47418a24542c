package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	"github.com/rovshanmuradov/txdispatch/internal/transaction"
)

// Provider request methods.
const (
	MethodSignTransaction        = "signTransaction"
	MethodSignAllTransactions    = "signAllTransactions"
	MethodSignAndSendTransaction = "signAndSendTransaction"
	MethodSignMessage            = "signMessage"
)

// ProviderRequest is the generic request relayed to a remote custodial session.
type ProviderRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// ProviderResponse carries whichever fields the method produces.
type ProviderResponse struct {
	Signature          string   `json:"signature,omitempty"`
	SignedTransaction  string   `json:"signedTransaction,omitempty"`
	SignedTransactions []string `json:"signedTransactions,omitempty"`
}

// Provider is a remote session that owns custody and user-intent confirmation.
type Provider interface {
	// PublicKey returns the account the session signs for.
	PublicKey() solana.PublicKey
	Request(ctx context.Context, req ProviderRequest) (*ProviderResponse, error)
}

type transactionParams struct {
	Transaction string `json:"transaction"`
	Encoding    string `json:"encoding"`
}

type transactionsParams struct {
	Transactions []string `json:"transactions"`
	Encoding     string   `json:"encoding"`
}

type messageParams struct {
	Message  string `json:"message"`
	Encoding string `json:"encoding"`
}

var errEmptyPayload = errors.New("provider returned no signature")

// ProviderRequestSigner only relays. It fails closed when the provider omits a signature.
type ProviderRequestSigner struct {
	provider Provider
	fused    bool
	logger   *zap.Logger
}

func NewProviderRequestSigner(provider Provider, fused bool, logger *zap.Logger) *ProviderRequestSigner {
	return &ProviderRequestSigner{
		provider: provider,
		fused:    fused,
		logger:   logger.Named("provider-signer"),
	}
}

func (s *ProviderRequestSigner) Kind() Kind { return KindProviderRequest }

func (s *ProviderRequestSigner) Fused() bool { return s.fused }

func (s *ProviderRequestSigner) Authorize(_ context.Context) (solana.PublicKey, error) {
	pk := s.provider.PublicKey()
	if pk.IsZero() {
		return solana.PublicKey{}, s.authErr(errors.New("provider session has no account"))
	}
	return pk, nil
}

func (s *ProviderRequestSigner) Sign(ctx context.Context, msg *transaction.CompiledMessage) (*transaction.SignedTransaction, error) {
	wire, err := msg.UnsignedWire()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}

	resp, err := s.provider.Request(ctx, ProviderRequest{
		Method: MethodSignTransaction,
		Params: transactionParams{Transaction: base64.StdEncoding.EncodeToString(wire), Encoding: "base64"},
	})
	if err != nil {
		return nil, s.requestErr(err)
	}
	if resp == nil || resp.SignedTransaction == "" {
		return nil, s.serErr("missing signedTransaction", errEmptyPayload)
	}
	return s.decodeSigned(msg, resp.SignedTransaction)
}

// SignAll signs several messages in one provider round trip.
func (s *ProviderRequestSigner) SignAll(ctx context.Context, msgs []*transaction.CompiledMessage) ([]*transaction.SignedTransaction, error) {
	encoded := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		wire, err := msg.UnsignedWire()
		if err != nil {
			return nil, fmt.Errorf("serialize message: %w", err)
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(wire))
	}

	resp, err := s.provider.Request(ctx, ProviderRequest{
		Method: MethodSignAllTransactions,
		Params: transactionsParams{Transactions: encoded, Encoding: "base64"},
	})
	if err != nil {
		return nil, s.requestErr(err)
	}
	if resp == nil || len(resp.SignedTransactions) != len(msgs) {
		return nil, s.serErr(fmt.Sprintf("expected %d signed transactions", len(msgs)), errEmptyPayload)
	}

	out := make([]*transaction.SignedTransaction, 0, len(msgs))
	for i, payload := range resp.SignedTransactions {
		signed, err := s.decodeSigned(msgs[i], payload)
		if err != nil {
			return nil, err
		}
		out = append(out, signed)
	}
	return out, nil
}

// SignAndSend lets the provider broadcast. The submitter is not used.
func (s *ProviderRequestSigner) SignAndSend(ctx context.Context, msg *transaction.CompiledMessage, _ Submitter) (solana.Signature, error) {
	wire, err := msg.UnsignedWire()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize message: %w", err)
	}

	resp, err := s.provider.Request(ctx, ProviderRequest{
		Method: MethodSignAndSendTransaction,
		Params: transactionParams{Transaction: base64.StdEncoding.EncodeToString(wire), Encoding: "base64"},
	})
	if err != nil {
		return solana.Signature{}, s.requestErr(err)
	}
	return s.parseSignature(resp)
}

// SignMessage asks the provider to sign arbitrary bytes.
func (s *ProviderRequestSigner) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	resp, err := s.provider.Request(ctx, ProviderRequest{
		Method: MethodSignMessage,
		Params: messageParams{Message: base64.StdEncoding.EncodeToString(message), Encoding: "base64"},
	})
	if err != nil {
		return solana.Signature{}, s.requestErr(err)
	}
	sig, err := s.parseSignature(resp)
	if err != nil {
		return solana.Signature{}, err
	}
	if !sig.Verify(s.provider.PublicKey(), message) {
		return solana.Signature{}, s.serErr("message signature does not verify", nil)
	}
	return sig, nil
}

func (s *ProviderRequestSigner) parseSignature(resp *ProviderResponse) (solana.Signature, error) {
	if resp == nil || resp.Signature == "" {
		return solana.Signature{}, s.serErr("missing signature", errEmptyPayload)
	}
	sig, err := solana.SignatureFromBase58(resp.Signature)
	if err != nil {
		return solana.Signature{}, s.serErr("malformed signature", err)
	}
	if sig.IsZero() {
		return solana.Signature{}, s.serErr("zero signature", errEmptyPayload)
	}
	return sig, nil
}

func (s *ProviderRequestSigner) decodeSigned(msg *transaction.CompiledMessage, payload string) (*transaction.SignedTransaction, error) {
	tx, err := decodeTransaction(payload)
	if err != nil {
		return nil, s.serErr("undecodable signed transaction", err)
	}
	signed, err := transaction.NewSignedTransaction(msg, tx)
	if err != nil {
		return nil, s.serErr("invalid signed transaction", err)
	}
	return signed, nil
}

// requestErr classifies a failed provider round trip. Only an explicit rejection
// is an authorization failure. A transport failure stays retryable.
func (s *ProviderRequestSigner) requestErr(err error) error {
	var provErr *ProviderError
	switch {
	case errors.As(err, &provErr):
		return s.authErr(err)
	case errors.Is(err, ErrMalformedResponse):
		return s.serErr("malformed provider response", err)
	default:
		s.logger.Warn("Provider unreachable", zap.Error(err))
		return &blockchain.SubmissionError{Err: fmt.Errorf("provider unreachable: %w", err)}
	}
}

func (s *ProviderRequestSigner) authErr(err error) error {
	s.logger.Warn("Provider request rejected", zap.Error(err))
	return &blockchain.AuthorizationError{Backend: s.Kind().String(), Err: err}
}

func (s *ProviderRequestSigner) serErr(reason string, err error) error {
	return &blockchain.SerializationError{Backend: s.Kind().String(), Reason: reason, Err: err}
}

// decodeTransaction decodes a base64 wire transaction (legacy or versioned).
func decodeTransaction(payload string) (*solana.Transaction, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return decodeTransactionBytes(data)
}

func decodeTransactionBytes(data []byte) (*solana.Transaction, error) {
	if len(data) == 0 {
		return nil, errEmptyPayload
	}
	return solana.TransactionFromDecoder(bin.NewBinDecoder(data))
}

var _ Signer = (*ProviderRequestSigner)(nil)
