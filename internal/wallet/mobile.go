package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	"github.com/rovshanmuradov/txdispatch/internal/transaction"
)

const DefaultAuthTimeout = 60 * time.Second

// AppIdentity identifies the dApp to the wallet during authorization.
type AppIdentity struct {
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
	Icon string `json:"icon,omitempty"`
}

// AuthorizeRequest is sent when the out-of-process session opens.
type AuthorizeRequest struct {
	Cluster  string      `json:"cluster"`
	Identity AppIdentity `json:"identity"`
}

// SessionAccount is an account granted by the wallet. Address is the raw 32-byte key.
type SessionAccount struct {
	Address []byte `json:"address"`
	Label   string `json:"label,omitempty"`
}

type AuthorizeResult struct {
	Accounts  []SessionAccount `json:"accounts"`
	AuthToken string           `json:"auth_token,omitempty"`
}

// SignTransactionsRequest carries unsigned wire transactions.
type SignTransactionsRequest struct {
	Transactions [][]byte `json:"payloads"`
}

type SignTransactionsResult struct {
	SignedTransactions [][]byte `json:"signed_payloads"`
}

// MobileSession is the out-of-process wallet session.
type MobileSession interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)
	SignTransactions(ctx context.Context, req SignTransactionsRequest) (*SignTransactionsResult, error)
	Close() error
}

// SessionDialer opens a new session. Called once per dispatch.
type SessionDialer func(ctx context.Context) (MobileSession, error)

// SessionState tracks one authorize-then-sign handshake.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateAuthorizing
	StateAuthorized
	StateSigning
	StateSigned
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthorized:
		return "authorized"
	case StateSigning:
		return "signing"
	case StateSigned:
		return "signed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MobileConfig configures a MobileSessionSigner.
type MobileConfig struct {
	Dial        SessionDialer
	Platform    Platform
	Cluster     string
	Identity    AppIdentity
	AuthTimeout time.Duration
}

// MobileSessionSigner is single-use: one authorization and one signature per dispatch.
// It is not safe for concurrent use.
type MobileSessionSigner struct {
	cfg    MobileConfig
	logger *zap.Logger

	state   SessionState
	spent   bool
	session MobileSession
	account solana.PublicKey
}

func NewMobileSessionSigner(cfg MobileConfig, logger *zap.Logger) *MobileSessionSigner {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	return &MobileSessionSigner{
		cfg:    cfg,
		logger: logger.Named("mobile-signer"),
	}
}

func (s *MobileSessionSigner) Kind() Kind { return KindMobileSession }

func (s *MobileSessionSigner) Fused() bool { return false }

// State returns the current handshake state.
func (s *MobileSessionSigner) State() SessionState { return s.state }

// Authorize opens the session and returns the first granted account.
func (s *MobileSessionSigner) Authorize(ctx context.Context) (solana.PublicKey, error) {
	if s.cfg.Platform != PlatformAndroid {
		return solana.PublicKey{}, s.authErr(fmt.Errorf("%w: requires %s, host is %s",
			blockchain.ErrPlatformMismatch, PlatformAndroid, s.cfg.Platform))
	}
	if s.spent || s.state != StateDisconnected {
		return solana.PublicKey{}, s.authErr(blockchain.ErrSignerSpent)
	}
	if s.cfg.Dial == nil {
		return solana.PublicKey{}, s.authErr(errors.New("no session dialer configured"))
	}

	s.state = StateAuthorizing
	s.spent = true

	authCtx, cancel := context.WithTimeout(ctx, s.cfg.AuthTimeout)
	defer cancel()

	session, err := s.cfg.Dial(authCtx)
	if err != nil {
		s.state = StateDisconnected
		return solana.PublicKey{}, s.authErr(fmt.Errorf("open session: %w", err))
	}
	s.session = session

	res, err := session.Authorize(authCtx, AuthorizeRequest{Cluster: s.cfg.Cluster, Identity: s.cfg.Identity})
	if err != nil {
		s.close()
		if errors.Is(authCtx.Err(), context.DeadlineExceeded) {
			return solana.PublicKey{}, s.authErr(fmt.Errorf("authorization timed out after %s: %w", s.cfg.AuthTimeout, err))
		}
		return solana.PublicKey{}, s.authErr(err)
	}
	if res == nil || len(res.Accounts) == 0 {
		s.close()
		return solana.PublicKey{}, s.authErr(errors.New("wallet granted no accounts"))
	}
	if len(res.Accounts[0].Address) != solana.PublicKeyLength {
		s.close()
		return solana.PublicKey{}, s.authErr(fmt.Errorf("malformed account address of %d bytes", len(res.Accounts[0].Address)))
	}

	s.account = solana.PublicKeyFromBytes(res.Accounts[0].Address)
	s.state = StateAuthorized
	s.logger.Debug("Session authorized", zap.String("account", s.account.String()))
	return s.account, nil
}

// Sign submits the compiled message for remote signature and closes the session.
func (s *MobileSessionSigner) Sign(ctx context.Context, msg *transaction.CompiledMessage) (*transaction.SignedTransaction, error) {
	if s.state != StateAuthorized {
		return nil, s.authErr(fmt.Errorf("cannot sign in state %s", s.state))
	}
	defer s.close()

	if !msg.Payer.Equals(s.account) {
		return nil, s.authErr(fmt.Errorf("message payer %s is not the authorized account %s", msg.Payer, s.account))
	}

	wire, err := msg.UnsignedWire()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}

	s.state = StateSigning
	res, err := s.session.SignTransactions(ctx, SignTransactionsRequest{Transactions: [][]byte{wire}})
	if err != nil {
		return nil, s.authErr(fmt.Errorf("sign request declined: %w", err))
	}
	if res == nil || len(res.SignedTransactions) == 0 || len(res.SignedTransactions[0]) == 0 {
		return nil, &blockchain.SerializationError{Backend: s.Kind().String(), Reason: "no signed payload returned"}
	}

	tx, err := decodeTransactionBytes(res.SignedTransactions[0])
	if err != nil {
		return nil, &blockchain.SerializationError{Backend: s.Kind().String(), Reason: "undecodable signed payload", Err: err}
	}
	signed, err := transaction.NewSignedTransaction(msg, tx)
	if err != nil {
		return nil, &blockchain.SerializationError{Backend: s.Kind().String(), Reason: "invalid signed payload", Err: err}
	}

	s.state = StateSigned
	return signed, nil
}

func (s *MobileSessionSigner) SignAndSend(ctx context.Context, msg *transaction.CompiledMessage, submitter Submitter) (solana.Signature, error) {
	signed, err := s.Sign(ctx, msg)
	if err != nil {
		return solana.Signature{}, err
	}
	return submitter.Submit(ctx, signed)
}

// Close releases a session left open when the dispatch fails between Authorize and Sign.
// The signer stays spent. Safe to call more than once.
func (s *MobileSessionSigner) Close() error {
	s.close()
	return nil
}

// close releases the session. The state stays Signed on success.
func (s *MobileSessionSigner) close() {
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			s.logger.Debug("Session close failed", zap.Error(err))
		}
		s.session = nil
	}
	if s.state != StateSigned {
		s.state = StateDisconnected
	}
}

func (s *MobileSessionSigner) authErr(err error) error {
	return &blockchain.AuthorizationError{Backend: s.Kind().String(), Err: err}
}

var (
	_ Signer    = (*MobileSessionSigner)(nil)
	_ io.Closer = (*MobileSessionSigner)(nil)
)
