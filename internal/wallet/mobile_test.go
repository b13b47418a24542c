package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
)

// MockSession реализует MobileSession
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*AuthorizeResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) SignTransactions(ctx context.Context, req SignTransactionsRequest) (*SignTransactionsResult, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*SignTransactionsResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) Close() error {
	return m.Called().Error(0)
}

func newMobileSigner(t *testing.T, platform Platform, session MobileSession, dials *int) *MobileSessionSigner {
	return NewMobileSessionSigner(MobileConfig{
		Platform: platform,
		Cluster:  "devnet",
		Identity: AppIdentity{Name: "txdispatch"},
		Dial: func(context.Context) (MobileSession, error) {
			*dials++
			return session, nil
		},
	}, zaptest.NewLogger(t))
}

func grant(pk solana.PublicKey) *AuthorizeResult {
	return &AuthorizeResult{Accounts: []SessionAccount{{Address: pk.Bytes()}}}
}

func TestMobileSessionSigner_AuthorizeAndSign(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	session := new(MockSession)
	session.On("Authorize", mock.Anything, AuthorizeRequest{Cluster: "devnet", Identity: AppIdentity{Name: "txdispatch"}}).
		Return(grant(key.PublicKey()), nil).Once()
	session.On("Close").Return(nil).Once()

	dials := 0
	signer := newMobileSigner(t, PlatformAndroid, session, &dials)
	assert.Equal(t, StateDisconnected, signer.State())

	account, err := signer.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), account)
	assert.Equal(t, StateAuthorized, signer.State())

	msg := compileFor(t, account)
	signedTx := signWith(t, key, msg)
	raw, err := signedTx.MarshalBinary()
	require.NoError(t, err)
	session.On("SignTransactions", mock.Anything, mock.MatchedBy(func(req SignTransactionsRequest) bool {
		return len(req.Transactions) == 1
	})).Return(&SignTransactionsResult{SignedTransactions: [][]byte{raw}}, nil).Once()

	signed, err := signer.Sign(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, signedTx.Signatures[0], signed.Signature())
	assert.Equal(t, StateSigned, signer.State())
	assert.Equal(t, 1, dials)
	session.AssertExpectations(t)
}

func TestMobileSessionSigner_PlatformMismatch(t *testing.T) {
	dials := 0
	signer := newMobileSigner(t, PlatformIOS, new(MockSession), &dials)

	_, err := signer.Authorize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, blockchain.ErrPlatformMismatch)
	var authErr *blockchain.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
	assert.Zero(t, dials)
	assert.Equal(t, StateDisconnected, signer.State())
}

func TestMobileSessionSigner_SingleUse(t *testing.T) {
	session := new(MockSession)
	session.On("Authorize", mock.Anything, mock.Anything).Return(grant(solana.NewWallet().PublicKey()), nil).Once()

	dials := 0
	signer := newMobileSigner(t, PlatformAndroid, session, &dials)
	_, err := signer.Authorize(context.Background())
	require.NoError(t, err)

	_, err = signer.Authorize(context.Background())
	assert.ErrorIs(t, err, blockchain.ErrSignerSpent)
	assert.Equal(t, 1, dials)
}

func TestMobileSessionSigner_EmptyPayload(t *testing.T) {
	pk := solana.NewWallet().PublicKey()
	session := new(MockSession)
	session.On("Authorize", mock.Anything, mock.Anything).Return(grant(pk), nil)
	session.On("SignTransactions", mock.Anything, mock.Anything).
		Return(&SignTransactionsResult{SignedTransactions: [][]byte{{}}}, nil)
	session.On("Close").Return(nil).Once()

	dials := 0
	signer := newMobileSigner(t, PlatformAndroid, session, &dials)
	_, err := signer.Authorize(context.Background())
	require.NoError(t, err)

	_, err = signer.Sign(context.Background(), compileFor(t, pk))
	var serErr *blockchain.SerializationError
	require.ErrorAs(t, err, &serErr)
	assert.Equal(t, KindMobileSession.String(), serErr.Backend)
	assert.Equal(t, StateDisconnected, signer.State())
	session.AssertExpectations(t)
}

func TestMobileSessionSigner_Declined(t *testing.T) {
	pk := solana.NewWallet().PublicKey()
	session := new(MockSession)
	session.On("Authorize", mock.Anything, mock.Anything).Return(grant(pk), nil)
	session.On("SignTransactions", mock.Anything, mock.Anything).
		Return(nil, &SessionError{Code: 4001, Message: "declined"})
	session.On("Close").Return(nil)

	dials := 0
	signer := newMobileSigner(t, PlatformAndroid, session, &dials)
	_, err := signer.Authorize(context.Background())
	require.NoError(t, err)

	_, err = signer.Sign(context.Background(), compileFor(t, pk))
	var authErr *blockchain.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	var sessErr *SessionError
	assert.ErrorAs(t, err, &sessErr)
}

func TestMobileSessionSigner_NoAccounts(t *testing.T) {
	session := new(MockSession)
	session.On("Authorize", mock.Anything, mock.Anything).Return(&AuthorizeResult{}, nil)
	session.On("Close").Return(nil).Once()

	dials := 0
	signer := newMobileSigner(t, PlatformAndroid, session, &dials)
	_, err := signer.Authorize(context.Background())
	var authErr *blockchain.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, StateDisconnected, signer.State())
	session.AssertExpectations(t)
}

func TestMobileSessionSigner_AuthTimeout(t *testing.T) {
	session := new(MockSession)
	session.On("Authorize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.DeadlineExceeded)
	session.On("Close").Return(nil)

	signer := NewMobileSessionSigner(MobileConfig{
		Platform:    PlatformAndroid,
		AuthTimeout: 20 * time.Millisecond,
		Dial:        func(context.Context) (MobileSession, error) { return session, nil },
	}, zaptest.NewLogger(t))

	_, err := signer.Authorize(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "timed out")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMobileSessionSigner_SignBeforeAuthorize(t *testing.T) {
	dials := 0
	signer := newMobileSigner(t, PlatformAndroid, new(MockSession), &dials)
	_, err := signer.Sign(context.Background(), compileFor(t, solana.NewWallet().PublicKey()))
	var authErr *blockchain.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}

func TestMobileSessionSigner_CloseAfterAuthorize(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	session := new(MockSession)
	session.On("Authorize", mock.Anything, mock.Anything).Return(grant(key.PublicKey()), nil).Once()
	session.On("Close").Return(nil).Once()

	dials := 0
	signer := newMobileSigner(t, PlatformAndroid, session, &dials)
	_, err := signer.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, signer.State())

	require.NoError(t, signer.Close())
	require.NoError(t, signer.Close())
	assert.Equal(t, StateDisconnected, signer.State())
	session.AssertNumberOfCalls(t, "Close", 1)

	// сессия израсходована: повторная авторизация невозможна
	_, err = signer.Authorize(context.Background())
	assert.ErrorIs(t, err, blockchain.ErrSignerSpent)
}
