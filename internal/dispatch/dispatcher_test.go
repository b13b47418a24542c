package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	soltx "github.com/rovshanmuradov/txdispatch/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/txdispatch/internal/events"
	txn "github.com/rovshanmuradov/txdispatch/internal/transaction"
	"github.com/rovshanmuradov/txdispatch/internal/types"
	"github.com/rovshanmuradov/txdispatch/internal/utils/metrics"
	"github.com/rovshanmuradov/txdispatch/internal/wallet"
)

type fixedBlockhash struct{}

func (fixedBlockhash) GetLatestBlockhash(context.Context) (*blockchain.LatestBlockhash, error) {
	return &blockchain.LatestBlockhash{
		Blockhash:            solana.MustHashFromBase58("4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZAMdL4VZHirAn"),
		LastValidBlockHeight: 100,
	}, nil
}

// MockSubmitter records what reaches the submission stage.
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, signed *txn.SignedTransaction) (solana.Signature, error) {
	args := m.Called(ctx, signed)
	return args.Get(0).(solana.Signature), args.Error(1)
}

type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) Confirm(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) (*soltx.Outcome, error) {
	args := m.Called(ctx, sig, commitment)
	if v := args.Get(0); v != nil {
		return v.(*soltx.Outcome), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockBalances struct {
	mock.Mock
}

func (m *MockBalances) GetBalance(ctx context.Context, pk solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	args := m.Called(ctx, pk, commitment)
	return args.Get(0).(uint64), args.Error(1)
}

// stubProvider answers every request with the same response.
type stubProvider struct {
	account solana.PublicKey
	resp    *wallet.ProviderResponse
	err     error
	methods []string
}

func (p *stubProvider) PublicKey() solana.PublicKey { return p.account }

func (p *stubProvider) Request(_ context.Context, req wallet.ProviderRequest) (*wallet.ProviderResponse, error) {
	p.methods = append(p.methods, req.Method)
	return p.resp, p.err
}

type fixture struct {
	dispatcher *Dispatcher
	submitter  *MockSubmitter
	confirmer  *MockConfirmer
	balances   *MockBalances
	registry   *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	logger := zaptest.NewLogger(t)
	f := &fixture{
		submitter: new(MockSubmitter),
		confirmer: new(MockConfirmer),
		balances:  new(MockBalances),
		registry:  prometheus.NewRegistry(),
	}
	f.dispatcher = NewDispatcher(Components{
		Fees:      txn.NewFeeManager(logger),
		Builder:   txn.NewBuilder(fixedBlockhash{}, logger),
		Submitter: f.submitter,
		Confirmer: f.confirmer,
		Balances:  f.balances,
		Metrics:   metrics.NewCollector(f.registry),
	}, logger)
	return f
}

func localSigner(t *testing.T) (*wallet.LocalKeypairSigner, solana.PublicKey) {
	t.Helper()
	key := solana.NewWallet().PrivateKey
	w, err := wallet.NewWallet(key.String())
	require.NoError(t, err)
	return wallet.NewLocalKeypairSigner(w, zaptest.NewLogger(t)), w.PublicKey
}

func transferFrom(from solana.PublicKey) solana.Instruction {
	return system.NewTransferInstruction(1_000_000, from, solana.NewWallet().PublicKey()).Build()
}

func stages(evs []events.StatusEvent) []events.Stage {
	out := make([]events.Stage, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Stage)
	}
	return out
}

func TestDispatch_PriorityFeeConfirmed(t *testing.T) {
	f := newFixture(t)
	signer, account := localSigner(t)
	transfer := transferFrom(account)

	var submitted *txn.SignedTransaction
	f.submitter.On("Submit", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { submitted = args.Get(1).(*txn.SignedTransaction) }).
		Return(solana.Signature{}, nil).Once()

	rec := &events.Recorder{}
	f.confirmer.On("Confirm", mock.Anything, mock.Anything, rpc.CommitmentConfirmed).
		Return(&soltx.Outcome{State: soltx.StateConfirmed, Slot: 42}, nil).Once()

	res, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Instructions: []solana.Instruction{transfer}, Commitment: rpc.CommitmentConfirmed},
		types.DispatchConfig{Mode: types.ModePriorityFee, Tier: types.FeeTierMedium},
		signer, rec)
	require.NoError(t, err)
	require.NotNil(t, submitted)

	msg := submitted.Message
	require.Len(t, msg.Instructions, 3)
	budget, err := txn.ParseBudget(msg.Instructions[:2])
	require.NoError(t, err)
	assert.Equal(t, uint32(txn.ComputeUnitLimit), budget.UnitLimit)
	assert.Equal(t, types.MediumMicroLamports, budget.UnitPrice)
	assert.True(t, txn.IsComputeBudget(msg.Instructions[0]))
	assert.True(t, txn.IsComputeBudget(msg.Instructions[1]))
	assert.Equal(t, solana.SystemProgramID, msg.Instructions[2].ProgramID())
	assert.Equal(t, account, msg.Payer)

	assert.Equal(t, soltx.StateConfirmed, res.State)
	assert.Equal(t, uint64(42), res.Slot)
	assert.NotEmpty(t, res.DispatchID)

	assert.Equal(t, []events.Stage{
		events.StageAuthorizing,
		events.StageBuilding,
		events.StageSigning,
		events.StageSubmitting,
		events.StageConfirming,
		events.StageConfirmed,
	}, stages(rec.Events()))
	for i, ev := range rec.Events() {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, res.DispatchID, ev.DispatchID)
		assert.Equal(t, events.StageText(ev.Stage), ev.Text)
	}

	f.submitter.AssertExpectations(t)
	f.confirmer.AssertExpectations(t)
}

func TestDispatch_NoCommitmentStopsAtSubmission(t *testing.T) {
	f := newFixture(t)
	signer, account := localSigner(t)
	sig := solana.SignatureFromBytes(make([]byte, 64))
	sig[0] = 7
	f.submitter.On("Submit", mock.Anything, mock.Anything).Return(sig, nil).Once()

	rec := &events.Recorder{}
	res, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Instructions: []solana.Instruction{transferFrom(account)}},
		types.DispatchConfig{Mode: types.ModeNone},
		signer, rec)
	require.NoError(t, err)

	assert.Equal(t, sig, res.Signature)
	assert.Equal(t, soltx.StateSubmitted, res.State)
	f.confirmer.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything)

	evs := rec.Events()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.StageSubmitted, last.Stage)
	assert.Equal(t, events.TextSubmitted, last.Text)
}

func TestDispatch_ModeNoneAddsNoBudget(t *testing.T) {
	f := newFixture(t)
	signer, account := localSigner(t)

	var submitted *txn.SignedTransaction
	f.submitter.On("Submit", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { submitted = args.Get(1).(*txn.SignedTransaction) }).
		Return(solana.Signature{}, nil)

	_, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Instructions: []solana.Instruction{transferFrom(account)}},
		types.DispatchConfig{Mode: types.ModeNone, Tier: types.FeeTierHigh},
		signer, nil)
	require.NoError(t, err)
	require.NotNil(t, submitted)
	require.Len(t, submitted.Message.Instructions, 1)
	assert.False(t, txn.IsComputeBudget(submitted.Message.Instructions[0]))
}

func TestDispatch_ProviderWithoutSignatureNeverSubmits(t *testing.T) {
	f := newFixture(t)
	account := solana.NewWallet().PublicKey()
	provider := &stubProvider{account: account, resp: &wallet.ProviderResponse{}}
	signer := wallet.NewProviderRequestSigner(provider, false, zaptest.NewLogger(t))

	rec := &events.Recorder{}
	res, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Instructions: []solana.Instruction{transferFrom(account)}, Commitment: rpc.CommitmentConfirmed},
		types.DefaultDispatchConfig(),
		signer, rec)
	require.Error(t, err)
	assert.Nil(t, res)

	var serErr *blockchain.SerializationError
	require.ErrorAs(t, err, &serErr)
	assert.Equal(t, wallet.KindProviderRequest.String(), serErr.Backend)
	assert.Contains(t, err.Error(), "during signing")

	f.submitter.AssertNumberOfCalls(t, "Submit", 0)
	f.confirmer.AssertNumberOfCalls(t, "Confirm", 0)

	evs := rec.Events()
	last := evs[len(evs)-1]
	assert.Equal(t, events.StageFailed, last.Stage)
	assert.Equal(t, events.TextFailed, last.Text)
	failures, err := testutil.GatherAndCount(f.registry, "txdispatch_stage_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
}

func TestDispatch_FusedProviderBroadcastsItself(t *testing.T) {
	f := newFixture(t)
	account := solana.NewWallet().PublicKey()
	sig := solana.SignatureFromBytes(append([]byte{9}, make([]byte, 63)...))
	provider := &stubProvider{account: account, resp: &wallet.ProviderResponse{Signature: sig.String()}}
	signer := wallet.NewProviderRequestSigner(provider, true, zaptest.NewLogger(t))

	res, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Instructions: []solana.Instruction{transferFrom(account)}},
		types.DefaultDispatchConfig(),
		signer, nil)
	require.NoError(t, err)
	assert.Equal(t, sig, res.Signature)
	assert.Equal(t, []string{wallet.MethodSignAndSendTransaction}, provider.methods)
	f.submitter.AssertNumberOfCalls(t, "Submit", 0)
}

func TestDispatch_MobileOffAndroidFailsFast(t *testing.T) {
	f := newFixture(t)
	dials := 0
	signer := wallet.NewMobileSessionSigner(wallet.MobileConfig{
		Platform: wallet.PlatformDesktop,
		Dial: func(context.Context) (wallet.MobileSession, error) {
			dials++
			return nil, errors.New("unreachable")
		},
	}, zaptest.NewLogger(t))

	_, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Instructions: []solana.Instruction{transferFrom(solana.NewWallet().PublicKey())}},
		types.DefaultDispatchConfig(),
		signer, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, blockchain.ErrPlatformMismatch)

	var authErr *blockchain.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "during authorization")
	assert.Zero(t, dials)
	f.submitter.AssertNumberOfCalls(t, "Submit", 0)
}

type downBlockhash struct{}

func (downBlockhash) GetLatestBlockhash(context.Context) (*blockchain.LatestBlockhash, error) {
	return nil, errors.New("rpc down")
}

// countingSession grants one account and counts Close calls.
type countingSession struct {
	account solana.PublicKey
	closed  int
}

func (s *countingSession) Authorize(context.Context, wallet.AuthorizeRequest) (*wallet.AuthorizeResult, error) {
	return &wallet.AuthorizeResult{Accounts: []wallet.SessionAccount{{Address: s.account.Bytes()}}}, nil
}

func (s *countingSession) SignTransactions(context.Context, wallet.SignTransactionsRequest) (*wallet.SignTransactionsResult, error) {
	return nil, errors.New("not expected")
}

func (s *countingSession) Close() error {
	s.closed++
	return nil
}

func TestDispatch_MobileSessionReleasedWhenBuildFails(t *testing.T) {
	logger := zaptest.NewLogger(t)
	submitter := new(MockSubmitter)
	d := NewDispatcher(Components{
		Fees:      txn.NewFeeManager(logger),
		Builder:   txn.NewBuilder(downBlockhash{}, logger),
		Submitter: submitter,
		Confirmer: new(MockConfirmer),
	}, logger)

	session := &countingSession{account: solana.NewWallet().PublicKey()}
	signer := wallet.NewMobileSessionSigner(wallet.MobileConfig{
		Platform: wallet.PlatformAndroid,
		Dial: func(context.Context) (wallet.MobileSession, error) {
			return session, nil
		},
	}, logger)

	_, err := d.Dispatch(context.Background(),
		TransactionRequest{Compose: func(from solana.PublicKey) ([]solana.Instruction, error) {
			return []solana.Instruction{transferFrom(from)}, nil
		}},
		types.DefaultDispatchConfig(),
		signer, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "during building")

	assert.Equal(t, 1, session.closed)
	assert.Equal(t, wallet.StateDisconnected, signer.State())
	submitter.AssertNumberOfCalls(t, "Submit", 0)
}

func TestDispatch_FailedEventSurvivesCancellation(t *testing.T) {
	f := newFixture(t)
	signer, account := localSigner(t)
	f.submitter.On("Submit", mock.Anything, mock.Anything).Return(solana.Signature{}, context.Canceled).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := events.NewStream(16)
	_, err := f.dispatcher.Dispatch(ctx,
		TransactionRequest{Instructions: []solana.Instruction{transferFrom(account)}},
		types.DefaultDispatchConfig(),
		signer, stream)
	require.ErrorIs(t, err, context.Canceled)
	stream.Close()

	var got []events.StatusEvent
	for ev := range stream.C() {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, events.StageFailed, got[len(got)-1].Stage)
}

func TestDispatch_PayerMismatch(t *testing.T) {
	f := newFixture(t)
	signer, account := localSigner(t)

	_, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{
			Instructions: []solana.Instruction{transferFrom(account)},
			FeePayer:     solana.NewWallet().PublicKey(),
		},
		types.DefaultDispatchConfig(),
		signer, nil)
	assert.ErrorIs(t, err, ErrPayerMismatch)
}

func TestDispatch_SubmissionErrorKeepsType(t *testing.T) {
	f := newFixture(t)
	signer, account := localSigner(t)
	f.submitter.On("Submit", mock.Anything, mock.Anything).
		Return(solana.Signature{}, &blockchain.SubmissionError{Err: blockchain.ErrBlockhashExpired}).Once()

	_, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Instructions: []solana.Instruction{transferFrom(account)}, Commitment: rpc.CommitmentConfirmed},
		types.DefaultDispatchConfig(),
		signer, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, blockchain.ErrBlockhashExpired)
	assert.Contains(t, err.Error(), "during submission")
	f.confirmer.AssertNumberOfCalls(t, "Confirm", 0)
}

func TestDispatch_OnChainFailureReturnsResult(t *testing.T) {
	f := newFixture(t)
	signer, account := localSigner(t)
	f.submitter.On("Submit", mock.Anything, mock.Anything).Return(solana.Signature{}, nil)
	f.confirmer.On("Confirm", mock.Anything, mock.Anything, rpc.CommitmentFinalized).Return(&soltx.Outcome{
		State: soltx.StateFailed,
		Code:  map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
		Logs:  []string{"Program log: boom"},
	}, nil)

	rec := &events.Recorder{}
	res, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Instructions: []solana.Instruction{transferFrom(account)}, Commitment: rpc.CommitmentFinalized},
		types.DefaultDispatchConfig(),
		signer, rec)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, soltx.StateFailed, res.State)
	assert.Equal(t, []string{"Program log: boom"}, res.Logs)

	var chainErr *blockchain.OnChainExecutionError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, []string{"Program log: boom"}, chainErr.Logs)

	evs := rec.Events()
	assert.Equal(t, events.StageFailed, evs[len(evs)-1].Stage)
}

func TestDispatch_TimeoutIsNotFailure(t *testing.T) {
	f := newFixture(t)
	signer, account := localSigner(t)
	f.submitter.On("Submit", mock.Anything, mock.Anything).Return(solana.Signature{}, nil)
	f.confirmer.On("Confirm", mock.Anything, mock.Anything, rpc.CommitmentConfirmed).
		Return(&soltx.Outcome{State: soltx.StateTimedOut, Elapsed: time.Second}, nil)

	res, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Instructions: []solana.Instruction{transferFrom(account)}, Commitment: rpc.CommitmentConfirmed},
		types.DefaultDispatchConfig(),
		signer, nil)
	require.Error(t, err)
	assert.Equal(t, soltx.StateTimedOut, res.State)

	var timeoutErr *blockchain.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	var chainErr *blockchain.OnChainExecutionError
	assert.False(t, errors.As(err, &chainErr))
}

func TestDispatch_RejectsEmptyRequest(t *testing.T) {
	f := newFixture(t)
	signer, _ := localSigner(t)

	_, err := f.dispatcher.Dispatch(context.Background(), TransactionRequest{},
		types.DefaultDispatchConfig(), signer, nil)
	assert.ErrorIs(t, err, blockchain.ErrInvalidInstruction)
}

func TestDispatch_ComposeUsesAuthorizedAccount(t *testing.T) {
	f := newFixture(t)
	signer, account := localSigner(t)

	var submitted *txn.SignedTransaction
	f.submitter.On("Submit", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { submitted = args.Get(1).(*txn.SignedTransaction) }).
		Return(solana.Signature{}, nil)

	var composedFor solana.PublicKey
	_, err := f.dispatcher.Dispatch(context.Background(),
		TransactionRequest{Compose: func(from solana.PublicKey) ([]solana.Instruction, error) {
			composedFor = from
			return []solana.Instruction{transferFrom(from)}, nil
		}},
		types.DispatchConfig{Mode: types.ModeNone},
		signer, nil)
	require.NoError(t, err)
	assert.Equal(t, account, composedFor)
	require.NotNil(t, submitted)
	assert.Len(t, submitted.Message.Instructions, 1)
}

func TestDispatcher_Balance(t *testing.T) {
	f := newFixture(t)
	owner := solana.NewWallet().PublicKey()
	f.balances.On("GetBalance", mock.Anything, owner, rpc.CommitmentConfirmed).Return(uint64(1_500_000_000), nil)

	bal, err := f.dispatcher.Balance(context.Background(), owner, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), bal.Lamports)
	assert.Equal(t, "1.5", bal.SOL.String())
}

func TestLamportsToSOL(t *testing.T) {
	assert.Equal(t, "0.000000001", LamportsToSOL(1).String())
	assert.Equal(t, "0", LamportsToSOL(0).String())
	assert.Equal(t, "18446744073.709551615", LamportsToSOL(^uint64(0)).String())
}
