package wallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
)

func TestSelect(t *testing.T) {
	logger := zaptest.NewLogger(t)
	key := solana.NewWallet().PrivateKey

	tests := []struct {
		name     string
		desc     Descriptor
		platform Platform
		want     Kind
		wantErr  error
	}{
		{
			name:     "local keypair",
			desc:     Descriptor{Type: ProviderTypeLocal, PrivateKey: key.String()},
			platform: PlatformDesktop,
			want:     KindLocalKeypair,
		},
		{
			name:     "provider request",
			desc:     Descriptor{Type: ProviderTypeRequest, Provider: &HTTPProvider{address: key.PublicKey()}},
			platform: PlatformDesktop,
			want:     KindProviderRequest,
		},
		{
			name:     "mobile on android",
			desc:     Descriptor{Type: ProviderTypeMobile},
			platform: PlatformAndroid,
			want:     KindMobileSession,
		},
		{
			name:     "mobile on desktop",
			desc:     Descriptor{Type: ProviderTypeMobile},
			platform: PlatformDesktop,
			wantErr:  blockchain.ErrPlatformMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := Select(tt.desc, tt.platform, logger)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, signer.Kind())
		})
	}

	_, err := Select(Descriptor{Type: "ledger"}, PlatformDesktop, logger)
	assert.ErrorContains(t, err, "unknown wallet type")

	_, err = Select(Descriptor{Type: ProviderTypeRequest}, PlatformDesktop, logger)
	assert.Error(t, err)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "provider-request", KindProviderRequest.String())
	assert.Equal(t, "mobile-session", KindMobileSession.String())
	assert.Equal(t, "local-keypair", KindLocalKeypair.String())
	assert.Equal(t, "kind(0)", Kind(0).String())
}

func TestExclusive_SerializesAccess(t *testing.T) {
	w, err := NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	ex := NewExclusive(NewLocalKeypairSigner(w, zaptest.NewLogger(t)))

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ex.Do(context.Background(), func(Signer) error {
				n := active.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestExclusive_ContextCancelled(t *testing.T) {
	w, err := NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	ex := NewExclusive(NewLocalKeypairSigner(w, zaptest.NewLogger(t)))

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = ex.Do(context.Background(), func(Signer) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = ex.Do(ctx, func(Signer) error { return errors.New("must not run") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestHostPlatform(t *testing.T) {
	assert.NotEmpty(t, HostPlatform())
}
