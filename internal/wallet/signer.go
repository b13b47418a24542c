package wallet

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/txdispatch/internal/blockchain"
	"github.com/rovshanmuradov/txdispatch/internal/transaction"
)

// Kind identifies the signing backend behind a Signer.
type Kind int

const (
	KindProviderRequest Kind = iota + 1
	KindMobileSession
	KindLocalKeypair
)

func (k Kind) String() string {
	switch k {
	case KindProviderRequest:
		return "provider-request"
	case KindMobileSession:
		return "mobile-session"
	case KindLocalKeypair:
		return "local-keypair"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Submitter broadcasts a signed transaction. Implemented by the submission stage.
type Submitter interface {
	Submit(ctx context.Context, signed *transaction.SignedTransaction) (solana.Signature, error)
}

// Signer is the capability every wallet backend implements.
type Signer interface {
	Kind() Kind
	// Authorize establishes the signing account for this dispatch.
	Authorize(ctx context.Context) (solana.PublicKey, error)
	Sign(ctx context.Context, msg *transaction.CompiledMessage) (*transaction.SignedTransaction, error)
	// SignAndSend signs and broadcasts. Backends that cannot submit themselves
	// delegate the broadcast to submitter.
	SignAndSend(ctx context.Context, msg *transaction.CompiledMessage, submitter Submitter) (solana.Signature, error)
	// Fused reports whether the backend prefers SignAndSend over Sign + Submit.
	Fused() bool
}

// Platform is the host the process runs on.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformDesktop Platform = "desktop"
)

// HostPlatform detects the current platform.
func HostPlatform() Platform {
	switch runtime.GOOS {
	case "android":
		return PlatformAndroid
	case "ios":
		return PlatformIOS
	default:
		return PlatformDesktop
	}
}

// ProviderType is the wallet type declared by a descriptor.
type ProviderType string

const (
	ProviderTypeRequest ProviderType = "provider"
	ProviderTypeMobile  ProviderType = "mobile"
	ProviderTypeLocal   ProviderType = "local"
)

// Descriptor declares which backend signs and carries its settings.
type Descriptor struct {
	Type ProviderType

	// local
	PrivateKey string

	// provider
	Provider Provider
	Fused    bool

	// mobile
	Dial        SessionDialer
	Cluster     string
	Identity    AppIdentity
	AuthTimeout time.Duration
}

// Select builds the signer for one dispatch. The choice is made once and does not
// change while the dispatch is in flight.
func Select(desc Descriptor, platform Platform, logger *zap.Logger) (Signer, error) {
	switch desc.Type {
	case ProviderTypeLocal:
		w, err := NewWallet(desc.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("load local keypair: %w", err)
		}
		return NewLocalKeypairSigner(w, logger), nil
	case ProviderTypeRequest:
		if desc.Provider == nil {
			return nil, fmt.Errorf("provider wallet requires a provider session")
		}
		return NewProviderRequestSigner(desc.Provider, desc.Fused, logger), nil
	case ProviderTypeMobile:
		if platform != PlatformAndroid {
			return nil, &blockchain.AuthorizationError{
				Backend: KindMobileSession.String(),
				Err:     fmt.Errorf("%w: requires %s, host is %s", blockchain.ErrPlatformMismatch, PlatformAndroid, platform),
			}
		}
		return NewMobileSessionSigner(MobileConfig{
			Dial:        desc.Dial,
			Platform:    platform,
			Cluster:     desc.Cluster,
			Identity:    desc.Identity,
			AuthTimeout: desc.AuthTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown wallet type %q", desc.Type)
	}
}
