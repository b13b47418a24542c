package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// ProviderError is a rejection reported by the remote provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected request (%d): %s", e.StatusCode, e.Message)
}

// ErrMalformedResponse marks a provider reply that could not be decoded.
var ErrMalformedResponse = errors.New("malformed provider response")

// HTTPProvider posts {method, params} to a custodial signing endpoint.
type HTTPProvider struct {
	endpoint string
	token    string
	address  solana.PublicKey
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPProvider creates a provider session bound to one account.
func NewHTTPProvider(endpoint, token string, address solana.PublicKey, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		endpoint: endpoint,
		token:    token,
		address:  address,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.Named("http-provider"),
	}
}

func (p *HTTPProvider) PublicKey() solana.PublicKey { return p.address }

func (p *HTTPProvider) Request(ctx context.Context, req ProviderRequest) (*ProviderResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request %s: %w", req.Method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			msg = errBody.Error
		}
		p.logger.Debug("Provider returned error",
			zap.String("method", req.Method),
			zap.Int("status", resp.StatusCode))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out ProviderResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &out, nil
}

var _ Provider = (*HTTPProvider)(nil)
