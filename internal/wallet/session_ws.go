package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Session bridge methods.
const (
	sessionMethodAuthorize        = "authorize"
	sessionMethodSignTransactions = "sign_transactions"
)

// SessionError is an error object returned by the wallet side of the bridge.
type SessionError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("wallet session error %d: %s", e.Code, e.Message)
}

type sessionRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type sessionResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *SessionError   `json:"error,omitempty"`
}

// WSSession speaks JSON-RPC to a wallet over a websocket bridge.
// Calls are serialized; one request is in flight at a time.
type WSSession struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64
}

// DialWSSession connects to the wallet bridge endpoint.
func DialWSSession(ctx context.Context, endpoint string) (*WSSession, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &WSSession{conn: conn}, nil
}

// WSDialer returns a SessionDialer that opens a fresh bridge connection per dispatch.
func WSDialer(endpoint string) SessionDialer {
	return func(ctx context.Context) (MobileSession, error) {
		return DialWSSession(ctx, endpoint)
	}
}

func (s *WSSession) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	var out AuthorizeResult
	if err := s.call(ctx, sessionMethodAuthorize, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *WSSession) SignTransactions(ctx context.Context, req SignTransactionsRequest) (*SignTransactionsResult, error) {
	var out SignTransactionsResult
	if err := s.call(ctx, sessionMethodSignTransactions, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close sends a close frame and drops the connection. Safe to call twice.
func (s *WSSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

func (s *WSSession) call(ctx context.Context, method string, params, out interface{}) error {
	if s.closed.Load() {
		return errors.New("session closed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.SetReadDeadline(deadline)

	// Прерываем блокирующее чтение при отмене контекста.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	id := s.requestID.Add(1)
	req := sessionRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("%s: write: %w", method, err)
	}

	for {
		var resp sessionResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			return readErr(ctx, method, err)
		}
		if resp.ID != id {
			// ответ на старый запрос
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if len(resp.Result) == 0 {
			return fmt.Errorf("%s: empty result", method)
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	}
}

// readErr attributes a failed read to ctx when ctx is done or its deadline has passed.
// The conn deadline equals the ctx deadline, so the read may time out before ctx.Err is set.
func readErr(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", method, ctxErr)
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return fmt.Errorf("%s: %w: %v", method, context.DeadlineExceeded, err)
	}
	return fmt.Errorf("%s: read: %w", method, err)
}

var _ MobileSession = (*WSSession)(nil)
