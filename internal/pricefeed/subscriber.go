// Package pricefeed maintains a live snapshot of the price-proof accounts:
// the push-oracle attestation feed and the two canonical pool reserves. It
// subscribes to account updates over WebSocket and reconnects with
// exponential backoff, so the vault engine always has fresh proof material
// without issuing RPC reads on the hot path.
package pricefeed

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"

	"github.com/qara-wq/flashorca-ally-devnet/internal/observability"
	"github.com/qara-wq/flashorca-ally-devnet/internal/oracle"
)

// Config configures the subscriber.
type Config struct {
	// Endpoint is the WebSocket RPC endpoint.
	Endpoint string

	// FeedAddress is the attestation account to watch.
	FeedAddress string
	// PoolAddress is the canonical pool, carried into proofs verbatim.
	PoolAddress string
	// ForcaReserve and SolReserve are the pool's token accounts.
	ForcaReserve string
	SolReserve   string

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultConfig returns the subscriber defaults; account addresses must
// still be filled in.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// tokenAccount is the decoded state of one SPL reserve account.
type tokenAccount struct {
	Mint      string
	Authority string
	Amount    uint64
}

// splTokenAccountLen is the fixed SPL token account size.
const splTokenAccountLen = 165

// parseTokenAccount decodes the mint, authority, and amount fields of an
// SPL token account.
func parseTokenAccount(data []byte) (tokenAccount, error) {
	if len(data) < splTokenAccountLen {
		return tokenAccount{}, fmt.Errorf("token account too short: %d bytes", len(data))
	}
	return tokenAccount{
		Mint:      base58.Encode(data[0:32]),
		Authority: base58.Encode(data[32:64]),
		Amount:    binary.LittleEndian.Uint64(data[64:72]),
	}, nil
}

// Subscriber watches the proof accounts and serves point-in-time snapshots.
type Subscriber struct {
	cfg     Config
	logger  *log.Logger
	metrics *observability.Metrics

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	reqID  atomic.Uint64

	// subs maps subscription ID to the watched account address.
	subs   map[int64]string
	subsMu sync.Mutex

	// pending maps request ID to the address awaiting confirmation.
	pending   map[uint64]pendingSub
	pendingMu sync.Mutex

	// Latest account states.
	state   feedState
	stateMu sync.RWMutex

	reconnecting atomic.Bool
	done         chan struct{}
	wg           sync.WaitGroup
}

type pendingSub struct {
	address string
	confirm chan int64
}

type feedState struct {
	feedOwner    string
	feedData     []byte
	forcaReserve *tokenAccount
	solReserve   *tokenAccount
	updatedAt    time.Time
}

// NewSubscriber connects, subscribes to the three proof accounts, and starts
// the read and ping loops. metrics may be nil.
func NewSubscriber(ctx context.Context, cfg Config, logger *log.Logger, metrics *observability.Metrics) (*Subscriber, error) {
	if cfg.FeedAddress == "" || cfg.ForcaReserve == "" || cfg.SolReserve == "" {
		return nil, fmt.Errorf("pricefeed: account addresses not configured")
	}

	s := &Subscriber{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		subs:    make(map[int64]string),
		pending: make(map[uint64]pendingSub),
		done:    make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()
	s.wg.Add(1)
	go s.pingLoop()

	for _, addr := range []string{cfg.FeedAddress, cfg.ForcaReserve, cfg.SolReserve} {
		if _, err := s.subscribeAccount(ctx, addr); err != nil {
			s.Close()
			return nil, fmt.Errorf("subscribe %s: %w", addr, err)
		}
	}
	return s, nil
}

// Snapshot returns the current proof material; ok is false until every
// watched account has reported at least once.
func (s *Subscriber) Snapshot() (*oracle.Proof, time.Time, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	st := s.state
	if st.feedData == nil || st.forcaReserve == nil || st.solReserve == nil {
		return nil, time.Time{}, false
	}

	data := make([]byte, len(st.feedData))
	copy(data, st.feedData)
	return &oracle.Proof{
		Feed: oracle.FeedAccount{
			Address: s.cfg.FeedAddress,
			Owner:   st.feedOwner,
			Data:    data,
		},
		Pool: s.cfg.PoolAddress,
		ForcaReserve: oracle.ReserveAccount{
			Address: s.cfg.ForcaReserve,
			Owner:   st.forcaReserve.Authority,
			Mint:    st.forcaReserve.Mint,
			Amount:  st.forcaReserve.Amount,
		},
		SolReserve: oracle.ReserveAccount{
			Address: s.cfg.SolReserve,
			Owner:   st.solReserve.Authority,
			Mint:    st.solReserve.Mint,
			Amount:  st.solReserve.Amount,
		},
	}, st.updatedAt, true
}

func (s *Subscriber) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *Subscriber) subscribeAccount(ctx context.Context, address string) (int64, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("subscriber closed")
	}

	reqID := s.reqID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "accountSubscribe",
		Params: []interface{}{
			address,
			map[string]string{"encoding": "base64", "commitment": "confirmed"},
		},
	}

	confirm := make(chan int64, 1)
	s.pendingMu.Lock()
	s.pending[reqID] = pendingSub{address: address, confirm: confirm}
	s.pendingMu.Unlock()
	drop := func() {
		s.pendingMu.Lock()
		delete(s.pending, reqID)
		s.pendingMu.Unlock()
	}

	s.connMu.Lock()
	if s.conn == nil {
		s.connMu.Unlock()
		drop()
		return 0, fmt.Errorf("not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	err := s.conn.WriteJSON(req)
	s.connMu.Unlock()
	if err != nil {
		drop()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirm:
		s.subsMu.Lock()
		s.subs[subID] = address
		s.subsMu.Unlock()
		return subID, nil
	case <-time.After(30 * time.Second):
		drop()
		return 0, fmt.Errorf("subscription timeout")
	case <-s.done:
		return 0, fmt.Errorf("subscriber closed")
	case <-ctx.Done():
		drop()
		return 0, ctx.Err()
	}
}

// Close shuts the subscriber down and waits for the loops to exit.
func (s *Subscriber) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.pendingMu.Lock()
	for id, p := range s.pending {
		close(p.confirm)
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Subscriber) readLoop() {
	defer s.wg.Done()

	delay := s.cfg.ReconnectDelay
	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			if !s.reconnecting.Swap(true) {
				go s.reconnect(delay)
			}
			delay *= 2
			if delay > s.cfg.MaxReconnectDelay {
				delay = s.cfg.MaxReconnectDelay
			}
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		delay = s.cfg.ReconnectDelay
		if s.metrics != nil {
			s.metrics.WSMessagesTotal.Inc()
		}
		s.handleMessage(message)
	}
}

func (s *Subscriber) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}
	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	if s.metrics != nil {
		s.metrics.WSReconnects.Inc()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.connect(ctx); err != nil {
		s.logger.Printf("pricefeed reconnect failed: %v", err)
		return
	}

	// Old subscription IDs are dead on the new connection.
	s.subsMu.Lock()
	s.subs = make(map[int64]string)
	s.subsMu.Unlock()

	for _, addr := range []string{s.cfg.FeedAddress, s.cfg.ForcaReserve, s.cfg.SolReserve} {
		subCtx, subCancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := s.subscribeAccount(subCtx, addr)
		subCancel()
		if err != nil {
			s.logger.Printf("pricefeed resubscribe %s failed: %v", addr, err)
		}
	}
}

func (s *Subscriber) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		s.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "accountNotification" {
		s.handleAccountNotification(&notif)
		return
	}

	var errResp struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		s.logger.Printf("pricefeed rpc error: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
	}
}

func (s *Subscriber) handleSubscribeResponse(resp *wsSubscribeResponse) {
	s.pendingMu.Lock()
	p, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.pendingMu.Unlock()

	if ok {
		select {
		case p.confirm <- resp.Result:
		default:
		}
	}
}

func (s *Subscriber) handleAccountNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	s.subsMu.Lock()
	address, ok := s.subs[notif.Params.Subscription]
	s.subsMu.Unlock()
	if !ok {
		return
	}

	value := notif.Params.Result.Value
	if len(value.Data) == 0 {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(value.Data[0])
	if err != nil {
		s.logger.Printf("pricefeed decode %s: %v", address, err)
		return
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch address {
	case s.cfg.FeedAddress:
		s.state.feedOwner = value.Owner
		s.state.feedData = raw
	case s.cfg.ForcaReserve, s.cfg.SolReserve:
		acct, err := parseTokenAccount(raw)
		if err != nil {
			s.logger.Printf("pricefeed parse %s: %v", address, err)
			return
		}
		if address == s.cfg.ForcaReserve {
			s.state.forcaReserve = &acct
		} else {
			s.state.solReserve = &acct
		}
	}
	s.state.updatedAt = time.Now()
	if s.metrics != nil {
		s.metrics.LastFeedUpdate.Set(float64(s.state.updatedAt.Unix()))
	}
}

func (s *Subscriber) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
				// A failed ping surfaces as a read error; the reader reconnects.
				s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}

// JSON-RPC message types.

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext     `json:"context"`
	Value   wsAccountValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsAccountValue struct {
	Data     []string `json:"data"` // [base64 payload, encoding]
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
}
