package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
)

const (
	relayVersion = "1"

	methodSessionRequest = "relay_sessionRequest"
	methodSessionUpdate  = "relay_sessionUpdate"
	methodSwitchChain    = "wallet_switchEthereumChain"

	relayHandshakeTimeout = 15 * time.Second
)

// PeerMeta describes this app to the remote wallet.
type PeerMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}

// DisplayPairingFn shows the pairing URI to the user, typically as the QR code
// the remote wallet scans.
type DisplayPairingFn func(uri string, qrPNG []byte) error

// RelayConfig configures a relay-based provider.
type RelayConfig struct {
	// BridgeURL is the ws:// or wss:// relay bridge
	BridgeURL string

	// ProjectID identifies this app to the bridge
	ProjectID string

	Metadata PeerMeta

	// Display is called once per pairing attempt
	Display DisplayPairingFn

	Logger *logrus.Logger
}

// RelayProvider talks to a remote wallet through a publish/subscribe relay
// bridge. Requests travel as JSON-RPC payloads inside topic envelopes: the
// app subscribes to its client topic, publishes a session request on a fresh
// handshake topic carried in the pairing URI, and once the wallet approves,
// publishes further requests to the wallet's peer topic.
type RelayProvider struct {
	emitter

	cfg      RelayConfig
	log      *logrus.Logger
	clientID string

	// Set while a pairing runs; a second concurrent pairing is refused.
	pairing atomic.Bool
	nextID  atomic.Int64

	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	handshakeTopic string
	peerID         string
	accounts       []string
	chainID        int64
	pending        map[int64]chan relayResponse
}

type relayEnvelope struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"` // pub, sub or ack
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

type relayRequest struct {
	ID      int64         `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type relayPeer struct {
	PeerID   string      `json:"peerId"`
	PeerMeta PeerMeta    `json:"peerMeta"`
	ChainID  interface{} `json:"chainId"`
}

type relayResponse struct {
	result gjson.Result
	err    error
}

// NewRelayProvider validates cfg and creates an unpaired provider.
func NewRelayProvider(cfg RelayConfig) (*RelayProvider, error) {
	u, err := url.Parse(cfg.BridgeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("bridge URL must use ws or wss, got %q", u.Scheme)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	p := &RelayProvider{
		cfg:      cfg,
		log:      cfg.Logger,
		clientID: uuid.NewString(),
		pending:  make(map[int64]chan relayResponse),
	}
	p.nextID.Store(time.Now().UnixNano() / 1000)
	return p, nil
}

// Available reports whether a bridge is configured. Reachability is only
// known once pairing starts.
func (p *RelayProvider) Available(ctx context.Context) bool {
	return p.cfg.BridgeURL != ""
}

// PairingURI returns the URI for the current handshake topic, or an empty
// string before pairing has started.
func (p *RelayProvider) PairingURI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pairingURI()
}

func (p *RelayProvider) pairingURI() string {
	if p.handshakeTopic == "" {
		return ""
	}
	return fmt.Sprintf("relay:%s@%s?bridge=%s&projectId=%s",
		p.handshakeTopic, relayVersion, url.QueryEscape(p.cfg.BridgeURL), url.QueryEscape(p.cfg.ProjectID))
}

// RequestAccounts pairs with a remote wallet and waits for the user to
// approve the session there. An existing session is reused.
func (p *RelayProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	if p.peerID != "" && len(p.accounts) > 0 {
		accounts := append([]string(nil), p.accounts...)
		p.mu.Unlock()
		return accounts, nil
	}
	p.mu.Unlock()

	if !p.pairing.CAS(false, true) {
		return nil, fmt.Errorf("pairing already in progress")
	}
	defer p.pairing.Store(false)

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}

	id := p.nextID.Inc()
	ch := p.register(id)
	defer p.unregister(id)

	p.mu.Lock()
	topic := p.handshakeTopic
	uri := p.pairingURI()
	p.mu.Unlock()

	if err := p.write(conn, relayEnvelope{Topic: p.clientID, Type: "sub", Silent: true}); err != nil {
		p.teardown(conn)
		return nil, err
	}

	request := newRelayRequest(id, methodSessionRequest, relayPeer{
		PeerID:   p.clientID,
		PeerMeta: p.cfg.Metadata,
	})
	if err := p.publish(conn, topic, request); err != nil {
		p.teardown(conn)
		return nil, err
	}

	if err := p.display(uri); err != nil {
		p.teardown(conn)
		return nil, err
	}

	var resp relayResponse
	select {
	case <-ctx.Done():
		p.teardown(conn)
		return nil, ctx.Err()
	case resp = <-ch:
	}

	if resp.err != nil {
		p.teardown(conn)
		return nil, resp.err
	}
	if !resp.result.Get("approved").Bool() {
		p.teardown(conn)
		return nil, &RPCError{Code: CodeUserRejected, Message: "session rejected by wallet"}
	}

	accounts := stringArray(resp.result.Get("accounts"))
	if len(accounts) == 0 {
		p.teardown(conn)
		return nil, fmt.Errorf("no wallet accounts acquired")
	}

	p.mu.Lock()
	p.peerID = resp.result.Get("peerId").String()
	p.accounts = accounts
	p.chainID = resp.result.Get("chainId").Int()
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{
		"peer_id":  resp.result.Get("peerId").String(),
		"accounts": len(accounts),
		"chain_id": resp.result.Get("chainId").Int(),
	}).Info("Relay session approved")

	return append([]string(nil), accounts...), nil
}

// Accounts returns the accounts of the live session, if any.
func (p *RelayProvider) Accounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peerID == "" {
		return []string{}, nil
	}
	return append([]string(nil), p.accounts...), nil
}

// ChainID returns the chain reported by the wallet for the live session.
func (p *RelayProvider) ChainID(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peerID == "" {
		return 0, &RPCError{Code: CodeDisconnected, Message: "no relay session"}
	}
	return p.chainID, nil
}

// SwitchChain forwards wallet_switchEthereumChain to the paired wallet.
func (p *RelayProvider) SwitchChain(ctx context.Context, chainID int64) error {
	p.mu.Lock()
	conn, peer := p.conn, p.peerID
	p.mu.Unlock()

	if conn == nil || peer == "" {
		return &RPCError{Code: CodeDisconnected, Message: "no relay session"}
	}

	id := p.nextID.Inc()
	ch := p.register(id)
	defer p.unregister(id)

	request := newRelayRequest(id, methodSwitchChain, switchChainParams{ChainID: hexutil.Uint64(chainID)})
	if err := p.publish(conn, peer, request); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-ch:
		if resp.err != nil {
			return resp.err
		}
	}

	p.mu.Lock()
	p.chainID = chainID
	p.mu.Unlock()
	return nil
}

// Subscribe registers handler for session updates pushed by the wallet.
func (p *RelayProvider) Subscribe(handler EventHandler) func() {
	return p.emitter.Subscribe(handler)
}

// Close ends the session, telling the wallet when one is live, and closes the
// bridge connection. The provider can pair again afterwards.
func (p *RelayProvider) Close() error {
	p.mu.Lock()
	conn, peer := p.conn, p.peerID
	p.resetLocked(fmt.Errorf("relay provider closed"))
	p.mu.Unlock()

	if conn == nil {
		return nil
	}

	if peer != "" {
		update := newRelayRequest(p.nextID.Inc(), methodSessionUpdate, map[string]interface{}{
			"approved": false,
			"chainId":  nil,
			"accounts": nil,
		})
		if err := p.publish(conn, peer, update); err != nil {
			p.log.WithError(err).Debug("Failed to notify wallet of session end")
		}
	}

	p.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	p.writeMu.Unlock()
	return conn.Close()
}

func (p *RelayProvider) dial(ctx context.Context) (*websocket.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return p.conn, nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: relayHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, p.socketURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay bridge: %w", err)
	}

	p.conn = conn
	p.handshakeTopic = uuid.NewString()
	go p.readLoop(conn)
	return conn, nil
}

func (p *RelayProvider) socketURL() string {
	q := url.Values{}
	q.Set("protocol", "relay")
	q.Set("version", relayVersion)
	if p.cfg.ProjectID != "" {
		q.Set("projectId", p.cfg.ProjectID)
	}
	return p.cfg.BridgeURL + "?" + q.Encode()
}

func (p *RelayProvider) display(uri string) error {
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("encode pairing QR code: %w", err)
	}

	if p.cfg.Display == nil {
		p.log.WithField("uri", uri).Info("Scan the pairing URI with your wallet")
		return nil
	}
	return p.cfg.Display(uri, png)
}

func (p *RelayProvider) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.connectionLost(conn, err)
			return
		}

		var env relayEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			p.log.WithError(err).Warn("Dropping malformed relay envelope")
			continue
		}
		if env.Type != "pub" {
			continue
		}

		if err := p.write(conn, relayEnvelope{Topic: p.clientID, Type: "ack", Silent: true}); err != nil {
			p.log.WithError(err).Debug("Failed to ack relay message")
		}
		p.dispatch(env.Payload)
	}
}

func (p *RelayProvider) dispatch(payload string) {
	if !gjson.Valid(payload) {
		p.log.WithField("payload", payload).Warn("Dropping malformed relay payload")
		return
	}
	msg := gjson.Parse(payload)

	if method := msg.Get("method").String(); method != "" {
		if method == methodSessionUpdate {
			p.sessionUpdate(msg.Get("params.0"))
		}
		return
	}

	resp := relayResponse{result: msg.Get("result")}
	if e := msg.Get("error"); e.Exists() {
		resp.err = &RPCError{Code: int(e.Get("code").Int()), Message: e.Get("message").String()}
	}

	p.mu.Lock()
	ch := p.pending[msg.Get("id").Int()]
	p.mu.Unlock()

	if ch != nil {
		select {
		case ch <- resp:
		default:
		}
	}
}

func (p *RelayProvider) sessionUpdate(params gjson.Result) {
	if !params.Get("approved").Bool() {
		p.mu.Lock()
		conn := p.conn
		live := p.peerID != ""
		p.resetLocked(fmt.Errorf("session closed by wallet"))
		p.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		if live {
			p.log.Warn("Relay session closed by wallet")
			p.emit(Event{Type: EventDisconnect, Err: fmt.Errorf("session closed by wallet")})
		}
		return
	}

	accounts := stringArray(params.Get("accounts"))
	chainID := params.Get("chainId").Int()

	p.mu.Lock()
	if p.peerID == "" {
		p.mu.Unlock()
		return
	}
	accountsChanged := params.Get("accounts").Exists() && !sameAccounts(accounts, p.accounts)
	chainChanged := chainID != 0 && chainID != p.chainID
	if accountsChanged {
		p.accounts = accounts
	}
	if chainChanged {
		p.chainID = chainID
	}
	p.mu.Unlock()

	if accountsChanged {
		p.emit(Event{Type: EventAccountsChanged, Accounts: accounts})
	}
	if chainChanged {
		p.emit(Event{Type: EventChainChanged, ChainID: chainID})
	}
}

func (p *RelayProvider) connectionLost(conn *websocket.Conn, err error) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	live := p.peerID != ""
	p.resetLocked(fmt.Errorf("relay connection lost: %w", err))
	p.mu.Unlock()

	conn.Close()
	if live {
		p.log.WithError(err).Warn("Relay connection lost")
		p.emit(Event{Type: EventDisconnect, Err: err})
	}
}

// resetLocked drops the connection and session and fails pending requests.
// Callers hold p.mu.
func (p *RelayProvider) resetLocked(cause error) {
	p.conn = nil
	p.handshakeTopic = ""
	p.peerID = ""
	p.accounts = nil
	p.chainID = 0
	for id, ch := range p.pending {
		select {
		case ch <- relayResponse{err: cause}:
		default:
		}
		delete(p.pending, id)
	}
}

func (p *RelayProvider) teardown(conn *websocket.Conn) {
	p.mu.Lock()
	if p.conn == conn {
		p.resetLocked(fmt.Errorf("pairing aborted"))
	}
	p.mu.Unlock()
	conn.Close()
}

func (p *RelayProvider) register(id int64) chan relayResponse {
	ch := make(chan relayResponse, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *RelayProvider) unregister(id int64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

func (p *RelayProvider) publish(conn *websocket.Conn, topic string, request *relayRequest) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal relay request: %w", err)
	}
	return p.write(conn, relayEnvelope{Topic: topic, Type: "pub", Payload: string(payload), Silent: true})
}

func (p *RelayProvider) write(conn *websocket.Conn, env relayEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write relay message: %w", err)
	}
	return nil
}

func newRelayRequest(id int64, method string, params ...interface{}) *relayRequest {
	r := &relayRequest{
		ID:      id,
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

func stringArray(r gjson.Result) []string {
	items := r.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}
