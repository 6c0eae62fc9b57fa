package revolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"slices"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Packet Types
// ============================================================================

const (
	packetAuthenticate      = "Authenticate"
	packetAuthenticated     = "Authenticated"
	packetReady             = "Ready"
	packetPing              = "Ping"
	packetPong              = "Pong"
	packetError             = "Error"
	packetMessage           = "Message"
	packetChannelCreate     = "ChannelCreate"
	packetChannelUpdate     = "ChannelUpdate"
	packetChannelDelete     = "ChannelDelete"
	packetChannelGroupJoin  = "ChannelGroupJoin"
	packetChannelGroupLeave = "ChannelGroupLeave"
)

type packetHeader struct {
	Type string `json:"type"`
}

type authenticatePacket struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type pingPacket struct {
	Type string `json:"type"`
	Data int64  `json:"data"`
}

type readyPacket struct {
	Users    []APIUser    `json:"users"`
	Channels []APIChannel `json:"channels"`
}

type channelUpdatePacket struct {
	ID    string       `json:"id"`
	Data  ChannelPatch `json:"data"`
	Clear []string     `json:"clear,omitempty"`
}

type channelIDPacket struct {
	ID string `json:"id"`
}

type groupMembershipPacket struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type errorPacket struct {
	Error string `json:"error"`
}

// ============================================================================
// Configuration
// ============================================================================

// StreamConfig configures the push stream.
type StreamConfig struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	PingTimeout          time.Duration
	HTTPClient           *http.Client
}

func (c *StreamConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 20 * time.Second
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 10 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// StreamState represents the connection state.
type StreamState string

const (
	StateDisconnected StreamState = "disconnected"
	StateConnecting   StreamState = "connecting"
	StateConnected    StreamState = "connected"
	StateReconnecting StreamState = "reconnecting"
)

// ============================================================================
// Connection Handlers
// ============================================================================

type streamHandlers struct {
	mu             sync.RWMutex
	onReady        []func()
	onError        []func(error)
	onConnected    []func()
	onDisconnected []func(error)
	onReconnecting []func(int, time.Duration)
}

func (d *streamHandlers) emitReady() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onReady...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (d *streamHandlers) emitError(err error) {
	d.mu.RLock()
	handlers := append([]func(error){}, d.onError...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(err)
	}
}

func (d *streamHandlers) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (d *streamHandlers) emitDisconnected(err error) {
	d.mu.RLock()
	handlers := append([]func(error){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(err)
	}
}

func (d *streamHandlers) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(attempt, delay)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	mu          sync.Mutex
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *StreamConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxAttempts < 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.mu.Lock()
	r.connectedAt = time.Now()
	r.mu.Unlock()
}

// nextDelay returns the backoff for the next attempt. A connection that
// stayed up for over a minute resets the attempt counter.
func (r *reconnector) nextDelay() (int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return r.attempt, delay
}

// ============================================================================
// Stream
// ============================================================================

// Stream is a WebSocket push connection that applies server events to the
// client's cache. Packets are applied one at a time in arrival order.
type Stream struct {
	client   *Client
	config   StreamConfig
	handlers *streamHandlers
	recon    *reconnector

	mu               sync.Mutex
	conn             *websocket.Conn
	state            StreamState
	intentionalClose bool
	parent           context.Context
	cancelFn         context.CancelFunc

	pendingMu    sync.Mutex
	pingCounter  int64
	pendingPings map[int64]chan struct{}
}

// Stream creates a push stream bound to c. Call Connect to open it.
func (c *Client) Stream(config StreamConfig) *Stream {
	config.defaults()
	return &Stream{
		client:       c,
		config:       config,
		handlers:     &streamHandlers{},
		recon:        newReconnector(&config),
		state:        StateDisconnected,
		pendingPings: make(map[int64]chan struct{}),
	}
}

// OnReady registers a handler called after the initial Ready payload has
// been applied to the cache.
func (s *Stream) OnReady(h func()) {
	s.handlers.mu.Lock()
	s.handlers.onReady = append(s.handlers.onReady, h)
	s.handlers.mu.Unlock()
}

// OnError registers a handler for server errors and for packets that could
// not be applied.
func (s *Stream) OnError(h func(error)) {
	s.handlers.mu.Lock()
	s.handlers.onError = append(s.handlers.onError, h)
	s.handlers.mu.Unlock()
}

func (s *Stream) OnConnected(h func()) {
	s.handlers.mu.Lock()
	s.handlers.onConnected = append(s.handlers.onConnected, h)
	s.handlers.mu.Unlock()
}

func (s *Stream) OnDisconnected(h func(err error)) {
	s.handlers.mu.Lock()
	s.handlers.onDisconnected = append(s.handlers.onDisconnected, h)
	s.handlers.mu.Unlock()
}

func (s *Stream) OnReconnecting(h func(attempt int, delay time.Duration)) {
	s.handlers.mu.Lock()
	s.handlers.onReconnecting = append(s.handlers.onReconnecting, h)
	s.handlers.mu.Unlock()
}

// State returns the current connection state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the push endpoint and authenticates. The stream keeps
// running until ctx is cancelled or Disconnect is called.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.intentionalClose = false
	s.parent = ctx
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.cancelFn = cancel
	s.mu.Unlock()
	s.recon.markConnected()
	s.client.log.Info().Msg("stream connected")
	s.handlers.emitConnected()

	go s.readLoop(connCtx, conn)
	go s.heartbeatLoop(connCtx)
	return nil
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	url := s.client.wsURL + "?version=1&format=json"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: s.config.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(32 << 20)

	auth, err := json.Marshal(authenticatePacket{Type: packetAuthenticate, Token: s.client.token})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "")
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, auth); err != nil {
		conn.Close(websocket.StatusInternalError, "")
		return nil, fmt.Errorf("send authenticate: %w", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	var hdr packetHeader
	if err := json.Unmarshal(data, &hdr); err != nil || hdr.Type != packetAuthenticated {
		conn.Close(websocket.StatusNormalClosure, "")
		if hdr.Type == packetError {
			var ep errorPacket
			_ = json.Unmarshal(data, &ep)
			return nil, fmt.Errorf("authenticate: server error %s", ep.Error)
		}
		return nil, fmt.Errorf("expected '%s', got '%s'", packetAuthenticated, hdr.Type)
	}
	return conn, nil
}

// Disconnect gracefully closes the connection and stops reconnecting.
func (s *Stream) Disconnect() error {
	s.mu.Lock()
	s.intentionalClose = true
	cancel := s.cancelFn
	s.cancelFn = nil
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	s.clearPendingPings()

	var err error
	if conn != nil {
		// Close before cancelling so the close handshake can complete.
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		s.handlers.emitDisconnected(nil)
	}
	if cancel != nil {
		cancel()
	}
	return err
}

// Ping sends a heartbeat and waits for the matching Pong.
func (s *Stream) Ping(ctx context.Context) error {
	s.pendingMu.Lock()
	s.pingCounter++
	id := s.pingCounter
	ch := make(chan struct{}, 1)
	s.pendingPings[id] = ch
	s.pendingMu.Unlock()

	if err := s.send(ctx, pingPacket{Type: packetPing, Data: id}); err != nil {
		s.dropPing(id)
		return err
	}

	timer := time.NewTimer(s.config.PingTimeout)
	defer timer.Stop()
	select {
	case _, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		return nil
	case <-timer.C:
		s.dropPing(id)
		return fmt.Errorf("ping timeout")
	case <-ctx.Done():
		s.dropPing(id)
		return ctx.Err()
	}
}

func (s *Stream) send(ctx context.Context, v interface{}) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Stream) setState(state StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			intentional := s.intentionalClose
			parent := s.parent
			if !intentional {
				s.state = StateDisconnected
				s.conn = nil
				if s.cancelFn != nil {
					s.cancelFn()
					s.cancelFn = nil
				}
			}
			s.mu.Unlock()
			if intentional {
				return
			}

			s.client.log.Warn().Err(err).Msg("stream read failed")
			s.clearPendingPings()
			s.handlers.emitDisconnected(err)

			if s.config.AutoReconnect && parent.Err() == nil && s.recon.shouldReconnect() {
				s.scheduleReconnect(parent)
			}
			return
		}
		s.handlePacket(ctx, data)
	}
}

func (s *Stream) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.State() != StateConnected {
				return
			}
			if err := s.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				// Force the read loop to notice the dead connection.
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				}
				return
			}
		}
	}
}

func (s *Stream) scheduleReconnect(ctx context.Context) {
	for {
		attempt, delay := s.recon.nextDelay()
		s.setState(StateReconnecting)
		s.handlers.emitReconnecting(attempt, delay)

		select {
		case <-ctx.Done():
			s.setState(StateDisconnected)
			return
		case <-time.After(delay):
		}

		s.mu.Lock()
		if s.intentionalClose {
			s.state = StateDisconnected
			s.mu.Unlock()
			return
		}
		s.state = StateDisconnected
		s.mu.Unlock()

		err := s.Connect(ctx)
		if err == nil {
			return
		}
		s.client.log.Warn().Err(err).Int("attempt", attempt).Msg("stream reconnect failed")
		if !s.config.AutoReconnect || !s.recon.shouldReconnect() {
			s.setState(StateDisconnected)
			return
		}
	}
}

func (s *Stream) dropPing(id int64) {
	s.pendingMu.Lock()
	delete(s.pendingPings, id)
	s.pendingMu.Unlock()
}

func (s *Stream) clearPendingPings() {
	s.pendingMu.Lock()
	for k, ch := range s.pendingPings {
		close(ch)
		delete(s.pendingPings, k)
	}
	s.pendingMu.Unlock()
}

// ============================================================================
// Applying packets to the cache
// ============================================================================

func (s *Stream) handlePacket(ctx context.Context, data []byte) {
	var hdr packetHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		s.client.log.Warn().Err(err).Msg("stream packet decode failed")
		return
	}
	s.client.metrics.packet(hdr.Type)

	var err error
	switch hdr.Type {
	case packetPong:
		var p pingPacket
		if json.Unmarshal(data, &p) == nil {
			s.pendingMu.Lock()
			ch, ok := s.pendingPings[p.Data]
			if ok {
				delete(s.pendingPings, p.Data)
			}
			s.pendingMu.Unlock()
			if ok {
				ch <- struct{}{}
			}
		}
		return
	case packetReady:
		err = s.applyReady(ctx, data)
		if err == nil {
			s.handlers.emitReady()
		}
	case packetMessage:
		err = s.applyMessage(ctx, data)
	case packetChannelCreate:
		var raw APIChannel
		if err = json.Unmarshal(data, &raw); err == nil {
			_, err = s.client.UpsertChannel(ctx, raw)
		}
	case packetChannelUpdate:
		err = s.applyChannelUpdate(ctx, data)
	case packetChannelDelete:
		err = s.applyChannelDelete(ctx, data)
	case packetChannelGroupJoin, packetChannelGroupLeave:
		err = s.applyGroupMembership(ctx, hdr.Type, data)
	case packetError:
		var ep errorPacket
		_ = json.Unmarshal(data, &ep)
		err = fmt.Errorf("server error: %s", ep.Error)
	default:
		s.client.log.Debug().Str("type", hdr.Type).Msg("stream packet ignored")
		return
	}

	if err != nil {
		s.client.log.Warn().Err(err).Str("type", hdr.Type).Msg("stream packet not applied")
		s.handlers.emitError(fmt.Errorf("apply %s: %w", hdr.Type, err))
	}
}

func (s *Stream) applyReady(ctx context.Context, data []byte) error {
	var ready readyPacket
	if err := json.Unmarshal(data, &ready); err != nil {
		return err
	}
	var errs []error
	for _, u := range ready.Users {
		if _, err := s.client.UpsertUser(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	for _, ch := range ready.Channels {
		if _, err := s.client.UpsertChannel(ctx, ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Stream) applyMessage(ctx context.Context, data []byte) error {
	var msg APIMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	ch, err := s.client.FetchChannel(ctx, msg.Channel)
	if err != nil {
		return err
	}
	_, err = ch.UpsertMessage(ctx, msg)
	return err
}

// applyChannelUpdate patches a cached channel. Updates for channels that are
// not cached are dropped.
func (s *Stream) applyChannelUpdate(ctx context.Context, data []byte) error {
	var up channelUpdatePacket
	if err := json.Unmarshal(data, &up); err != nil {
		return err
	}
	ch, ok := s.client.registry.Channel(up.ID)
	if !ok {
		return nil
	}
	patch := up.Data
	for _, field := range up.Clear {
		if field == "Description" {
			patch.Description = String("")
		}
	}
	ch.Patch(patch, true)
	return ch.Sync(ctx)
}

func (s *Stream) applyChannelDelete(ctx context.Context, data []byte) error {
	var p channelIDPacket
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	ch, ok := s.client.registry.Channel(p.ID)
	if !ok {
		return nil
	}
	return ch.Delete(ctx, true)
}

func (s *Stream) applyGroupMembership(ctx context.Context, typ string, data []byte) error {
	var p groupMembershipPacket
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	cached, ok := s.client.registry.Channel(p.ID)
	if !ok {
		return nil
	}
	group, ok := cached.(*GroupChannel)
	if !ok {
		return nil
	}

	ids := group.RecipientIDs()
	switch typ {
	case packetChannelGroupJoin:
		if slices.Contains(ids, p.User) {
			return nil
		}
		ids = append(ids, p.User)
	case packetChannelGroupLeave:
		idx := slices.Index(ids, p.User)
		if idx < 0 {
			return nil
		}
		ids = slices.Delete(ids, idx, idx+1)
	}
	if ids == nil {
		ids = []string{}
	}
	group.Patch(ChannelPatch{Recipients: ids}, true)
	return group.Sync(ctx)
}
