package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/KorensAI/openclaw-mission-control/protocol"
)

// GatewayConnection owns the single socket to the local gateway daemon.
// It is a long-lived shared resource: created once at the composition root,
// handed by reference to every component that needs it, and torn down only
// on intentional disconnect. Reconnection re-attempts the same logical
// connection; a new one is never created per episode.
//
// Failures never propagate as panics or errors across the async boundary.
// Everything is surfaced as emitted events that observers opt into.

type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateError        ConnectionState = "error"
)

// sent to the peer when it misses a heartbeat reply, so traces can separate
// liveness closes from normal ones
const CloseCodeHeartbeatTimeout = 4000

type ConnectionSettings struct {
	WsHandshakeTimeout   time.Duration
	WriteTimeout         time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	ReconnectJitterMax   time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
}

func DefaultConnectionSettings() *ConnectionSettings {
	return &ConnectionSettings{
		WsHandshakeTimeout:   2 * time.Second,
		WriteTimeout:         5 * time.Second,
		ReconnectBase:        1 * time.Second,
		ReconnectCap:         30 * time.Second,
		ReconnectJitterMax:   500 * time.Millisecond,
		MaxReconnectAttempts: 10,
		HeartbeatInterval:    15 * time.Second,
		HeartbeatTimeout:     5 * time.Second,
	}
}

// ConnectionStatus is an immutable snapshot for display.
type ConnectionStatus struct {
	State             ConnectionState
	Connected         bool
	ReconnectAttempts int
	Url               string
}

type GatewayConnection struct {
	ctx    context.Context
	cancel context.CancelFunc

	url      string
	auth     *ClientAuth
	settings *ConnectionSettings

	router *eventRouter

	// serializes writes to the current socket
	writeLock sync.Mutex

	stateLock             sync.Mutex
	state                 ConnectionState
	ws                    *websocket.Conn
	sessionCancel         context.CancelFunc
	intentional           bool
	reconnectAttempts     int
	reconnectTimer        *time.Timer
	heartbeatTimeoutTimer *time.Timer
}

func NewGatewayConnectionWithDefaults(ctx context.Context, url string) *GatewayConnection {
	return NewGatewayConnection(ctx, url, nil, DefaultConnectionSettings())
}

func NewGatewayConnection(
	ctx context.Context,
	url string,
	auth *ClientAuth,
	settings *ConnectionSettings,
) *GatewayConnection {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &GatewayConnection{
		ctx:      cancelCtx,
		cancel:   cancel,
		url:      url,
		auth:     auth,
		settings: settings,
		router:   newEventRouter(),
		state:    ConnectionStateDisconnected,
	}
}

// Connect opens the socket. It is idempotent: a no-op while connecting or
// connected. Clears the intentional-disconnect flag so automatic
// reconnection resumes.
func (self *GatewayConnection) Connect() {
	dial := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		switch self.state {
		case ConnectionStateConnecting, ConnectionStateConnected:
			return
		}
		self.intentional = false
		self.stopReconnectTimerLocked()
		self.state = ConnectionStateConnecting
		dial = true
	}()
	if !dial {
		glog.V(2).Infof("[gw]connect ignored, already open or opening\n")
		return
	}

	self.router.emit(EventTypeStateChange, &StateChangeEvent{State: ConnectionStateConnecting})
	go self.dial()
}

// Disconnect closes the socket with a normal closure code and suppresses
// all automatic reconnection until Connect is called again.
func (self *GatewayConnection) Disconnect() {
	var ws *websocket.Conn
	wasConnected := false
	emitDisconnect := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.intentional = true
		self.stopReconnectTimerLocked()
		if self.state == ConnectionStateDisconnected {
			return
		}
		wasConnected = self.state == ConnectionStateConnected
		ws = self.ws
		self.teardownSessionLocked()
		self.state = ConnectionStateDisconnected
		emitDisconnect = true
	}()

	if ws != nil {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(self.settings.WriteTimeout))
		ws.Close()
	}
	if !emitDisconnect {
		return
	}

	glog.Infof("[gw]disconnected %s\n", self.url)
	self.router.emit(EventTypeStateChange, &StateChangeEvent{State: ConnectionStateDisconnected})
	self.router.emit(EventTypeDisconnect, &DisconnectEvent{
		Intentional:  true,
		Code:         websocket.CloseNormalClosure,
		WasConnected: wasConnected,
	})
}

// Send serializes {type, payload, timestamp} and transmits it. This is a
// fire-and-forget channel: while not connected the frame is dropped with a
// warning, never an error. Callers do not guard sends.
func (self *GatewayConnection) Send(eventType string, payload any) {
	var ws *websocket.Conn
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.state == ConnectionStateConnected {
			ws = self.ws
		}
	}()
	if ws == nil {
		glog.Warningf("[gw]send %s dropped, not connected\n", eventType)
		return
	}

	envelope, err := protocol.NewEnvelope(eventType, payload)
	if err != nil {
		glog.Warningf("[gw]send %s encode error = %s\n", eventType, err)
		return
	}
	if err := self.writeEnvelope(ws, envelope); err != nil {
		// the read loop observes the dead socket and runs the close path
		glog.Infof("[gw]send %s error = %s\n", eventType, err)
	}
}

// On registers a callback for one event type and returns its unsubscribe.
// Per-type channels carry the wire payload (json.RawMessage) or the
// lifecycle event struct; the "message" channel carries *protocol.Envelope.
func (self *GatewayConnection) On(eventType string, callback EventCallback) func() {
	return self.router.on(eventType, callback)
}

func (self *GatewayConnection) Status() *ConnectionStatus {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return &ConnectionStatus{
		State:             self.state,
		Connected:         self.state == ConnectionStateConnected,
		ReconnectAttempts: self.reconnectAttempts,
		Url:               self.url,
	}
}

// Close tears the connection down permanently. Unlike Disconnect it also
// cancels the root context, so it is for process shutdown only.
func (self *GatewayConnection) Close() {
	self.Disconnect()
	self.cancel()
}

func (self *GatewayConnection) dial() {
	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	header := http.Header{}
	if self.auth != nil {
		if self.auth.Token != "" {
			header.Set("Authorization", fmt.Sprintf("Bearer %s", self.auth.Token))
		}
		if self.auth.InstanceId != (Id{}) {
			header.Set("X-OpenClaw-Instance", self.auth.InstanceId.String())
		}
		if self.auth.AppVersion != "" {
			header.Set("X-OpenClaw-App-Version", self.auth.AppVersion)
		}
	}

	ws, _, err := dialer.DialContext(self.ctx, self.url, header)
	if err != nil {
		self.connectFailed(err)
		return
	}

	var sessionCtx context.Context
	accepted := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.state != ConnectionStateConnecting || self.intentional {
			// superseded by a disconnect while dialing
			return
		}
		self.ws = ws
		sessionCtx, self.sessionCancel = context.WithCancel(self.ctx)
		self.state = ConnectionStateConnected
		self.reconnectAttempts = 0
		accepted = true
	}()
	if !accepted {
		ws.Close()
		return
	}

	glog.Infof("[gw]connected %s\n", self.url)
	self.router.emit(EventTypeStateChange, &StateChangeEvent{State: ConnectionStateConnected})
	self.router.emit(EventTypeConnect, &ConnectEvent{Url: self.url})

	go self.readLoop(sessionCtx, ws)
	go self.heartbeatLoop(sessionCtx, ws)
}

// connectFailed handles both socket construction failures and handshake
// errors. It routes through the same error-state + conditional-reconnect
// path as mid-session failures, so the two are handled uniformly.
func (self *GatewayConnection) connectFailed(err error) {
	schedule := false
	failed := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.state != ConnectionStateConnecting {
			return
		}
		self.state = ConnectionStateError
		schedule = !self.intentional
		failed = true
	}()
	if !failed {
		return
	}

	glog.Infof("[gw]connect error %s = %s\n", self.url, err)
	self.router.emit(EventTypeStateChange, &StateChangeEvent{State: ConnectionStateError})
	self.router.emit(EventTypeError, &ErrorEvent{Err: err})
	if schedule {
		self.scheduleReconnect()
	}
}

// scheduleReconnect arms at most one pending reconnect timer. The attempt
// counter increments here, before the delay for that attempt is computed,
// and resets only on a successful connection.
func (self *GatewayConnection) scheduleReconnect() {
	attempt := 0
	attempts := 0
	var delay time.Duration
	exhausted := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.intentional {
			return
		}
		if self.reconnectTimer != nil {
			// one already pending
			return
		}
		if self.settings.MaxReconnectAttempts <= self.reconnectAttempts {
			attempts = self.reconnectAttempts
			exhausted = true
			return
		}
		self.reconnectAttempts += 1
		attempt = self.reconnectAttempts
		delay = reconnectDelay(attempt, self.settings)
		self.reconnectTimer = time.AfterFunc(delay, self.reconnectNow)
	}()

	if exhausted {
		glog.Infof("[gw]reconnect failed after %d attempts\n", attempts)
		self.router.emit(EventTypeReconnectFailed, &ReconnectFailedEvent{Attempts: attempts})
		return
	}
	if attempt == 0 {
		return
	}

	glog.Infof("[gw]reconnect %d in %s\n", attempt, delay)
	self.router.emit(EventTypeReconnecting, &ReconnectingEvent{Attempt: attempt, Delay: delay})
}

func (self *GatewayConnection) reconnectNow() {
	dial := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.reconnectTimer = nil
		if self.intentional {
			return
		}
		switch self.state {
		case ConnectionStateConnecting, ConnectionStateConnected:
			// superseded by a manual connect
			return
		}
		self.state = ConnectionStateConnecting
		dial = true
	}()
	if !dial {
		return
	}

	self.router.emit(EventTypeStateChange, &StateChangeEvent{State: ConnectionStateConnecting})
	self.dial()
}

// delay for attempt n (1-indexed) is min(base * 2^(n-1), cap) plus uniform
// jitter in [0, jitterMax)
func reconnectDelay(attempt int, settings *ConnectionSettings) time.Duration {
	delay := settings.ReconnectBase
	for i := 1; i < attempt; i += 1 {
		delay *= 2
		if settings.ReconnectCap <= delay {
			delay = settings.ReconnectCap
			break
		}
	}
	if settings.ReconnectCap < delay {
		delay = settings.ReconnectCap
	}
	if 0 < settings.ReconnectJitterMax {
		delay += time.Duration(mathrand.Int63n(int64(settings.ReconnectJitterMax)))
	}
	return delay
}

func (self *GatewayConnection) readLoop(sessionCtx context.Context, ws *websocket.Conn) {
	for {
		select {
		case <-sessionCtx.Done():
			return
		default:
		}

		_, frame, err := ws.ReadMessage()
		if err != nil {
			self.socketClosed(ws, err)
			return
		}
		self.handleFrame(frame)
	}
}

func (self *GatewayConnection) handleFrame(frame []byte) {
	envelope, ok := protocol.ParseEnvelope(frame)
	if !ok {
		glog.V(2).Infof("[gw]raw frame (%d bytes)\n", len(frame))
		self.router.emit(EventTypeRawMessage, &RawMessageEvent{Data: frame})
		return
	}

	if envelope.Type == protocol.EventTypePong {
		// consumed internally, never forwarded
		glog.V(2).Infof("[hb]pong\n")
		self.clearHeartbeatTimeout()
		return
	}

	glog.V(2).Infof("[gw]<- %s\n", envelope.Type)
	self.router.emit(envelope.Type, envelope.Payload)
	self.router.emit(EventTypeMessage, envelope)
}

// socketClosed is the single close-handling path for unintentional closes:
// peer closes, read errors, and the force-close after a heartbeat timeout.
func (self *GatewayConnection) socketClosed(ws *websocket.Conn, err error) {
	wasConnected := false
	intentional := false
	closed := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.ws != ws {
			// already torn down by Disconnect
			return
		}
		wasConnected = self.state == ConnectionStateConnected
		intentional = self.intentional
		self.teardownSessionLocked()
		self.state = ConnectionStateDisconnected
		closed = true
	}()
	if !closed {
		return
	}

	code, reason := closeCodeAndReason(err)
	glog.Infof("[gw]socket closed code=%d reason=%q\n", code, reason)
	self.router.emit(EventTypeStateChange, &StateChangeEvent{State: ConnectionStateDisconnected})
	self.router.emit(EventTypeDisconnect, &DisconnectEvent{
		Intentional:  intentional,
		Code:         code,
		Reason:       reason,
		WasConnected: wasConnected,
	})
	if !intentional {
		self.scheduleReconnect()
	}
}

func closeCodeAndReason(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return 0, err.Error()
}

// heartbeatLoop sends a ping probe every interval over the connected
// socket. Each probe arms the liveness timeout unless one is already
// pending from an unanswered probe.
func (self *GatewayConnection) heartbeatLoop(sessionCtx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(self.settings.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sessionCtx.Done():
			return
		case <-ticker.C:
			glog.V(2).Infof("[hb]ping\n")
			// armed before the write. The pong can race the write completion,
			// and a pong must always find the timeout it clears.
			self.armHeartbeatTimeout(ws)
			if err := self.writeEnvelope(ws, &protocol.Envelope{Type: protocol.EventTypePing}); err != nil {
				glog.Infof("[hb]ping error = %s\n", err)
				return
			}
		}
	}
}

func (self *GatewayConnection) armHeartbeatTimeout(ws *websocket.Conn) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.ws != ws {
		return
	}
	if self.heartbeatTimeoutTimer != nil {
		// keep the earlier deadline
		return
	}
	self.heartbeatTimeoutTimer = time.AfterFunc(self.settings.HeartbeatTimeout, func() {
		self.heartbeatExpired(ws)
	})
}

func (self *GatewayConnection) clearHeartbeatTimeout() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.heartbeatTimeoutTimer != nil {
		self.heartbeatTimeoutTimer.Stop()
		self.heartbeatTimeoutTimer = nil
	}
}

// heartbeatExpired force-closes a stale socket with a distinct close code.
// The read loop observes the close and runs the normal close path, which
// schedules a reconnect unless the disconnect was intentional.
func (self *GatewayConnection) heartbeatExpired(ws *websocket.Conn) {
	stale := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.heartbeatTimeoutTimer = nil
		if self.ws != ws {
			// timer raced a teardown
			return
		}
		stale = true
	}()
	if !stale {
		return
	}

	glog.Infof("[hb]no pong within %s, closing\n", self.settings.HeartbeatTimeout)
	self.router.emit(EventTypeHeartbeatTimeout, &HeartbeatTimeoutEvent{})

	message := websocket.FormatCloseMessage(CloseCodeHeartbeatTimeout, "heartbeat timeout")
	ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(self.settings.WriteTimeout))
	ws.Close()
}

func (self *GatewayConnection) writeEnvelope(ws *websocket.Conn, envelope *protocol.Envelope) error {
	frame, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, frame)
}

// must be called with `stateLock`
func (self *GatewayConnection) teardownSessionLocked() {
	if self.sessionCancel != nil {
		self.sessionCancel()
		self.sessionCancel = nil
	}
	self.ws = nil
	if self.heartbeatTimeoutTimer != nil {
		self.heartbeatTimeoutTimer.Stop()
		self.heartbeatTimeoutTimer = nil
	}
}

// must be called with `stateLock`
func (self *GatewayConnection) stopReconnectTimerLocked() {
	if self.reconnectTimer != nil {
		self.reconnectTimer.Stop()
		self.reconnectTimer = nil
	}
}
