// Package realtime implements the client side of the OpenAI Realtime
// protocol: session lifecycle, barge-in truncation, tool-call correlation,
// reconnection and keepalive.
package realtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-voiceloop/pkg/metrics"
	"github.com/teslashibe/go-voiceloop/pkg/mode"
	"github.com/teslashibe/go-voiceloop/pkg/tools"
)

// Player renders assistant audio. Play, Flush and Clear are called with
// session locks held and must queue work rather than wait on a device.
type Player interface {
	Play(pcm []byte)
	Flush()
	Clear()
}

// Dispatcher runs tool calls and reports each result back through a sink.
type Dispatcher interface {
	Dispatch(ctx context.Context, call tools.Call, sink tools.ResultSink) error
	Definitions() []tools.Definition
}

// ModeController is the client's view of the pipeline's AppMode.
type ModeController interface {
	Get() mode.AppMode
	Set(m mode.AppMode) bool
	TakeStreamingEdge() bool
}

// PrimingSource supplies context text from earlier sessions.
type PrimingSource interface {
	GetPrimingContext(ctx context.Context, sessionID string) (string, error)
}

// TurnLogger records conversation turns for observability.
type TurnLogger interface {
	LogTurn(sessionID, role, content string) error
}

// utterance is the assistant reply currently streaming.
type utterance struct {
	itemID   string
	playedMs int
}

// pendingCall accumulates streamed tool-call arguments.
type pendingCall struct {
	name string
	args strings.Builder
}

// Status is a point-in-time view of the client.
type Status struct {
	State             string `json:"state"`
	Connected         bool   `json:"connected"`
	SessionID         string `json:"session_id"`
	AssistantSpeaking bool   `json:"assistant_speaking"`
	SpeechDurationMs  int    `json:"speech_duration_ms"`
	CurrentItemID     string `json:"current_item_id,omitempty"`
	PendingToolCalls  int    `json:"pending_tool_calls"`
	TruncatedItems    int    `json:"truncated_items"`
	Mode              string `json:"mode"`
}

// Client manages the websocket session with the OpenAI Realtime API.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	player     Player
	dispatcher Dispatcher
	modes      ModeController

	state     atomic.Int32
	connected atomic.Bool
	localID   string

	sessionMu sync.RWMutex
	sessionID string

	// wsMu serializes socket writes. When both are needed, itemMu is
	// taken before wsMu.
	wsMu sync.Mutex
	conn *websocket.Conn

	itemMu    sync.Mutex
	utterance *utterance
	truncated map[string]struct{}
	pending   map[string]*pendingCall

	pong        chan struct{}
	lastInbound atomic.Int64
}

// NewClient creates a session client.
func NewClient(player Player, dispatcher Dispatcher, modes ModeController, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if player == nil || dispatcher == nil || modes == nil {
		return nil, fmt.Errorf("realtime: player, dispatcher and mode controller are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}

	return &Client{
		cfg:        cfg,
		logger:     cfg.Logger.With("component", "realtime.session"),
		metrics:    cfg.Metrics,
		player:     player,
		dispatcher: dispatcher,
		modes:      modes,
		localID:    "local-" + uuid.NewString(),
		truncated:  make(map[string]struct{}),
		pending:    make(map[string]*pendingCall),
		pong:       make(chan struct{}, 1),
	}, nil
}

// Run connects and serves the session until ctx is cancelled, reconnecting
// after every loss. It returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		err := c.Connect(ctx)
		if err == nil {
			failures = 0
			err = c.serve(ctx)
		} else {
			failures++
		}
		c.resetConversation()

		if ctx.Err() != nil {
			c.logger.Info("session loop stopped")
			return nil
		}

		delay := c.reconnectDelay(failures)
		c.logger.Warn("realtime session lost, reconnecting",
			"error", err,
			"delay", delay,
			"session_id", c.SessionID(),
		)
		c.metrics.RecordReconnect()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("session loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// reconnectDelay returns the fixed delay, grown exponentially after
// consecutive dial failures when a multiplier above 1 is configured.
func (c *Client) reconnectDelay(failures int) time.Duration {
	d := c.cfg.ReconnectDelay
	if c.cfg.BackoffMultiplier <= 1 || failures <= 1 {
		return d
	}
	grown := float64(d) * math.Pow(c.cfg.BackoffMultiplier, float64(failures-1))
	if c.cfg.MaxReconnectDelay > 0 && grown > float64(c.cfg.MaxReconnectDelay) {
		return c.cfg.MaxReconnectDelay
	}
	return time.Duration(grown)
}

// Connect dials the endpoint and configures the session. It does not start
// reading; Run does that. The client reports itself connected only after
// session.update is on the wire, so no audio reaches an unconfigured session.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	// Priming can take a model round trip; do it before the socket exists.
	update := c.sessionUpdate(c.primingText(ctx))

	endpoint, err := c.endpoint()
	if err != nil {
		c.setState(StateDisconnected)
		return NewConnectionError("invalid endpoint", err, false)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	c.logger.Info("connecting to OpenAI Realtime API", "model", c.cfg.Model)

	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		c.setState(StateDisconnected)
		c.metrics.RecordConnect("error")
		if resp != nil {
			return &ConnectionError{
				Reason:     fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				StatusCode: resp.StatusCode,
				Cause:      err,
				Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			}
		}
		return NewConnectionError("dial failed", err, true)
	}

	conn.SetPongHandler(func(string) error {
		c.lastInbound.Store(time.Now().UnixNano())
		select {
		case c.pong <- struct{}{}:
		default:
		}
		return nil
	})

	// The socket is not published yet, so session.update is the first
	// client message.
	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := conn.WriteJSON(update); err != nil {
		_ = conn.Close()
		c.setState(StateDisconnected)
		c.metrics.RecordConnect("error")
		return NewConnectionError("session update failed", err, true)
	}

	c.wsMu.Lock()
	c.conn = conn
	c.connected.Store(true)
	c.wsMu.Unlock()
	c.setState(StateOpen)
	c.metrics.RecordConnect("ok")

	c.logger.Info("connected to OpenAI Realtime API", "voice", c.cfg.Voice)
	return nil
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	if c.cfg.Model != "" {
		q := u.Query()
		q.Set("model", c.cfg.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// primingText asks the priming source once for context on the previous session.
func (c *Client) primingText(ctx context.Context) string {
	if c.cfg.Priming == nil {
		return ""
	}
	prev := c.SessionID()
	text, err := c.cfg.Priming.GetPrimingContext(ctx, prev)
	if err != nil {
		c.logger.Warn("priming context unavailable", "error", err, "previous_session_id", prev)
		return ""
	}
	if text != "" {
		c.logger.Info("priming session", "previous_session_id", prev, "chars", len(text))
	}
	return text
}

func (c *Client) sessionUpdate(priming string) SessionUpdate {
	instructions := c.cfg.Instructions
	if priming != "" {
		instructions = strings.TrimSpace(priming + "\n\n" + instructions)
	}

	defs := c.dispatcher.Definitions()
	wire := make([]map[string]any, 0, len(defs)+1)
	for _, d := range defs {
		wire = append(wire, d.Wire())
	}
	wire = append(wire, tools.EndConversation.Wire())

	var transcription *TranscriptionConfig
	if c.cfg.TranscriptionModel != "" {
		transcription = &TranscriptionConfig{Model: c.cfg.TranscriptionModel}
	}

	return SessionUpdate{
		Type: ClientSessionUpdate,
		Session: SessionConfig{
			Modalities:              []string{"text", "audio"},
			Voice:                   c.cfg.Voice,
			Instructions:            instructions,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: transcription,
			TurnDetection:           TurnDetection{Type: "server_vad"},
			Tools:                   wire,
			ToolChoice:              "auto",
		},
	}
}

// serve reads events until the socket fails or ctx is cancelled. The socket
// is closed before serve returns.
func (c *Client) serve(ctx context.Context) error {
	c.wsMu.Lock()
	conn := c.conn
	c.wsMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	if c.cfg.PingInterval > 0 {
		go c.keepAlive(connCtx, conn)
	}

	err := c.readLoop(connCtx, conn)
	c.dropConn(conn)
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("connection closed by server")
				return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
			return NewConnectionError("read failed", err, true)
		}
		c.lastInbound.Store(time.Now().UnixNano())
		c.handleMessage(ctx, data)
	}
}

// keepAlive pings every PingInterval and closes the socket when neither a
// pong nor any other frame arrives within PingTimeout.
func (c *Client) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drop a stale pong from an earlier round
		select {
		case <-c.pong:
		default:
		}

		sent := time.Now()
		c.wsMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, sent.Add(c.cfg.PingTimeout))
		c.wsMu.Unlock()
		if err != nil {
			c.logger.Warn("keepalive ping failed", "error", err)
			c.dropConn(conn)
			return
		}

		timer := time.NewTimer(c.cfg.PingTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.pong:
			timer.Stop()
		case <-timer.C:
			// A pong may queue behind a burst of events; any frame read
			// since the ping proves the peer is alive.
			if c.lastInbound.Load() >= sent.UnixNano() {
				continue
			}
			c.logger.Warn("keepalive pong timeout, closing socket", "timeout", c.cfg.PingTimeout)
			c.dropConn(conn)
			return
		}
	}
}

// closeConn closes the current socket if one is open. Safe to call repeatedly.
func (c *Client) closeConn() {
	c.wsMu.Lock()
	conn := c.conn
	c.wsMu.Unlock()
	if conn != nil {
		c.dropConn(conn)
	}
}

// dropConn closes conn and, if it is still the current socket, marks the
// client disconnected. A later connection is never touched.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.wsMu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		c.connected.Store(false)
	}
	c.wsMu.Unlock()

	_ = conn.Close()
	if !current {
		return
	}
	c.setState(StateDisconnected)
	c.metrics.RecordDisconnect()
}

// Close closes the current socket. Run will reconnect unless its context
// is cancelled.
func (c *Client) Close() error {
	c.closeConn()
	return nil
}

// resetConversation drops per-connection state. The session ID is kept.
func (c *Client) resetConversation() {
	c.itemMu.Lock()
	defer c.itemMu.Unlock()
	c.utterance = nil
	c.truncated = make(map[string]struct{})
	c.pending = make(map[string]*pendingCall)
}

// SendAudio appends one captured chunk to the server input buffer. It is a
// no-op returning ErrNotConnected while disconnected. The first chunk after
// each transition into Streaming also asks the model to respond.
func (c *Client) SendAudio(chunk []byte) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	if err := c.writeJSON(AudioAppend{
		Type:  ClientAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(chunk),
	}); err != nil {
		return err
	}
	c.metrics.RecordAudio("in", len(chunk))

	if c.modes.TakeStreamingEdge() {
		c.logger.Info("streaming started, requesting response")
		return c.writeJSON(c.responseCreate())
	}
	return nil
}

func (c *Client) responseCreate() ResponseCreate {
	return ResponseCreate{
		Type: ClientResponseCreate,
		Response: &ResponseConfig{
			Modalities:        []string{"text", "audio"},
			Voice:             c.cfg.Voice,
			OutputAudioFormat: "pcm16",
		},
	}
}

// SubmitToolResult sends a function_call_output item followed by a
// response.create so the model continues speaking.
func (c *Client) SubmitToolResult(callID, output string) error {
	err := c.writeJSON(
		ItemCreate{
			Type: ClientItemCreate,
			Item: OutputItem{Type: "function_call_output", CallID: callID, Output: output},
		},
		ResponseCreate{Type: ClientResponseCreate},
	)
	c.logTurn(RoleToolResult, output)
	if err != nil {
		return fmt.Errorf("submit tool result %s: %w", callID, err)
	}
	return nil
}

// Truncate cancels the current assistant utterance: local playback is
// cleared, the server is told where playback stopped and further audio for
// the item is dropped. It reports whether there was anything to truncate.
func (c *Client) Truncate(reason string) bool {
	c.itemMu.Lock()
	u := c.utterance
	if u == nil {
		c.itemMu.Unlock()
		return false
	}

	c.player.Clear()
	endMs := max(10, u.playedMs)
	err := c.writeJSON(ItemTruncate{
		Type:         ClientItemTruncate,
		ItemID:       u.itemID,
		ContentIndex: 0,
		AudioEndMs:   endMs,
	})
	c.truncated[u.itemID] = struct{}{}
	c.utterance = nil
	c.itemMu.Unlock()

	if err != nil {
		c.logger.Warn("truncate send failed", "item_id", u.itemID, "error", err)
	}
	c.logger.Info("assistant truncated", "reason", reason, "item_id", u.itemID, "audio_end_ms", endMs)
	c.metrics.RecordTruncation(reason)
	c.logTurn(RoleSystemEvent, fmt.Sprintf("assistant interrupted (%s) at %dms", reason, endMs))
	return true
}

// IsAssistantSpeaking reports whether an assistant utterance is live.
func (c *Client) IsAssistantSpeaking() bool {
	c.itemMu.Lock()
	defer c.itemMu.Unlock()
	return c.utterance != nil
}

// SpeechDurationMs returns how much of the live utterance has been played.
func (c *Client) SpeechDurationMs() int {
	c.itemMu.Lock()
	defer c.itemMu.Unlock()
	if c.utterance == nil {
		return 0
	}
	return c.utterance.playedMs
}

// SessionID returns the last server session ID, which survives reconnects.
func (c *Client) SessionID() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

// Connected reports whether the socket is open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// State returns the connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Status returns a snapshot for status reporting.
func (c *Client) Status() Status {
	s := Status{
		State:     c.State().String(),
		Connected: c.Connected(),
		SessionID: c.SessionID(),
		Mode:      c.modes.Get().String(),
	}
	c.itemMu.Lock()
	if c.utterance != nil {
		s.AssistantSpeaking = true
		s.SpeechDurationMs = c.utterance.playedMs
		s.CurrentItemID = c.utterance.itemID
	}
	s.PendingToolCalls = len(c.pending)
	s.TruncatedItems = len(c.truncated)
	c.itemMu.Unlock()
	return s
}

func (c *Client) setState(s ConnectionState) {
	if ConnectionState(c.state.Swap(int32(s))) == s {
		return
	}
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

// writeJSON writes messages back to back under one lock hold.
func (c *Client) writeJSON(msgs ...any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	for _, msg := range msgs {
		if c.cfg.WriteTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			return NewConnectionError("write failed", err, true)
		}
	}
	return nil
}

// logTurn forwards to the turn logger. Failures never reach the protocol.
func (c *Client) logTurn(role, content string) {
	if c.cfg.Turns == nil || content == "" {
		return
	}
	id := c.SessionID()
	if id == "" {
		id = c.localID
	}
	if err := c.cfg.Turns.LogTurn(id, role, content); err != nil {
		c.logger.Debug("turn log failed", "role", role, "error", err)
	}
}

var _ tools.ResultSink = (*Client)(nil)
