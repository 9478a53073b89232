package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-voiceloop/internal/log"
	"github.com/teslashibe/go-voiceloop/pkg/mode"
	"github.com/teslashibe/go-voiceloop/pkg/tools"
)

const waitTimeout = 2 * time.Second

// clientMsg is a message the fake server received.
type clientMsg struct {
	Type string
	Raw  map[string]any
}

// fakeServer is a minimal Realtime endpoint built on httptest.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	received chan clientMsg
	conns    chan *serverConn

	mu          sync.Mutex
	headers     []http.Header
	onMessage   func(clientMsg)
	ignorePings bool
}

type serverConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{
		t:        t,
		received: make(chan clientMsg, 1024),
		conns:    make(chan *serverConn, 16),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.headers = append(s.headers, r.Header.Clone())
	ignore := s.ignorePings
	s.mu.Unlock()

	if ignore {
		conn.SetPingHandler(func(string) error { return nil })
	}

	sc := &serverConn{conn: conn}
	s.conns <- sc

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		msg := clientMsg{Type: raw["type"].(string), Raw: raw}

		s.mu.Lock()
		hook := s.onMessage
		s.mu.Unlock()
		if hook != nil {
			hook(msg)
		}
		s.received <- msg
	}
}

func (s *fakeServer) setHook(fn func(clientMsg)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

func (s *fakeServer) header(i int) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[i]
}

// accept waits for the next client connection.
func (s *fakeServer) accept() *serverConn {
	s.t.Helper()
	select {
	case sc := <-s.conns:
		return sc
	case <-time.After(waitTimeout):
		s.t.Fatal("timed out waiting for client connection")
		return nil
	}
}

// next returns the next received message of the given type, skipping others.
func (s *fakeServer) next(typ string) clientMsg {
	s.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case m := <-s.received:
			if m.Type == typ {
				return m
			}
		case <-deadline:
			s.t.Fatalf("timed out waiting for %s", typ)
			return clientMsg{}
		}
	}
}

// nextAny returns the next received message of any type.
func (s *fakeServer) nextAny() clientMsg {
	s.t.Helper()
	select {
	case m := <-s.received:
		return m
	case <-time.After(waitTimeout):
		s.t.Fatal("timed out waiting for a message")
		return clientMsg{}
	}
}

func (sc *serverConn) send(t *testing.T, v any) {
	t.Helper()
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if err := sc.conn.WriteJSON(v); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (sc *serverConn) close() {
	_ = sc.conn.Close()
}

func (sc *serverConn) sessionCreated(t *testing.T, id string) {
	sc.send(t, map[string]any{"type": EventSessionCreated, "session": map[string]any{"id": id}})
}

func (sc *serverConn) itemAdded(t *testing.T, id string) {
	sc.send(t, map[string]any{
		"type": EventOutputItemAdded,
		"item": map[string]any{"id": id, "type": "message", "role": "assistant"},
	})
}

func (sc *serverConn) audioDelta(t *testing.T, itemID string, pcm []byte) {
	sc.send(t, map[string]any{
		"type":    EventAudioDelta,
		"item_id": itemID,
		"delta":   base64.StdEncoding.EncodeToString(pcm),
	})
}

// recordingPlayer records every call in order.
type recordingPlayer struct {
	mu     sync.Mutex
	calls  []string
	played [][]byte
}

func (p *recordingPlayer) Play(pcm []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "play")
	p.played = append(p.played, append([]byte(nil), pcm...))
}

func (p *recordingPlayer) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "flush")
}

func (p *recordingPlayer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "clear")
}

func (p *recordingPlayer) count(call string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (p *recordingPlayer) playedData() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.played...)
}

// recordingDispatcher records calls without running anything.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []tools.Call
	defs  []tools.Definition
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, call tools.Call, sink tools.ResultSink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	return nil
}

func (d *recordingDispatcher) Definitions() []tools.Definition {
	return d.defs
}

func (d *recordingDispatcher) dispatched() []tools.Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]tools.Call(nil), d.calls...)
}

// recordingPrimer records the session IDs it was asked about.
type recordingPrimer struct {
	mu   sync.Mutex
	ids  []string
	text string
}

func (p *recordingPrimer) GetPrimingContext(ctx context.Context, sessionID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, sessionID)
	return p.text, nil
}

func (p *recordingPrimer) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

type testEnv struct {
	client     *Client
	player     *recordingPlayer
	dispatcher Dispatcher
	modes      *mode.State
	cancel     context.CancelFunc
	done       chan error
}

func startClient(t *testing.T, s *fakeServer, initial mode.AppMode, dispatcher Dispatcher, opts ...Option) *testEnv {
	t.Helper()
	if dispatcher == nil {
		dispatcher = &recordingDispatcher{}
	}
	env := &testEnv{
		player:     &recordingPlayer{},
		dispatcher: dispatcher,
		modes:      mode.NewState(initial),
		done:       make(chan error, 1),
	}

	base := []Option{
		WithAPIKey("sk-test"),
		WithURL(s.url()),
		WithLogger(log.Discard()),
		WithReconnectDelay(10 * time.Millisecond),
		WithKeepalive(0, 0),
		WithWakeWord(true),
	}
	c, err := NewClient(env.player, dispatcher, env.modes, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	env.client = c

	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	go func() { env.done <- c.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-env.done:
		case <-time.After(waitTimeout):
			t.Error("Run did not return after cancel")
		}
	})
	return env
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func num(v any) int {
	f, _ := v.(float64)
	return int(f)
}
