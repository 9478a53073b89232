package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceloop/internal/log"
)

type frame struct {
	typ  int
	data []byte
}

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	mu      sync.Mutex
	written []frame
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}
func (c *fakeConn) Close() error { c.once.Do(func() { close(c.closed) }); return nil }
func (c *fakeConn) WriteMessage(typ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, frame{typ, append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) frames() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.written...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	waitFor(t, "hub running", h.IsRunning)
	return h, cancel
}

func TestHub_Broadcast(t *testing.T) {
	h, _ := startHub(t)

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, conn := range conns {
		go NewClient(h, conn).Run()
	}
	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]any{"state": "open"}); err != nil {
		t.Fatal(err)
	}

	for i, conn := range conns {
		waitFor(t, "delivery", func() bool { return len(conn.frames()) == 1 })
		f := conn.frames()[0]
		if f.typ != websocket.TextMessage || string(f.data) != `{"state":"open"}` {
			t.Errorf("client %d got %d %q", i, f.typ, f.data)
		}
	}
}

func TestHub_Disconnect(t *testing.T) {
	h, _ := startHub(t)

	conn := newFakeConn()
	go NewClient(h, conn).Run()
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	_ = conn.Close()
	waitFor(t, "unregister", func() bool { return h.ClientCount() == 0 })

	// Broadcasting with no clients is harmless
	_ = h.BroadcastJSON("ping")
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h, cancel := startHub(t)

	conn := newFakeConn()
	go NewClient(h, conn).Run()
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	cancel()
	waitFor(t, "close frame", func() bool {
		for _, f := range conn.frames() {
			if f.typ == websocket.CloseMessage {
				return true
			}
		}
		return false
	})
	waitFor(t, "hub stopped", func() bool { return !h.IsRunning() })
}
