package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-voiceloop/internal/log"
	"github.com/teslashibe/go-voiceloop/pkg/metrics"
	"github.com/teslashibe/go-voiceloop/pkg/tools"
	"github.com/teslashibe/go-voiceloop/pkg/transcript"
)

type fakeTurns struct {
	session string
	limit   int
}

func (f *fakeTurns) Recent(sessionID string, limit int) []transcript.Turn {
	f.session, f.limit = sessionID, limit
	return []transcript.Turn{{ID: "t1", SessionID: "sess", Role: "user", Content: "hi"}}
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestServer_Routes(t *testing.T) {
	turns := &fakeTurns{}
	m := metrics.NewMetrics("webtest")
	m.RecordTruncation("local_vad")

	s := NewServer(":0",
		WithLogger(log.Discard()),
		WithStatus(func() any { return map[string]any{"state": "open", "mode": "streaming"} }),
		WithTurns(turns),
		WithTools(func() []tools.Definition { return []tools.Definition{tools.EndConversation} }),
		WithMetrics(m),
	)
	app := s.App()

	tests := []struct {
		name     string
		path     string
		wantCode int
		contains string
	}{
		{"health", "/healthz", 200, `"status":"ok"`},
		{"status", "/api/status", 200, `"mode":"streaming"`},
		{"turns", "/api/turns?session=sess&limit=5", 200, `"content":"hi"`},
		{"turns bad limit", "/api/turns?limit=0", 400, "limit"},
		{"tools", "/api/tools", 200, tools.EndConversationName},
		{"metrics", "/metrics", 200, `webtest_truncations_total{reason="local_vad"} 1`},
		{"ws without upgrade", "/ws/status", fiber.StatusUpgradeRequired, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, app, tt.path)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", code, tt.wantCode, body)
			}
			if !strings.Contains(body, tt.contains) {
				t.Errorf("body %q does not contain %q", body, tt.contains)
			}
		})
	}

	if turns.session != "sess" || turns.limit != 5 {
		t.Errorf("turn query passed %q/%d", turns.session, turns.limit)
	}
}

func TestServer_Defaults(t *testing.T) {
	app := NewServer(":0", WithLogger(log.Discard())).App()

	code, body := get(t, app, "/api/turns")
	if code != 200 || strings.TrimSpace(body) != "[]" {
		t.Errorf("turns without source = %d %q", code, body)
	}

	code, body = get(t, app, "/api/status")
	var v map[string]any
	if code != 200 || json.Unmarshal([]byte(body), &v) != nil {
		t.Errorf("status without source = %d %q", code, body)
	}

	if code, _ := get(t, app, "/metrics"); code != 404 {
		t.Errorf("metrics without registry = %d, want 404", code)
	}
}

func TestServer_TurnsSessionOutlivesRequest(t *testing.T) {
	turns := &fakeTurns{}
	app := NewServer(":0", WithLogger(log.Discard()), WithTurns(turns)).App()

	if code, _ := get(t, app, "/api/turns?session=sess_kitchen&limit=3"); code != 200 {
		t.Fatalf("turns = %d", code)
	}

	// Later requests reuse the server's request buffers
	for i := 0; i < 5; i++ {
		get(t, app, "/healthz?pad=xxxxxxxxxxxxxxxx")
		get(t, app, "/api/turns?limit=0")
	}

	if turns.session != "sess_kitchen" {
		t.Errorf("retained session = %q, want sess_kitchen", turns.session)
	}
}
