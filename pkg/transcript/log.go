// Package transcript keeps the conversation turn log and builds the
// priming context handed to new realtime sessions.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoSession is returned when a turn has no session ID.
var ErrNoSession = errors.New("transcript: turn has no session id")

// DefaultMaxTurns bounds the in-memory log.
const DefaultMaxTurns = 500

// Turn is one logged conversation event.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an in-memory turn log with an optional snapshot store.
// It is safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	turns    []Turn
	maxTurns int
	store    Store
	logger   *slog.Logger
	now      func() time.Time
	onTurn   []func(Turn)
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithStore persists a snapshot after every turn.
func WithStore(s Store) LogOption {
	return func(l *Log) { l.store = s }
}

// WithMaxTurns bounds how many turns are kept. Older turns are dropped.
func WithMaxTurns(n int) LogOption {
	return func(l *Log) {
		if n > 0 {
			l.maxTurns = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LogOption {
	return func(l *Log) { l.logger = logger }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) LogOption {
	return func(l *Log) { l.now = now }
}

// NewLog creates a log and loads any existing snapshot from the store.
func NewLog(opts ...LogOption) (*Log, error) {
	l := &Log{
		maxTurns: DefaultMaxTurns,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "transcript")

	if l.store != nil {
		data, err := l.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load transcript: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &l.turns); err != nil {
				return nil, fmt.Errorf("decode transcript: %w", err)
			}
			l.trim()
			l.logger.Info("transcript loaded", "turns", len(l.turns))
		}
	}
	return l, nil
}

// OnTurn registers fn to run after every logged turn.
func (l *Log) OnTurn(fn func(Turn)) {
	l.mu.Lock()
	l.onTurn = append(l.onTurn, fn)
	l.mu.Unlock()
}

// LogTurn appends a turn. Store failures are logged, not returned.
func (l *Log) LogTurn(sessionID, role, content string) error {
	if sessionID == "" {
		return ErrNoSession
	}

	turn := Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: l.now().UTC(),
	}

	l.mu.Lock()
	l.turns = append(l.turns, turn)
	l.trim()
	var snapshot []byte
	if l.store != nil {
		var err error
		if snapshot, err = json.Marshal(l.turns); err != nil {
			l.logger.Warn("encode transcript failed", "error", err)
			snapshot = nil
		}
	}
	hooks := l.onTurn
	l.mu.Unlock()

	if snapshot != nil {
		if err := l.store.Save(snapshot); err != nil {
			l.logger.Warn("save transcript failed", "error", err)
		}
	}
	l.logger.Debug("turn logged", "session_id", sessionID, "role", role, "chars", len(content))

	for _, fn := range hooks {
		fn(turn)
	}
	return nil
}

// Recent returns up to limit of the newest turns, oldest first. An empty
// sessionID matches every session.
func (l *Log) Recent(sessionID string, limit int) []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Turn
	for i := len(l.turns) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if sessionID == "" || l.turns[i].SessionID == sessionID {
			out = append(out, l.turns[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len returns the number of turns held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

func (l *Log) trim() {
	if over := len(l.turns) - l.maxTurns; over > 0 {
		l.turns = append([]Turn(nil), l.turns[over:]...)
	}
}
