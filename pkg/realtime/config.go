package realtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-voiceloop/pkg/metrics"
)

const (
	// DefaultURL is the OpenAI Realtime endpoint.
	DefaultURL = "wss://api.openai.com/v1/realtime"

	// DefaultModel is the realtime model requested on connect.
	DefaultModel = "gpt-4o-realtime-preview-2024-12-17"

	// DefaultVoice is the assistant voice.
	DefaultVoice = "ash"
)

// Roles passed to the turn logger.
const (
	RoleUser        = "user"
	RoleAssistant   = "assistant"
	RoleToolCall    = "tool_call"
	RoleToolResult  = "tool_result"
	RoleSystemEvent = "system_event"
)

// ConnectionState represents the websocket connection state.
type ConnectionState int32

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates a dial is in progress.
	StateConnecting
	// StateOpen indicates an active connection.
	StateOpen
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds the session client configuration.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// URL is the realtime websocket endpoint; the model is added as a query parameter.
	URL string

	// Model is the realtime model.
	Model string

	// Voice is the assistant voice.
	Voice string

	// Instructions is the system prompt. Priming text is prepended on every connect.
	Instructions string

	// TranscriptionModel enables input transcription when set (e.g. "whisper-1").
	TranscriptionModel string

	// ChunkMs is the duration credited to an utterance per audio delta.
	ChunkMs int

	// ReconnectDelay is the wait between a lost session and the next dial.
	ReconnectDelay time.Duration

	// BackoffMultiplier grows the delay after consecutive failed dials. Values <= 1 keep it fixed.
	BackoffMultiplier float64

	// MaxReconnectDelay caps the grown delay.
	MaxReconnectDelay time.Duration

	// PingInterval is the keepalive period. Zero disables keepalive.
	PingInterval time.Duration

	// PingTimeout is how long to wait for a pong before closing the socket.
	PingTimeout time.Duration

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each socket write.
	WriteTimeout time.Duration

	// WakeWordAvailable reports whether the end-conversation tool may
	// switch back to wake-word listening.
	WakeWordAvailable bool

	Priming       PrimingSource
	Turns         TurnLogger
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	OnStateChange func(ConnectionState)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		URL:               DefaultURL,
		Model:             DefaultModel,
		Voice:             DefaultVoice,
		ChunkMs:           30,
		ReconnectDelay:    5 * time.Second,
		BackoffMultiplier: 1,
		MaxReconnectDelay: time.Minute,
		PingInterval:      20 * time.Second,
		PingTimeout:       10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.URL == "" {
		return fmt.Errorf("realtime: URL is required")
	}
	if c.ChunkMs <= 0 {
		return fmt.Errorf("realtime: chunk ms must be positive, got %d", c.ChunkMs)
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("realtime: reconnect delay must not be negative")
	}
	if c.PingInterval > 0 && c.PingTimeout <= 0 {
		return fmt.Errorf("realtime: ping timeout must be positive when keepalive is enabled")
	}
	return nil
}

// Option configures the client.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithURL sets the websocket endpoint.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithModel sets the realtime model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithVoice sets the assistant voice.
func WithVoice(voice string) Option {
	return func(c *Config) { c.Voice = voice }
}

// WithInstructions sets the system prompt.
func WithInstructions(instructions string) Option {
	return func(c *Config) { c.Instructions = instructions }
}

// WithTranscription enables input transcription with the given model.
func WithTranscription(model string) Option {
	return func(c *Config) { c.TranscriptionModel = model }
}

// WithChunkMs sets the per-delta duration credit.
func WithChunkMs(ms int) Option {
	return func(c *Config) { c.ChunkMs = ms }
}

// WithReconnectDelay sets the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) { c.ReconnectDelay = d }
}

// WithBackoff enables exponential growth of the reconnect delay.
func WithBackoff(multiplier float64, max time.Duration) Option {
	return func(c *Config) {
		c.BackoffMultiplier = multiplier
		c.MaxReconnectDelay = max
	}
}

// WithKeepalive sets the ping interval and pong timeout.
func WithKeepalive(interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = interval
		c.PingTimeout = timeout
	}
}

// WithWakeWord tells the client whether wake-word listening is available.
func WithWakeWord(available bool) Option {
	return func(c *Config) { c.WakeWordAvailable = available }
}

// WithPriming sets the priming context source.
func WithPriming(p PrimingSource) Option {
	return func(c *Config) { c.Priming = p }
}

// WithTurnLogger sets the conversation turn logger.
func WithTurnLogger(t TurnLogger) Option {
	return func(c *Config) { c.Turns = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithStateChange registers a connection state callback.
func WithStateChange(fn func(ConnectionState)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}
