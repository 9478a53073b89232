// Package config loads go-voiceloop settings from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every setting when read from the environment.
const EnvPrefix = "VOICELOOP"

// OpenAI holds the realtime session settings.
type OpenAI struct {
	APIKey             string
	URL                string
	Model              string
	Voice              string
	Instructions       string
	TranscriptionModel string
	ReconnectDelay     time.Duration
	MaxReconnectDelay  time.Duration
	BackoffMultiplier  float64
	PingInterval       time.Duration
	PingTimeout        time.Duration
}

// Audio holds device and frame settings.
type Audio struct {
	Backend      string
	InputDevice  string
	OutputDevice string
	InputRate    int
	OutputRate   int
	DetectorRate int
	ChunkMs      int
	Resampler    string
}

// Detect holds wake-word and barge-in settings.
type Detect struct {
	WakeWordEngine     string
	WakeWordThreshold  float64
	WakeWordFrames     int
	VADEngine          string
	VADThreshold       float64
	ActivationMs       int
	MinSpeechFrames    int
	Cooldown           time.Duration
	SilenceResetFrames int
	VADGain            float64
}

// Playback holds time-scale modification settings.
type Playback struct {
	Speed        float64
	WindowChunks int
}

// Tools holds dispatcher settings.
type Tools struct {
	Timeout       time.Duration
	MaxConcurrent int
}

// Transcript holds turn log and priming settings.
type Transcript struct {
	File         string
	MaxTurns     int
	PrimingTurns int
	GeminiAPIKey string
	GeminiModel  string
}

// Server holds status server settings.
type Server struct {
	Enabled bool
	Addr    string
}

// Log holds logger settings.
type Log struct {
	Level  string
	Format string
}

// Config is the full process configuration.
type Config struct {
	OpenAI     OpenAI
	Audio      Audio
	Detect     Detect
	Playback   Playback
	Tools      Tools
	Transcript Transcript
	Server     Server
	Log        Log
}

// Load reads .env files (if any exist) and the environment into a Config.
// Missing .env files are not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Unprefixed names kept for compatibility with existing deployments.
	_ = v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.voice", EnvPrefix+"_OPENAI_VOICE", "OPENAI_VOICE")
	_ = v.BindEnv("openai.reconnect_delay_s", EnvPrefix+"_OPENAI_RECONNECT_DELAY_S", "OPENAI_RECONNECT_DELAY_S")
	_ = v.BindEnv("openai.ping_interval_s", EnvPrefix+"_OPENAI_PING_INTERVAL_S", "OPENAI_PING_INTERVAL_S")
	_ = v.BindEnv("openai.ping_timeout_s", EnvPrefix+"_OPENAI_PING_TIMEOUT_S", "OPENAI_PING_TIMEOUT_S")
	_ = v.BindEnv("playback.speed", EnvPrefix+"_PLAYBACK_SPEED", "TSM_PLAYBACK_SPEED")
	_ = v.BindEnv("playback.window_chunks", EnvPrefix+"_PLAYBACK_WINDOW_CHUNKS", "TSM_WINDOW_CHUNKS")
	_ = v.BindEnv("transcript.gemini_api_key", EnvPrefix+"_TRANSCRIPT_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("log.level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")

	return FromViper(v), nil
}

// Defaults returns the configuration with every default applied and
// nothing read from the environment.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	return FromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("openai.url", "wss://api.openai.com/v1/realtime")
	v.SetDefault("openai.model", "gpt-4o-realtime-preview-2024-12-17")
	v.SetDefault("openai.voice", "ash")
	v.SetDefault("openai.instructions", DefaultInstructions)
	v.SetDefault("openai.transcription_model", "whisper-1")
	v.SetDefault("openai.reconnect_delay_s", 5.0)
	v.SetDefault("openai.max_reconnect_delay_s", 60.0)
	v.SetDefault("openai.backoff_multiplier", 1.0)
	v.SetDefault("openai.ping_interval_s", 20.0)
	v.SetDefault("openai.ping_timeout_s", 10.0)

	v.SetDefault("audio.backend", "portaudio")
	v.SetDefault("audio.input_device", "")
	v.SetDefault("audio.output_device", "")
	v.SetDefault("audio.input_rate", 24000)
	v.SetDefault("audio.output_rate", 24000)
	v.SetDefault("audio.detector_rate", 16000)
	v.SetDefault("audio.chunk_ms", 30)
	v.SetDefault("audio.resampler", "hq")

	v.SetDefault("detect.wakeword_engine", "none")
	v.SetDefault("detect.wakeword_threshold", 0.08)
	v.SetDefault("detect.wakeword_frames", 8)
	v.SetDefault("detect.vad_engine", "energy")
	v.SetDefault("detect.vad_threshold", 0.01)
	v.SetDefault("detect.activation_ms", 100)
	v.SetDefault("detect.min_speech_frames", 12)
	v.SetDefault("detect.cooldown_ms", 2000)
	v.SetDefault("detect.silence_reset_frames", 3)
	v.SetDefault("detect.vad_gain", 0.20)

	v.SetDefault("playback.speed", 1.0)
	v.SetDefault("playback.window_chunks", 8)

	v.SetDefault("tools.timeout_s", 30.0)
	v.SetDefault("tools.max_concurrent", 0)

	v.SetDefault("transcript.file", "")
	v.SetDefault("transcript.max_turns", 500)
	v.SetDefault("transcript.priming_turns", 20)
	v.SetDefault("transcript.gemini_model", "gemini-2.0-flash")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) Config {
	var c Config

	c.OpenAI.APIKey = v.GetString("openai.api_key")
	c.OpenAI.URL = v.GetString("openai.url")
	c.OpenAI.Model = v.GetString("openai.model")
	c.OpenAI.Voice = v.GetString("openai.voice")
	c.OpenAI.Instructions = v.GetString("openai.instructions")
	c.OpenAI.TranscriptionModel = v.GetString("openai.transcription_model")
	c.OpenAI.ReconnectDelay = seconds(v.GetFloat64("openai.reconnect_delay_s"))
	c.OpenAI.MaxReconnectDelay = seconds(v.GetFloat64("openai.max_reconnect_delay_s"))
	c.OpenAI.BackoffMultiplier = v.GetFloat64("openai.backoff_multiplier")
	c.OpenAI.PingInterval = seconds(v.GetFloat64("openai.ping_interval_s"))
	c.OpenAI.PingTimeout = seconds(v.GetFloat64("openai.ping_timeout_s"))

	c.Audio.Backend = v.GetString("audio.backend")
	c.Audio.InputDevice = v.GetString("audio.input_device")
	c.Audio.OutputDevice = v.GetString("audio.output_device")
	c.Audio.InputRate = v.GetInt("audio.input_rate")
	c.Audio.OutputRate = v.GetInt("audio.output_rate")
	c.Audio.DetectorRate = v.GetInt("audio.detector_rate")
	c.Audio.ChunkMs = v.GetInt("audio.chunk_ms")
	c.Audio.Resampler = v.GetString("audio.resampler")

	c.Detect.WakeWordEngine = v.GetString("detect.wakeword_engine")
	c.Detect.WakeWordThreshold = v.GetFloat64("detect.wakeword_threshold")
	c.Detect.WakeWordFrames = v.GetInt("detect.wakeword_frames")
	c.Detect.VADEngine = v.GetString("detect.vad_engine")
	c.Detect.VADThreshold = v.GetFloat64("detect.vad_threshold")
	c.Detect.ActivationMs = v.GetInt("detect.activation_ms")
	c.Detect.MinSpeechFrames = v.GetInt("detect.min_speech_frames")
	c.Detect.Cooldown = time.Duration(v.GetInt("detect.cooldown_ms")) * time.Millisecond
	c.Detect.SilenceResetFrames = v.GetInt("detect.silence_reset_frames")
	c.Detect.VADGain = v.GetFloat64("detect.vad_gain")

	c.Playback.Speed = v.GetFloat64("playback.speed")
	c.Playback.WindowChunks = v.GetInt("playback.window_chunks")

	c.Tools.Timeout = seconds(v.GetFloat64("tools.timeout_s"))
	c.Tools.MaxConcurrent = v.GetInt("tools.max_concurrent")

	c.Transcript.File = v.GetString("transcript.file")
	c.Transcript.MaxTurns = v.GetInt("transcript.max_turns")
	c.Transcript.PrimingTurns = v.GetInt("transcript.priming_turns")
	c.Transcript.GeminiAPIKey = v.GetString("transcript.gemini_api_key")
	c.Transcript.GeminiModel = v.GetString("transcript.gemini_model")

	c.Server.Enabled = v.GetBool("server.enabled")
	c.Server.Addr = v.GetString("server.addr")

	c.Log.Level = v.GetString("log.level")
	c.Log.Format = v.GetString("log.format")

	return c
}

// Validate checks the configuration for values the loop cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("openai.api_key is required (set OPENAI_API_KEY)"))
	}
	if c.Audio.InputRate <= 0 || c.Audio.OutputRate <= 0 || c.Audio.DetectorRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rates must be positive (in=%d out=%d detector=%d)",
			c.Audio.InputRate, c.Audio.OutputRate, c.Audio.DetectorRate))
	}
	if c.Audio.ChunkMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_ms must be positive, got %d", c.Audio.ChunkMs))
	}
	if c.Playback.Speed <= 0 {
		errs = append(errs, fmt.Errorf("playback.speed must be positive, got %v", c.Playback.Speed))
	}
	if c.Playback.WindowChunks <= 0 {
		errs = append(errs, fmt.Errorf("playback.window_chunks must be positive, got %d", c.Playback.WindowChunks))
	}
	if c.OpenAI.PingInterval > 0 && c.OpenAI.PingTimeout <= 0 {
		errs = append(errs, errors.New("openai.ping_timeout_s must be positive when pings are enabled"))
	}
	return errors.Join(errs...)
}

// CooldownFrames converts the barge-in cooldown to a frame count.
func (c *Config) CooldownFrames() int {
	if c.Audio.ChunkMs <= 0 {
		return 0
	}
	return int(c.Detect.Cooldown.Milliseconds()) / c.Audio.ChunkMs
}

// ChunkDuration returns the duration of one capture frame.
func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.Audio.ChunkMs) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
