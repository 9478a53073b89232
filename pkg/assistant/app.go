// Package assistant wires the voice loop together: audio devices, the
// realtime session, the capture pipeline, tools, the transcript and the
// status server.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-voiceloop/internal/config"
	"github.com/teslashibe/go-voiceloop/pkg/audioio"
	"github.com/teslashibe/go-voiceloop/pkg/detect"
	"github.com/teslashibe/go-voiceloop/pkg/metrics"
	"github.com/teslashibe/go-voiceloop/pkg/mode"
	"github.com/teslashibe/go-voiceloop/pkg/pipeline"
	"github.com/teslashibe/go-voiceloop/pkg/playback"
	"github.com/teslashibe/go-voiceloop/pkg/realtime"
	"github.com/teslashibe/go-voiceloop/pkg/tools"
	"github.com/teslashibe/go-voiceloop/pkg/transcript"
	"github.com/teslashibe/go-voiceloop/pkg/web"
)

// Status is the loop state served by the status API.
type Status struct {
	realtime.Status
	WakeWord       string                 `json:"wake_word,omitempty"`
	PlaybackDead   bool                   `json:"playback_dead"`
	PlaybackBuffer int                    `json:"playback_buffered_bytes"`
	FramesPlayed   int64                  `json:"frames_played"`
	BargeIn        detect.BargeInCounters `json:"barge_in"`
	Turns          int                    `json:"turns"`
}

// Option configures an App.
type Option func(*options)

type options struct {
	source     audioio.Source
	sink       audioio.Sink
	tools      []tools.Tool
	logger     *slog.Logger
	summarizer transcript.Summarizer
}

// WithDevices uses the given devices instead of opening the configured ones.
func WithDevices(source audioio.Source, sink audioio.Sink) Option {
	return func(o *options) {
		o.source = source
		o.sink = sink
	}
}

// WithTools registers extra tools alongside the built-ins.
func WithTools(t ...tools.Tool) Option {
	return func(o *options) { o.tools = append(o.tools, t...) }
}

// WithLogger sets the root logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSummarizer overrides the priming summarizer.
func WithSummarizer(s transcript.Summarizer) Option {
	return func(o *options) { o.summarizer = s }
}

// App is the voice loop orchestrator. It owns every component and their
// lifecycle.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	modes   *mode.State

	source audioio.Source
	sink   audioio.Sink
	player *playback.Engine

	wakeWord   *detect.WakeWordGate
	dispatcher *tools.Dispatcher
	turns      *transcript.Log
	client     *realtime.Client
	pipeline   *pipeline.Pipeline
	web        *web.Server
}

// New builds every component from cfg. Devices are opened here and closed
// by Close.
func New(ctx context.Context, cfg config.Config, opts ...Option) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	a := &App{
		cfg:     cfg,
		logger:  o.logger.With("component", "assistant"),
		metrics: metrics.NewMetrics(""),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.initDevices(o); err != nil {
		return nil, fmt.Errorf("audio devices: %w", err)
	}
	if err := a.initDetectors(o.logger); err != nil {
		return nil, fmt.Errorf("detectors: %w", err)
	}
	if err := a.initTools(o); err != nil {
		return nil, fmt.Errorf("tools: %w", err)
	}
	primer, err := a.initTranscript(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	if err := a.initSession(o.logger, primer); err != nil {
		return nil, fmt.Errorf("realtime session: %w", err)
	}
	if err := a.initPipeline(o.logger); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.Server.Enabled {
		a.initWeb(o.logger)
	}

	return a, nil
}

func (a *App) initDevices(o options) error {
	if o.source != nil && o.sink != nil {
		a.source, a.sink = o.source, o.sink
	} else {
		in := audioio.Config{
			Backend:       audioio.Backend(a.cfg.Audio.Backend),
			SampleRate:    a.cfg.Audio.InputRate,
			Channels:      1,
			FrameDuration: a.cfg.ChunkDuration(),
			Device:        a.cfg.Audio.InputDevice,
		}
		src, err := audioio.NewSource(in, o.logger)
		if err != nil {
			return fmt.Errorf("microphone: %w", err)
		}
		a.source = src

		out := in
		out.SampleRate = a.cfg.Audio.OutputRate
		out.Device = a.cfg.Audio.OutputDevice
		sink, err := audioio.NewSink(out, o.logger)
		if err != nil {
			return fmt.Errorf("speaker: %w", err)
		}
		a.sink = sink
	}

	player, err := playback.New(a.sink,
		playback.WithSpeed(a.cfg.Playback.Speed),
		playback.WithWindowChunks(a.cfg.Playback.WindowChunks),
		playback.WithLogger(o.logger),
		playback.WithMetrics(a.metrics),
		playback.WithDeviceErrorHandler(func(err error) {
			a.logger.Error("speaker failed, playback disabled", "error", err)
			a.publishStatus()
		}),
	)
	if err != nil {
		return err
	}
	a.player = player
	return nil
}

func (a *App) initDetectors(logger *slog.Logger) error {
	wake, err := detect.NewDetector(a.cfg.Detect.WakeWordEngine, a.cfg.Detect.WakeWordThreshold, a.cfg.Detect.WakeWordFrames)
	if err != nil {
		return fmt.Errorf("wake word: %w", err)
	}
	a.wakeWord = detect.NewWakeWordGate(wake, a.cfg.Detect.WakeWordEngine, logger)

	initial := mode.Streaming
	if a.wakeWord.Available() {
		initial = mode.ListeningForWakeWord
	}
	a.modes = mode.NewState(initial)
	a.modes.OnChange(func(from, to mode.AppMode) {
		a.logger.Info("mode changed", "from", from, "to", to)
		a.publishStatus()
	})
	return nil
}

func (a *App) initTools(o options) error {
	registry, err := tools.NewRegistry(append(tools.Builtins(), o.tools...)...)
	if err != nil {
		return err
	}
	a.dispatcher = tools.NewDispatcher(registry,
		tools.WithHandlerTimeout(a.cfg.Tools.Timeout),
		tools.WithMaxConcurrent(a.cfg.Tools.MaxConcurrent),
		tools.WithDispatcherLogger(o.logger),
		tools.WithDispatcherMetrics(a.metrics),
	)
	return nil
}

func (a *App) initTranscript(ctx context.Context, o options) (*transcript.Primer, error) {
	logOpts := []transcript.LogOption{
		transcript.WithMaxTurns(a.cfg.Transcript.MaxTurns),
		transcript.WithLogger(o.logger),
	}
	if a.cfg.Transcript.File != "" {
		logOpts = append(logOpts, transcript.WithStore(transcript.NewJSONStore(a.cfg.Transcript.File)))
	}
	turns, err := transcript.NewLog(logOpts...)
	if err != nil {
		return nil, err
	}
	a.turns = turns

	summarizer := o.summarizer
	if summarizer == nil && a.cfg.Transcript.GeminiAPIKey != "" {
		g, err := transcript.NewGeminiSummarizer(ctx, a.cfg.Transcript.GeminiAPIKey, a.cfg.Transcript.GeminiModel)
		if err != nil {
			return nil, err
		}
		summarizer = g
	}
	return transcript.NewPrimer(turns, summarizer, a.cfg.Transcript.PrimingTurns, o.logger), nil
}

func (a *App) initSession(logger *slog.Logger, primer *transcript.Primer) error {
	oc := a.cfg.OpenAI
	client, err := realtime.NewClient(a.player, a.dispatcher, a.modes,
		realtime.WithAPIKey(oc.APIKey),
		realtime.WithURL(oc.URL),
		realtime.WithModel(oc.Model),
		realtime.WithVoice(oc.Voice),
		realtime.WithInstructions(oc.Instructions),
		realtime.WithTranscription(oc.TranscriptionModel),
		realtime.WithChunkMs(a.cfg.Audio.ChunkMs),
		realtime.WithReconnectDelay(oc.ReconnectDelay),
		realtime.WithBackoff(oc.BackoffMultiplier, oc.MaxReconnectDelay),
		realtime.WithKeepalive(oc.PingInterval, oc.PingTimeout),
		realtime.WithWakeWord(a.wakeWord.Available()),
		realtime.WithPriming(primer),
		realtime.WithTurnLogger(a.turns),
		realtime.WithLogger(logger),
		realtime.WithMetrics(a.metrics),
		realtime.WithStateChange(func(realtime.ConnectionState) { a.publishStatus() }),
	)
	if err != nil {
		return err
	}
	a.client = client
	return nil
}

func (a *App) initPipeline(logger *slog.Logger) error {
	bargeIn := detect.BargeInConfig{
		MinSpeechFrames:    a.cfg.Detect.MinSpeechFrames,
		CooldownFrames:     a.cfg.CooldownFrames(),
		SilenceResetFrames: a.cfg.Detect.SilenceResetFrames,
	}
	vad, err := detect.NewDetector(a.cfg.Detect.VADEngine, a.cfg.Detect.VADThreshold, 1)
	if err != nil {
		return fmt.Errorf("vad: %w", err)
	}

	p, err := pipeline.New(a.source, a.client, a.modes,
		pipeline.WithDetectorRate(a.cfg.Audio.DetectorRate),
		pipeline.WithResampler(a.cfg.Audio.Resampler),
		pipeline.WithActivationThreshold(a.cfg.Detect.ActivationMs),
		pipeline.WithVADGain(a.cfg.Detect.VADGain),
		pipeline.WithBargeIn(vad, bargeIn),
		pipeline.WithWakeWord(a.wakeWord),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

func (a *App) initWeb(logger *slog.Logger) {
	a.web = web.NewServer(a.cfg.Server.Addr,
		web.WithStatus(func() any { return a.Status() }),
		web.WithTurns(a.turns),
		web.WithTools(a.dispatcher.Definitions),
		web.WithMetrics(a.metrics),
		web.WithLogger(logger),
	)
	a.turns.OnTurn(a.web.PublishTurn)
}

// Run starts the session, the capture loop and the status server and
// blocks until ctx is cancelled or the microphone fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("voice loop starting",
		"mode", a.modes.Get(),
		"wake_word", a.wakeWord.Available(),
		"voice", a.cfg.OpenAI.Voice,
		"playback_speed", a.cfg.Playback.Speed,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.client.Run(ctx) })
	g.Go(func() error {
		if err := a.pipeline.Run(ctx); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		return nil
	})
	if a.web != nil {
		g.Go(func() error { return a.web.Run(ctx) })
	}

	err := g.Wait()
	a.dispatcher.Wait()
	a.logger.Info("voice loop stopped")
	return err
}

// Status returns a snapshot of the loop state.
func (a *App) Status() Status {
	return Status{
		Status:         a.client.Status(),
		WakeWord:       a.wakeWord.Name(),
		PlaybackDead:   a.player.Dead(),
		PlaybackBuffer: a.player.Buffered(),
		FramesPlayed:   a.player.FramesWritten(),
		BargeIn:        a.pipeline.BargeInCounters(),
		Turns:          a.turns.Len(),
	}
}

// Metrics returns the metrics collector.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Close releases the session and the audio devices.
func (a *App) Close() error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.player != nil {
		errs = append(errs, a.player.Close())
	} else if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.source != nil {
		errs = append(errs, a.source.Close())
	}
	return errors.Join(errs...)
}

// publishStatus runs asynchronously: callers may hold session or playback
// locks that Status needs.
func (a *App) publishStatus() {
	if a.web == nil || a.client == nil || a.pipeline == nil {
		return
	}
	go a.web.PublishStatus()
}
