package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceloop/internal/config"
	"github.com/teslashibe/go-voiceloop/internal/log"
	"github.com/teslashibe/go-voiceloop/pkg/assistant"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the voice loop",
	Long: `Start the voice loop.

Captures the default microphone, streams it to the realtime model and plays
the reply. With a wake-word engine configured the loop idles until the wake
word is heard; otherwise it streams continuously.

Examples:
  OPENAI_API_KEY=sk-... voiceloop run
  voiceloop run --voice alloy --speed 1.2 --status-addr :9090`,
	RunE: runLoop,
}

func init() {
	f := runCmd.Flags()
	f.String("voice", "", "assistant voice (overrides VOICELOOP_OPENAI_VOICE)")
	f.Float64("speed", 0, "playback speed; 1.0 disables time stretching")
	f.String("status-addr", "", "status server address; empty keeps the configured value")
	f.Bool("no-status", false, "disable the status server")
	f.String("input-device", "", "microphone name substring")
	f.String("output-device", "", "speaker name substring")
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)

	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := assistant.New(ctx, cfg, assistant.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	return app.Run(ctx)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if v, _ := f.GetString("voice"); v != "" {
		cfg.OpenAI.Voice = v
	}
	if v, _ := f.GetFloat64("speed"); v > 0 {
		cfg.Playback.Speed = v
	}
	if v, _ := f.GetString("status-addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v, _ := f.GetBool("no-status"); v {
		cfg.Server.Enabled = false
	}
	if v, _ := f.GetString("input-device"); v != "" {
		cfg.Audio.InputDevice = v
	}
	if v, _ := f.GetString("output-device"); v != "" {
		cfg.Audio.OutputDevice = v
	}
}
