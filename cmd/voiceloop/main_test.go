package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/teslashibe/go-voiceloop/internal/config"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "voiceloop ") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestApplyFlags(t *testing.T) {
	if err := runCmd.ParseFlags([]string{"--voice", "alloy", "--speed", "1.25", "--no-status", "--input-device", "USB"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	applyFlags(runCmd, &cfg)

	if cfg.OpenAI.Voice != "alloy" || cfg.Playback.Speed != 1.25 || cfg.Server.Enabled || cfg.Audio.InputDevice != "USB" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Audio.OutputDevice != "" || cfg.Server.Addr != ":8090" {
		t.Error("unset flags must keep configured values")
	}
}
