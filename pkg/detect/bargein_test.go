package detect

import (
	"testing"
)

// scripted is a VAD double that returns a fixed verdict per call.
type scripted struct {
	speech bool
	resets int
}

func (s *scripted) ProcessFrame([]byte) bool { return s.speech }
func (s *scripted) Reset()                   { s.resets++ }

func TestBargeIn_FiresAfterMinSpeechFrames(t *testing.T) {
	vad := &scripted{speech: true}
	interrupts := 0
	b := NewBargeInDetector(vad, BargeInConfig{MinSpeechFrames: 5, CooldownFrames: 10, SilenceResetFrames: 2}, func() { interrupts++ }, nil)

	for i := 1; i <= 4; i++ {
		if b.Process(nil) {
			t.Fatalf("fired early at frame %d", i)
		}
	}
	if !b.Process(nil) {
		t.Fatal("expected interrupt on 5th speech frame")
	}
	if interrupts != 1 {
		t.Errorf("expected 1 callback, got %d", interrupts)
	}

	c := b.Counters()
	if c.SpeechFrames != 0 || c.CooldownFramesRemaining != 10 {
		t.Errorf("unexpected counters after fire: %+v", c)
	}
}

func TestBargeIn_CooldownUnderContinuousSpeech(t *testing.T) {
	tests := []struct {
		name      string
		minSpeech int
		cooldown  int
	}{
		{"defaults", 12, 66},
		{"short cooldown", 3, 5},
		{"no cooldown", 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vad := &scripted{speech: true}
			b := NewBargeInDetector(vad, BargeInConfig{
				MinSpeechFrames:    tt.minSpeech,
				CooldownFrames:     tt.cooldown,
				SilenceResetFrames: 3,
			}, nil, nil)

			var fires []int
			for frame := 1; frame <= 400; frame++ {
				if b.Process(nil) {
					fires = append(fires, frame)
				}
			}

			if len(fires) < 2 {
				t.Fatalf("expected repeated interrupts, got %v", fires)
			}
			for i := 1; i < len(fires); i++ {
				gap := fires[i] - fires[i-1]
				if gap < tt.cooldown {
					t.Errorf("interrupts at %d and %d are only %d frames apart, cooldown is %d",
						fires[i-1], fires[i], gap, tt.cooldown)
				}
			}
		})
	}
}

func TestBargeIn_SilenceResetsBurst(t *testing.T) {
	vad := &scripted{}
	b := NewBargeInDetector(vad, BargeInConfig{MinSpeechFrames: 4, CooldownFrames: 0, SilenceResetFrames: 2}, nil, nil)

	vad.speech = true
	b.Process(nil)
	b.Process(nil)
	b.Process(nil)

	vad.speech = false
	b.Process(nil)
	if c := b.Counters(); c.SpeechFrames != 3 || c.SilenceFramesAfterSpeech != 1 {
		t.Fatalf("unexpected counters after one silent frame: %+v", c)
	}

	// A speech frame inside the silence window resumes the burst
	vad.speech = true
	if !b.Process(nil) {
		t.Fatal("expected interrupt when burst resumes before reset")
	}

	vad.speech = true
	b.Process(nil)
	vad.speech = false
	b.Process(nil)
	b.Process(nil)
	if c := b.Counters(); c.SpeechFrames != 0 || c.SilenceFramesAfterSpeech != 0 {
		t.Errorf("expected counters reset after silence, got %+v", c)
	}
}

func TestBargeIn_SkipRunsDownCooldown(t *testing.T) {
	vad := &scripted{speech: true}
	b := NewBargeInDetector(vad, BargeInConfig{MinSpeechFrames: 1, CooldownFrames: 3, SilenceResetFrames: 1}, nil, nil)

	if !b.Process(nil) {
		t.Fatal("expected immediate interrupt with MinSpeechFrames=1")
	}

	b.Skip()
	b.Skip()
	if got := b.Counters().CooldownFramesRemaining; got != 1 {
		t.Fatalf("expected cooldown 1 after two skips, got %d", got)
	}

	if !b.Process(nil) {
		t.Error("expected interrupt once cooldown reached zero")
	}
}

func TestBargeIn_SkipDiscardsPartialBurst(t *testing.T) {
	vad := &scripted{speech: true}
	b := NewBargeInDetector(vad, BargeInConfig{MinSpeechFrames: 3, CooldownFrames: 0, SilenceResetFrames: 5}, nil, nil)

	b.Process(nil)
	b.Process(nil)
	b.Skip()

	if c := b.Counters(); c.SpeechFrames != 0 {
		t.Errorf("expected burst discarded by Skip, got %+v", c)
	}
}

func TestBargeIn_Reset(t *testing.T) {
	vad := &scripted{speech: true}
	b := NewBargeInDetector(vad, DefaultBargeInConfig(), nil, nil)

	for i := 0; i < 12; i++ {
		b.Process(nil)
	}
	b.Reset()

	if c := b.Counters(); c != (BargeInCounters{}) {
		t.Errorf("expected zero counters after reset, got %+v", c)
	}
	if vad.resets != 1 {
		t.Errorf("expected classifier reset, got %d", vad.resets)
	}
	if b.Fired() != 1 {
		t.Errorf("expected fired count preserved, got %d", b.Fired())
	}
}

func TestDefaultBargeInConfig(t *testing.T) {
	cfg := DefaultBargeInConfig()
	if cfg.MinSpeechFrames != 12 || cfg.CooldownFrames != 66 || cfg.SilenceResetFrames != 3 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}
