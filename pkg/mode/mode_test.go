package mode

import (
	"sync"
	"testing"
)

func TestState_Transitions(t *testing.T) {
	s := NewState(ListeningForWakeWord)

	if s.Get() != ListeningForWakeWord {
		t.Fatalf("expected initial mode listening, got %s", s.Get())
	}
	if s.TakeStreamingEdge() {
		t.Error("no edge expected before any transition")
	}

	if !s.Set(Streaming) {
		t.Error("Set(Streaming) should report a change")
	}
	if s.Set(Streaming) {
		t.Error("repeated Set should report no change")
	}

	if !s.TakeStreamingEdge() {
		t.Error("expected edge after entering streaming")
	}
	if s.TakeStreamingEdge() {
		t.Error("edge must fire once per transition")
	}

	s.Set(ListeningForWakeWord)
	s.Set(Streaming)
	if !s.TakeStreamingEdge() {
		t.Error("expected a new edge after re-entering streaming")
	}
}

func TestState_EdgeClearedByLeavingStreaming(t *testing.T) {
	s := NewState(ListeningForWakeWord)
	s.Set(Streaming)
	s.Set(ListeningForWakeWord)

	if s.TakeStreamingEdge() {
		t.Error("edge must not fire after leaving streaming")
	}
}

func TestState_StartStreaming(t *testing.T) {
	s := NewState(Streaming)
	if !s.TakeStreamingEdge() {
		t.Error("starting in streaming should arm the edge")
	}
}

func TestState_OnChange(t *testing.T) {
	s := NewState(ListeningForWakeWord)

	var got []AppMode
	s.OnChange(func(from, to AppMode) { got = append(got, to) })

	s.Set(Streaming)
	s.Set(Streaming)
	s.Set(ListeningForWakeWord)

	if len(got) != 2 || got[0] != Streaming || got[1] != ListeningForWakeWord {
		t.Errorf("unexpected transitions %v", got)
	}
}

func TestState_ConcurrentEdge(t *testing.T) {
	s := NewState(ListeningForWakeWord)
	s.Set(Streaming)

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TakeStreamingEdge() {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if taken != 1 {
		t.Errorf("expected exactly one edge, got %d", taken)
	}
}

func TestAppMode_String(t *testing.T) {
	tests := []struct {
		m    AppMode
		want string
	}{
		{ListeningForWakeWord, "listening_for_wakeword"},
		{Streaming, "streaming"},
		{AppMode(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
