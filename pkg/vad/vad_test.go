package vad

import (
	"math"
	"testing"
	"time"
)

func TestIsSilent(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    bool
	}{
		{"empty block", nil, true},
		{"all zero", make([]int16, 512), true},
		{"just below threshold", []int16{499, -499, 0, 12}, true},
		{"positive at threshold", []int16{0, 500, 0}, false},
		{"negative at threshold", []int16{0, -500, 0}, false},
		{"single loud sample", append(make([]int16, 1023), 8000), false},
		{"min int16", []int16{math.MinInt16}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSilent(tt.samples, DefaultThreshold); got != tt.want {
				t.Errorf("IsSilent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewTracker_Defaults(t *testing.T) {
	tr := NewTracker(Config{})
	cfg := tr.Config()
	if cfg.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", cfg.Threshold, DefaultThreshold)
	}
	if cfg.SilenceTimeout != DefaultSilenceTimeout {
		t.Errorf("SilenceTimeout = %v, want %v", cfg.SilenceTimeout, DefaultSilenceTimeout)
	}
}

func TestTracker_StopFiresOncePerRun(t *testing.T) {
	tr := NewTracker(Config{Threshold: 500, SilenceTimeout: 500 * time.Millisecond})
	silent := make([]int16, 1024)
	loud := []int16{0, 3000, -3000}
	now := time.Unix(100, 0)

	var stops int
	// 2 s of continuous silence in 64 ms blocks.
	for i := 0; i < 32; i++ {
		if tr.Observe(silent, now) == DecisionStop {
			stops++
		}
		now = now.Add(64 * time.Millisecond)
	}
	if stops != 1 {
		t.Fatalf("stops during one silent run = %d, want 1", stops)
	}

	// Speech clears the run; a second run may fire again.
	if got := tr.Observe(loud, now); got != DecisionSpeech {
		t.Fatalf("Observe(loud) = %v, want speech", got)
	}
	if _, active := tr.SilenceRunStart(); active {
		t.Fatal("speech should clear the silence run")
	}
	for i := 0; i < 32; i++ {
		now = now.Add(64 * time.Millisecond)
		if tr.Observe(silent, now) == DecisionStop {
			stops++
		}
	}
	if stops != 2 {
		t.Errorf("stops after second run = %d, want 2", stops)
	}
}

func TestTracker_TimeoutIsExclusive(t *testing.T) {
	tr := NewTracker(Config{SilenceTimeout: 500 * time.Millisecond})
	silent := make([]int16, 16)
	start := time.Unix(0, 0)

	if got := tr.Observe(silent, start); got != DecisionSilence {
		t.Fatalf("first silent block = %v, want silence", got)
	}
	if got := tr.Observe(silent, start.Add(500*time.Millisecond)); got != DecisionSilence {
		t.Fatalf("at exactly the timeout = %v, want silence", got)
	}
	if got := tr.Observe(silent, start.Add(501*time.Millisecond)); got != DecisionStop {
		t.Fatalf("past the timeout = %v, want stop", got)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(Config{})
	now := time.Unix(0, 0)
	tr.Observe(make([]int16, 8), now)

	if got, ok := tr.SilenceRunStart(); !ok || !got.Equal(now) {
		t.Fatalf("SilenceRunStart = %v,%v want %v,true", got, ok, now)
	}
	tr.Reset()
	if _, ok := tr.SilenceRunStart(); ok {
		t.Error("Reset should clear the silence run")
	}
}

func TestDecision_String(t *testing.T) {
	for d, want := range map[Decision]string{
		DecisionSpeech:  "speech",
		DecisionSilence: "silence",
		DecisionStop:    "stop",
		Decision(42):    "unknown",
	} {
		if got := d.String(); got != want {
			t.Errorf("Decision(%d).String() = %q, want %q", d, got, want)
		}
	}
}

func TestSamples(t *testing.T) {
	got := Samples([]byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80, 0x7F})
	want := []int16{1, -1, math.MinInt16}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}
