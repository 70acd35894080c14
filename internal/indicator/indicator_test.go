package indicator

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestColor(t *testing.T) {
	r, g, b := Orange.RGB()
	if r != 0xFF || g != 0xA5 || b != 0 {
		t.Errorf("Orange.RGB() = %d,%d,%d", r, g, b)
	}
	if got := Purple.String(); got != "#800080" {
		t.Errorf("Purple.String() = %q", got)
	}
}

func TestAnimation_String(t *testing.T) {
	for a, want := range map[Animation]string{
		Solid: "solid", Blink: "blink", Breathe: "breathe", HueCycle: "hue_cycle", Animation(9): "unknown",
	} {
		if got := a.String(); got != want {
			t.Errorf("Animation(%d).String() = %q, want %q", a, got, want)
		}
	}
}

func TestLog_SuppressesRepeats(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLog(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.Show(LinkDown)
	sink.Show(LinkDown)
	sink.Show(Retrying)
	sink.Show(LinkDown)

	if got := strings.Count(buf.String(), "msg=indicator"); got != 3 {
		t.Errorf("logged %d lines, want 3:\n%s", got, buf.String())
	}
	cur, ok := sink.Current()
	if !ok || cur != LinkDown {
		t.Errorf("Current = %+v,%v", cur, ok)
	}
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.Show(Playing)
}
