// Package indicator reports the client's coarse status on a single
// multi-colour status light (or, without hardware, in the log).
//
// A [Status] pairs a [Color] with an [Animation]. The connection manager and
// the session loop call [Sink.Show] whenever their status changes; sinks are
// expected to be cheap and must never block the loop.
package indicator

import (
	"fmt"
	"log/slog"
	"sync"
)

// Color is a 24-bit RGB value.
type Color uint32

// Named colours.
const (
	Off    Color = 0x000000
	Red    Color = 0xFF0000
	Orange Color = 0xFFA500
	Purple Color = 0x800080
	Green  Color = 0x00FF00
	Blue   Color = 0x0000FF
)

// RGB returns the red, green and blue components.
func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// String returns the colour as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%06x", uint32(c))
}

// Animation describes how the light changes over time.
type Animation int

const (
	Solid Animation = iota
	Blink
	Breathe
	HueCycle
)

// String returns the lowercase animation name.
func (a Animation) String() string {
	switch a {
	case Solid:
		return "solid"
	case Blink:
		return "blink"
	case Breathe:
		return "breathe"
	case HueCycle:
		return "hue_cycle"
	default:
		return "unknown"
	}
}

// Status is what the light shows.
type Status struct {
	Name      string
	Color     Color
	Animation Animation
}

// Predefined statuses.
var (
	LinkDown     = Status{Name: "link_down", Color: Red, Animation: Blink}
	Retrying     = Status{Name: "retrying", Color: Orange, Animation: Solid}
	Reconnecting = Status{Name: "reconnecting", Color: Purple, Animation: Solid}
	Idle         = Status{Name: "idle", Color: Green, Animation: Breathe}
	Recording    = Status{Name: "recording", Color: Green, Animation: Solid}
	Playing      = Status{Name: "playing", Color: Blue, Animation: HueCycle}
)

// Sink displays a [Status]. Implementations must be safe for concurrent use.
type Sink interface {
	Show(s Status)
}

// Nop is a [Sink] that discards every status.
type Nop struct{}

// Show implements [Sink].
func (Nop) Show(Status) {}

// Log is a [Sink] that logs status changes. Repeated calls with the same
// status are suppressed.
type Log struct {
	mu     sync.Mutex
	logger *slog.Logger
	last   Status
	shown  bool
}

// NewLog returns a [Log] sink writing to logger, or to [slog.Default] if nil.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Show implements [Sink].
func (l *Log) Show(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shown && l.last == s {
		return
	}
	l.last, l.shown = s, true
	l.logger.Info("indicator",
		"status", s.Name,
		"color", s.Color.String(),
		"animation", s.Animation.String(),
	)
}

// Current returns the last shown status and whether any has been shown.
func (l *Log) Current() (Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.shown
}
