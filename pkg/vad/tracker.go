package vad

import "time"

// Decision is the outcome of feeding one block to a [Tracker].
type Decision int

const (
	// DecisionSpeech means the block contained non-silent audio; any active
	// silence run was cleared.
	DecisionSpeech Decision = iota

	// DecisionSilence means the block was silent and the current silence run
	// has not (or no longer needs to) signal a stop.
	DecisionSilence

	// DecisionStop means the current silence run just exceeded the timeout.
	// It is returned at most once per continuous silent run.
	DecisionStop
)

// String returns the human-readable name of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionSpeech:
		return "speech"
	case DecisionSilence:
		return "silence"
	case DecisionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Tracker follows a run of silent blocks across calls to [Tracker.Observe].
//
// A Tracker is owned by a single recording session and is not safe for
// concurrent use.
type Tracker struct {
	cfg Config

	runStart time.Time
	inRun    bool
	stopped  bool
}

// NewTracker returns a [Tracker] with zero config fields defaulted.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config { return t.cfg }

// Observe classifies samples at time now and updates the silence run.
func (t *Tracker) Observe(samples []int16, now time.Time) Decision {
	if !IsSilent(samples, t.cfg.Threshold) {
		t.inRun = false
		t.stopped = false
		return DecisionSpeech
	}
	if !t.inRun {
		t.inRun = true
		t.stopped = false
		t.runStart = now
		return DecisionSilence
	}
	if !t.stopped && now.Sub(t.runStart) > t.cfg.SilenceTimeout {
		t.stopped = true
		return DecisionStop
	}
	return DecisionSilence
}

// SilenceRunStart returns the start of the active silence run, if any.
func (t *Tracker) SilenceRunStart() (time.Time, bool) {
	return t.runStart, t.inRun
}

// Reset clears the silence run.
func (t *Tracker) Reset() {
	t.inRun = false
	t.stopped = false
	t.runStart = time.Time{}
}
