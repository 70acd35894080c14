// Package vad implements the energy-threshold voice activity detector used to
// end a recording early once the speaker falls silent.
//
// The detector is deliberately simple: a block of 16-bit PCM samples is
// silent when every sample's magnitude stays below a fixed amplitude
// threshold. There is no spectral analysis and no smoothing. A [Tracker]
// layers silence-run timing on top of [IsSilent] and signals [DecisionStop]
// once a continuous silent run outlasts the configured timeout.
//
// The VAD only ever shortens a recording; the hard maximum recording duration
// is enforced independently by the session state machine.
package vad

import "time"

// Default detector parameters.
const (
	// DefaultThreshold is the amplitude below which a sample counts as silence.
	DefaultThreshold = 500

	// DefaultSilenceTimeout is how long a silent run must last before the
	// tracker signals [DecisionStop].
	DefaultSilenceTimeout = 500 * time.Millisecond
)

// Config holds the two tunables of the detector.
type Config struct {
	// Threshold is the exclusive amplitude bound for silence. A sample whose
	// absolute value is >= Threshold makes its block non-silent.
	// Defaults to [DefaultThreshold] if zero.
	Threshold int

	// SilenceTimeout is the silent-run duration that must be exceeded before
	// a stop is signalled. Defaults to [DefaultSilenceTimeout] if zero.
	SilenceTimeout time.Duration
}

// withDefaults returns cfg with zero fields replaced by package defaults.
func (cfg Config) withDefaults() Config {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultSilenceTimeout
	}
	return cfg
}

// IsSilent reports whether every sample's absolute value is strictly below
// threshold. An empty block is silent.
func IsSilent(samples []int16, threshold int) bool {
	for _, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v >= threshold {
			return false
		}
	}
	return true
}
