package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MrWong99/voxclient/internal/clock"
	"github.com/MrWong99/voxclient/internal/config"
	"github.com/MrWong99/voxclient/pkg/audio"
)

// Stdio is "-" in audio.capture or audio.playback.
const Stdio = "-"

// Devices are the opened audio endpoints.
type Devices struct {
	Capture  audio.Capture
	Playback *audio.WriterPlayback

	closers []io.Closer
}

// Close closes any files that were opened.
func (d *Devices) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenAudio opens the capture and playback endpoints named in cfg. "-" means
// stdin or stdout. A paced capture sleeps on clk after every block.
func OpenAudio(cfg config.AudioConfig, stdin io.Reader, stdout io.Writer, clk clock.Clock) (*Devices, error) {
	d := &Devices{}

	var in io.Reader = stdin
	if cfg.Capture != Stdio {
		f, err := os.Open(cfg.Capture)
		if err != nil {
			return nil, fmt.Errorf("app: open capture: %w", err)
		}
		d.closers = append(d.closers, f)
		in = f
	}
	rc := audio.NewReaderCapture(in)
	if cfg.Pace {
		rc.Pace = clk.Sleep
	}
	d.Capture = rc

	var out io.Writer = stdout
	if cfg.Playback != Stdio {
		f, err := os.Create(cfg.Playback)
		if err != nil {
			for _, c := range d.closers {
				_ = c.Close()
			}
			return nil, fmt.Errorf("app: create playback: %w", err)
		}
		d.closers = append(d.closers, f)
		out = f
	}
	d.Playback = audio.NewWriterPlayback(out, OutputFormat(cfg))
	return d, nil
}

// OutputFormat returns the playback device format, defaulting to the wire
// format.
func OutputFormat(cfg config.AudioConfig) audio.Format {
	f := audio.DefaultFormat
	if cfg.OutputSampleRate > 0 {
		f.SampleRate = cfg.OutputSampleRate
	}
	if cfg.OutputChannels > 0 {
		f.Channels = cfg.OutputChannels
	}
	return f
}
