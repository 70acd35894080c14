package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxclient/internal/protocol"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It expects
// [ApplyDefaults] to have run and returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Log
	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "" && !cfg.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	// Server
	if cfg.Server.Host == "" {
		errs = append(errs, errors.New("server.host is required"))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if cfg.Server.Transport != "" && !cfg.Server.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("server.transport %q is invalid; valid values: tcp, websocket", cfg.Server.Transport))
	}
	errs = appendNonNegative(errs, "server.connect_timeout", cfg.Server.ConnectTimeout)
	errs = appendNonNegative(errs, "server.io_timeout", cfg.Server.IOTimeout)
	errs = appendNonNegative(errs, "server.keep_alive", cfg.Server.KeepAlive)
	errs = appendNonNegative(errs, "server.user_timeout", cfg.Server.UserTimeout)

	// Protocol
	if cfg.Protocol.Dialect != "" && !cfg.Protocol.Dialect.IsValid() {
		errs = append(errs, fmt.Errorf("protocol.dialect %q is invalid; valid values: text, binary", cfg.Protocol.Dialect))
	}
	if cfg.Protocol.MaxChunk < 0 || cfg.Protocol.MaxChunk > protocol.MaxChunkSize {
		errs = append(errs, fmt.Errorf("protocol.max_chunk %d is out of range [1, %d]", cfg.Protocol.MaxChunk, protocol.MaxChunkSize))
	}
	if cfg.Protocol.MaxReceivePayload < 0 || cfg.Protocol.MaxReceivePayload > protocol.MaxPayloadSize {
		errs = append(errs, fmt.Errorf("protocol.max_receive_payload %d is out of range [0, %d]", cfg.Protocol.MaxReceivePayload, protocol.MaxPayloadSize))
	}

	// Audio
	if cfg.Audio.ProbeSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.probe_samples %d must not be negative", cfg.Audio.ProbeSamples))
	}
	if cfg.Audio.BlockSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.block_samples %d must not be negative", cfg.Audio.BlockSamples))
	}
	if c := cfg.Audio.OutputChannels; c < 0 || c > 2 {
		errs = append(errs, fmt.Errorf("audio.output_channels %d is out of range [0, 2]", c))
	}
	if cfg.Audio.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must not be negative", cfg.Audio.OutputSampleRate))
	}

	// VAD
	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 32768 {
		errs = append(errs, fmt.Errorf("vad.threshold %d is out of range [0, 32768]", cfg.VAD.Threshold))
	}
	errs = appendNonNegative(errs, "vad.silence_timeout", cfg.VAD.SilenceTimeout)

	// Session
	errs = appendNonNegative(errs, "session.max_recording", cfg.Session.MaxRecording)
	errs = appendNonNegative(errs, "session.ack_window", cfg.Session.AckWindow)
	errs = appendNonNegative(errs, "session.ack_poll", cfg.Session.AckPoll)
	errs = appendNonNegative(errs, "session.wake_poll", cfg.Session.WakePoll)
	errs = appendNonNegative(errs, "session.stale_timeout", cfg.Session.StaleTimeout)
	errs = appendNonNegative(errs, "session.read_retry", cfg.Session.ReadRetry)
	if cfg.Session.StaleTimeout > 0 && cfg.Session.StaleTimeout < cfg.Session.AckWindow {
		slog.Warn("session.stale_timeout is shorter than session.ack_window; a slow acknowledgment will not force a reconnect before the window ends",
			"stale_timeout", cfg.Session.StaleTimeout,
			"ack_window", cfg.Session.AckWindow,
		)
	}

	// Link
	if cfg.Link.Kind != "" && !cfg.Link.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("link.kind %q is invalid; valid values: static, netlink", cfg.Link.Kind))
	}
	if cfg.Link.Kind == LinkNetlink && cfg.Link.Interface == "" {
		errs = append(errs, errors.New("link.interface is required when link.kind is netlink"))
	}
	if cfg.Link.ResetThreshold < 0 {
		errs = append(errs, fmt.Errorf("link.reset_threshold %d must not be negative", cfg.Link.ResetThreshold))
	}
	errs = appendNonNegative(errs, "link.backoff_base", cfg.Link.BackoffBase)
	errs = appendNonNegative(errs, "link.poll", cfg.Link.Poll)
	errs = appendNonNegative(errs, "link.settle", cfg.Link.Settle)

	return errors.Join(errs...)
}

func appendNonNegative(errs []error, field string, d time.Duration) []error {
	if d < 0 {
		return append(errs, fmt.Errorf("%s %v must not be negative", field, d))
	}
	return errs
}
