// Package config provides the configuration schema and loader for voxclient.
package config

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/MrWong99/voxclient/internal/protocol"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the slog level for l. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Transport selects how the client reaches the server.
type Transport string

const (
	// TransportTCP is a plain TCP stream.
	TransportTCP Transport = "tcp"

	// TransportWebSocket tunnels the same byte stream through binary
	// WebSocket messages.
	TransportWebSocket Transport = "websocket"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportTCP || t == TransportWebSocket
}

// LinkKind selects the network link implementation.
type LinkKind string

const (
	// LinkStatic assumes the link is always up.
	LinkStatic LinkKind = "static"

	// LinkNetlink drives a real interface through rtnetlink (Linux only).
	LinkNetlink LinkKind = "netlink"
)

// IsValid reports whether k is a recognised link kind.
func (k LinkKind) IsValid() bool {
	return k == LinkStatic || k == LinkNetlink
}

// Config is the root configuration structure for voxclient.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// DeviceID identifies this device in telemetry. Defaults to the hostname.
	DeviceID string `yaml:"device_id"`

	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Audio    AudioConfig    `yaml:"audio"`
	VAD      VADConfig      `yaml:"vad"`
	Session  SessionConfig  `yaml:"session"`
	Link     LinkConfig     `yaml:"link"`
	Status   StatusConfig   `yaml:"status"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// ServerConfig locates the voice server and bounds network waits.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Transport is "tcp" (default) or "websocket".
	Transport Transport `yaml:"transport"`

	// Path is the WebSocket request path. Ignored for tcp.
	Path string `yaml:"path"`

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// IOTimeout bounds each read and write on an established connection.
	IOTimeout time.Duration `yaml:"io_timeout"`

	// KeepAlive is the TCP keep-alive period. Zero uses the OS default.
	KeepAlive time.Duration `yaml:"keep_alive"`

	// UserTimeout sets TCP_USER_TIMEOUT on Linux so unacknowledged writes
	// fail instead of hanging. Zero leaves it unset.
	UserTimeout time.Duration `yaml:"user_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ProtocolConfig selects framing parameters.
type ProtocolConfig struct {
	// Dialect is the upload acknowledgment format: "text" or "binary".
	Dialect protocol.Dialect `yaml:"dialect"`

	// MaxChunk is the largest outgoing frame payload in bytes (1 to 4096).
	MaxChunk int `yaml:"max_chunk"`

	// MaxReceivePayload rejects inbound frames above this size. Zero
	// accepts any length below the sentinel.
	MaxReceivePayload int `yaml:"max_receive_payload"`
}

// AudioConfig selects the audio devices and block sizes.
type AudioConfig struct {
	// ProbeSamples is the size of one wake probe.
	ProbeSamples int `yaml:"probe_samples"`

	// BlockSamples is the size of one recording block.
	BlockSamples int `yaml:"block_samples"`

	// Capture is a file of raw s16le 16 kHz mono PCM, or "-" for stdin.
	Capture string `yaml:"capture"`

	// Pace throttles a file capture to real time.
	Pace bool `yaml:"pace"`

	// Playback is the output file, or "-" for stdout.
	Playback string `yaml:"playback"`

	// OutputSampleRate and OutputChannels describe the playback device.
	// Zero values mean the wire format (16 kHz mono).
	OutputSampleRate int `yaml:"output_sample_rate"`
	OutputChannels   int `yaml:"output_channels"`
}

// VADConfig tunes silence detection.
type VADConfig struct {
	// Threshold is the absolute sample amplitude below which a block counts
	// as silent.
	Threshold int `yaml:"threshold"`

	// SilenceTimeout is how long a silent run must last to end a recording.
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
}

// SessionConfig tunes the interaction loop.
type SessionConfig struct {
	MaxRecording time.Duration `yaml:"max_recording"`
	AckWindow    time.Duration `yaml:"ack_window"`
	AckPoll      time.Duration `yaml:"ack_poll"`
	WakePoll     time.Duration `yaml:"wake_poll"`
	StaleTimeout time.Duration `yaml:"stale_timeout"`
	ReadRetry    time.Duration `yaml:"read_retry"`
}

// LinkConfig selects the link layer and the recovery policy.
type LinkConfig struct {
	Kind LinkKind `yaml:"kind"`

	// Interface is the network interface for the netlink kind, e.g. "wlan0".
	Interface string `yaml:"interface"`

	// ResetThreshold is the number of consecutive failed connects tolerated
	// before the link is reset.
	ResetThreshold int `yaml:"reset_threshold"`

	// BackoffBase is the unit of the exponential reconnect backoff.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// Poll is the wait between association checks.
	Poll time.Duration `yaml:"poll"`

	// Settle is the pause after dropping the link.
	Settle time.Duration `yaml:"settle"`
}

// StatusConfig configures the local HTTP status server.
type StatusConfig struct {
	// ListenAddr is the address of the status server (e.g. ":9090").
	// Empty disables it.
	ListenAddr string `yaml:"listen_addr"`
}
