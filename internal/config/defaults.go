package config

import (
	"os"

	"github.com/MrWong99/voxclient/internal/conn"
	"github.com/MrWong99/voxclient/internal/protocol"
	"github.com/MrWong99/voxclient/internal/session"
	"github.com/MrWong99/voxclient/pkg/vad"
)

// Default values applied by [ApplyDefaults].
const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 8888
	DefaultWSPath  = "/ws"
	DefaultCapture = "-"
	DefaultPlay    = "-"
)

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.DeviceID == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.DeviceID = h
		}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = LogInfo
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = LogFormatText
	}

	s := &cfg.Server
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Transport == "" {
		s.Transport = TransportTCP
	}
	if s.Transport == TransportWebSocket && s.Path == "" {
		s.Path = DefaultWSPath
	}
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = conn.DefaultConnectTimeout
	}
	if s.IOTimeout == 0 {
		s.IOTimeout = conn.DefaultIOTimeout
	}

	if cfg.Protocol.Dialect == "" {
		cfg.Protocol.Dialect = protocol.DialectText
	}
	if cfg.Protocol.MaxChunk == 0 {
		cfg.Protocol.MaxChunk = protocol.MaxChunkSize
	}

	a := &cfg.Audio
	if a.ProbeSamples == 0 {
		a.ProbeSamples = session.DefaultProbeSamples
	}
	if a.BlockSamples == 0 {
		a.BlockSamples = session.DefaultBlockSamples
	}
	if a.Capture == "" {
		a.Capture = DefaultCapture
	}
	if a.Playback == "" {
		a.Playback = DefaultPlay
	}

	if cfg.VAD.Threshold == 0 {
		cfg.VAD.Threshold = vad.DefaultThreshold
	}
	if cfg.VAD.SilenceTimeout == 0 {
		cfg.VAD.SilenceTimeout = vad.DefaultSilenceTimeout
	}

	ss := &cfg.Session
	if ss.MaxRecording == 0 {
		ss.MaxRecording = session.DefaultMaxRecording
	}
	if ss.AckWindow == 0 {
		ss.AckWindow = session.DefaultAckWindow
	}
	if ss.AckPoll == 0 {
		ss.AckPoll = session.DefaultAckPoll
	}
	if ss.WakePoll == 0 {
		ss.WakePoll = session.DefaultWakePoll
	}
	if ss.StaleTimeout == 0 {
		ss.StaleTimeout = session.DefaultStaleTimeout
	}
	if ss.ReadRetry == 0 {
		ss.ReadRetry = session.DefaultReadRetry
	}

	l := &cfg.Link
	if l.Kind == "" {
		l.Kind = LinkStatic
	}
	if l.ResetThreshold == 0 {
		l.ResetThreshold = conn.DefaultResetThreshold
	}
	if l.BackoffBase == 0 {
		l.BackoffBase = conn.DefaultBackoffBase
	}
	if l.Poll == 0 {
		l.Poll = conn.DefaultLinkPoll
	}
	if l.Settle == 0 {
		l.Settle = conn.DefaultLinkSettle
	}
}
