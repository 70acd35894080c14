// Command voxclient is the voice device client: it streams microphone audio
// to a voice server after a wake word and plays the server's reply.
//
// Audio is raw 16 kHz mono s16le PCM. By default it is read from stdin and
// written to stdout, so a typical invocation on a Linux device is:
//
//	arecord -q -f S16_LE -r 16000 -c 1 -t raw | voxclient -config voxclient.yaml | aplay -q -f S16_LE -r 16000 -c 1 -t raw
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxclient/internal/app"
	"github.com/MrWong99/voxclient/internal/clock"
	"github.com/MrWong99/voxclient/internal/config"
	"github.com/MrWong99/voxclient/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voxclient.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxclient: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxclient: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Log.Level.Level())
	slog.SetDefault(newLogger(os.Stderr, cfg.Log.Format, level))

	slog.Info("voxclient starting",
		"version", version,
		"config", *configPath,
		"device_id", cfg.DeviceID,
		"server", cfg.Server.Addr(),
		"log_level", string(cfg.Log.Level),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		DeviceID:       cfg.DeviceID,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Audio ─────────────────────────────────────────────────────────────────
	devices, err := app.OpenAudio(cfg.Audio, os.Stdin, os.Stdout, clock.Real{})
	if err != nil {
		slog.Error("failed to open audio", "err", err)
		return 1
	}
	defer func() {
		if err := devices.Close(); err != nil {
			slog.Warn("audio close error", "err", err)
		}
	}()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(os.Stderr, cfg)

	application, err := app.New(cfg, devices.Capture, devices.Playback,
		app.WithLogLevel(level),
		app.WithMetricsHandler(promhttp.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		if err := application.Shutdown(); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			application.Watch(w)
		}
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	status := cfg.Status.ListenAddr
	if status == "" {
		status = "(disabled)"
	}
	link := string(cfg.Link.Kind)
	if cfg.Link.Kind == config.LinkNetlink {
		link += " / " + cfg.Link.Interface
	}

	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       voxclient startup summary       ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Device", cfg.DeviceID)
	printRow(w, "Server", cfg.Server.Addr())
	printRow(w, "Transport", string(cfg.Server.Transport))
	printRow(w, "Dialect", string(cfg.Protocol.Dialect))
	printRow(w, "Link", link)
	printRow(w, "Capture", cfg.Audio.Capture)
	printRow(w, "Playback", cfg.Audio.Playback)
	printRow(w, "Output", app.OutputFormat(cfg.Audio).String())
	printRow(w, "Status", status)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, key, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger writes to w, never stdout, which may carry playback audio.
func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
