package config_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/voxclient/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()
	base := func() *config.Config {
		c := &config.Config{}
		config.ApplyDefaults(c)
		return c
	}

	t.Run("identical", func(t *testing.T) {
		if d := config.Diff(base(), base()); d.Changed() {
			t.Errorf("Diff = %+v, want no change", d)
		}
	})

	t.Run("log level only", func(t *testing.T) {
		next := base()
		next.Log.Level = config.LogDebug
		d := config.Diff(base(), next)
		if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
			t.Errorf("Diff = %+v", d)
		}
		if len(d.RestartRequired) != 0 {
			t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
		}
	})

	t.Run("sections needing restart", func(t *testing.T) {
		next := base()
		next.Server.Port = 9999
		next.VAD.SilenceTimeout = time.Second
		next.Link.Interface = "wlan1"
		d := config.Diff(base(), next)
		if diff := cmp.Diff([]string{"server", "vad", "link"}, d.RestartRequired); diff != "" {
			t.Errorf("RestartRequired (-want +got):\n%s", diff)
		}
		if d.LogLevelChanged {
			t.Error("log level reported changed")
		}
	})
}
