package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the changed sections that only take effect on
	// restart, e.g. "server" or "session".
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed. Only the log
// level can be applied without a restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	sections := []struct {
		name    string
		changed bool
	}{
		{"device_id", old.DeviceID != new.DeviceID},
		{"log.format", old.Log.Format != new.Log.Format},
		{"server", old.Server != new.Server},
		{"protocol", old.Protocol != new.Protocol},
		{"audio", old.Audio != new.Audio},
		{"vad", old.VAD != new.VAD},
		{"session", old.Session != new.Session},
		{"link", old.Link != new.Link},
		{"status", old.Status != new.Status},
	}
	for _, s := range sections {
		if s.changed {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
