package config

// ConfigDiff describes what changed between two configs.
// Hot-reloadable fields carry their new value; everything else that changed
// is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DefaultVoiceChanged bool
	NewDefaultVoice     string

	FPSChanged bool
	NewFPS     int

	// RestartRequired names the config sections that changed but only take
	// effect after a restart, e.g. "provider" or "audio".
	RestartRequired []string
}

// Changed reports whether d contains any difference at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.DefaultVoiceChanged || d.FPSChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Voice.Default != new.Voice.Default {
		d.DefaultVoiceChanged = true
		d.NewDefaultVoice = new.Voice.Default
	}
	if old.Visualizer.FPS != new.Visualizer.FPS {
		d.FPSChanged = true
		d.NewFPS = new.Visualizer.FPS
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameProvider(old.Provider, new.Provider) {
		d.RestartRequired = append(d.RestartRequired, "provider")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	ov, nv := old.Visualizer, new.Visualizer
	ov.FPS, nv.FPS = 0, 0
	if ov != nv {
		d.RestartRequired = append(d.RestartRequired, "visualizer")
	}
	if old.Export != new.Export {
		d.RestartRequired = append(d.RestartRequired, "export")
	}

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameProvider ignores Options; they are passed through to the provider
// untouched and compared by the provider itself if it cares.
func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
