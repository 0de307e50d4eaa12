package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LiveInstructionChanged is true if the live system instruction differs.
	// It takes effect for live sessions opened after the reload. The other
	// persona texts are baked into the content providers and are reported
	// in RestartRequired as "persona".
	LiveInstructionChanged bool

	// RestartRequired lists top-level sections whose changes are ignored
	// until the process restarts.
	RestartRequired []string
}

// Empty reports whether d carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.LiveInstructionChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Persona.LiveInstruction != new.Persona.LiveInstruction {
		d.LiveInstructionChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.ServiceName != new.Server.ServiceName ||
		old.Server.AllowOrigin != new.Server.AllowOrigin {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	oldContent, newContent := old.Persona, new.Persona
	oldContent.LiveInstruction, newContent.LiveInstruction = "", ""
	if oldContent != newContent {
		d.RestartRequired = append(d.RestartRequired, "persona")
	}
	return d
}

// providersEqual compares the fields that identify a provider. Options maps
// are not compared.
func providersEqual(a, b ProvidersConfig) bool {
	same := func(x, y ProviderEntry) bool {
		return x.Name == y.Name && x.APIKey == y.APIKey && x.BaseURL == y.BaseURL && x.Model == y.Model
	}
	if len(a.Content) != len(b.Content) || !same(a.Live, b.Live) {
		return false
	}
	for i := range a.Content {
		if !same(a.Content[i], b.Content[i]) {
			return false
		}
	}
	return true
}
