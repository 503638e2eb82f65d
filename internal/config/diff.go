package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ProfileChanged is true if any voice, model or output format changed.
	ProfileChanged bool

	// TokenChanged is true if the token endpoint list changed.
	TokenChanged bool

	// ProviderChanged is true if the speech provider name, credential or base
	// URL changed. The provider client must be rebuilt.
	ProviderChanged bool

	// RestartRequired lists top-level keys whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// IsZero reports whether nothing changed.
func (d ConfigDiff) IsZero() bool {
	return !d.LogLevelChanged && !d.ProfileChanged && !d.TokenChanged &&
		!d.ProviderChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	op, np := old.Profile(), new.Profile()
	if op.LiveVoice != np.LiveVoice ||
		op.ImmersiveVoice != np.ImmersiveVoice ||
		op.LiveModel != np.LiveModel ||
		op.ImmersiveModel != np.ImmersiveModel ||
		op.MultilingualModel != np.MultilingualModel ||
		op.OutputFormat != np.OutputFormat ||
		!slices.Equal(op.FallbackModels, np.FallbackModels) {
		d.ProfileChanged = true
	}

	if !slices.Equal(old.Token.Endpoints, new.Token.Endpoints) {
		d.TokenChanged = true
	}

	ot, nt := old.Providers.TTS, new.Providers.TTS
	if ot.Name != nt.Name || ot.APIKey != nt.APIKey || ot.BaseURL != nt.BaseURL {
		d.ProviderChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.MaxBodyBytes != new.Server.MaxBodyBytes ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Synthesis.AttemptTimeout != new.Synthesis.AttemptTimeout {
		d.RestartRequired = append(d.RestartRequired, "synthesis.attempt_timeout")
	}
	if old.Token.AttemptTimeout != new.Token.AttemptTimeout {
		d.RestartRequired = append(d.RestartRequired, "token.attempt_timeout")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
