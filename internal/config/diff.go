package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is hot-reloadable.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssistantChanged is hot-reloadable; new chat requests pick up the
	// new persona addressee and settings.
	AssistantChanged bool

	// VoiceChanged is hot-reloadable; it applies to the next voice session.
	VoiceChanged bool

	// RestartRequired lists top-level keys whose change only takes effect
	// after a restart, such as providers or the listen address.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AssistantChanged && !d.VoiceChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.AssistantChanged = !reflect.DeepEqual(old.Assistant, new.Assistant)
	d.VoiceChanged = !reflect.DeepEqual(old.Voice, new.Voice)

	oldSrv, newSrv := old.Server, new.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""
	if !reflect.DeepEqual(oldSrv, newSrv) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	return d
}
