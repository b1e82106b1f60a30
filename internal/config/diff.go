package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: everything that
// touches the device, the model, or queue sizing requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CommandsChanged is true when the trigger word or confidence floor
	// changed. Applied per-transcript, so no pipeline restart is needed.
	CommandsChanged bool
	NewCommands     CommandsConfig
}

// Empty reports whether the diff carries no applicable change.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.CommandsChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Commands != new.Commands {
		d.CommandsChanged = true
		d.NewCommands = new.Commands
	}

	return d
}
