package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be hot-reloaded without restarting the voice session are tracked;
// provider and transport changes require a restart and are ignored here.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AgentChanged covers the agent's name, system prompt, voice, and rate
	// limit.
	AgentChanged bool

	// BargeInChanged covers the barge-in enablement and timing knobs.
	BargeInChanged bool

	// AggregatorChanged covers the flush timeout and confidence floor.
	AggregatorChanged bool
}

// Empty reports whether the diff contains no reloadable change.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AgentChanged && !d.BargeInChanged && !d.AggregatorChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(oldCfg, newCfg *Config) ConfigDiff {
	d := ConfigDiff{}

	if oldCfg.Server.LogLevel != newCfg.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = newCfg.Server.LogLevel
	}

	if oldCfg.Agent.Name != newCfg.Agent.Name ||
		oldCfg.Agent.SystemPrompt != newCfg.Agent.SystemPrompt ||
		oldCfg.Agent.Voice != newCfg.Agent.Voice ||
		oldCfg.Agent.MaxResponsesPerMinute != newCfg.Agent.MaxResponsesPerMinute ||
		oldCfg.Agent.DisablePhoneticMatching != newCfg.Agent.DisablePhoneticMatching {
		d.AgentChanged = true
	}

	if oldCfg.Pipeline.BargeIn != newCfg.Pipeline.BargeIn {
		d.BargeInChanged = true
	}

	if oldCfg.Pipeline.Aggregator != newCfg.Pipeline.Aggregator {
		d.AggregatorChanged = true
	}

	return d
}
