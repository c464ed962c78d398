package cinequery

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that YAML configs can express either as a
// Go duration string ("2s", "500ms") or as integer nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	case int64:
		*d = Duration(v)
	case float64:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration value: %v (expected a duration string or nanoseconds)", raw)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Config holds runtime tunables for the agent.
type Config struct {
	// MaxPlannerTurns bounds the plan/dispatch loop. When a session
	// reaches this many planner turns without a final answer, it aborts.
	MaxPlannerTurns int `yaml:"max_planner_turns"`

	// MaxConcurrentToolCalls bounds sibling tool executions within one
	// dispatch. Zero means no limit.
	MaxConcurrentToolCalls int `yaml:"max_concurrent_tool_calls"`

	// MaxRetries is the number of additional attempts for a failed
	// reasoning engine call.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the pause between engine retries.
	RetryDelay Duration `yaml:"retry_delay"`

	// EngineTimeout bounds one reasoning engine call. Zero disables the
	// per-call deadline.
	EngineTimeout Duration `yaml:"engine_timeout"`

	// ToolTimeout bounds one tool execution and the introspection
	// queries. Zero disables the per-call deadline.
	ToolTimeout Duration `yaml:"tool_timeout"`

	// EnableNarrativeCache reuses engine-generated schema narratives
	// across sessions keyed by the introspector fingerprint.
	EnableNarrativeCache bool `yaml:"enable_narrative_cache"`

	// EnableEventBus toggles lifecycle event publication.
	EnableEventBus bool `yaml:"enable_event_bus"`

	// EventBusBufferSize is the capacity of the event channel.
	EventBusBufferSize int `yaml:"event_bus_buffer_size"`

	// EventBusWorkerCount is the number of event dispatch workers.
	EventBusWorkerCount int `yaml:"event_bus_worker_count"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxPlannerTurns:        10,
		MaxConcurrentToolCalls: 4,
		MaxRetries:             3,
		RetryDelay:             Duration(2 * time.Second),
		EngineTimeout:          Duration(60 * time.Second),
		ToolTimeout:            Duration(30 * time.Second),
		EnableNarrativeCache:   true,
		EnableEventBus:         true,
		EventBusBufferSize:     100,
		EventBusWorkerCount:    5,
	}
}
