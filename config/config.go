package config

import (
	"fmt"

	"github.com/terraskye/eventflow"
)

// Config is the declarative configuration for a dispatcher and its
// collaborators, typically loaded from a YAML file at process start-up.
type Config struct {
	Async AsyncConfig `yaml:"async" json:"async"`
	DLQ   DLQConfig   `yaml:"dlq" json:"dlq"`
	Retry RetryConfig `yaml:"retry" json:"retry"`
	Store StoreConfig `yaml:"store" json:"store"`
}

// AsyncConfig configures the asynchronous bus.
type AsyncConfig struct {
	Lanes          int      `yaml:"lanes" json:"lanes"`
	BufferSize     int      `yaml:"buffer_size" json:"buffer_size"`
	MaxConcurrency int      `yaml:"max_concurrency" json:"max_concurrency"`
	HandlerTimeout Duration `yaml:"handler_timeout" json:"handler_timeout"`
}

// DLQConfig configures the dead letter queue.
type DLQConfig struct {
	BaseDelay  Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay   Duration `yaml:"max_delay" json:"max_delay"`
	MaxRetries int      `yaml:"max_retries" json:"max_retries"`
	Jitter     float64  `yaml:"jitter" json:"jitter"`
	MaxSize    int      `yaml:"max_size" json:"max_size"`
	Retention  Duration `yaml:"retention" json:"retention"`
}

// RetryConfig configures the DLQ retry processor.
type RetryConfig struct {
	PollInterval Duration `yaml:"poll_interval" json:"poll_interval"`
	BatchSize    int      `yaml:"batch_size" json:"batch_size"`
}

// StoreConfig selects and configures the event store backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite". Default: "memory".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the SQLite database path; ":memory:" for testing.
	Path string `yaml:"path" json:"path"`

	// FeedBuffer is the capacity of the store's live event feed.
	FeedBuffer int `yaml:"feed_buffer" json:"feed_buffer"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Async: AsyncConfig{
			Lanes:          eventflow.DefaultAsyncBusConfig.Lanes,
			BufferSize:     eventflow.DefaultAsyncBusConfig.BufferSize,
			MaxConcurrency: eventflow.DefaultAsyncBusConfig.MaxConcurrency,
		},
		DLQ: DLQConfig{
			BaseDelay:  Duration(eventflow.DefaultDLQConfig.BaseDelay),
			MaxDelay:   Duration(eventflow.DefaultDLQConfig.MaxDelay),
			MaxRetries: eventflow.DefaultDLQConfig.MaxRetries,
			Jitter:     eventflow.DefaultDLQConfig.Jitter,
			MaxSize:    eventflow.DefaultDLQConfig.MaxSize,
			Retention:  Duration(eventflow.DefaultDLQConfig.Retention),
		},
		Retry: RetryConfig{
			PollInterval: Duration(eventflow.DefaultDLQProcessorConfig.PollInterval),
			BatchSize:    eventflow.DefaultDLQProcessorConfig.BatchSize,
		},
		Store: StoreConfig{
			Backend:    "memory",
			FeedBuffer: 256,
		},
	}
}

// Validate checks ranges that would otherwise surface as runtime
// surprises. Zero values are allowed; they fall back to defaults.
func (c Config) Validate() error {
	if c.Async.Lanes < 0 {
		return fmt.Errorf("async.lanes must not be negative, got %d", c.Async.Lanes)
	}
	if c.Async.MaxConcurrency < 0 {
		return fmt.Errorf("async.max_concurrency must not be negative, got %d", c.Async.MaxConcurrency)
	}
	if c.DLQ.Jitter < 0 || c.DLQ.Jitter > 1 {
		return fmt.Errorf("dlq.jitter must be between 0 and 1, got %g", c.DLQ.Jitter)
	}
	if c.DLQ.MaxDelay != 0 && c.DLQ.BaseDelay > c.DLQ.MaxDelay {
		return fmt.Errorf("dlq.base_delay %s exceeds dlq.max_delay %s", c.DLQ.BaseDelay, c.DLQ.MaxDelay)
	}
	switch c.Store.Backend {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// AsyncBusConfig converts to the bus configuration.
func (c Config) AsyncBusConfig() eventflow.AsyncBusConfig {
	return eventflow.AsyncBusConfig{
		Lanes:          c.Async.Lanes,
		BufferSize:     c.Async.BufferSize,
		MaxConcurrency: c.Async.MaxConcurrency,
		HandlerTimeout: c.Async.HandlerTimeout.Std(),
	}
}

// DLQConfig converts to the queue configuration.
func (c Config) DLQConfig() eventflow.DLQConfig {
	return eventflow.DLQConfig{
		BaseDelay:  c.DLQ.BaseDelay.Std(),
		MaxDelay:   c.DLQ.MaxDelay.Std(),
		MaxRetries: c.DLQ.MaxRetries,
		Jitter:     c.DLQ.Jitter,
		MaxSize:    c.DLQ.MaxSize,
		Retention:  c.DLQ.Retention.Std(),
	}
}

// ProcessorConfig converts to the retry processor configuration.
func (c Config) ProcessorConfig() eventflow.DLQProcessorConfig {
	return eventflow.DLQProcessorConfig{
		PollInterval: c.Retry.PollInterval.Std(),
		BatchSize:    c.Retry.BatchSize,
	}
}
