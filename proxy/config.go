package proxy

import "time"

// Config for all proxies of a Manager.
type Config struct {
	// Timeout bounds a single send on the transport.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is how often an unacknowledged request is sent again before
	// the remote MeshBase is considered lost.
	MaxRetries int `mapstructure:"max-retries"`
	// RetryInterval is the wait before the first retry. It doubles with every
	// further retry up to MaxRetryInterval.
	RetryInterval    time.Duration `mapstructure:"retry-interval"`
	MaxRetryInterval time.Duration `mapstructure:"max-retry-interval"`
	// ReorderLimit is how many messages that arrived ahead of a missing one
	// are buffered.
	ReorderLimit int `mapstructure:"reorder-limit"`
	// GapTimeout is how long a missing message is waited for before the
	// replicas shared with its sender are resynchronized.
	GapTimeout time.Duration `mapstructure:"gap-timeout"`
	// LockWaitTimeout bounds synchronous waits for locks, home replicas and
	// first time replicas.
	LockWaitTimeout time.Duration `mapstructure:"lock-wait-timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		MaxRetries:       5,
		RetryInterval:    time.Second,
		MaxRetryInterval: 30 * time.Second,
		ReorderLimit:     64,
		GapTimeout:       10 * time.Second,
		LockWaitTimeout:  5 * time.Second,
	}
}

func (c Config) retryInterval(attempt int) time.Duration {
	d := c.RetryInterval
	for i := 1; i < attempt && d < c.MaxRetryInterval; i++ {
		d *= 2
	}
	return min(d, c.MaxRetryInterval)
}
