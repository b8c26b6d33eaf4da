package transport

import "time"

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection limits and deadlines.
// A zero ReadTimeout or WriteTimeout blocks without a deadline.
type Config struct {
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxPayloadBytes uint32
	MaxDialAttempts int
	Backoff         BackoffConfig
}

// DefaultConfig dials once and never times out a read; waiting on the node
// is the normal state of a CQC application.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  5 * time.Second,
		ReadTimeout:     0,
		WriteTimeout:    15 * time.Second,
		MaxPayloadBytes: 64 * 1024,
		MaxDialAttempts: 1,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills unset limits from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = def.MaxPayloadBytes
	}
	if c.MaxDialAttempts <= 0 {
		c.MaxDialAttempts = def.MaxDialAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
