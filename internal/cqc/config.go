package cqc

import (
	"fmt"
	"time"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/transport"
)

// Config describes one client connection.
type Config struct {
	AppID     uint16
	Host      string
	Port      uint16
	Transport transport.Config
}

type Option func(*Config)

// WithTransport replaces the transport settings wholesale.
func WithTransport(tc transport.Config) Option {
	return func(c *Config) { c.Transport = tc }
}

// WithReadTimeout bounds every blocking wait. Zero waits forever.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.Transport.ReadTimeout = d }
}

func WithDialAttempts(n int) Option {
	return func(c *Config) { c.Transport.MaxDialAttempts = n }
}

func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: node host is required", protocol.ErrInvalidParameters)
	}
	if c.Port == 0 {
		return fmt.Errorf("%w: node port is required", protocol.ErrInvalidParameters)
	}
	return nil
}
