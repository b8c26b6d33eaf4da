package mocknode

import (
	"strings"

	"github.com/danmuck/cqc/internal/protocol/transport"
)

type Config struct {
	ListenAddrs []string
	// MaxQubits caps the live qubits of one connection; NEW beyond it is
	// answered with ERR_NOQUBIT. Zero means no cap.
	MaxQubits int
	// MailboxSize bounds in-flight qubits per port.
	MailboxSize int
	Transport   transport.Config
}

func DefaultConfig() Config {
	return Config{
		ListenAddrs: []string{"127.0.0.1:8803", "127.0.0.1:8804"},
		MaxQubits:   0,
		MailboxSize: 256,
		Transport:   transport.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	addrs := c.ListenAddrs[:0:0]
	for _, a := range c.ListenAddrs {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		addrs = def.ListenAddrs
	}
	c.ListenAddrs = addrs
	if c.MaxQubits < 0 {
		c.MaxQubits = 0
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = def.MailboxSize
	}
	c.Transport = c.Transport.WithDefaults()
	return c
}
