package config

import (
	"github.com/danmuck/cqc/internal/cqc"
	"github.com/danmuck/cqc/internal/mocknode"
)

func (c Config) ClientConfig() cqc.Config {
	return cqc.Config{
		AppID:     c.Client.AppID,
		Host:      c.Client.Host,
		Port:      c.Client.Port,
		Transport: c.Client.Transport,
	}
}

func (c Config) NodeConfig() mocknode.Config {
	return mocknode.Config{
		ListenAddrs: append([]string(nil), c.Node.Listen...),
		MaxQubits:   c.Node.MaxQubits,
		MailboxSize: c.Node.MailboxSize,
	}
}
