// Package config loads cqcctl and mocknode settings from TOML or YAML files.
//
// Values start from Default and only keys present in the file override
// them. Durations are strings in time.ParseDuration form.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/cqc/internal/logging"
	"github.com/danmuck/cqc/internal/protocol/transport"
	"gopkg.in/yaml.v3"
)

// Config is the resolved file configuration.
type Config struct {
	Client Client
	Remote Remote
	Node   Node
	Log    logging.Config
}

// Client is where an application reaches its own node.
type Client struct {
	AppID     uint16
	Host      string
	Port      uint16
	Transport transport.Config
}

// Remote is the default peer for sends and EPR pairs.
type Remote struct {
	AppID uint16
	Host  string
	Port  uint16
}

type Node struct {
	Listen      []string
	MaxQubits   int
	MailboxSize int
	MetricsAddr string
}

// Default mirrors the usual two-endpoint local setup: app 10 on 8803 talking
// to app 10 on 8804.
func Default() Config {
	return Config{
		Client: Client{
			AppID:     10,
			Host:      "127.0.0.1",
			Port:      8803,
			Transport: transport.DefaultConfig(),
		},
		Remote: Remote{AppID: 10, Host: "127.0.0.1", Port: 8804},
		Node: Node{
			Listen:      []string{"127.0.0.1:8803", "127.0.0.1:8804"},
			MailboxSize: 256,
		},
		Log: logging.DefaultConfig(logging.ProfileRuntime),
	}
}

type fileConfig struct {
	Client clientSection `toml:"client" yaml:"client"`
	Remote remoteSection `toml:"remote" yaml:"remote"`
	Node   nodeSection   `toml:"node" yaml:"node"`
	Log    logSection    `toml:"log" yaml:"log"`
}

type clientSection struct {
	AppID           uint16 `toml:"app_id" yaml:"app_id"`
	Host            string `toml:"host" yaml:"host"`
	Port            uint16 `toml:"port" yaml:"port"`
	ConnectTimeout  string `toml:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout     string `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout" yaml:"write_timeout"`
	DialAttempts    int    `toml:"dial_attempts" yaml:"dial_attempts"`
	MaxPayloadBytes uint32 `toml:"max_payload_bytes" yaml:"max_payload_bytes"`
}

type remoteSection struct {
	AppID uint16 `toml:"app_id" yaml:"app_id"`
	Host  string `toml:"host" yaml:"host"`
	Port  uint16 `toml:"port" yaml:"port"`
}

type nodeSection struct {
	Listen      []string `toml:"listen" yaml:"listen"`
	MaxQubits   int      `toml:"max_qubits" yaml:"max_qubits"`
	MailboxSize int      `toml:"mailbox_size" yaml:"mailbox_size"`
	MetricsAddr string   `toml:"metrics_addr" yaml:"metrics_addr"`
}

type logSection struct {
	Level     string `toml:"level" yaml:"level"`
	Timestamp bool   `toml:"timestamp" yaml:"timestamp"`
	NoColor   bool   `toml:"no_color" yaml:"no_color"`
	JSON      bool   `toml:"json" yaml:"json"`
}

// definedFunc reports whether a dotted key path was present in the file.
type definedFunc func(key ...string) bool

// Load reads path, choosing the decoder by extension (.yaml/.yml or TOML).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var (
		raw     fileConfig
		defined definedFunc
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defined, err = decodeYAML(data, &raw)
	default:
		defined, err = decodeTOML(data, &raw)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg, err := apply(Default(), raw, defined)
	if err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func decodeTOML(data []byte, raw *fileConfig) (definedFunc, error) {
	meta, err := toml.Decode(string(data), raw)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return meta.IsDefined, nil
}

func decodeYAML(data []byte, raw *fileConfig) (definedFunc, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	var tree map[string]map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return func(key ...string) bool {
		switch len(key) {
		case 1:
			_, ok := tree[key[0]]
			return ok
		case 2:
			_, ok := tree[key[0]][key[1]]
			return ok
		}
		return false
	}, nil
}

func apply(cfg Config, raw fileConfig, defined definedFunc) (Config, error) {
	c := raw.Client
	if defined("client", "app_id") {
		cfg.Client.AppID = c.AppID
	}
	if defined("client", "host") {
		cfg.Client.Host = strings.TrimSpace(c.Host)
	}
	if defined("client", "port") {
		cfg.Client.Port = c.Port
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", c.ConnectTimeout, &cfg.Client.Transport.ConnectTimeout},
		{"read_timeout", c.ReadTimeout, &cfg.Client.Transport.ReadTimeout},
		{"write_timeout", c.WriteTimeout, &cfg.Client.Transport.WriteTimeout},
	} {
		if !defined("client", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse client.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if defined("client", "dial_attempts") {
		cfg.Client.Transport.MaxDialAttempts = c.DialAttempts
	}
	if defined("client", "max_payload_bytes") {
		cfg.Client.Transport.MaxPayloadBytes = c.MaxPayloadBytes
	}

	r := raw.Remote
	if defined("remote", "app_id") {
		cfg.Remote.AppID = r.AppID
	}
	if defined("remote", "host") {
		cfg.Remote.Host = strings.TrimSpace(r.Host)
	}
	if defined("remote", "port") {
		cfg.Remote.Port = r.Port
	}

	n := raw.Node
	if defined("node", "listen") {
		cfg.Node.Listen = normalizeAddrs(n.Listen)
	}
	if defined("node", "max_qubits") {
		cfg.Node.MaxQubits = n.MaxQubits
	}
	if defined("node", "mailbox_size") {
		cfg.Node.MailboxSize = n.MailboxSize
	}
	if defined("node", "metrics_addr") {
		cfg.Node.MetricsAddr = strings.TrimSpace(n.MetricsAddr)
	}

	l := raw.Log
	if defined("log", "level") {
		lvl, ok := logging.ParseLevel(l.Level)
		if !ok {
			return Config{}, fmt.Errorf("unknown log.level %q", l.Level)
		}
		cfg.Log.Level = lvl
	}
	if defined("log", "timestamp") {
		cfg.Log.Timestamp = l.Timestamp
	}
	if defined("log", "no_color") {
		cfg.Log.NoColor = l.NoColor
	}
	if defined("log", "json") {
		cfg.Log.JSON = l.JSON
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Client.Host) == "" {
		return fmt.Errorf("client.host is required")
	}
	if cfg.Client.Port == 0 {
		return fmt.Errorf("client.port is required")
	}
	if cfg.Client.Transport.ReadTimeout < 0 || cfg.Client.Transport.WriteTimeout < 0 {
		return fmt.Errorf("client timeouts must not be negative")
	}
	if cfg.Remote.Port == 0 {
		return fmt.Errorf("remote.port is required")
	}
	if len(cfg.Node.Listen) == 0 {
		return fmt.Errorf("node.listen needs at least one address")
	}
	if cfg.Node.MaxQubits < 0 {
		return fmt.Errorf("node.max_qubits must not be negative")
	}
	return nil
}

func normalizeAddrs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, addr := range in {
		v := strings.TrimSpace(addr)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
