package main

import (
	"fmt"
	"os"
	"time"

	"github.com/danmuck/cqc/internal/config"
	"github.com/danmuck/cqc/internal/logging"
	"github.com/spf13/pflag"
)

// getenv is swapped in tests.
var getenv = os.Getenv

type globalFlags struct {
	configPath  string
	host        string
	port        uint16
	appID       uint16
	remoteHost  string
	remotePort  uint16
	remoteAppID uint16
	timeout     time.Duration
	logLevel    string
}

// env is what every command runs against.
type env struct {
	cfg config.Config
}

func bindGlobalFlags(fs *pflag.FlagSet) *globalFlags {
	g := &globalFlags{}
	fs.StringVarP(&g.configPath, "config", "c", "", "TOML or YAML config file")
	fs.StringVar(&g.host, "host", "", "local node host")
	fs.Uint16Var(&g.port, "port", 0, "local node port")
	fs.Uint16Var(&g.appID, "app-id", 0, "application id")
	fs.StringVar(&g.remoteHost, "remote-host", "", "remote endpoint host")
	fs.Uint16Var(&g.remotePort, "remote-port", 0, "remote endpoint port")
	fs.Uint16Var(&g.remoteAppID, "remote-app-id", 0, "remote application id")
	fs.DurationVar(&g.timeout, "timeout", 0, "read timeout for node replies (0 waits forever)")
	fs.StringVar(&g.logLevel, "log-level", "", "trace|debug|info|warn|error|off")
	return g
}

// resolve layers the config file, CQC_LOG_* variables and explicitly set
// flags, in that order.
func (g *globalFlags) resolve(fs *pflag.FlagSet) (*env, error) {
	cfg := config.Default()
	if g.configPath != "" {
		loaded, err := config.Load(g.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	logging.ApplyEnvOverrides(&cfg.Log, getenv)

	if fs.Changed("host") {
		cfg.Client.Host = g.host
	}
	if fs.Changed("port") {
		cfg.Client.Port = g.port
	}
	if fs.Changed("app-id") {
		cfg.Client.AppID = g.appID
	}
	if fs.Changed("remote-host") {
		cfg.Remote.Host = g.remoteHost
	}
	if fs.Changed("remote-port") {
		cfg.Remote.Port = g.remotePort
	}
	if fs.Changed("remote-app-id") {
		cfg.Remote.AppID = g.remoteAppID
	}
	if fs.Changed("timeout") {
		cfg.Client.Transport.ReadTimeout = g.timeout
	}
	if fs.Changed("log-level") {
		lvl, ok := logging.ParseLevel(g.logLevel)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q", g.logLevel)
		}
		cfg.Log.Level = lvl
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return &env{cfg: cfg}, nil
}
