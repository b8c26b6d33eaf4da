// cqcctl drives a CQC node from the command line.
//
// Usage:
//
//	cqcctl [global flags] <command> [command flags]
//
// Commands: hello, new, send, recv, epr, teleport-demo.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/cqc/internal/logging"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		configureLog: func(cfg logging.Config) {
			logging.Install(cfg, os.Stderr)
		},
	}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "cqcctl: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	stdout       io.Writer
	stderr       io.Writer
	configureLog func(logging.Config)
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a app, env *env, args []string) error
}

var commands = []command{
	{"hello", "probe the node", runHello},
	{"new", "allocate qubits", runNew},
	{"send", "create a qubit and send it to the remote endpoint", runSend},
	{"recv", "receive one qubit and measure it", runRecv},
	{"epr", "share an EPR pair between the local and remote endpoints", runEPR},
	{"teleport-demo", "send a qubit from the local to the remote endpoint in one process", runTeleportDemo},
}

func (a app) run(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("cqcctl", pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.SetInterspersed(false)
	g := bindGlobalFlags(fs)
	fs.Usage = func() { a.usage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		a.usage(fs)
		return fmt.Errorf("missing command")
	}

	env, err := g.resolve(fs)
	if err != nil {
		return err
	}
	if a.configureLog != nil {
		a.configureLog(env.cfg.Log)
	}

	for _, cmd := range commands {
		if cmd.name == rest[0] {
			return cmd.run(ctx, a, env, rest[1:])
		}
	}
	return fmt.Errorf("unknown command %q", rest[0])
}

func (a app) usage(fs *pflag.FlagSet) {
	fmt.Fprintf(a.stderr, "Usage: cqcctl [global flags] <command> [command flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(a.stderr, "  %-14s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(a.stderr, "\nGlobal flags:\n%s", fs.FlagUsages())
}
