package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/cqc/internal/cqc"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var gates = []hdr.Instr{hdr.CmdI, hdr.CmdX, hdr.CmdY, hdr.CmdZ, hdr.CmdT, hdr.CmdH, hdr.CmdK}

func (e *env) dialLocal(ctx context.Context) (*cqc.Client, error) {
	return cqc.Dial(ctx, e.cfg.ClientConfig())
}

// dialRemote connects a second client as the remote application, for
// demos that play both ends.
func (e *env) dialRemote(ctx context.Context) (*cqc.Client, error) {
	cc := e.cfg.ClientConfig()
	cc.AppID = e.cfg.Remote.AppID
	cc.Host = e.cfg.Remote.Host
	cc.Port = e.cfg.Remote.Port
	return cqc.Dial(ctx, cc)
}

func (e *env) remote(ctx context.Context) (hdr.RemoteNode, error) {
	return cqc.ResolveRemote(ctx, e.cfg.Remote.AppID, e.cfg.Remote.Host, e.cfg.Remote.Port)
}

func parseGate(name string) (hdr.Instr, bool) {
	for _, g := range gates {
		if strings.EqualFold(g.String(), strings.TrimSpace(name)) {
			return g, true
		}
	}
	return 0, false
}

func noArgs(name string, args []string) error {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%s: unexpected argument %q", name, fs.Arg(0))
	}
	return nil
}

func runHello(ctx context.Context, a app, e *env, args []string) error {
	if err := noArgs("hello", args); err != nil {
		return err
	}
	c, err := e.dialLocal(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Hello(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "hello ok app=%d node=%s:%d\n", c.AppID(), e.cfg.Client.Host, e.cfg.Client.Port)
	return nil
}

func runNew(ctx context.Context, a app, e *env, args []string) error {
	fs := pflag.NewFlagSet("new", pflag.ContinueOnError)
	count := fs.IntP("count", "n", 1, "number of qubits")
	notify := fs.Bool("notify", false, "request a DONE after each NEW_OK")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count < 1 {
		return fmt.Errorf("new: --count must be at least 1")
	}
	var opts hdr.CmdOpt
	if *notify {
		opts |= hdr.OptNotify
	}

	c, err := e.dialLocal(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	for i := 0; i < *count; i++ {
		q, err := c.NewQubit(opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "qubit %d\n", q)
	}
	return nil
}

func runSend(ctx context.Context, a app, e *env, args []string) error {
	fs := pflag.NewFlagSet("send", pflag.ContinueOnError)
	gateName := fs.String("gate", "", "single-qubit gate to apply before sending (I X Y Z T H K)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var gate hdr.Instr
	if *gateName != "" {
		g, ok := parseGate(*gateName)
		if !ok {
			return fmt.Errorf("send: unknown gate %q", *gateName)
		}
		gate = g
	}

	c, err := e.dialLocal(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	q, err := prepare(c, gate, *gateName != "")
	if err != nil {
		return err
	}
	r := e.cfg.Remote
	if err := c.Send(q, r.AppID, r.Host, r.Port); err != nil {
		return err
	}
	if err := c.WaitUntilDone(1); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "sent qubit %d to app %d at %s:%d\n", q, r.AppID, r.Host, r.Port)
	return nil
}

func runRecv(ctx context.Context, a app, e *env, args []string) error {
	fs := pflag.NewFlagSet("recv", pflag.ContinueOnError)
	keep := fs.Bool("keep", false, "measure in place instead of consuming the qubit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := e.dialLocal(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	q, err := c.Recv()
	if err != nil {
		return err
	}
	outcome, err := c.Measure(q, *keep)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "received qubit %d outcome %d\n", q, outcome)
	return nil
}

func runEPR(ctx context.Context, a app, e *env, args []string) error {
	if err := noArgs("epr", args); err != nil {
		return err
	}
	remote, err := e.remote(ctx)
	if err != nil {
		return err
	}
	alice, err := e.dialLocal(ctx)
	if err != nil {
		return err
	}
	defer alice.Close()
	bob, err := e.dialRemote(ctx)
	if err != nil {
		return err
	}
	defer bob.Close()

	var local, far hdr.EntInfoHdr
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, ent, err := alice.CreateEPR(remote)
		local = ent
		return err
	})
	g.Go(func() error {
		_, ent, err := bob.RecvEPR()
		far = ent
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if local.IDAB != far.IDAB {
		return fmt.Errorf("epr: halves disagree on pair id (%d vs %d)", local.IDAB, far.IDAB)
	}
	fmt.Fprintf(a.stdout, "epr pair %d between port %d and port %d\n", local.IDAB, local.PortA, local.PortB)
	return nil
}

// runTeleportDemo plays both applications: the local one prepares a qubit
// in superposition and sends it, the remote one receives and measures.
func runTeleportDemo(ctx context.Context, a app, e *env, args []string) error {
	if err := noArgs("teleport-demo", args); err != nil {
		return err
	}
	alice, err := e.dialLocal(ctx)
	if err != nil {
		return err
	}
	defer alice.Close()
	bob, err := e.dialRemote(ctx)
	if err != nil {
		return err
	}
	defer bob.Close()

	var (
		sent     hdr.QubitID
		received hdr.QubitID
		outcome  uint8
	)
	r := e.cfg.Remote
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := prepare(alice, hdr.CmdH, true)
		if err != nil {
			return err
		}
		sent = q
		if err := alice.Send(q, r.AppID, r.Host, r.Port); err != nil {
			return err
		}
		return alice.WaitUntilDone(1)
	})
	g.Go(func() error {
		q, err := bob.Recv()
		if err != nil {
			return err
		}
		received = q
		outcome, err = bob.Measure(q, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Uint16("sent", uint16(sent)).Uint16("received", uint16(received)).Msg("teleport demo finished")
	fmt.Fprintf(a.stdout, "sent qubit %d, received as %d, outcome %d\n", sent, received, outcome)
	return nil
}

func prepare(c *cqc.Client, gate hdr.Instr, apply bool) (hdr.QubitID, error) {
	q, err := c.NewQubit(0)
	if err != nil {
		return 0, err
	}
	if apply {
		if err := c.Apply(gate, q); err != nil {
			return 0, err
		}
	}
	return q, nil
}
