// Package nodetest starts a mock CQC node on loopback for tests.
package nodetest

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/danmuck/cqc/internal/mocknode"
)

// Start serves a mock node on `ports` ephemeral loopback ports and returns
// them in listen order. The node stops when the test ends.
func Start(t testing.TB, ports int, cfg mocknode.Config) []uint16 {
	t.Helper()
	cfg.ListenAddrs = make([]string, ports)
	for i := range cfg.ListenAddrs {
		cfg.ListenAddrs[i] = "127.0.0.1:0"
	}
	svc := mocknode.NewService(cfg)
	lns, err := svc.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	out := make([]uint16, len(lns))
	for i, ln := range lns {
		out[i] = port(t, ln)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.ServeAll(ctx, lns)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("mock node: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Errorf("mock node did not stop")
		}
	})
	return out
}

func port(t testing.TB, ln net.Listener) uint16 {
	t.Helper()
	ap, err := netip.ParseAddrPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("listener address: %v", err)
	}
	return ap.Port()
}
