package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/cqc/internal/config"
	"github.com/danmuck/cqc/internal/cqc"
	"github.com/danmuck/cqc/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestResolveFlagsOverrideDefaults(t *testing.T) {
	cfg, err := resolve([]string{
		"--listen", "127.0.0.1:9803,127.0.0.1:9804",
		"--max-qubits", "4",
		"--metrics-addr", "127.0.0.1:9464",
		"--log-level", "debug",
	}, noEnv)
	require.NoError(t, err)

	assert.Equal(t, []string{"127.0.0.1:9803", "127.0.0.1:9804"}, cfg.Node.Listen)
	assert.Equal(t, 4, cfg.Node.MaxQubits)
	assert.Equal(t, "127.0.0.1:9464", cfg.Node.MetricsAddr)
	assert.Equal(t, config.Default().Node.MailboxSize, cfg.Node.MailboxSize)
}

func TestResolveRejectsBadFlags(t *testing.T) {
	_, err := resolve([]string{"--log-level", "loud"}, noEnv)
	assert.Error(t, err)
	_, err = resolve([]string{"--max-qubits=-1"}, noEnv)
	assert.Error(t, err)
	_, err = resolve([]string{"extra"}, noEnv)
	assert.Error(t, err)
}

func TestRunServesNodeAndMetrics(t *testing.T) {
	testlog.Start(t)
	nodeAddr := freeAddr(t)
	metricsAddr := freeAddr(t)
	cfg, err := resolve([]string{"--listen", nodeAddr, "--metrics-addr", metricsAddr}, noEnv)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Errorf("run did not stop")
		}
	}()

	host, port := splitAddr(t, nodeAddr)
	var c *cqc.Client
	require.Eventually(t, func() bool {
		c, err = cqc.New(10, host, port, cqc.WithReadTimeout(2*time.Second))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer c.Close()
	require.NoError(t, c.Hello())

	want := `cqc_wire_messages_total{direction="received",role="node",type="HELLO"}`
	var body string
	require.Eventually(t, func() bool {
		body = scrape(metricsAddr)
		return strings.Contains(body, want)
	}, 2*time.Second, 20*time.Millisecond, "metrics output:\n%s", body)
}

func scrape(addr string) string {
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	return string(body)
}

func splitAddr(t *testing.T, addr string) (string, uint16) {
	t.Helper()
	host, rawPort, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	var port uint16
	_, err = fmt.Sscanf(rawPort, "%d", &port)
	require.NoError(t, err)
	return host, port
}
