package cqc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/cqc/internal/mocknode"
	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/danmuck/cqc/internal/testutil/nodetest"
	"github.com/danmuck/cqc/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func dialTest(t *testing.T, port uint16) *Client {
	t.Helper()
	c, err := New(testApp, "127.0.0.1", port, WithReadTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTwoClientSendRecv(t *testing.T) {
	testlog.Start(t)
	ports := nodetest.Start(t, 2, mocknode.DefaultConfig())
	alice := dialTest(t, ports[0])
	bob := dialTest(t, ports[1])

	var sent, received hdr.QubitID
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		q, err := alice.NewQubit(0)
		if err != nil {
			return err
		}
		sent = q
		if err := alice.Send(q, testApp, "127.0.0.1", ports[1]); err != nil {
			return err
		}
		return alice.WaitUntilDone(1)
	})
	g.Go(func() error {
		q, err := bob.Recv()
		received = q
		return err
	})
	require.NoError(t, g.Wait())
	assert.NotZero(t, sent)
	assert.Equal(t, sent, received, "recv must return the id the sender allocated")

	outcome, err := bob.Measure(received, false)
	require.NoError(t, err)
	assert.LessOrEqual(t, outcome, uint8(1))
}

func TestClientSingleQubitLifecycle(t *testing.T) {
	testlog.Start(t)
	ports := nodetest.Start(t, 1, mocknode.DefaultConfig())
	c := dialTest(t, ports[0])

	require.NoError(t, c.Hello())

	q, err := c.NewQubit(hdr.OptNotify)
	require.NoError(t, err)

	for _, gate := range []hdr.Instr{hdr.CmdH, hdr.CmdX, hdr.CmdK} {
		require.NoError(t, c.Apply(gate, q), "gate %s", gate)
	}
	require.NoError(t, c.Rotate(hdr.CmdRotY, q, 64))
	require.NoError(t, c.Reset(q))

	ts, err := c.GetTime(q)
	require.NoError(t, err)
	assert.NotZero(t, ts)

	_, err = c.Measure(q, true)
	require.NoError(t, err)
	require.NoError(t, c.Release(q))

	err = c.Apply(hdr.CmdX, q)
	assert.ErrorIs(t, err, protocol.ErrBackend)
	var backend *BackendError
	require.True(t, errors.As(err, &backend))
	assert.Equal(t, hdr.ErrUnknown, backend.Type)
}

func TestClientTwoQubitGates(t *testing.T) {
	testlog.Start(t)
	ports := nodetest.Start(t, 1, mocknode.DefaultConfig())
	c := dialTest(t, ports[0])

	ids, err := c.Allocate(2)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	require.NoError(t, c.CNOT(ids[0], ids[1]))
	require.NoError(t, c.CPhase(ids[1], ids[0]))
	assert.ErrorIs(t, c.CNOT(ids[0], ids[0]), protocol.ErrInvalidParameters)
}

func TestClientEPRPair(t *testing.T) {
	testlog.Start(t)
	ports := nodetest.Start(t, 2, mocknode.DefaultConfig())
	alice := dialTest(t, ports[0])
	bob := dialTest(t, ports[1])

	remote, err := ResolveRemote(context.Background(), testApp, "127.0.0.1", ports[1])
	require.NoError(t, err)

	var sent, got hdr.EntInfoHdr
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		_, ent, err := alice.CreateEPR(remote)
		sent = ent
		return err
	})
	g.Go(func() error {
		_, ent, err := bob.RecvEPR()
		got = ent
		return err
	})
	require.NoError(t, g.Wait())
	assert.Equal(t, sent, got)
	assert.Equal(t, ports[0], got.PortA)
	assert.Equal(t, ports[1], got.PortB)
}

func TestClientQubitLimit(t *testing.T) {
	testlog.Start(t)
	cfg := mocknode.DefaultConfig()
	cfg.MaxQubits = 1
	ports := nodetest.Start(t, 1, cfg)
	c := dialTest(t, ports[0])

	_, err := c.NewQubit(0)
	require.NoError(t, err)
	_, err = c.NewQubit(0)
	assert.ErrorIs(t, err, protocol.ErrBackend)
	// A backend refusal leaves the session usable.
	assert.NoError(t, c.Hello())
}

func TestResolveRemote(t *testing.T) {
	r, err := ResolveRemote(context.Background(), testApp, "127.0.0.1", 8804)
	require.NoError(t, err)
	assert.Equal(t, hdr.RemoteNode{AppID: testApp, Node: 0x7f000001, Port: 8804}, r)

	_, err = ResolveRemote(context.Background(), testApp, "::1", 8804)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	_, err = ResolveRemote(context.Background(), testApp, "", 8804)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)
}
