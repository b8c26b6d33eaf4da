package builder

import (
	"encoding/binary"
	"testing"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRemote = hdr.RemoteNode{AppID: 10, Node: 0x7f000001, Port: 8804}

func allRequests(t *testing.T) []Request {
	t.Helper()
	b := New(10)
	var out []Request
	add := func(r Request, err error) {
		t.Helper()
		require.NoError(t, err)
		out = append(out, r)
	}
	out = append(out, b.Hello(), b.GetTime(3))
	add(b.CmdNew(0))
	add(b.CmdNew(hdr.OptNotify | hdr.OptBlock))
	add(b.CmdAllocate(4, hdr.OptNotify))
	add(b.CmdMeasure(1, 0))
	add(b.CmdMeasureInplace(1, hdr.OptBlock))
	add(b.CmdReset(1, 0))
	add(b.CmdRelease(1, hdr.OptNotify))
	add(b.CmdSend(1, testRemote, hdr.OptNotify))
	add(b.CmdRecv(0))
	add(b.CmdEPR(testRemote, hdr.OptNotify))
	add(b.CmdEPRRecv(0))
	add(b.CmdGate(hdr.CmdH, 1, 0))
	add(b.CmdRotate(hdr.CmdRotZ, 1, 32, 0))
	add(b.CmdTwoQubit(hdr.CmdCNOT, 1, 2, hdr.OptNotify))
	cmd, err := b.CmdGate(hdr.CmdX, 1, 0)
	require.NoError(t, err)
	add(b.Factory(3, hdr.OptNotify, cmd))
	return out
}

func TestLengthFieldMatchesPayload(t *testing.T) {
	for _, r := range allRequests(t) {
		msg := r.Encode()
		require.GreaterOrEqual(t, len(msg), hdr.CqcHdrLen)
		length := binary.BigEndian.Uint32(msg[4:8])
		assert.Equal(t, uint32(len(msg)-hdr.CqcHdrLen), length, "request %s", r)
	}
}

func TestParseIsInverseOfEncode(t *testing.T) {
	for _, r := range allRequests(t) {
		got, err := Parse(r.Encode())
		require.NoError(t, err, "request %s", r)
		if diff := cmp.Diff(r, got); diff != "" {
			t.Fatalf("%s round-trip mismatch (-want +got):\n%s", r, diff)
		}
	}
}

func TestSendWithoutDestination(t *testing.T) {
	b := New(10)
	_, err := b.CmdSend(1, hdr.RemoteNode{}, hdr.OptNotify)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	_, err = b.CmdSend(1, hdr.RemoteNode{AppID: 10, Node: 0x7f000001}, hdr.OptNotify)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	_, err = b.CmdEPR(hdr.RemoteNode{AppID: 10, Port: 8804}, 0)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)
}

func TestIllegalOptionsRejected(t *testing.T) {
	b := New(10)
	for _, opts := range []hdr.CmdOpt{hdr.OptAction, hdr.OptIfThen, hdr.OptNotify | hdr.OptAction, 0x40} {
		_, err := b.CmdNew(opts)
		assert.ErrorIs(t, err, protocol.ErrInvalidParameters, "opts %s", opts)
		_, err = b.CmdSend(1, testRemote, opts)
		assert.ErrorIs(t, err, protocol.ErrInvalidParameters, "opts %s", opts)
	}
}

func TestGateValidation(t *testing.T) {
	b := New(10)
	_, err := b.CmdGate(hdr.CmdSend, 1, 0)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	_, err = b.CmdRotate(hdr.CmdX, 1, 4, 0)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	_, err = b.CmdTwoQubit(hdr.CmdH, 1, 2, 0)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	_, err = b.CmdTwoQubit(hdr.CmdCPhase, 3, 3, 0)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	_, err = b.CmdAllocate(0, 0)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)
}

func TestFactoryValidation(t *testing.T) {
	b := New(10)
	cmd, err := b.CmdGate(hdr.CmdX, 1, 0)
	require.NoError(t, err)

	_, err = b.Factory(0, 0, cmd)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	_, err = b.Factory(2, 0, b.Hello())
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	_, err = New(11).Factory(2, 0, cmd)
	assert.ErrorIs(t, err, protocol.ErrInvalidParameters)

	f, err := b.Factory(2, hdr.OptNotify, cmd)
	require.NoError(t, err)
	assert.Equal(t, hdr.TpFactory, f.Type)
	assert.True(t, f.Notify())
	assert.Equal(t, hdr.TpCommand, cmd.Type, "factory must not alter the wrapped request")
}

func TestParseRejectsMalformed(t *testing.T) {
	b := New(10)
	send, err := b.CmdSend(1, testRemote, 0)
	require.NoError(t, err)
	msg := send.Encode()

	_, err = Parse(msg[:len(msg)-1])
	assert.ErrorIs(t, err, protocol.ErrMalformedHeader)

	extra := append(append([]byte{}, msg...), 0)
	binary.BigEndian.PutUint32(extra[4:8], uint32(len(extra)-hdr.CqcHdrLen))
	_, err = Parse(extra)
	assert.ErrorIs(t, err, protocol.ErrMalformedHeader)

	reply := hdr.Notification{Hdr: hdr.CqcHdr{Type: hdr.TpDone, AppID: 10}}.Encode()
	_, err = Parse(reply)
	assert.ErrorIs(t, err, protocol.ErrMalformedHeader)

	_, err = Parse(msg[:3])
	assert.ErrorIs(t, err, protocol.ErrMalformedHeader)
}

func TestNotifyFlag(t *testing.T) {
	b := New(10)
	r, err := b.CmdSend(1, testRemote, hdr.OptNotify)
	require.NoError(t, err)
	assert.True(t, r.Notify())

	r, err = b.CmdRecv(hdr.OptBlock)
	require.NoError(t, err)
	assert.False(t, r.Notify())
	assert.False(t, b.Hello().Notify())
}
