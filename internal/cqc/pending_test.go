package cqc

import (
	"errors"
	"testing"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func note(t hdr.MsgType) hdr.Notification {
	return hdr.Notification{Hdr: hdr.CqcHdr{Version: hdr.Version, Type: t, AppID: 10}}
}

func TestPendingOpTransitions(t *testing.T) {
	cases := []struct {
		name   string
		op     func() *pendingOp
		feed   []hdr.MsgType
		states []OpState
		err    error
	}{
		{
			name:   "ack without notify",
			op:     func() *pendingOp { return newRoundTrip("new_qubit", 10, hdr.TpNewOK, 1, false) },
			feed:   []hdr.MsgType{hdr.TpNewOK},
			states: []OpState{StateDone},
		},
		{
			name:   "ack then completion",
			op:     func() *pendingOp { return newRoundTrip("new_qubit", 10, hdr.TpNewOK, 1, true) },
			feed:   []hdr.MsgType{hdr.TpNewOK, hdr.TpDone},
			states: []OpState{StateAwaitingCompletion, StateDone},
		},
		{
			name:   "done is its own ack",
			op:     func() *pendingOp { return newRoundTrip("gate", 10, hdr.TpDone, 1, true) },
			feed:   []hdr.MsgType{hdr.TpDone},
			states: []OpState{StateDone},
		},
		{
			name:   "done while awaiting new ok",
			op:     func() *pendingOp { return newRoundTrip("new_qubit", 10, hdr.TpNewOK, 1, false) },
			feed:   []hdr.MsgType{hdr.TpDone},
			states: []OpState{StateFailed},
			err:    protocol.ErrUnexpectedNotification,
		},
		{
			name:   "backend error during completion",
			op:     func() *pendingOp { return newRoundTrip("recv", 10, hdr.TpRecv, 1, true) },
			feed:   []hdr.MsgType{hdr.TpRecv, hdr.ErrTimeout},
			states: []OpState{StateAwaitingCompletion, StateFailed},
			err:    protocol.ErrBackend,
		},
		{
			name:   "hello skipped while waiting for done",
			op:     func() *pendingOp { return newDoneWait("wait_until_done", 10, 2) },
			feed:   []hdr.MsgType{hdr.TpDone, hdr.TpHello, hdr.TpDone},
			states: []OpState{StateAwaitingCompletion, StateAwaitingCompletion, StateDone},
		},
		{
			name:   "hello is not an ack",
			op:     func() *pendingOp { return newRoundTrip("new_qubit", 10, hdr.TpNewOK, 1, false) },
			feed:   []hdr.MsgType{hdr.TpHello},
			states: []OpState{StateFailed},
			err:    protocol.ErrUnexpectedNotification,
		},
		{
			name:   "several acks",
			op:     func() *pendingOp { return newRoundTrip("allocate", 10, hdr.TpNewOK, 3, false) },
			feed:   []hdr.MsgType{hdr.TpNewOK, hdr.TpNewOK, hdr.TpNewOK},
			states: []OpState{StateAwaitingAck, StateAwaitingAck, StateDone},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			op := tc.op()
			require.Equal(t, StateSent, op.state)
			op.sent()
			for i, tp := range tc.feed {
				assert.Equal(t, tc.states[i], op.observe(note(tp)), "after %s", tp)
			}
			if tc.err == nil {
				assert.NoError(t, op.err)
			} else {
				assert.ErrorIs(t, op.err, tc.err)
			}
		})
	}
}

func TestPendingOpZeroDoneWaitIsDone(t *testing.T) {
	op := newDoneWait("wait_until_done", 10, 0)
	if got := op.sent(); got != StateDone {
		t.Fatalf("expected done, got %s", got)
	}
}

func TestPendingOpRejectsForeignAppID(t *testing.T) {
	op := newRoundTrip("new_qubit", 10, hdr.TpNewOK, 1, false)
	op.sent()
	n := note(hdr.TpNewOK)
	n.Hdr.AppID = 11
	if got := op.observe(n); got != StateFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	var unexpected *UnexpectedNotificationError
	if !errors.As(op.err, &unexpected) || unexpected.AppID != 11 {
		t.Fatalf("expected unexpected notification for app 11, got %v", op.err)
	}
}

func TestPendingOpTerminalIgnoresFurtherInput(t *testing.T) {
	op := newRoundTrip("hello", 10, hdr.TpHello, 1, false)
	op.sent()
	op.observe(note(hdr.TpHello))
	if got := op.observe(note(hdr.ErrGeneral)); got != StateDone {
		t.Fatalf("terminal state changed to %s", got)
	}
	if op.err != nil {
		t.Fatalf("unexpected error: %v", op.err)
	}
}
