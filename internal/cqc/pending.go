package cqc

import (
	"fmt"

	"github.com/danmuck/cqc/internal/protocol/hdr"
)

// OpState is the progress of the one outstanding operation.
type OpState int

const (
	StateSent OpState = iota
	StateAwaitingAck
	StateAwaitingCompletion
	StateDone
	StateFailed
)

func (s OpState) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateAwaitingAck:
		return "awaiting ack"
	case StateAwaitingCompletion:
		return "awaiting completion"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("OpState(%d)", int(s))
	}
}

// Terminal reports whether no further notification can change s.
func (s OpState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// pendingOp tracks one request from the moment it is written until its
// last expected reply. Each received notification is fed to observe, which
// performs exactly one transition.
type pendingOp struct {
	name  string
	appID uint16

	// ack is the reply type that acknowledges the request and acks how many
	// of them are still expected. A zero acks starts the operation directly
	// in completion, which is how a bare wait for DONE is modeled.
	ack  hdr.MsgType
	acks int
	// dones is the number of DONE notifications still expected once all
	// acks have arrived.
	dones int
	// skip lists reply types that are benign while waiting for completion.
	skip map[hdr.MsgType]bool

	state   OpState
	replies []hdr.Notification
	err     error
}

func newRoundTrip(name string, appID uint16, ack hdr.MsgType, acks int, notify bool) *pendingOp {
	op := &pendingOp{name: name, appID: appID, ack: ack, acks: acks, state: StateSent}
	if notify && ack != hdr.TpDone {
		op.dones = 1
	}
	return op
}

func newDoneWait(name string, appID uint16, count int) *pendingOp {
	return &pendingOp{
		name:  name,
		appID: appID,
		ack:   hdr.TpDone,
		dones: count,
		skip:  map[hdr.MsgType]bool{hdr.TpHello: true},
		state: StateSent,
	}
}

// sent moves the operation past the write.
func (p *pendingOp) sent() OpState {
	if p.state != StateSent {
		return p.state
	}
	switch {
	case p.acks > 0:
		p.state = StateAwaitingAck
	case p.dones > 0:
		p.state = StateAwaitingCompletion
	default:
		p.state = StateDone
	}
	return p.state
}

func (p *pendingOp) observe(n hdr.Notification) OpState {
	if p.state.Terminal() {
		return p.state
	}
	t := n.Hdr.Type
	if n.Hdr.AppID != p.appID {
		return p.fail(&UnexpectedNotificationError{Op: p.name, State: p.state, Got: t, Want: p.expecting(), AppID: n.Hdr.AppID})
	}
	if t.IsError() {
		return p.fail(&BackendError{Op: p.name, Type: t})
	}

	switch p.state {
	case StateAwaitingAck:
		if t != p.ack {
			break
		}
		p.replies = append(p.replies, n)
		p.acks--
		if p.acks > 0 {
			return p.state
		}
		if p.dones > 0 {
			p.state = StateAwaitingCompletion
		} else {
			p.state = StateDone
		}
		return p.state
	case StateAwaitingCompletion:
		if p.skip[t] {
			return p.state
		}
		if t != hdr.TpDone {
			break
		}
		p.dones--
		if p.dones == 0 {
			p.state = StateDone
		}
		return p.state
	}
	return p.fail(&UnexpectedNotificationError{Op: p.name, State: p.state, Got: t, Want: p.expecting(), AppID: n.Hdr.AppID})
}

// abort ends the operation with a transport or decode error.
func (p *pendingOp) abort(err error) OpState {
	return p.fail(err)
}

func (p *pendingOp) fail(err error) OpState {
	p.state = StateFailed
	p.err = err
	return p.state
}

func (p *pendingOp) expecting() hdr.MsgType {
	if p.state == StateAwaitingAck {
		return p.ack
	}
	return hdr.TpDone
}
