package cqc

import (
	"context"
	"fmt"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/builder"
	"github.com/danmuck/cqc/internal/protocol/hdr"
)

// completion asks the node to confirm gate-like commands with DONE.
const completion = hdr.OptNotify | hdr.OptBlock

// Hello probes the node and waits for its HELLO.
func (c *Client) Hello() error {
	_, err := c.roundTrip("hello", c.builder.Hello(), hdr.TpHello, 1)
	return err
}

// NewQubit allocates one qubit. With OptNotify it also waits for the DONE
// that follows NEW_OK.
func (c *Client) NewQubit(opts hdr.CmdOpt) (hdr.QubitID, error) {
	req, err := c.builder.CmdNew(opts)
	if err != nil {
		return 0, err
	}
	replies, err := c.roundTrip("new_qubit", req, hdr.TpNewOK, 1)
	if err != nil {
		return 0, err
	}
	return replies[0].Qubit, nil
}

// Allocate reserves count qubits in one request.
func (c *Client) Allocate(count uint16) ([]hdr.QubitID, error) {
	req, err := c.builder.CmdAllocate(count, 0)
	if err != nil {
		return nil, err
	}
	replies, err := c.roundTrip("allocate", req, hdr.TpNewOK, int(count))
	if err != nil {
		return nil, err
	}
	ids := make([]hdr.QubitID, len(replies))
	for i, r := range replies {
		ids[i] = r.Qubit
	}
	return ids, nil
}

// WaitUntilNewOK reads one NEW_OK for a NEW sent through EncodeAndSend.
func (c *Client) WaitUntilNewOK() (hdr.QubitID, error) {
	replies, err := c.await(newRoundTrip("wait_new_ok", c.appID, hdr.TpNewOK, 1, false))
	if err != nil {
		return 0, err
	}
	return replies[0].Qubit, nil
}

// Send transmits qubit to remoteAppID at remoteHost:remotePort and returns
// once the request is written. The node reports completion with a DONE that
// WaitUntilDone consumes.
func (c *Client) Send(qubit hdr.QubitID, remoteAppID uint16, remoteHost string, remotePort uint16) error {
	remote, err := ResolveRemote(context.Background(), remoteAppID, remoteHost, remotePort)
	if err != nil {
		return err
	}
	return c.SendTo(qubit, remote, hdr.OptNotify)
}

func (c *Client) SendTo(qubit hdr.QubitID, remote hdr.RemoteNode, opts hdr.CmdOpt) error {
	req, err := c.builder.CmdSend(qubit, remote, opts)
	if err != nil {
		return err
	}
	if err := c.EncodeAndSend(req); err != nil {
		return fmt.Errorf("cqc: send: %w", err)
	}
	return nil
}

// WaitUntilDone blocks until n DONE notifications have arrived. HELLO
// replies in between are skipped.
func (c *Client) WaitUntilDone(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative DONE count %d", protocol.ErrInvalidParameters, n)
	}
	_, err := c.await(newDoneWait("wait_until_done", c.appID, n))
	return err
}

// Recv blocks until a qubit sent to this application arrives.
func (c *Client) Recv() (hdr.QubitID, error) {
	req, err := c.builder.CmdRecv(0)
	if err != nil {
		return 0, err
	}
	replies, err := c.roundTrip("recv", req, hdr.TpRecv, 1)
	if err != nil {
		return 0, err
	}
	return replies[0].Qubit, nil
}

// Measure returns the outcome of measuring q. Unless inplace, the node
// releases q afterwards.
func (c *Client) Measure(q hdr.QubitID, inplace bool) (uint8, error) {
	var (
		req builder.Request
		err error
	)
	if inplace {
		req, err = c.builder.CmdMeasureInplace(q, hdr.OptBlock)
	} else {
		req, err = c.builder.CmdMeasure(q, hdr.OptBlock)
	}
	if err != nil {
		return 0, err
	}
	replies, err := c.roundTrip("measure", req, hdr.TpMeasOut, 1)
	if err != nil {
		return 0, err
	}
	return replies[0].Outcome, nil
}

// Apply runs a single-qubit gate and waits for its DONE.
func (c *Client) Apply(gate hdr.Instr, q hdr.QubitID) error {
	req, err := c.builder.CmdGate(gate, q, completion)
	if err != nil {
		return err
	}
	_, err = c.roundTrip("gate", req, hdr.TpDone, 1)
	return err
}

// Rotate turns q about axis by step * 2pi/256.
func (c *Client) Rotate(axis hdr.Instr, q hdr.QubitID, step uint8) error {
	req, err := c.builder.CmdRotate(axis, q, step, completion)
	if err != nil {
		return err
	}
	_, err = c.roundTrip("rotate", req, hdr.TpDone, 1)
	return err
}

func (c *Client) CNOT(control, target hdr.QubitID) error {
	return c.twoQubit(hdr.CmdCNOT, control, target)
}

func (c *Client) CPhase(control, target hdr.QubitID) error {
	return c.twoQubit(hdr.CmdCPhase, control, target)
}

func (c *Client) twoQubit(gate hdr.Instr, control, target hdr.QubitID) error {
	req, err := c.builder.CmdTwoQubit(gate, control, target, completion)
	if err != nil {
		return err
	}
	_, err = c.roundTrip("two_qubit", req, hdr.TpDone, 1)
	return err
}

func (c *Client) Reset(q hdr.QubitID) error {
	req, err := c.builder.CmdReset(q, completion)
	if err != nil {
		return err
	}
	_, err = c.roundTrip("reset", req, hdr.TpDone, 1)
	return err
}

func (c *Client) Release(q hdr.QubitID) error {
	req, err := c.builder.CmdRelease(q, completion)
	if err != nil {
		return err
	}
	_, err = c.roundTrip("release", req, hdr.TpDone, 1)
	return err
}

// CreateEPR asks for an entangled pair shared with remote and returns the
// local half together with the pair description.
func (c *Client) CreateEPR(remote hdr.RemoteNode) (hdr.QubitID, hdr.EntInfoHdr, error) {
	req, err := c.builder.CmdEPR(remote, completion)
	if err != nil {
		return 0, hdr.EntInfoHdr{}, err
	}
	replies, err := c.roundTrip("create_epr", req, hdr.TpEPROK, 1)
	if err != nil {
		return 0, hdr.EntInfoHdr{}, err
	}
	return eprHalf(replies[0])
}

// RecvEPR blocks until the remote half of a pair addressed to this
// application arrives.
func (c *Client) RecvEPR() (hdr.QubitID, hdr.EntInfoHdr, error) {
	req, err := c.builder.CmdEPRRecv(0)
	if err != nil {
		return 0, hdr.EntInfoHdr{}, err
	}
	replies, err := c.roundTrip("recv_epr", req, hdr.TpEPROK, 1)
	if err != nil {
		return 0, hdr.EntInfoHdr{}, err
	}
	return eprHalf(replies[0])
}

// GetTime returns the creation timestamp the node holds for q.
func (c *Client) GetTime(q hdr.QubitID) (uint64, error) {
	replies, err := c.roundTrip("get_time", c.builder.GetTime(q), hdr.TpInfTime, 1)
	if err != nil {
		return 0, err
	}
	return replies[0].Timestamp, nil
}

func eprHalf(n hdr.Notification) (hdr.QubitID, hdr.EntInfoHdr, error) {
	if n.Ent == nil {
		return 0, hdr.EntInfoHdr{}, fmt.Errorf("%w: EPR_OK without entanglement info", protocol.ErrMalformedHeader)
	}
	return n.Qubit, *n.Ent, nil
}
