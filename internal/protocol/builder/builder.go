// Package builder constructs validated CQC request messages.
//
// A Builder never performs I/O. Every operation either returns a complete
// Request whose header length matches its encoded payload, or an error
// wrapping protocol.ErrInvalidParameters.
package builder

import (
	"fmt"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
)

// Options accepted on every instruction. ACTION and IFTHEN chain server-side
// command sequences, which this builder does not construct.
const legalOpts = hdr.OptNotify | hdr.OptBlock

var singleQubitGates = map[hdr.Instr]struct{}{
	hdr.CmdI: {}, hdr.CmdX: {}, hdr.CmdY: {}, hdr.CmdZ: {},
	hdr.CmdT: {}, hdr.CmdH: {}, hdr.CmdK: {},
}

// Builder stamps requests with the application id it was created for.
type Builder struct {
	appID uint16
}

func New(appID uint16) Builder {
	return Builder{appID: appID}
}

func (b Builder) AppID() uint16 { return b.appID }

// Hello builds a liveness probe; the node answers with HELLO.
func (b Builder) Hello() Request {
	return Request{Type: hdr.TpHello, AppID: b.appID}
}

// CmdNew asks the node for a fresh qubit.
func (b Builder) CmdNew(opts hdr.CmdOpt) (Request, error) {
	return b.command(hdr.CmdNew, 0, opts)
}

// CmdAllocate asks the node for count qubits at once.
func (b Builder) CmdAllocate(count uint16, opts hdr.CmdOpt) (Request, error) {
	if count == 0 {
		return Request{}, fmt.Errorf("%w: ALLOCATE needs a qubit count", protocol.ErrInvalidParameters)
	}
	return b.command(hdr.CmdAllocate, hdr.QubitID(count), opts)
}

func (b Builder) CmdMeasure(q hdr.QubitID, opts hdr.CmdOpt) (Request, error) {
	return b.command(hdr.CmdMeasure, q, opts)
}

func (b Builder) CmdMeasureInplace(q hdr.QubitID, opts hdr.CmdOpt) (Request, error) {
	return b.command(hdr.CmdMeasureInplace, q, opts)
}

func (b Builder) CmdReset(q hdr.QubitID, opts hdr.CmdOpt) (Request, error) {
	return b.command(hdr.CmdReset, q, opts)
}

func (b Builder) CmdRelease(q hdr.QubitID, opts hdr.CmdOpt) (Request, error) {
	return b.command(hdr.CmdRelease, q, opts)
}

// CmdSend transfers q to remote. q is consumed by the node once it accepts
// the command.
func (b Builder) CmdSend(q hdr.QubitID, remote hdr.RemoteNode, opts hdr.CmdOpt) (Request, error) {
	if remote.IsZero() {
		return Request{}, fmt.Errorf("%w: SEND needs a destination node", protocol.ErrInvalidParameters)
	}
	r, err := b.command(hdr.CmdSend, q, opts)
	if err != nil {
		return Request{}, err
	}
	r.Remote = &remote
	return r, nil
}

// CmdRecv asks for the next qubit sent to this application from any node.
func (b Builder) CmdRecv(opts hdr.CmdOpt) (Request, error) {
	return b.command(hdr.CmdRecv, 0, opts)
}

// CmdEPR creates an entangled pair shared with remote.
func (b Builder) CmdEPR(remote hdr.RemoteNode, opts hdr.CmdOpt) (Request, error) {
	if remote.IsZero() {
		return Request{}, fmt.Errorf("%w: EPR needs a destination node", protocol.ErrInvalidParameters)
	}
	r, err := b.command(hdr.CmdEPR, 0, opts)
	if err != nil {
		return Request{}, err
	}
	r.Remote = &remote
	return r, nil
}

// CmdEPRRecv receives the remote half of an entangled pair.
func (b Builder) CmdEPRRecv(opts hdr.CmdOpt) (Request, error) {
	return b.command(hdr.CmdEPRRecv, 0, opts)
}

// CmdGate applies one of the single-qubit gates I, X, Y, Z, T, H or K.
func (b Builder) CmdGate(gate hdr.Instr, q hdr.QubitID, opts hdr.CmdOpt) (Request, error) {
	if _, ok := singleQubitGates[gate]; !ok {
		return Request{}, fmt.Errorf("%w: %s is not a single-qubit gate", protocol.ErrInvalidParameters, gate)
	}
	return b.command(gate, q, opts)
}

// CmdRotate rotates q around the axis selected by ROT_X, ROT_Y or ROT_Z by
// step·2π/256.
func (b Builder) CmdRotate(axis hdr.Instr, q hdr.QubitID, step uint8, opts hdr.CmdOpt) (Request, error) {
	switch axis {
	case hdr.CmdRotX, hdr.CmdRotY, hdr.CmdRotZ:
	default:
		return Request{}, fmt.Errorf("%w: %s is not a rotation", protocol.ErrInvalidParameters, axis)
	}
	r, err := b.command(axis, q, opts)
	if err != nil {
		return Request{}, err
	}
	r.Rot = &hdr.RotHdr{Step: step}
	return r, nil
}

// CmdTwoQubit applies CNOT or CPHASE with control as the command qubit.
func (b Builder) CmdTwoQubit(gate hdr.Instr, control, target hdr.QubitID, opts hdr.CmdOpt) (Request, error) {
	if gate != hdr.CmdCNOT && gate != hdr.CmdCPhase {
		return Request{}, fmt.Errorf("%w: %s is not a two-qubit gate", protocol.ErrInvalidParameters, gate)
	}
	if control == target {
		return Request{}, fmt.Errorf("%w: %s control and target are both qubit %d", protocol.ErrInvalidParameters, gate, control)
	}
	r, err := b.command(gate, control, opts)
	if err != nil {
		return Request{}, err
	}
	r.Target = &hdr.QubitHdr{Qubit: target}
	return r, nil
}

// GetTime asks for the creation time of q; the node answers INF_TIME.
func (b Builder) GetTime(q hdr.QubitID) Request {
	return Request{
		Type:  hdr.TpGetTime,
		AppID: b.appID,
		Cmd:   &hdr.CmdHdr{Qubit: q, Instr: hdr.CmdI},
	}
}

// Factory wraps a command request so the node runs it iterations times.
func (b Builder) Factory(iterations uint8, opts hdr.CmdOpt, cmd Request) (Request, error) {
	if iterations == 0 {
		return Request{}, fmt.Errorf("%w: FACTORY needs at least one iteration", protocol.ErrInvalidParameters)
	}
	if opts&^legalOpts != 0 {
		return Request{}, fmt.Errorf("%w: FACTORY does not accept options %s", protocol.ErrInvalidParameters, opts&^legalOpts)
	}
	if cmd.Type != hdr.TpCommand || cmd.Cmd == nil {
		return Request{}, fmt.Errorf("%w: FACTORY wraps a COMMAND, got %s", protocol.ErrInvalidParameters, cmd.Type)
	}
	if cmd.AppID != b.appID {
		return Request{}, fmt.Errorf("%w: FACTORY command built for app %d", protocol.ErrInvalidParameters, cmd.AppID)
	}
	cmd.Type = hdr.TpFactory
	cmd.Factory = &hdr.FactoryHdr{Iterations: iterations, Options: opts}
	return cmd, nil
}

func (b Builder) command(instr hdr.Instr, q hdr.QubitID, opts hdr.CmdOpt) (Request, error) {
	if opts&^legalOpts != 0 {
		return Request{}, fmt.Errorf("%w: %s does not accept options %s", protocol.ErrInvalidParameters, instr, opts&^legalOpts)
	}
	return Request{
		Type:  hdr.TpCommand,
		AppID: b.appID,
		Cmd:   &hdr.CmdHdr{Qubit: q, Instr: instr, Options: opts},
	}, nil
}
