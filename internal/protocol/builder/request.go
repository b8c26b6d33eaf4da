package builder

import (
	"fmt"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
)

// Request is one complete CQC request. Values returned by Builder are
// self-consistent; callers should treat them as immutable.
type Request struct {
	Type    hdr.MsgType
	AppID   uint16
	Factory *hdr.FactoryHdr
	Cmd     *hdr.CmdHdr
	Remote  *hdr.RemoteNode
	Rot     *hdr.RotHdr
	Target  *hdr.QubitHdr
}

// Instr returns the instruction of the carried command, if any.
func (r Request) Instr() (hdr.Instr, bool) {
	if r.Cmd == nil {
		return 0, false
	}
	return r.Cmd.Instr, true
}

// Notify reports whether the node will follow the reply with a DONE.
func (r Request) Notify() bool {
	if r.Factory != nil && r.Factory.Options.Has(hdr.OptNotify) {
		return true
	}
	return r.Cmd != nil && r.Cmd.Options.Has(hdr.OptNotify)
}

// Encode produces the wire form of r. The CQC header length is computed from
// the encoded payload.
func (r Request) Encode() []byte {
	var payload []byte
	if r.Factory != nil {
		payload = append(payload, r.Factory.Encode()...)
	}
	if r.Cmd != nil {
		payload = append(payload, r.Cmd.Encode()...)
	}
	if r.Remote != nil {
		payload = append(payload, r.Remote.Encode()...)
	}
	if r.Rot != nil {
		payload = append(payload, r.Rot.Encode()...)
	}
	if r.Target != nil {
		payload = append(payload, r.Target.Encode()...)
	}
	h := hdr.CqcHdr{
		Version: hdr.Version,
		Type:    r.Type,
		AppID:   r.AppID,
		Length:  uint32(len(payload)),
	}
	return append(h.Encode(), payload...)
}

func (r Request) String() string {
	if r.Cmd == nil {
		return fmt.Sprintf("%s app=%d", r.Type, r.AppID)
	}
	s := fmt.Sprintf("%s app=%d %s qubit=%d opts=%s", r.Type, r.AppID, r.Cmd.Instr, r.Cmd.Qubit, r.Cmd.Options)
	if r.Remote != nil {
		s += " remote=" + r.Remote.String()
	}
	return s
}

// Parse decodes a complete request message. It is the inverse of Encode and
// is what a node uses to read application requests.
func Parse(msg []byte) (Request, error) {
	h, err := hdr.DecodeCqcHdr(msg)
	if err != nil {
		return Request{}, err
	}
	body := msg[hdr.CqcHdrLen:]
	if uint64(len(body)) != uint64(h.Length) {
		return Request{}, fmt.Errorf("%w: length field %d, payload %d bytes", protocol.ErrMalformedHeader, h.Length, len(body))
	}

	r := Request{Type: h.Type, AppID: h.AppID}
	switch h.Type {
	case hdr.TpHello:
		if len(body) != 0 {
			return Request{}, fmt.Errorf("%w: HELLO carries %d payload bytes", protocol.ErrMalformedHeader, len(body))
		}
		return r, nil
	case hdr.TpFactory:
		f, err := hdr.DecodeFactoryHdr(body)
		if err != nil {
			return Request{}, err
		}
		r.Factory = &f
		body = body[hdr.FactoryHdrLen:]
	case hdr.TpCommand, hdr.TpGetTime:
	default:
		return Request{}, fmt.Errorf("%w: %s is not a request type", protocol.ErrMalformedHeader, h.Type)
	}

	cmd, err := hdr.DecodeCmdHdr(body)
	if err != nil {
		return Request{}, err
	}
	r.Cmd = &cmd
	body = body[hdr.CmdHdrLen:]

	if h.Type != hdr.TpGetTime {
		switch cmd.Instr {
		case hdr.CmdSend, hdr.CmdEPR:
			remote, err := hdr.DecodeRemoteNode(body)
			if err != nil {
				return Request{}, err
			}
			r.Remote = &remote
		case hdr.CmdRotX, hdr.CmdRotY, hdr.CmdRotZ:
			rot, err := hdr.DecodeRotHdr(body)
			if err != nil {
				return Request{}, err
			}
			r.Rot = &rot
		case hdr.CmdCNOT, hdr.CmdCPhase:
			target, err := hdr.DecodeQubitHdr(body)
			if err != nil {
				return Request{}, err
			}
			r.Target = &target
		}
		body = body[cmd.Instr.ExtraHdrLen():]
	}
	if len(body) != 0 {
		return Request{}, fmt.Errorf("%w: %d trailing bytes after %s", protocol.ErrMalformedHeader, len(body), cmd.Instr)
	}
	return r, nil
}
