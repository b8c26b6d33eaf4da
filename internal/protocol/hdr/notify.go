package hdr

import (
	"fmt"

	"github.com/danmuck/cqc/internal/protocol"
)

// Notification is one decoded reply from the node: its CQC header and the
// fields its payload carries for that type.
type Notification struct {
	Hdr       CqcHdr
	Qubit     QubitID
	Outcome   uint8
	Timestamp uint64
	Ent       *EntInfoHdr
}

// DecodeNotification decodes a complete reply message (header and payload).
// The header length must match the fixed payload length of the reply type and
// request types are rejected.
func DecodeNotification(msg []byte) (Notification, error) {
	h, err := DecodeCqcHdr(msg)
	if err != nil {
		return Notification{}, err
	}
	want, ok := ReplyPayloadLen(h.Type)
	if !ok {
		return Notification{}, fmt.Errorf("%w: %s is not a reply type", protocol.ErrMalformedHeader, h.Type)
	}
	if int(h.Length) != want {
		return Notification{}, fmt.Errorf("%w: %s length %d, want %d", protocol.ErrMalformedHeader, h.Type, h.Length, want)
	}
	payload := msg[CqcHdrLen:]
	if len(payload) < want {
		return Notification{}, fmt.Errorf("%w: %s payload truncated at %d of %d bytes", protocol.ErrMalformedHeader, h.Type, len(payload), want)
	}

	n := Notification{Hdr: h}
	switch h.Type {
	case TpNewOK, TpRecv, TpExpire:
		q, err := DecodeQubitHdr(payload)
		if err != nil {
			return Notification{}, err
		}
		n.Qubit = q.Qubit
	case TpEPROK:
		q, err := DecodeQubitHdr(payload)
		if err != nil {
			return Notification{}, err
		}
		ent, err := DecodeEntInfoHdr(payload[QubitHdrLen:])
		if err != nil {
			return Notification{}, err
		}
		n.Qubit = q.Qubit
		n.Ent = &ent
	case TpMeasOut:
		m, err := DecodeMeasOutHdr(payload)
		if err != nil {
			return Notification{}, err
		}
		n.Outcome = m.Outcome
	case TpInfTime:
		ti, err := DecodeTimeInfoHdr(payload)
		if err != nil {
			return Notification{}, err
		}
		n.Timestamp = ti.Timestamp
	}
	return n, nil
}

// Encode produces the wire form of n. It is used by nodes and tests; the
// header length is derived from the type.
func (n Notification) Encode() []byte {
	h := n.Hdr
	h.Version = Version
	want, _ := ReplyPayloadLen(h.Type)
	h.Length = uint32(want)

	out := h.Encode()
	switch h.Type {
	case TpNewOK, TpRecv, TpExpire:
		out = append(out, QubitHdr{Qubit: n.Qubit}.Encode()...)
	case TpEPROK:
		out = append(out, QubitHdr{Qubit: n.Qubit}.Encode()...)
		var ent EntInfoHdr
		if n.Ent != nil {
			ent = *n.Ent
		}
		out = append(out, ent.Encode()...)
	case TpMeasOut:
		out = append(out, MeasOutHdr{Outcome: n.Outcome}.Encode()...)
	case TpInfTime:
		out = append(out, TimeInfoHdr{Timestamp: n.Timestamp}.Encode()...)
	}
	return out
}
