package hdr

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/cqc/internal/protocol"
)

const (
	CqcHdrLen      = 8
	CmdHdrLen      = 4
	RemoteNodeLen  = 8
	RotHdrLen      = 1
	QubitHdrLen    = 2
	FactoryHdrLen  = 2
	MeasOutHdrLen  = 1
	TimeInfoHdrLen = 8
	EntInfoHdrLen  = 40
)

// CqcHdr is the header that starts every CQC message.
type CqcHdr struct {
	Version uint8
	Type    MsgType
	AppID   uint16
	Length  uint32
}

func (h CqcHdr) Encode() []byte {
	buf := make([]byte, CqcHdrLen)
	buf[0] = h.Version
	buf[1] = uint8(h.Type)
	binary.BigEndian.PutUint16(buf[2:4], h.AppID)
	binary.BigEndian.PutUint32(buf[4:8], h.Length)
	return buf
}

// DecodeCqcHdr decodes the first CqcHdrLen bytes of b.
func DecodeCqcHdr(b []byte) (CqcHdr, error) {
	if err := need(b, CqcHdrLen, "cqc header"); err != nil {
		return CqcHdr{}, err
	}
	h := CqcHdr{
		Version: b[0],
		Type:    MsgType(b[1]),
		AppID:   binary.BigEndian.Uint16(b[2:4]),
		Length:  binary.BigEndian.Uint32(b[4:8]),
	}
	if h.Version != Version {
		return CqcHdr{}, fmt.Errorf("%w: unsupported version %d", protocol.ErrMalformedHeader, h.Version)
	}
	if !h.Type.Known() {
		return CqcHdr{}, fmt.Errorf("%w: unknown message type %d", protocol.ErrMalformedHeader, uint8(h.Type))
	}
	return h, nil
}

// CmdHdr names the qubit, instruction and options of one command.
type CmdHdr struct {
	Qubit   QubitID
	Instr   Instr
	Options CmdOpt
}

func (h CmdHdr) Encode() []byte {
	buf := make([]byte, CmdHdrLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(h.Qubit))
	buf[2] = uint8(h.Instr)
	buf[3] = uint8(h.Options)
	return buf
}

func DecodeCmdHdr(b []byte) (CmdHdr, error) {
	if err := need(b, CmdHdrLen, "command header"); err != nil {
		return CmdHdr{}, err
	}
	h := CmdHdr{
		Qubit:   QubitID(binary.BigEndian.Uint16(b[0:2])),
		Instr:   Instr(b[2]),
		Options: CmdOpt(b[3]),
	}
	if !h.Instr.Known() {
		return CmdHdr{}, fmt.Errorf("%w: unknown instruction %d", protocol.ErrMalformedHeader, uint8(h.Instr))
	}
	if h.Options&^optAll != 0 {
		return CmdHdr{}, fmt.Errorf("%w: unknown option bits 0x%02x", protocol.ErrMalformedHeader, uint8(h.Options&^optAll))
	}
	return h, nil
}

// RotHdr carries the rotation angle of ROT_X, ROT_Y and ROT_Z in steps of
// 2π/256.
type RotHdr struct {
	Step uint8
}

func (h RotHdr) Encode() []byte { return []byte{h.Step} }

func DecodeRotHdr(b []byte) (RotHdr, error) {
	if err := need(b, RotHdrLen, "rotation header"); err != nil {
		return RotHdr{}, err
	}
	return RotHdr{Step: b[0]}, nil
}

// QubitHdr carries a second qubit id: the target of a two-qubit gate, or the
// qubit a NEW_OK, RECV or EXPIRE reply refers to.
type QubitHdr struct {
	Qubit QubitID
}

func (h QubitHdr) Encode() []byte {
	buf := make([]byte, QubitHdrLen)
	binary.BigEndian.PutUint16(buf, uint16(h.Qubit))
	return buf
}

func DecodeQubitHdr(b []byte) (QubitHdr, error) {
	if err := need(b, QubitHdrLen, "qubit header"); err != nil {
		return QubitHdr{}, err
	}
	return QubitHdr{Qubit: QubitID(binary.BigEndian.Uint16(b))}, nil
}

// FactoryHdr asks the node to repeat the command that follows.
type FactoryHdr struct {
	Iterations uint8
	Options    CmdOpt
}

func (h FactoryHdr) Encode() []byte { return []byte{h.Iterations, uint8(h.Options)} }

func DecodeFactoryHdr(b []byte) (FactoryHdr, error) {
	if err := need(b, FactoryHdrLen, "factory header"); err != nil {
		return FactoryHdr{}, err
	}
	h := FactoryHdr{Iterations: b[0], Options: CmdOpt(b[1])}
	if h.Options&^optAll != 0 {
		return FactoryHdr{}, fmt.Errorf("%w: unknown factory option bits 0x%02x", protocol.ErrMalformedHeader, uint8(h.Options&^optAll))
	}
	return h, nil
}

// MeasOutHdr is the payload of a MEASOUT reply.
type MeasOutHdr struct {
	Outcome uint8
}

func (h MeasOutHdr) Encode() []byte { return []byte{h.Outcome} }

func DecodeMeasOutHdr(b []byte) (MeasOutHdr, error) {
	if err := need(b, MeasOutHdrLen, "measurement outcome header"); err != nil {
		return MeasOutHdr{}, err
	}
	if b[0] > 1 {
		return MeasOutHdr{}, fmt.Errorf("%w: measurement outcome %d", protocol.ErrMalformedHeader, b[0])
	}
	return MeasOutHdr{Outcome: b[0]}, nil
}

// TimeInfoHdr is the payload of an INF_TIME reply.
type TimeInfoHdr struct {
	Timestamp uint64
}

func (h TimeInfoHdr) Encode() []byte {
	buf := make([]byte, TimeInfoHdrLen)
	binary.BigEndian.PutUint64(buf, h.Timestamp)
	return buf
}

func DecodeTimeInfoHdr(b []byte) (TimeInfoHdr, error) {
	if err := need(b, TimeInfoHdrLen, "time info header"); err != nil {
		return TimeInfoHdr{}, err
	}
	return TimeInfoHdr{Timestamp: binary.BigEndian.Uint64(b)}, nil
}

// EntInfoHdr describes the entangled pair behind an EPR_OK or an EPR
// receive.
type EntInfoHdr struct {
	NodeA    uint32
	PortA    uint16
	AppIDA   uint16
	NodeB    uint32
	PortB    uint16
	AppIDB   uint16
	IDAB     uint32
	Created  uint64
	ToG      uint64
	Goodness uint16
	DF       uint8
}

func (h EntInfoHdr) Encode() []byte {
	buf := make([]byte, EntInfoHdrLen)
	binary.BigEndian.PutUint32(buf[0:4], h.NodeA)
	binary.BigEndian.PutUint16(buf[4:6], h.PortA)
	binary.BigEndian.PutUint16(buf[6:8], h.AppIDA)
	binary.BigEndian.PutUint32(buf[8:12], h.NodeB)
	binary.BigEndian.PutUint16(buf[12:14], h.PortB)
	binary.BigEndian.PutUint16(buf[14:16], h.AppIDB)
	binary.BigEndian.PutUint32(buf[16:20], h.IDAB)
	binary.BigEndian.PutUint64(buf[20:28], h.Created)
	binary.BigEndian.PutUint64(buf[28:36], h.ToG)
	binary.BigEndian.PutUint16(buf[36:38], h.Goodness)
	buf[38] = h.DF
	// buf[39] is alignment padding.
	return buf
}

func DecodeEntInfoHdr(b []byte) (EntInfoHdr, error) {
	if err := need(b, EntInfoHdrLen, "entanglement info header"); err != nil {
		return EntInfoHdr{}, err
	}
	return EntInfoHdr{
		NodeA:    binary.BigEndian.Uint32(b[0:4]),
		PortA:    binary.BigEndian.Uint16(b[4:6]),
		AppIDA:   binary.BigEndian.Uint16(b[6:8]),
		NodeB:    binary.BigEndian.Uint32(b[8:12]),
		PortB:    binary.BigEndian.Uint16(b[12:14]),
		AppIDB:   binary.BigEndian.Uint16(b[14:16]),
		IDAB:     binary.BigEndian.Uint32(b[16:20]),
		Created:  binary.BigEndian.Uint64(b[20:28]),
		ToG:      binary.BigEndian.Uint64(b[28:36]),
		Goodness: binary.BigEndian.Uint16(b[36:38]),
		DF:       b[38],
	}, nil
}

func need(b []byte, n int, what string) error {
	if len(b) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", protocol.ErrMalformedHeader, what, n, len(b))
	}
	return nil
}
