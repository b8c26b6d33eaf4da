package hdr

import (
	"fmt"
	"strings"
)

// Version is the CQC protocol version this package speaks.
const Version uint8 = 2

// MsgType is the type tag carried by every CQC header.
type MsgType uint8

const (
	TpHello   MsgType = 0
	TpCommand MsgType = 1
	TpFactory MsgType = 2
	TpExpire  MsgType = 3
	TpDone    MsgType = 4
	TpRecv    MsgType = 5
	TpEPROK   MsgType = 6
	TpMeasOut MsgType = 7
	TpGetTime MsgType = 8
	TpInfTime MsgType = 9
	TpNewOK   MsgType = 10

	ErrGeneral MsgType = 20
	ErrNoQubit MsgType = 21
	ErrUnsupp  MsgType = 22
	ErrTimeout MsgType = 23
	ErrInUse   MsgType = 24
	ErrUnknown MsgType = 25
)

var msgTypeNames = map[MsgType]string{
	TpHello:    "HELLO",
	TpCommand:  "COMMAND",
	TpFactory:  "FACTORY",
	TpExpire:   "EXPIRE",
	TpDone:     "DONE",
	TpRecv:     "RECV",
	TpEPROK:    "EPR_OK",
	TpMeasOut:  "MEASOUT",
	TpGetTime:  "GET_TIME",
	TpInfTime:  "INF_TIME",
	TpNewOK:    "NEW_OK",
	ErrGeneral: "ERR_GENERAL",
	ErrNoQubit: "ERR_NOQUBIT",
	ErrUnsupp:  "ERR_UNSUPP",
	ErrTimeout: "ERR_TIMEOUT",
	ErrInUse:   "ERR_INUSE",
	ErrUnknown: "ERR_UNKNOWN",
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MsgType(%d)", uint8(t))
}

// Known reports whether t is a type tag defined by the protocol.
func (t MsgType) Known() bool {
	_, ok := msgTypeNames[t]
	return ok
}

// IsError reports whether t is one of the backend error replies.
func (t MsgType) IsError() bool {
	return t >= ErrGeneral && t <= ErrUnknown
}

// IsRequest reports whether t is sent by applications rather than the node.
func (t MsgType) IsRequest() bool {
	switch t {
	case TpCommand, TpFactory, TpGetTime:
		return true
	default:
		return false
	}
}

// ReplyPayloadLen is the fixed payload length a node reply of type t carries.
// Request types and unknown tags report ok=false.
func ReplyPayloadLen(t MsgType) (n int, ok bool) {
	switch t {
	case TpHello, TpDone:
		return 0, true
	case TpNewOK, TpRecv, TpExpire:
		return QubitHdrLen, true
	case TpMeasOut:
		return MeasOutHdrLen, true
	case TpInfTime:
		return TimeInfoHdrLen, true
	case TpEPROK:
		return QubitHdrLen + EntInfoHdrLen, true
	}
	if t.IsError() {
		return 0, true
	}
	return 0, false
}

// Instr is the instruction opcode of a command header.
type Instr uint8

const (
	CmdI              Instr = 0
	CmdNew            Instr = 1
	CmdMeasure        Instr = 2
	CmdMeasureInplace Instr = 3
	CmdReset          Instr = 4
	CmdSend           Instr = 5
	CmdRecv           Instr = 6
	CmdEPR            Instr = 7
	CmdEPRRecv        Instr = 8

	CmdX    Instr = 10
	CmdZ    Instr = 11
	CmdY    Instr = 12
	CmdT    Instr = 13
	CmdRotX Instr = 14
	CmdRotY Instr = 15
	CmdRotZ Instr = 16
	CmdH    Instr = 17
	CmdK    Instr = 18

	CmdCNOT     Instr = 20
	CmdCPhase   Instr = 21
	CmdAllocate Instr = 22
	CmdRelease  Instr = 23
)

var instrNames = map[Instr]string{
	CmdI:              "I",
	CmdNew:            "NEW",
	CmdMeasure:        "MEASURE",
	CmdMeasureInplace: "MEASURE_INPLACE",
	CmdReset:          "RESET",
	CmdSend:           "SEND",
	CmdRecv:           "RECV",
	CmdEPR:            "EPR",
	CmdEPRRecv:        "EPR_RECV",
	CmdX:              "X",
	CmdZ:              "Z",
	CmdY:              "Y",
	CmdT:              "T",
	CmdRotX:           "ROT_X",
	CmdRotY:           "ROT_Y",
	CmdRotZ:           "ROT_Z",
	CmdH:              "H",
	CmdK:              "K",
	CmdCNOT:           "CNOT",
	CmdCPhase:         "CPHASE",
	CmdAllocate:       "ALLOCATE",
	CmdRelease:        "RELEASE",
}

func (i Instr) String() string {
	if name, ok := instrNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Instr(%d)", uint8(i))
}

// Known reports whether i is an instruction defined by the protocol.
func (i Instr) Known() bool {
	_, ok := instrNames[i]
	return ok
}

// ExtraHdrLen is the length of the header that follows a command header with
// this instruction: a communication header for SEND and EPR, a rotation step
// for ROT_*, and a target qubit for two-qubit gates.
func (i Instr) ExtraHdrLen() int {
	switch i {
	case CmdSend, CmdEPR:
		return RemoteNodeLen
	case CmdRotX, CmdRotY, CmdRotZ:
		return RotHdrLen
	case CmdCNOT, CmdCPhase:
		return QubitHdrLen
	default:
		return 0
	}
}

// CmdOpt is the options bitset of a command header.
type CmdOpt uint8

const (
	OptNotify CmdOpt = 0x01
	OptAction CmdOpt = 0x02
	OptBlock  CmdOpt = 0x04
	OptIfThen CmdOpt = 0x08

	optAll = OptNotify | OptAction | OptBlock | OptIfThen
)

// Has reports whether every flag in f is set.
func (o CmdOpt) Has(f CmdOpt) bool { return o&f == f }

func (o CmdOpt) String() string {
	if o == 0 {
		return "none"
	}
	var parts []string
	if o.Has(OptNotify) {
		parts = append(parts, "notify")
	}
	if o.Has(OptAction) {
		parts = append(parts, "action")
	}
	if o.Has(OptBlock) {
		parts = append(parts, "block")
	}
	if o.Has(OptIfThen) {
		parts = append(parts, "ifthen")
	}
	if rest := o &^ optAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// QubitID is an opaque handle to a qubit held by the node for an application.
// The client cannot tell whether a handle is still valid; using a handle after
// SEND, MEASURE or RELEASE consumed it is a caller error the node reports.
type QubitID uint16
