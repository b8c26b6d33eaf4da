package hdr

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/danmuck/cqc/internal/protocol"
)

// RemoteNode is the destination of a SEND or EPR command. On the wire it is
// the communication header that follows the command header.
type RemoteNode struct {
	AppID uint16
	Node  uint32
	Port  uint16
}

// RemoteNodeFromAddr builds a RemoteNode from an IPv4 address.
func RemoteNodeFromAddr(appID uint16, addr netip.Addr, port uint16) (RemoteNode, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return RemoteNode{}, fmt.Errorf("%w: remote node %q is not an IPv4 address", protocol.ErrInvalidParameters, addr)
	}
	b := addr.As4()
	return RemoteNode{AppID: appID, Node: binary.BigEndian.Uint32(b[:]), Port: port}, nil
}

// IsZero reports whether r names no destination.
func (r RemoteNode) IsZero() bool {
	return r.Node == 0 || r.Port == 0
}

// AddrPort returns the IPv4 address and port of r.
func (r RemoteNode) AddrPort() netip.AddrPort {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], r.Node)
	return netip.AddrPortFrom(netip.AddrFrom4(b), r.Port)
}

func (r RemoteNode) String() string {
	return fmt.Sprintf("app=%d@%s", r.AppID, r.AddrPort())
}

func (r RemoteNode) Encode() []byte {
	buf := make([]byte, RemoteNodeLen)
	binary.BigEndian.PutUint16(buf[0:2], r.AppID)
	binary.BigEndian.PutUint32(buf[2:6], r.Node)
	binary.BigEndian.PutUint16(buf[6:8], r.Port)
	return buf
}

func DecodeRemoteNode(b []byte) (RemoteNode, error) {
	if err := need(b, RemoteNodeLen, "communication header"); err != nil {
		return RemoteNode{}, err
	}
	return RemoteNode{
		AppID: binary.BigEndian.Uint16(b[0:2]),
		Node:  binary.BigEndian.Uint32(b[2:6]),
		Port:  binary.BigEndian.Uint16(b[6:8]),
	}, nil
}
