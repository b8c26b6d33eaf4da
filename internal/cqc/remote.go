package cqc

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
)

// ResolveRemote turns a host name or dotted IPv4 literal into the node
// address carried by SEND and EPR.
func ResolveRemote(ctx context.Context, appID uint16, host string, port uint16) (hdr.RemoteNode, error) {
	if host == "" {
		return hdr.RemoteNode{}, fmt.Errorf("%w: remote host is required", protocol.ErrInvalidParameters)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		addrs, lerr := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
		if lerr != nil {
			return hdr.RemoteNode{}, fmt.Errorf("%w: resolve %q: %v", protocol.ErrInvalidParameters, host, lerr)
		}
		if len(addrs) == 0 {
			return hdr.RemoteNode{}, fmt.Errorf("%w: resolve %q: no IPv4 address", protocol.ErrInvalidParameters, host)
		}
		addr = addrs[0]
	}
	return hdr.RemoteNodeFromAddr(appID, addr.Unmap(), port)
}
