// Package mocknode is an in-process stand-in for a CQC node.
//
// It speaks the wire protocol faithfully but has no quantum semantics:
// qubits are ids with a creation time, measurements are coin flips and
// gates only check that the qubit exists. Each listening port is one
// application endpoint. A SEND to port P is handed to the next RECV issued
// on a connection accepted by the listener at P, and an EPR towards P is
// picked up by the next EPR_RECV there.
package mocknode
