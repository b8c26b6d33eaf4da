// Package cqc is a synchronous client for a local CQC node.
//
// A Client owns one connection and one application id. Requests go out one
// at a time and replies are matched strictly in arrival order against the
// single pending operation; there is no correlation id. Operations that the
// node answers immediately (NEW, RECV, MEASURE, ...) block until their reply
// arrives. SEND returns once the request is flushed; completion is observed
// separately with WaitUntilDone.
//
// A Client is not safe for concurrent use. After a connection error or a
// timeout the connection state is indeterminate and every later call fails;
// close the Client and dial a new one.
package cqc
