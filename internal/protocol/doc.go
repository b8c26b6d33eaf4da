// Package protocol owns the CQC wire contract and its error taxonomy.
//
// Ownership boundary:
// - header codec primitives (hdr)
// - request construction and validation (builder)
// - framed socket transport (transport)
// - sentinel errors shared by every layer above
package protocol
