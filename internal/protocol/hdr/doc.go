// Package hdr encodes and decodes the fixed-layout CQC headers.
//
// Every header is big endian and has a fixed length. Decoders read the
// fixed-length prefix of the buffer they are given and fail with
// protocol.ErrMalformedHeader when the buffer is shorter than the layout or
// carries a tag this package does not know. There is no partial decoding.
package hdr
