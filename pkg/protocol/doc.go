// Package protocol implements the JSON wire codec spoken with the
// symbolic-execution engine: typed envelopes, snapshot decoding with schema
// and referential-integrity validation, and the outbound registration and
// step messages. Encoding and decoding are pure functions; they never touch
// the transport.
package protocol
