// Package protocol owns the snapshot wire format and its parsing primitives.
//
// Wire contract:
//
//	record := name_bytes 0x00 size:int32(host byte order) data[size]
//	packet := record*
//
// A packet is exactly one datagram payload. There is no header, record
// count, magic, version or checksum; the end of the datagram ends the
// packet. Integers use the host's native byte order, so master and slaves
// must share an architecture.
//
// Ownership boundary:
// - snapshot encode from a registry
// - bounded decode into records
package protocol
