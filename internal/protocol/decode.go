package protocol

import (
	"bytes"
	"fmt"

	"github.com/danmuck/dgr/internal/registry"
)

// Decode parses one packet into records. Every length is bounded against
// the remaining input; any violation rejects the whole packet.
func Decode(p []byte, limits registry.Limits) ([]registry.Record, error) {
	limits = limits.WithDefaults()
	records := make([]registry.Record, 0, 8)
	for offset := 0; offset < len(p); {
		rec, n, err := decodeRecord(p[offset:], limits)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d at offset %d: %w", ErrMalformedPacket, len(records), offset, err)
		}
		records = append(records, rec)
		offset += n
	}
	return records, nil
}

// DecodeInto decodes p and merges the records into reg. Names absent from
// the packet keep their values. reg is untouched when p is malformed.
func DecodeInto(reg *registry.Registry, p []byte) error {
	records, err := Decode(p, reg.Limits())
	if err != nil {
		return err
	}
	return reg.Merge(records)
}

func decodeRecord(b []byte, limits registry.Limits) (registry.Record, int, error) {
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		if len(b)+1 > limits.MaxNameBytes {
			return registry.Record{}, 0, ErrNameTooLong
		}
		return registry.Record{}, 0, fmt.Errorf("%w: name has no terminator", ErrTruncated)
	}
	if end == 0 {
		return registry.Record{}, 0, ErrEmptyName
	}
	if end+1 > limits.MaxNameBytes {
		return registry.Record{}, 0, fmt.Errorf("%w: %d bytes", ErrNameTooLong, end)
	}
	name := string(b[:end])
	offset := end + 1

	if len(b)-offset < sizeFieldLen {
		return registry.Record{}, 0, fmt.Errorf("%w: size field for %q", ErrTruncated, name)
	}
	size := int32(ByteOrder.Uint32(b[offset : offset+sizeFieldLen]))
	offset += sizeFieldLen
	if size < 0 {
		return registry.Record{}, 0, fmt.Errorf("%w: %q has negative size %d", ErrInvalidLength, name, size)
	}
	if int64(size) > int64(len(b)-offset) {
		return registry.Record{}, 0, fmt.Errorf(
			"%w: %q claims %d bytes, %d remain",
			ErrInvalidLength,
			name,
			size,
			len(b)-offset,
		)
	}

	data := make([]byte, size)
	copy(data, b[offset:offset+int(size)])
	return registry.Record{Name: name, Data: data}, offset + int(size), nil
}
