package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/danmuck/dgr/internal/registry"
)

const sizeFieldLen = 4

// ByteOrder is the order of the size field. It is the host's order.
var ByteOrder = binary.NativeEndian

// Encode writes a full snapshot of reg to w in a single Write call, so a
// datagram writer emits the whole snapshot as one packet.
func Encode(w io.Writer, reg *registry.Registry) error {
	packet, err := Marshal(reg)
	if err != nil {
		return err
	}
	if len(packet) == 0 {
		return nil
	}
	n, err := w.Write(packet)
	if err != nil {
		return err
	}
	if n != len(packet) {
		return io.ErrShortWrite
	}
	return nil
}

// Marshal returns a full snapshot of reg. An empty registry yields an empty
// packet.
func Marshal(reg *registry.Registry) ([]byte, error) {
	total, err := EncodedLen(reg)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, total)
	for name, data := range reg.All() {
		buf = AppendRecord(buf, name, data)
	}
	return buf, nil
}

// EncodedLen returns the packet size Marshal would produce for reg.
func EncodedLen(reg *registry.Registry) (int, error) {
	total := 0
	for name, data := range reg.All() {
		if len(data) > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %q is %d bytes", ErrInvalidLength, name, len(data))
		}
		total += recordLen(name, data)
	}
	return total, nil
}

// AppendRecord appends one encoded record to buf.
func AppendRecord(buf []byte, name string, data []byte) []byte {
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = ByteOrder.AppendUint32(buf, uint32(int32(len(data))))
	return append(buf, data...)
}

func recordLen(name string, data []byte) int {
	return len(name) + 1 + sizeFieldLen + len(data)
}
