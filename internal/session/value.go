package session

import (
	"encoding/binary"
	"fmt"
)

// SetOrGetValue is SetOrGet for fixed-size values (numbers, arrays and
// structs of them) encoded in host byte order. A slave leaves *v untouched
// unless the stored value has exactly the value's size.
func SetOrGetValue[T any](s *Session, name string, v *T) error {
	size := binary.Size(*v)
	if size < 0 {
		return fmt.Errorf("%w: %q is %T", ErrNotFixedSize, name, *v)
	}
	buf := make([]byte, size)

	if s.IsMaster() {
		if _, err := binary.Encode(buf, binary.NativeEndian, *v); err != nil {
			return err
		}
		_, err := s.SetOrGet(name, buf)
		return err
	}

	n, err := s.SetOrGet(name, buf)
	if err != nil || !s.IsEnabled() {
		return err
	}
	if n != size {
		return fmt.Errorf("%w: %q stored %d bytes, %T is %d", ErrSizeMismatch, name, n, *v, size)
	}
	_, err = binary.Decode(buf, binary.NativeEndian, v)
	return err
}
