// internal/utils/binary/binary.go
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer возникает, когда данных инструкции меньше, чем требует поле.
var ErrShortBuffer = errors.New("instruction data too short")

func need(data []byte, offset, size int) error {
	if offset < 0 || len(data) < offset+size {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, size, offset, len(data))
	}
	return nil
}

// ReadUint8 reads a uint8 (byte) from a byte slice
func ReadUint8(data []byte, offset int) (uint8, error) {
	if err := need(data, offset, 1); err != nil {
		return 0, err
	}
	return data[offset], nil
}

// ReadUint32LittleEndian reads a uint32 from a byte slice in little-endian format
func ReadUint32LittleEndian(data []byte, offset int) (uint32, error) {
	if err := need(data, offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data[offset : offset+4]), nil
}

// ReadUint64LittleEndian reads a uint64 from a byte slice in little-endian format
func ReadUint64LittleEndian(data []byte, offset int) (uint64, error) {
	if err := need(data, offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data[offset : offset+8]), nil
}
