package wire

import (
	"encoding/binary"
	"fmt"
)

// ExitStatusSize is the fixed on-wire size of a data_exit_code payload.
const ExitStatusSize = 8

// ExitStatus is the payload of a data_exit_code frame.
type ExitStatus struct {
	ReturnCode int64
}

// PackExitStatus encodes an exit code as an 8-byte little-endian signed integer.
func PackExitStatus(s ExitStatus) []byte {
	buf := make([]byte, ExitStatusSize)
	binary.LittleEndian.PutUint64(buf, uint64(s.ReturnCode))
	return buf
}

// UnpackExitStatus decodes a data_exit_code payload.
func UnpackExitStatus(payload []byte) (ExitStatus, error) {
	if len(payload) < ExitStatusSize {
		return ExitStatus{}, fmt.Errorf("wire: short exit_status: got %d bytes, want %d", len(payload), ExitStatusSize)
	}
	return ExitStatus{
		ReturnCode: int64(binary.LittleEndian.Uint64(payload[:ExitStatusSize])),
	}, nil
}
