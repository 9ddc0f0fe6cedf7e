// Package wire implements the fixed-layout message codec for the
// guest-to-guest exec protocol: frame headers and the payload structs
// carried inside them. All integers are little-endian on the wire.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Type is the frame type tag. The set is closed; Unknown is its own
// tag so callers can log-and-continue instead of treating an
// unrecognized value as an error.
type Type uint32

const (
	Unknown Type = 0

	Hello Type = 1

	JustExec    Type = 2
	ExecCmdline Type = 3

	DataStdin    Type = 4
	DataStdout   Type = 5
	DataStderr   Type = 6
	DataExitCode Type = 7

	ConnectionTerminated Type = 8
)

func (t Type) String() string {
	switch t {
	case Hello:
		return "hello"
	case JustExec:
		return "just_exec"
	case ExecCmdline:
		return "exec_cmdline"
	case DataStdin:
		return "data_stdin"
	case DataStdout:
		return "data_stdout"
	case DataStderr:
		return "data_stderr"
	case DataExitCode:
		return "data_exit_code"
	case ConnectionTerminated:
		return "connection_terminated"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// HeaderSize is the on-wire size of a frame header: type (u32) + length (u32).
const HeaderSize = 8

// Header is the fixed prefix of every frame.
type Header struct {
	Type   Type
	Length uint32
}

// Frame is one (type, payload) unit on the wire.
type Frame struct {
	Type    Type
	Payload []byte
}

// EncodeHeader packs h into an 8-byte little-endian buffer.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint32(buf[4:8], h.Length)
	return buf
}

// DecodeHeader unpacks an 8-byte little-endian buffer into a Header.
// It is a fatal error for buf to be shorter than HeaderSize.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short header: got %d bytes, want %d", len(buf), HeaderSize)
	}
	return Header{
		Type:   Type(binary.LittleEndian.Uint32(buf[0:4])),
		Length: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}
