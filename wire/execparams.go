package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vchanagent/vchanagent/protoerr"
)

// execParamsFixedSize is the size of the (connect_domain, connect_port)
// prefix of an exec_params payload, not counting the variable cmdline tail.
// The listener echoes exactly these bytes back in connection_terminated.
const execParamsFixedSize = 8

// ExecParams is the payload of a just_exec/exec_cmdline dispatch request.
type ExecParams struct {
	ConnectDomain uint32
	ConnectPort   uint32
	Cmdline       []byte // USER:COMMAND\0, including the trailing NUL
}

// PackExecParams encodes p into its wire form.
func PackExecParams(p ExecParams) []byte {
	buf := make([]byte, execParamsFixedSize+len(p.Cmdline))
	binary.LittleEndian.PutUint32(buf[0:4], p.ConnectDomain)
	binary.LittleEndian.PutUint32(buf[4:8], p.ConnectPort)
	copy(buf[execParamsFixedSize:], p.Cmdline)
	return buf
}

// UnpackExecParams decodes an exec_params payload. A payload shorter
// than the fixed (domain, port) prefix is a fatal error for the frame.
func UnpackExecParams(payload []byte) (ExecParams, error) {
	if len(payload) < execParamsFixedSize {
		return ExecParams{}, fmt.Errorf("wire: short exec_params: got %d bytes, want at least %d", len(payload), execParamsFixedSize)
	}
	return ExecParams{
		ConnectDomain: binary.LittleEndian.Uint32(payload[0:4]),
		ConnectPort:   binary.LittleEndian.Uint32(payload[4:8]),
		Cmdline:       payload[execParamsFixedSize:],
	}, nil
}

// FixedPrefix returns the (connect_domain, connect_port) bytes of p, the
// same bytes the listener must echo back in connection_terminated.
func (p ExecParams) FixedPrefix() []byte {
	buf := make([]byte, execParamsFixedSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.ConnectDomain)
	binary.LittleEndian.PutUint32(buf[4:8], p.ConnectPort)
	return buf
}

// ParseCmdline splits a USER:COMMAND\0 cmdline tail into its user and
// command parts. Absence of the trailing NUL or the separating colon is
// a fatal session error, reported via the returned error.
func ParseCmdline(cmdline []byte) (user, cmd string, err error) {
	nulIdx := bytes.IndexByte(cmdline, 0)
	if nulIdx < 0 {
		return "", "", fmt.Errorf("wire: cmdline missing NUL terminator: %w", protoerr.ErrMalformedCmdline)
	}
	body := cmdline[:nulIdx]

	colonIdx := bytes.IndexByte(body, ':')
	if colonIdx < 0 {
		return "", "", fmt.Errorf("wire: cmdline missing ':' separator: %w", protoerr.ErrMalformedCmdline)
	}

	return string(body[:colonIdx]), string(body[colonIdx+1:]), nil
}
