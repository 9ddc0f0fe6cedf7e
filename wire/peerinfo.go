package wire

import (
	"encoding/binary"
	"fmt"
)

// ProtocolVersion is the only version this agent speaks. Any peer_info
// payload carrying a different version is fatal to the handshake.
const ProtocolVersion = 2

// peerInfoReservedSize pads peer_info out to a fixed size; the reserved
// bytes are not currently interpreted by either side.
const peerInfoReservedSize = 12

// PeerInfoSize is the fixed on-wire size of a peer_info (hello) payload.
const PeerInfoSize = 4 + peerInfoReservedSize

// PeerInfo is the hello payload exchanged during version negotiation.
type PeerInfo struct {
	Version uint32
}

// PackPeerInfo encodes a PeerInfo into its fixed-layout wire form.
func PackPeerInfo(p PeerInfo) []byte {
	buf := make([]byte, PeerInfoSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.Version)
	return buf
}

// UnpackPeerInfo decodes a peer_info payload. A payload shorter than the
// fixed version prefix is a fatal error for the frame.
func UnpackPeerInfo(payload []byte) (PeerInfo, error) {
	if len(payload) < 4 {
		return PeerInfo{}, fmt.Errorf("wire: short peer_info: got %d bytes, want at least 4", len(payload))
	}
	return PeerInfo{
		Version: binary.LittleEndian.Uint32(payload[0:4]),
	}, nil
}
