package peerprotocol

import "encoding/binary"

// SplitFrame inspects buf for one complete length-prefixed frame. It
// returns the frame's payload (possibly empty, for a keep-alive), the
// number of bytes consumed from buf including the 4-byte length prefix,
// and ok=true if a complete frame was present. If buf holds a partial
// frame, ok is false and nothing is consumed — the caller keeps
// accumulating bytes from subsequent reads (§4.4 "Receive parsing").
func SplitFrame(buf []byte) (payload []byte, consumed int, ok bool) {
	if len(buf) < 4 {
		return nil, 0, false
	}
	length := binary.BigEndian.Uint32(buf[0:4])
	total := 4 + int(length)
	if len(buf) < total {
		return nil, 0, false
	}
	return buf[4:total], total, true
}
