package peerprotocol

import (
	"bytes"
	"errors"
	"io"
)

const protocolString = "BitTorrent protocol"

// HandshakeLen is the fixed length of a BEP 3 handshake:
// <pstrlen><pstr><8 reserved bytes><info_hash><peer_id>.
const HandshakeLen = 1 + 19 + 8 + 20 + 20

// Handshake is the 68-byte opening message that confirms protocol and
// info-hash agreement before framed messaging begins (§4.4).
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake builds a handshake for the given info hash and peer id.
func NewHandshake(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{InfoHash: infoHash, PeerID: peerID}
}

// Marshal serializes the handshake to exactly HandshakeLen bytes.
func (h *Handshake) Marshal() []byte {
	buf := make([]byte, 0, HandshakeLen)
	buf = append(buf, byte(len(protocolString)))
	buf = append(buf, protocolString...)
	buf = append(buf, make([]byte, 8)...)
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// ReadHandshake reads and validates exactly HandshakeLen bytes from r.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	buf := make([]byte, HandshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return ParseHandshake(buf)
}

// ParseHandshake validates and decodes an already-read 68-byte buffer.
func ParseHandshake(buf []byte) (*Handshake, error) {
	if len(buf) != HandshakeLen {
		return nil, errors.New("peerprotocol: invalid handshake length")
	}
	if int(buf[0]) != len(protocolString) {
		return nil, errors.New("peerprotocol: invalid pstrlen")
	}
	if !bytes.Equal(buf[1:1+len(protocolString)], []byte(protocolString)) {
		return nil, errors.New("peerprotocol: unsupported protocol")
	}
	h := &Handshake{}
	copy(h.InfoHash[:], buf[1+len(protocolString)+8:1+len(protocolString)+8+20])
	copy(h.PeerID[:], buf[1+len(protocolString)+8+20:])
	return h, nil
}
