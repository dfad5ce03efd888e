// Package peerprotocol implements Component C: encoding and decoding of
// every BEP 3 peer-wire frame, plus the 68-byte handshake. Message ID
// constants and the handshake layout are grounded on
// other_examples/...rain-peer.go.go and matei-oltean-go-torrent's
// messaging package; the typed-message-per-kind shape mirrors the
// teacher's peerreader.Piece wrapper style.
package peerprotocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MessageID identifies a peer-wire frame kind.
type MessageID uint8

// Message ID constants, per §4.4.
const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	Bitfield
	Request
	Piece
	Cancel
	Port
)

func (id MessageID) String() string {
	names := [...]string{"choke", "unchoke", "interested", "not_interested", "have", "bitfield", "request", "piece", "cancel", "port"}
	if int(id) < len(names) {
		return names[id]
	}
	return fmt.Sprintf("unknown(%d)", id)
}

// BlockSize is the default length of a request/piece block, 2^14 bytes.
// All current implementations use this and close connections that request
// a greater amount.
const BlockSize = 16 * 1024

// Message is implemented by every peer-wire message kind. Encode appends
// the message's wire form (length prefix included) to buf.
type Message interface {
	ID() MessageID
	Encode(buf *bytes.Buffer)
}

// ChokeMessage has no payload.
type ChokeMessage struct{}

// UnchokeMessage has no payload.
type UnchokeMessage struct{}

// InterestedMessage has no payload.
type InterestedMessage struct{}

// NotInterestedMessage has no payload.
type NotInterestedMessage struct{}

// HaveMessage announces a newly-acquired piece.
type HaveMessage struct{ Index uint32 }

// BitfieldMessage carries a bit-per-piece map, MSB-first per byte.
type BitfieldMessage struct{ Data []byte }

// RequestMessage asks for a block. CancelMessage shares the same fields.
type RequestMessage struct {
	Index, Begin, Length uint32
}

// CancelMessage cancels a previously sent request.
type CancelMessage struct {
	Index, Begin, Length uint32
}

// PieceMessage carries a requested block's payload.
type PieceMessage struct {
	Index, Begin uint32
	Block        []byte
}

// PortMessage advertises a DHT listening port (accepted, unused by core).
type PortMessage struct{ Port uint16 }

// KeepAliveMessage is the zero-length frame.
type KeepAliveMessage struct{}

func (ChokeMessage) ID() MessageID         { return Choke }
func (UnchokeMessage) ID() MessageID       { return Unchoke }
func (InterestedMessage) ID() MessageID    { return Interested }
func (NotInterestedMessage) ID() MessageID { return NotInterested }
func (HaveMessage) ID() MessageID          { return Have }
func (BitfieldMessage) ID() MessageID      { return Bitfield }
func (RequestMessage) ID() MessageID       { return Request }
func (CancelMessage) ID() MessageID        { return Cancel }
func (PieceMessage) ID() MessageID         { return Piece }
func (PortMessage) ID() MessageID          { return Port }
func (KeepAliveMessage) ID() MessageID     { return MessageID(255) }

func writeFrameHeader(buf *bytes.Buffer, payloadLen uint32, id MessageID) {
	_ = binary.Write(buf, binary.BigEndian, payloadLen+1)
	buf.WriteByte(byte(id))
}

func (m ChokeMessage) Encode(buf *bytes.Buffer)         { writeFrameHeader(buf, 0, Choke) }
func (m UnchokeMessage) Encode(buf *bytes.Buffer)       { writeFrameHeader(buf, 0, Unchoke) }
func (m InterestedMessage) Encode(buf *bytes.Buffer)    { writeFrameHeader(buf, 0, Interested) }
func (m NotInterestedMessage) Encode(buf *bytes.Buffer) { writeFrameHeader(buf, 0, NotInterested) }

func (m HaveMessage) Encode(buf *bytes.Buffer) {
	writeFrameHeader(buf, 4, Have)
	_ = binary.Write(buf, binary.BigEndian, m.Index)
}

func (m BitfieldMessage) Encode(buf *bytes.Buffer) {
	writeFrameHeader(buf, uint32(len(m.Data)), Bitfield)
	buf.Write(m.Data)
}

func (m RequestMessage) Encode(buf *bytes.Buffer) {
	writeFrameHeader(buf, 12, Request)
	_ = binary.Write(buf, binary.BigEndian, m.Index)
	_ = binary.Write(buf, binary.BigEndian, m.Begin)
	_ = binary.Write(buf, binary.BigEndian, m.Length)
}

func (m CancelMessage) Encode(buf *bytes.Buffer) {
	writeFrameHeader(buf, 12, Cancel)
	_ = binary.Write(buf, binary.BigEndian, m.Index)
	_ = binary.Write(buf, binary.BigEndian, m.Begin)
	_ = binary.Write(buf, binary.BigEndian, m.Length)
}

func (m PieceMessage) Encode(buf *bytes.Buffer) {
	writeFrameHeader(buf, uint32(8+len(m.Block)), Piece)
	_ = binary.Write(buf, binary.BigEndian, m.Index)
	_ = binary.Write(buf, binary.BigEndian, m.Begin)
	buf.Write(m.Block)
}

func (m PortMessage) Encode(buf *bytes.Buffer) {
	writeFrameHeader(buf, 2, Port)
	_ = binary.Write(buf, binary.BigEndian, m.Port)
}

func (m KeepAliveMessage) Encode(buf *bytes.Buffer) {
	_ = binary.Write(buf, binary.BigEndian, uint32(0))
}

// Encode is a convenience that serializes any Message to a fresh []byte.
func Encode(m Message) []byte {
	var buf bytes.Buffer
	m.Encode(&buf)
	return buf.Bytes()
}

// DecodeFrame decodes a single frame's payload (the bytes after the
// length-prefix, with the length already having been validated by the
// caller's framing loop). length==0 frames are keep-alives and must be
// handled by the caller before calling DecodeFrame.
func DecodeFrame(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("peerprotocol: empty payload")
	}
	id := MessageID(payload[0])
	body := payload[1:]
	switch id {
	case Choke:
		return ChokeMessage{}, nil
	case Unchoke:
		return UnchokeMessage{}, nil
	case Interested:
		return InterestedMessage{}, nil
	case NotInterested:
		return NotInterestedMessage{}, nil
	case Have:
		if len(body) != 4 {
			return nil, fmt.Errorf("peerprotocol: invalid have length %d", len(body))
		}
		return HaveMessage{Index: binary.BigEndian.Uint32(body)}, nil
	case Bitfield:
		data := make([]byte, len(body))
		copy(data, body)
		return BitfieldMessage{Data: data}, nil
	case Request:
		if len(body) != 12 {
			return nil, fmt.Errorf("peerprotocol: invalid request length %d", len(body))
		}
		return RequestMessage{
			Index:  binary.BigEndian.Uint32(body[0:4]),
			Begin:  binary.BigEndian.Uint32(body[4:8]),
			Length: binary.BigEndian.Uint32(body[8:12]),
		}, nil
	case Piece:
		if len(body) < 8 {
			return nil, fmt.Errorf("peerprotocol: invalid piece length %d", len(body))
		}
		block := make([]byte, len(body)-8)
		copy(block, body[8:])
		return PieceMessage{
			Index: binary.BigEndian.Uint32(body[0:4]),
			Begin: binary.BigEndian.Uint32(body[4:8]),
			Block: block,
		}, nil
	case Cancel:
		if len(body) != 12 {
			return nil, fmt.Errorf("peerprotocol: invalid cancel length %d", len(body))
		}
		return CancelMessage{
			Index:  binary.BigEndian.Uint32(body[0:4]),
			Begin:  binary.BigEndian.Uint32(body[4:8]),
			Length: binary.BigEndian.Uint32(body[8:12]),
		}, nil
	case Port:
		if len(body) != 2 {
			return nil, fmt.Errorf("peerprotocol: invalid port length %d", len(body))
		}
		return PortMessage{Port: binary.BigEndian.Uint16(body)}, nil
	default:
		return nil, fmt.Errorf("peerprotocol: unknown message id %d", id)
	}
}
