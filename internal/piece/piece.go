// Package piece defines the Block/Piece data model: tiling a piece into
// fixed-size blocks and tracking each block's transfer state. Grounded on
// the teacher's internal/downloader/piecedownloader/piecedownloader.go
// block bookkeeping (block.requested/data, assembleBlocks), adapted from a
// per-peer download session to the torrent-scoped piece owned by
// internal/piecemanager.
package piece

import (
	"time"

	"github.com/kanhaiya38/torrent-dl/internal/peerprotocol"
)

// State is a block's lifecycle state.
type State int

// Block states. A block only moves Free -> Pending -> Complete, except the
// verify-failure path in piecemanager which resets every block of a
// mismatching piece back to Free.
const (
	Free State = iota
	Pending
	Complete
)

// Block is the smallest transfer unit of a piece.
type Block struct {
	Begin  uint32
	Length uint32

	State    State
	LastPing time.Time
	Data     []byte
}

// Piece owns an ordered sequence of Blocks, its expected SHA-1, its index
// and actual length.
type Piece struct {
	Index        int
	Length       int64
	ExpectedHash [20]byte
	Blocks       []Block

	complete bool
}

// New builds a Piece of the given length, tiled into
// floor(length/BlockSize) full blocks plus one short trailing block if the
// remainder is nonzero (§4.5).
func New(index int, length int64, expectedHash [20]byte) *Piece {
	p := &Piece{Index: index, Length: length, ExpectedHash: expectedHash}
	blockSize := int64(peerprotocol.BlockSize)
	var begin int64
	for begin+blockSize <= length {
		p.Blocks = append(p.Blocks, Block{Begin: uint32(begin), Length: uint32(blockSize)})
		begin += blockSize
	}
	if remainder := length - begin; remainder > 0 {
		p.Blocks = append(p.Blocks, Block{Begin: uint32(begin), Length: uint32(remainder)})
	}
	return p
}

// Complete reports whether the piece's hash has been verified.
func (p *Piece) Complete() bool { return p.complete }

// MarkComplete marks the piece as hash-verified. Only piecemanager (the
// sole authority for the COMPLETE transition, per §4.5) calls this.
func (p *Piece) MarkComplete() { p.complete = true }

// AllBlocksComplete reports whether every block of the piece has reached
// Complete. This is the corrected semantics adopted per DESIGN NOTES §9 —
// the source's are_all_blocks_complete returned true on the first
// completed block; here every block must be complete.
func (p *Piece) AllBlocksComplete() bool {
	for i := range p.Blocks {
		if p.Blocks[i].State != Complete {
			return false
		}
	}
	return true
}

// ConcatBlocks concatenates all block data in offset order.
func (p *Piece) ConcatBlocks() []byte {
	out := make([]byte, 0, p.Length)
	for i := range p.Blocks {
		out = append(out, p.Blocks[i].Data...)
	}
	return out
}

// ResetBlocks reverts every block to Free and discards its data. Used on
// verification failure (§4.5) and this is the ONLY path that allows
// Complete -> Free.
func (p *Piece) ResetBlocks() {
	for i := range p.Blocks {
		p.Blocks[i].State = Free
		p.Blocks[i].Data = nil
	}
	p.complete = false
}

// BlockAtOffset returns the index of the block starting at begin, or -1.
func (p *Piece) BlockAtOffset(begin uint32) int {
	for i := range p.Blocks {
		if p.Blocks[i].Begin == begin {
			return i
		}
	}
	return -1
}
