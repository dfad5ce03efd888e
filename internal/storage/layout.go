// Package storage maps a torrent's piece space onto its file list and
// writes verified pieces to disk. Grounded on
// original_source/torrent_dl/piece_manager.py's _load_files, which walks
// the file list dividing each file into segments bounded by piece
// boundaries; ported here with the source's total_pieces bug (a bitfield
// byte count, ceil(len(pieces)/8)) corrected to the true piece count.
package storage

import "github.com/kanhaiya38/torrent-dl/internal/metainfo"

// Segment is the part of one file that falls within a single piece.
type Segment struct {
	FileIndex   int
	FileOffset  int64 // offset into the file
	PieceOffset int64 // offset into the piece
	Length      int64
}

// Layout maps every piece index to the file segments it overlaps.
type Layout struct {
	Files    []metainfo.File
	Segments map[int][]Segment // piece index -> segments, in file order
}

// BuildLayout walks the file list in order, the way
// piece_manager.py's _load_files does, cutting each file into segments at
// piece boundaries.
func BuildLayout(info *metainfo.Info) *Layout {
	l := &Layout{Files: info.Files, Segments: map[int][]Segment{}}
	var globalOffset int64
	for fi, f := range info.Files {
		remaining := f.Length
		var fileOffset int64
		for remaining > 0 {
			pieceIndex := int(globalOffset / info.PieceLength)
			pieceOffsetUsed := globalOffset % info.PieceLength
			pieceCapacity := pieceLength(info, pieceIndex) - pieceOffsetUsed
			n := remaining
			if n > pieceCapacity {
				n = pieceCapacity
			}
			l.Segments[pieceIndex] = append(l.Segments[pieceIndex], Segment{
				FileIndex:   fi,
				FileOffset:  fileOffset,
				PieceOffset: pieceOffsetUsed,
				Length:      n,
			})
			globalOffset += n
			fileOffset += n
			remaining -= n
		}
	}
	return l
}

func pieceLength(info *metainfo.Info, index int) int64 {
	if index == info.NumPieces()-1 {
		return info.TotalLength - int64(info.NumPieces()-1)*info.PieceLength
	}
	return info.PieceLength
}
