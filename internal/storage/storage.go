package storage

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// FileStorage writes completed, verified piece bytes to their destination
// files on disk, opening one *os.File per torrent file lazily and
// reusing it across writes.
type FileStorage struct {
	dir    string
	layout *Layout
	files  map[int]*os.File
}

// NewFileStorage returns a FileStorage rooted at dir (expanded for a
// leading "~", matching the teacher's use of go-homedir for its data and
// database paths).
func NewFileStorage(dir string, layout *Layout) (*FileStorage, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, errors.Wrap(err, "storage: expand dir")
	}
	if err := os.MkdirAll(expanded, 0o750); err != nil {
		return nil, errors.Wrap(err, "storage: mkdir")
	}
	return &FileStorage{dir: expanded, layout: layout, files: map[int]*os.File{}}, nil
}

// WritePiece writes a verified piece's bytes to every file segment it
// overlaps, per the layout built from the metainfo file list.
func (s *FileStorage) WritePiece(pieceIndex int, data []byte) error {
	for _, seg := range s.layout.Segments[pieceIndex] {
		f, err := s.fileHandle(seg.FileIndex)
		if err != nil {
			return err
		}
		if seg.PieceOffset+seg.Length > int64(len(data)) {
			return errors.Errorf("storage: segment exceeds piece data (have %d, need %d)", len(data), seg.PieceOffset+seg.Length)
		}
		chunk := data[seg.PieceOffset : seg.PieceOffset+seg.Length]
		if _, err := f.WriteAt(chunk, seg.FileOffset); err != nil {
			return errors.Wrapf(err, "storage: write file %d", seg.FileIndex)
		}
	}
	return nil
}

func (s *FileStorage) fileHandle(index int) (*os.File, error) {
	if f, ok := s.files[index]; ok {
		return f, nil
	}
	meta := s.layout.Files[index]
	path := filepath.Join(append([]string{s.dir}, meta.Path...)...)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrap(err, "storage: mkdir for file")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, errors.Wrapf(err, "storage: open file %d", index)
	}
	s.files[index] = f
	return f, nil
}

// Close closes every open file handle.
func (s *FileStorage) Close() error {
	var firstErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
