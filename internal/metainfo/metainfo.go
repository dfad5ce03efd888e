// Package metainfo parses a decoded bencode tree into a validated
// description of a torrent's files, pieces and trackers, and computes its
// info-hash. Grounded on the teacher's internal/metainfo/metainfo.go
// (MetaInfo.RawInfo capture, New(io.Reader)), with file-list unification
// and tracker-set unioning grounded on original_source's torrent.py
// (parse_files/parse_trackers).
package metainfo

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/kanhaiya38/torrent-dl/internal/bencode"
)

// PieceHashLen is the length in bytes of a single SHA-1 piece hash.
const PieceHashLen = 20

// File describes one file within a (possibly multi-file) torrent.
type File struct {
	// Path is the ordered sequence of path components, e.g. ["dir","sub","a.txt"].
	Path   []string
	Length int64
}

// Info is the validated, immutable contents of the bencoded "info"
// dictionary plus its info-hash.
type Info struct {
	Name         string
	PieceLength  int64
	Pieces       []byte // concatenated 20-byte SHA-1 hashes
	Files        []File
	TotalLength  int64
	InfoHash     [20]byte
	RawInfoBytes []byte // exact bencoded bytes of the info dict, as it appeared in the source
}

// NumPieces returns len(Pieces)/20, the authoritative piece count (see
// DESIGN NOTES §9: NOT ceil(len(Pieces)/8), which is a bitfield byte
// count, not a piece count).
func (info *Info) NumPieces() int {
	return len(info.Pieces) / PieceHashLen
}

// PieceHash returns the expected SHA-1 hash of piece i.
func (info *Info) PieceHash(i int) []byte {
	return info.Pieces[i*PieceHashLen : (i+1)*PieceHashLen]
}

// MetaInfo is the full decoded .torrent file.
type MetaInfo struct {
	Info         *Info
	Announce     string
	AnnounceList [][]string
}

// New decodes a .torrent file's bytes into a MetaInfo.
func New(r io.Reader) (*MetaInfo, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes raw .torrent bytes into a MetaInfo. PARSE failures here are
// fatal to loading (§7): the caller should abort the torrent add.
func Parse(b []byte) (*MetaInfo, error) {
	dict, raw, err := bencode.DecodeDictRaw(b)
	if err != nil {
		return nil, fmt.Errorf("metainfo: decode: %w", err)
	}
	rawInfo, ok := raw["info"]
	if !ok {
		return nil, errors.New("metainfo: no info dict in torrent file")
	}
	infoVal, ok := dict["info"].(bencode.Dict)
	if !ok {
		return nil, errors.New("metainfo: info is not a dictionary")
	}
	info, err := parseInfo(infoVal, rawInfo)
	if err != nil {
		return nil, err
	}
	mi := &MetaInfo{Info: info}
	if a, ok := dict["announce"].([]byte); ok {
		mi.Announce = string(a)
	}
	if al, ok := dict["announce-list"].(bencode.List); ok {
		mi.AnnounceList = parseAnnounceList(al)
	}
	return mi, nil
}

func parseAnnounceList(l bencode.List) [][]string {
	out := make([][]string, 0, len(l))
	for _, tierVal := range l {
		tier, ok := tierVal.(bencode.List)
		if !ok {
			continue
		}
		urls := make([]string, 0, len(tier))
		for _, u := range tier {
			if b, ok := u.([]byte); ok {
				urls = append(urls, string(b))
			}
		}
		out = append(out, urls)
	}
	return out
}

func parseInfo(d bencode.Dict, raw bencode.RawMessage) (*Info, error) {
	name, ok := d["name"].([]byte)
	if !ok {
		return nil, errors.New("metainfo: missing or invalid name")
	}
	pieceLength, ok := d["piece length"].(int64)
	if !ok || pieceLength <= 0 {
		return nil, errors.New("metainfo: missing or invalid piece length")
	}
	pieces, ok := d["pieces"].([]byte)
	if !ok {
		return nil, errors.New("metainfo: missing pieces")
	}
	if len(pieces)%PieceHashLen != 0 {
		return nil, fmt.Errorf("metainfo: pieces length %d not a multiple of %d", len(pieces), PieceHashLen)
	}

	info := &Info{
		Name:         string(name),
		PieceLength:  pieceLength,
		Pieces:       append([]byte(nil), pieces...),
		RawInfoBytes: append([]byte(nil), raw...),
		InfoHash:     sha1.Sum(raw),
	}

	if filesVal, ok := d["files"]; ok {
		files, ok := filesVal.(bencode.List)
		if !ok {
			return nil, errors.New("metainfo: files is not a list")
		}
		if len(files) == 0 {
			return nil, errors.New("metainfo: multi-file torrent has empty files list")
		}
		for _, fv := range files {
			fd, ok := fv.(bencode.Dict)
			if !ok {
				return nil, errors.New("metainfo: file entry is not a dict")
			}
			f, err := parseFileEntry(fd)
			if err != nil {
				return nil, err
			}
			info.Files = append(info.Files, f)
			info.TotalLength += f.Length
		}
	} else {
		length, ok := d["length"].(int64)
		if !ok || length < 0 {
			return nil, errors.New("metainfo: single-file torrent missing length")
		}
		info.Files = []File{{Path: []string{info.Name}, Length: length}}
		info.TotalLength = length
	}

	expectedPieces := ceilDiv(info.TotalLength, info.PieceLength)
	if int64(info.NumPieces()) != expectedPieces {
		return nil, fmt.Errorf("metainfo: piece count %d does not match ceil(total_length/piece_length)=%d", info.NumPieces(), expectedPieces)
	}

	return info, nil
}

func parseFileEntry(d bencode.Dict) (File, error) {
	length, ok := d["length"].(int64)
	if !ok || length < 0 {
		return File{}, errors.New("metainfo: file entry missing length")
	}
	pathVal, ok := d["path"].(bencode.List)
	if !ok || len(pathVal) == 0 {
		return File{}, errors.New("metainfo: file entry missing path")
	}
	path := make([]string, 0, len(pathVal))
	for _, p := range pathVal {
		b, ok := p.([]byte)
		if !ok {
			return File{}, errors.New("metainfo: path component is not a string")
		}
		path = append(path, string(b))
	}
	return File{Path: path, Length: length}, nil
}

func ceilDiv(a, b int64) int64 {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Trackers returns the set of announce URLs, unioning "announce" with
// every sub-list of "announce-list" (order irrelevant, duplicates removed).
func (mi *MetaInfo) Trackers() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	add(mi.Announce)
	for _, tier := range mi.AnnounceList {
		for _, u := range tier {
			add(u)
		}
	}
	return out
}
