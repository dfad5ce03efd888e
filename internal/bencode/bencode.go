// Package bencode implements a strict decoder and encoder for the
// bencoding grammar used by .torrent files and tracker responses:
// integers (i<int>e), byte-strings (<len>:<bytes>), lists (l...e) and
// dictionaries (d...e) with lexicographically ordered keys.
//
// Byte-strings decode to raw []byte (the bencode value domain is not
// UTF-8); callers that know a field is textual convert explicitly.
package bencode

import (
	"fmt"
)

// Kind identifies the reason a Decode call failed, per the spec's error
// taxonomy.
type Kind int

// Failure kinds from the bencoding grammar.
const (
	UnexpectedEOF Kind = iota
	BadToken
	BadKeyOrder
	BadInteger
	TrailingInput
)

func (k Kind) String() string {
	switch k {
	case UnexpectedEOF:
		return "UNEXPECTED_EOF"
	case BadToken:
		return "BAD_TOKEN"
	case BadKeyOrder:
		return "BAD_KEY_ORDER"
	case BadInteger:
		return "BAD_INTEGER"
	case TrailingInput:
		return "TRAILING_INPUT"
	default:
		return "UNKNOWN"
	}
}

// Error reports a decode failure with its byte offset.
type Error struct {
	Kind   Kind
	Offset int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("bencode: %s at offset %d: %s", e.Kind, e.Offset, e.Detail)
	}
	return fmt.Sprintf("bencode: %s at offset %d", e.Kind, e.Offset)
}

func newErr(kind Kind, offset int, detail string) *Error {
	return &Error{Kind: kind, Offset: offset, Detail: detail}
}

// RawMessage holds the exact bencoded bytes of a sub-document, captured
// during decode. Re-encoding a RawMessage reproduces the original bytes
// exactly, which is what lets Metainfo compute info_hash over the original
// info dictionary slice instead of a re-serialization of it (see
// DESIGN NOTES §9: required, not optional).
type RawMessage []byte

// Dict is a decoded bencode dictionary. Keys are the raw byte-string keys;
// Go's map has no ordering of its own, so Encode always re-sorts keys
// lexicographically on output regardless of decode order (decode itself
// additionally rejects out-of-order input, see decodeDict).
type Dict map[string]interface{}

// List is a decoded bencode list.
type List []interface{}
