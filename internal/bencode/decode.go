package bencode

import (
	"strconv"
)

// decoder walks a bencode byte slice with an explicit cursor. It never
// copies the input; byte-strings and RawMessage values are sub-slices of
// the original buffer, which is what preserves byte-exactness for the info
// dictionary.
type decoder struct {
	buf []byte
	pos int
}

// Decode parses exactly one bencode value from b and rejects any trailing
// bytes after it (TRAILING_INPUT).
func Decode(b []byte) (interface{}, error) {
	d := &decoder{buf: b}
	v, err := d.decodeValue()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.buf) {
		return nil, newErr(TrailingInput, d.pos, "")
	}
	return v, nil
}

// DecodeRaw behaves like Decode but also returns the exact byte slice the
// top-level value occupied in b.
func DecodeRaw(b []byte) (interface{}, RawMessage, error) {
	d := &decoder{buf: b}
	start := d.pos
	v, err := d.decodeValue()
	if err != nil {
		return nil, nil, err
	}
	raw := RawMessage(d.buf[start:d.pos])
	if d.pos != len(d.buf) {
		return nil, nil, newErr(TrailingInput, d.pos, "")
	}
	return v, raw, nil
}

func (d *decoder) eof() bool { return d.pos >= len(d.buf) }

func (d *decoder) peek() (byte, bool) {
	if d.eof() {
		return 0, false
	}
	return d.buf[d.pos], true
}

func (d *decoder) decodeValue() (interface{}, error) {
	c, ok := d.peek()
	if !ok {
		return nil, newErr(UnexpectedEOF, d.pos, "expected value")
	}
	switch {
	case c == 'i':
		return d.decodeInt()
	case c == 'l':
		return d.decodeList()
	case c == 'd':
		return d.decodeDict()
	case c >= '0' && c <= '9':
		return d.decodeString()
	default:
		return nil, newErr(BadToken, d.pos, "unexpected token")
	}
}

// decodeInt parses i<digits>e. Leading zeros are rejected except the
// literal "0"; "-0" is rejected.
func (d *decoder) decodeInt() (int64, error) {
	start := d.pos
	d.pos++ // consume 'i'
	numStart := d.pos
	for {
		c, ok := d.peek()
		if !ok {
			return 0, newErr(UnexpectedEOF, d.pos, "unterminated integer")
		}
		if c == 'e' {
			break
		}
		d.pos++
	}
	tok := string(d.buf[numStart:d.pos])
	d.pos++ // consume 'e'
	if err := validateIntLiteral(tok, start); err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, newErr(BadInteger, start, err.Error())
	}
	return n, nil
}

func validateIntLiteral(tok string, offset int) error {
	if tok == "" {
		return newErr(BadInteger, offset, "empty integer")
	}
	s := tok
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return newErr(BadInteger, offset, "bare sign")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return newErr(BadInteger, offset, "non-digit in integer")
		}
	}
	if s == "0" && neg {
		return newErr(BadInteger, offset, "negative zero")
	}
	if len(s) > 1 && s[0] == '0' {
		return newErr(BadInteger, offset, "leading zero")
	}
	return nil
}

// decodeString parses <len>:<bytes>.
func (d *decoder) decodeString() ([]byte, error) {
	start := d.pos
	lenStart := d.pos
	for {
		c, ok := d.peek()
		if !ok {
			return nil, newErr(UnexpectedEOF, d.pos, "unterminated string length")
		}
		if c == ':' {
			break
		}
		if c < '0' || c > '9' {
			return nil, newErr(BadToken, d.pos, "expected digit in string length")
		}
		d.pos++
	}
	lenTok := string(d.buf[lenStart:d.pos])
	if len(lenTok) > 1 && lenTok[0] == '0' {
		return nil, newErr(BadInteger, start, "leading zero in string length")
	}
	d.pos++ // consume ':'
	n, err := strconv.Atoi(lenTok)
	if err != nil || n < 0 {
		return nil, newErr(BadInteger, start, "invalid string length")
	}
	if d.pos+n > len(d.buf) {
		return nil, newErr(UnexpectedEOF, d.pos, "string shorter than declared length")
	}
	s := d.buf[d.pos : d.pos+n]
	d.pos += n
	return s, nil
}

func (d *decoder) decodeList() (List, error) {
	d.pos++ // consume 'l'
	list := List{}
	for {
		c, ok := d.peek()
		if !ok {
			return nil, newErr(UnexpectedEOF, d.pos, "unterminated list")
		}
		if c == 'e' {
			d.pos++
			return list, nil
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
}

func (d *decoder) decodeDict() (Dict, error) {
	d.pos++ // consume 'd'
	dict := Dict{}
	var prevKey []byte
	first := true
	for {
		c, ok := d.peek()
		if !ok {
			return nil, newErr(UnexpectedEOF, d.pos, "unterminated dict")
		}
		if c == 'e' {
			d.pos++
			return dict, nil
		}
		if c < '0' || c > '9' {
			return nil, newErr(BadToken, d.pos, "dict key must be a byte-string")
		}
		keyOffset := d.pos
		key, err := d.decodeString()
		if err != nil {
			return nil, err
		}
		if !first && bytesCompare(key, prevKey) <= 0 {
			return nil, newErr(BadKeyOrder, keyOffset, "dict keys not strictly increasing")
		}
		prevKey = key
		first = false
		val, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		dict[string(key)] = val
	}
}

// DecodeDictRaw parses b as a top-level dictionary and additionally returns
// the exact raw bytes of each immediate child value, keyed by dict key.
// Metainfo uses this to capture the "info" sub-dictionary's original bytes
// for hashing, without needing the whole-document re-encode that DESIGN
// NOTES §9 warns is unsafe on non-canonical real-world torrents.
func DecodeDictRaw(b []byte) (Dict, map[string]RawMessage, error) {
	d := &decoder{buf: b}
	c, ok := d.peek()
	if !ok {
		return nil, nil, newErr(UnexpectedEOF, d.pos, "expected dict")
	}
	if c != 'd' {
		return nil, nil, newErr(BadToken, d.pos, "expected top-level dict")
	}
	d.pos++ // consume 'd'
	dict := Dict{}
	raw := map[string]RawMessage{}
	var prevKey []byte
	first := true
	for {
		c, ok := d.peek()
		if !ok {
			return nil, nil, newErr(UnexpectedEOF, d.pos, "unterminated dict")
		}
		if c == 'e' {
			d.pos++
			break
		}
		if c < '0' || c > '9' {
			return nil, nil, newErr(BadToken, d.pos, "dict key must be a byte-string")
		}
		keyOffset := d.pos
		key, err := d.decodeString()
		if err != nil {
			return nil, nil, err
		}
		if !first && bytesCompare(key, prevKey) <= 0 {
			return nil, nil, newErr(BadKeyOrder, keyOffset, "dict keys not strictly increasing")
		}
		prevKey = key
		first = false
		valStart := d.pos
		val, err := d.decodeValue()
		if err != nil {
			return nil, nil, err
		}
		dict[string(key)] = val
		raw[string(key)] = RawMessage(d.buf[valStart:d.pos])
	}
	if d.pos != len(d.buf) {
		return nil, nil, newErr(TrailingInput, d.pos, "")
	}
	return dict, raw, nil
}

func bytesCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}
