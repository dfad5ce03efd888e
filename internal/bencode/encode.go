package bencode

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Encode serializes a decoded value tree back to canonical bencode bytes:
// dictionary keys in lexicographic byte order, integers with no leading
// zeros. Encode(Decode(b)) == b for any canonical input b.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case RawMessage:
		buf.Write(t)
		return nil
	case int:
		return encodeInt(buf, int64(t))
	case int64:
		return encodeInt(buf, t)
	case string:
		return encodeString(buf, []byte(t))
	case []byte:
		return encodeString(buf, t)
	case List:
		return encodeList(buf, t)
	case []interface{}:
		return encodeList(buf, List(t))
	case Dict:
		return encodeDict(buf, t)
	case map[string]interface{}:
		return encodeDict(buf, Dict(t))
	default:
		return fmt.Errorf("bencode: unsupported type %T", v)
	}
}

func encodeInt(buf *bytes.Buffer, n int64) error {
	buf.WriteByte('i')
	buf.WriteString(strconv.FormatInt(n, 10))
	buf.WriteByte('e')
	return nil
}

func encodeString(buf *bytes.Buffer, s []byte) error {
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.Write(s)
	return nil
}

func encodeList(buf *bytes.Buffer, l List) error {
	buf.WriteByte('l')
	for _, v := range l {
		if err := encodeValue(buf, v); err != nil {
			return err
		}
	}
	buf.WriteByte('e')
	return nil
}

func encodeDict(buf *bytes.Buffer, d Dict) error {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('d')
	for _, k := range keys {
		if err := encodeString(buf, []byte(k)); err != nil {
			return err
		}
		if err := encodeValue(buf, d[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('e')
	return nil
}
