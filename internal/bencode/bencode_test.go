package bencode

import (
	"bytes"
	"reflect"
	"testing"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []string{
		"i42e",
		"i0e",
		"i-42e",
		"4:spam",
		"0:",
		"l4:spam4:eggse",
		"d3:cow3:moo4:spam4:eggse",
		"d4:spaml1:a1:bee",
		"d4:infod6:lengthi12e4:name5:hello12:piece lengthi4e6:pieces20:01234567890123456789ee",
	}
	for _, c := range cases {
		v, err := Decode([]byte(c))
		if err != nil {
			t.Fatalf("decode(%q): %v", c, err)
		}
		out, err := Encode(v)
		if err != nil {
			t.Fatalf("encode(%q): %v", c, err)
		}
		if !bytes.Equal(out, []byte(c)) {
			t.Fatalf("round-trip mismatch: %q != %q", out, c)
		}
		// decode . encode == id on the value too
		v2, err := Decode(out)
		if err != nil {
			t.Fatalf("re-decode: %v", err)
		}
		if !reflect.DeepEqual(normalize(v), normalize(v2)) {
			t.Fatalf("value round-trip mismatch for %q", c)
		}
	}
}

// normalize converts []byte leaves to string so reflect.DeepEqual works
// regardless of whether a leaf came from decode (always []byte).
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case List:
		out := make(List, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case Dict:
		out := Dict{}
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}

func TestBadInteger(t *testing.T) {
	cases := []string{"i01e", "i-0e", "ie", "i-e"}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		if err == nil {
			t.Fatalf("expected error decoding %q", c)
		}
		berr, ok := err.(*Error)
		if !ok || berr.Kind != BadInteger {
			t.Fatalf("expected BAD_INTEGER for %q, got %v", c, err)
		}
	}
}

func TestBadKeyOrder(t *testing.T) {
	_, err := Decode([]byte("d3:zoo3:moo3:cow3:mooe"))
	if err == nil {
		t.Fatal("expected error")
	}
	berr, ok := err.(*Error)
	if !ok || berr.Kind != BadKeyOrder {
		t.Fatalf("expected BAD_KEY_ORDER, got %v", err)
	}
}

func TestUnexpectedEOF(t *testing.T) {
	cases := []string{"i42", "4:spa", "l4:spam", "d3:cow3:moo"}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		if err == nil {
			t.Fatalf("expected error for %q", c)
		}
		berr, ok := err.(*Error)
		if !ok || berr.Kind != UnexpectedEOF {
			t.Fatalf("expected UNEXPECTED_EOF for %q, got %v", c, err)
		}
	}
}

func TestTrailingInput(t *testing.T) {
	_, err := Decode([]byte("i1ei2e"))
	if err == nil {
		t.Fatal("expected error")
	}
	berr, ok := err.(*Error)
	if !ok || berr.Kind != TrailingInput {
		t.Fatalf("expected TRAILING_INPUT, got %v", err)
	}
}

func TestDecodeDictRawCapturesExactBytes(t *testing.T) {
	doc := []byte("d8:announce10:udp://x:804:infod6:lengthi12e4:name5:hello12:piece lengthi4e6:pieces20:01234567890123456789ee")
	_, raw, err := DecodeDictRaw(doc)
	if err != nil {
		t.Fatal(err)
	}
	info, ok := raw["info"]
	if !ok {
		t.Fatal("missing info raw")
	}
	expected := "d6:lengthi12e4:name5:hello12:piece lengthi4e6:pieces20:01234567890123456789e"
	if string(info) != expected {
		t.Fatalf("raw info mismatch:\n got: %s\nwant: %s", info, expected)
	}
}
