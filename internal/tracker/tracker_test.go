package tracker

import (
	"context"
	"encoding/binary"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func bencodeCompactPeersResponse(peers []Peer) []byte {
	buf := make([]byte, 0, len(peers)*6)
	for _, p := range peers {
		buf = append(buf, p.IP.To4()...)
		var portBytes [2]byte
		binary.BigEndian.PutUint16(portBytes[:], p.Port)
		buf = append(buf, portBytes[:]...)
	}
	out := []byte("d8:completei1e10:incompletei0e8:intervali1800e5:peers")
	out = append(out, []byte(itoa(len(buf))+":")...)
	out = append(out, buf...)
	out = append(out, 'e')
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestAnnounceParsesCompactPeers(t *testing.T) {
	want := []Peer{
		{IP: net.ParseIP("1.2.3.4").To4(), Port: 6881},
		{IP: net.ParseIP("5.6.7.8").To4(), Port: 51413},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bencodeCompactPeersResponse(want))
	}))
	defer srv.Close()

	c := New(srv.URL)
	var req AnnounceRequest
	copy(req.InfoHash[:], "01234567890123456789")
	copy(req.PeerID[:], "-TD0001-abcdefghijkl")
	req.Port = 6881
	req.BytesLeft = 100

	got, err := c.Announce(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		if !got[i].IP.Equal(want[i].IP) || got[i].Port != want[i].Port {
			t.Fatalf("peer %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAnnounceParsesDictPeers(t *testing.T) {
	body := []byte("d8:completei1e10:incompletei0e8:intervali1800e5:peersl" +
		"d2:ip7:1.2.3.47:peer id20:aaaaaaaaaaaaaaaaaaaa4:porti6881ee" +
		"ee")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	c := New(srv.URL)
	var req AnnounceRequest
	copy(req.InfoHash[:], "01234567890123456789")
	copy(req.PeerID[:], "-TD0001-abcdefghijkl")

	got, err := c.Announce(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d peers, want 1", len(got))
	}
	if got[0].Port != 6881 || got[0].IP.String() != "1.2.3.4" {
		t.Fatalf("unexpected peer: %+v", got[0])
	}
}

func TestAnnounceFailureReasonIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d14:failure reason17:torrent not founde"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	var req AnnounceRequest
	copy(req.InfoHash[:], "01234567890123456789")
	copy(req.PeerID[:], "-TD0001-abcdefghijkl")

	_, err := c.Announce(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for failure reason response")
	}
}

func TestBuildURLPercentEncodesRawInfoHash(t *testing.T) {
	c := New("http://tracker.example/announce")
	var req AnnounceRequest
	req.InfoHash = [20]byte{0x00, 0x01, 0xff, 0xfe, 'a', 'b'}
	req.PeerID = [20]byte{'-', 'T', 'D'}
	req.Port = 6881
	req.BytesLeft = 10
	u, err := c.buildURL(req)
	if err != nil {
		t.Fatal(err)
	}
	if len(u) == 0 {
		t.Fatal("expected non-empty URL")
	}
	if !strings.Contains(u, "info_hash=%00%01%FF%FEab%00") {
		t.Fatalf("info_hash not percent-encoded byte by byte: %s", u)
	}
}
