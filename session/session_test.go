package session

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kanhaiya38/torrent-dl/internal/bencode"
	"github.com/kanhaiya38/torrent-dl/internal/bitfield"
	"github.com/kanhaiya38/torrent-dl/internal/metainfo"
	"github.com/kanhaiya38/torrent-dl/internal/peerprotocol"
)

// TestRunCompletesWithCooperativePeer covers testable property 10 (§8):
// given a mock peer that serves every block with correct data, the
// coordinator reaches AllComplete and Run returns, rather than hanging or
// erroring. The mock peer speaks the real wire handshake and framing over
// a loopback TCP listener; the tracker is an httptest.Server returning a
// compact-form peer list that points at it.
func TestRunCompletesWithCooperativePeer(t *testing.T) {
	data := []byte("HELLO-WORLD-1234") // 16 bytes: one piece, one block
	if len(data) != 16 {
		t.Fatalf("fixture data must be 16 bytes, got %d", len(data))
	}
	pieceHash := sha1.Sum(data)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	tracker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(compactPeerResponse(t, ln.Addr().(*net.TCPAddr)))
	}))
	defer tracker.Close()

	raw, err := bencode.Encode(bencode.Dict{
		"announce": []byte(tracker.URL),
		"info": bencode.Dict{
			"name":         []byte("test.txt"),
			"piece length": int64(16),
			"pieces":       append([]byte(nil), pieceHash[:]...),
			"length":       int64(16),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	mi, err := metainfo.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}

	go runMockPeer(t, ln, mi.Info.InfoHash, data)

	sess := New(Config{
		DataDir:             t.TempDir(),
		MaxConcurrentPeers:  1,
		MaxAccumulatedPeers: 10,
		PeerConnectTimeout:  2 * time.Second,
		BlockTimeout:        2 * time.Second,
		RequestCooldown:     10 * time.Millisecond,
		SchedulerTick:       20 * time.Millisecond,
		AnnounceTimeout:     2 * time.Second,
		Port:                6881,
	})
	torr, err := sess.AddTorrent(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := torr.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !torr.pm.AllComplete() {
		t.Fatal("expected AllComplete true once Run returns")
	}
	stats := torr.Stats()
	if stats.CompletedCount != stats.NumPieces {
		t.Fatalf("expected every piece completed, got %+v", stats)
	}

	written, err := os.ReadFile(filepath.Join(sess.config.DataDir, "test.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(written, data) {
		t.Fatalf("written file = %q, want %q", written, data)
	}
}

// compactPeerResponse builds a minimal bencoded tracker response
// announcing one peer in compact (6-byte) form at addr.
func compactPeerResponse(t *testing.T, addr *net.TCPAddr) []byte {
	t.Helper()
	ip := addr.IP.To4()
	if ip == nil {
		t.Fatal("expected an IPv4 listener address")
	}
	var portBytes [2]byte
	binary.BigEndian.PutUint16(portBytes[:], uint16(addr.Port))
	peerBytes := append(append([]byte{}, ip...), portBytes[:]...)

	var buf bytes.Buffer
	buf.WriteString("d5:peers")
	fmt.Fprintf(&buf, "%d:", len(peerBytes))
	buf.Write(peerBytes)
	buf.WriteByte('e')
	return buf.Bytes()
}

// runMockPeer accepts a single connection on ln, performs the BEP 3
// handshake, announces it already has the one piece, unchokes
// immediately, and answers the first block Request with the real data.
// It stands in for the "mock peer that serves every block with correct
// data" of testable property 10.
func runMockPeer(t *testing.T, ln net.Listener, infoHash [20]byte, data []byte) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Errorf("mock peer: accept: %v", err)
		return
	}
	defer conn.Close()

	theirs, err := peerprotocol.ReadHandshake(conn)
	if err != nil {
		t.Errorf("mock peer: read handshake: %v", err)
		return
	}
	if theirs.InfoHash != infoHash {
		t.Errorf("mock peer: info hash mismatch")
		return
	}
	var mockID [20]byte
	copy(mockID[:], "-MK0001-mockpeer0001")
	if _, err := conn.Write(peerprotocol.NewHandshake(infoHash, mockID).Marshal()); err != nil {
		t.Errorf("mock peer: write handshake: %v", err)
		return
	}

	bf := bitfield.New(1)
	bf.Set(0)
	if _, err := conn.Write(peerprotocol.Encode(peerprotocol.BitfieldMessage{Data: bf.Bytes()})); err != nil {
		t.Errorf("mock peer: write bitfield: %v", err)
		return
	}
	if _, err := conn.Write(peerprotocol.Encode(peerprotocol.UnchokeMessage{})); err != nil {
		t.Errorf("mock peer: write unchoke: %v", err)
		return
	}

	r := bufio.NewReaderSize(conn, 64*1024)
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, rerr := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				payload, consumed, ok := peerprotocol.SplitFrame(buf)
				if !ok {
					break
				}
				buf = buf[consumed:]
				if len(payload) == 0 {
					continue // keep-alive
				}
				msg, derr := peerprotocol.DecodeFrame(payload)
				if derr != nil {
					return
				}
				if req, ok := msg.(peerprotocol.RequestMessage); ok {
					block := data[req.Begin : req.Begin+req.Length]
					conn.Write(peerprotocol.Encode(peerprotocol.PieceMessage{
						Index: req.Index,
						Begin: req.Begin,
						Block: block,
					}))
					return
				}
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				t.Logf("mock peer: read error: %v", rerr)
			}
			return
		}
	}
}
