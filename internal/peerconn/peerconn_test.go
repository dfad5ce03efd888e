package peerconn

import (
	"net"
	"testing"
	"time"

	"github.com/kanhaiya38/torrent-dl/internal/logger"
	"github.com/kanhaiya38/torrent-dl/internal/peerprotocol"
)

func pipePair(t *testing.T, infoHash, idA, idB [20]byte) (*Conn, *Conn) {
	t.Helper()
	connA, connB := net.Pipe()
	l := logger.New("test")

	type result struct {
		c   *Conn
		err error
	}
	aC := make(chan result, 1)
	bC := make(chan result, 1)
	go func() {
		c, err := handshake(connA, infoHash, idA, nil, l)
		aC <- result{c, err}
	}()
	go func() {
		c, err := handshake(connB, infoHash, idB, nil, l)
		bC <- result{c, err}
	}()
	ra := <-aC
	rb := <-bC
	if ra.err != nil {
		t.Fatal(ra.err)
	}
	if rb.err != nil {
		t.Fatal(rb.err)
	}
	return ra.c, rb.c
}

func TestHandshakeAndMessageRoundTrip(t *testing.T) {
	var infoHash, idA, idB [20]byte
	copy(infoHash[:], "01234567890123456789")
	copy(idA[:], "-TD0001-aaaaaaaaaaaa")
	copy(idB[:], "-TD0001-bbbbbbbbbbbb")

	a, b := pipePair(t, infoHash, idA, idB)
	if a.PeerID() != idB {
		t.Fatalf("a sees peer id %x, want %x", a.PeerID(), idB)
	}
	if b.PeerID() != idA {
		t.Fatalf("b sees peer id %x, want %x", b.PeerID(), idA)
	}

	go a.Run()
	go b.Run()
	defer a.Close()
	defer b.Close()

	if err := a.SendMessage(peerprotocol.HaveMessage{Index: 7}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-b.Messages():
		have, ok := msg.(peerprotocol.HaveMessage)
		if !ok || have.Index != 7 {
			t.Fatalf("unexpected message: %#v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInfoHashMismatchRejected(t *testing.T) {
	var infoHash, wrongHash, idA, idB [20]byte
	copy(infoHash[:], "01234567890123456789")
	copy(wrongHash[:], "99999999999999999999")
	copy(idA[:], "-TD0001-aaaaaaaaaaaa")
	copy(idB[:], "-TD0001-bbbbbbbbbbbb")

	connA, connB := net.Pipe()
	l := logger.New("test")

	errC := make(chan error, 1)
	go func() {
		_, err := handshake(connB, infoHash, idB, nil, l)
		errC <- err
	}()

	_, err := handshake(connA, wrongHash, idA, nil, l)
	if err == nil {
		t.Fatal("expected info hash mismatch error")
	}
	<-errC
}

func TestPeerIDMismatchRejected(t *testing.T) {
	var infoHash, idA, idB, wantID [20]byte
	copy(infoHash[:], "01234567890123456789")
	copy(idA[:], "-TD0001-aaaaaaaaaaaa")
	copy(idB[:], "-TD0001-bbbbbbbbbbbb")
	copy(wantID[:], "-TD0001-zzzzzzzzzzzz")

	connA, connB := net.Pipe()
	l := logger.New("test")

	errC := make(chan error, 1)
	go func() {
		_, err := handshake(connB, infoHash, idB, nil, l)
		errC <- err
	}()

	_, err := handshake(connA, infoHash, idA, &wantID, l)
	if err == nil {
		t.Fatal("expected peer id mismatch error")
	}
	<-errC
}

func TestCloseUnblocksRun(t *testing.T) {
	var infoHash, idA, idB [20]byte
	copy(infoHash[:], "01234567890123456789")
	copy(idA[:], "-TD0001-aaaaaaaaaaaa")
	copy(idB[:], "-TD0001-bbbbbbbbbbbb")

	a, b := pipePair(t, infoHash, idA, idB)
	go b.Run()
	done := make(chan struct{})
	go func() {
		a.Run()
		close(done)
	}()
	a.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	b.Close()
}
