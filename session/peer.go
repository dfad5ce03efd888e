package session

import (
	"time"

	"github.com/kanhaiya38/torrent-dl/internal/bitfield"
	"github.com/kanhaiya38/torrent-dl/internal/peerconn"
)

// peerHandle is the mutable per-connection record described by §4.4's
// Peer: the four flow-control flags, the peer's announced bitfield, and
// request-cooldown bookkeeping. The underlying socket is only ever
// touched by the goroutine running peerHandle.conn's read loop (reads)
// and by the coordinator goroutine sending through SendMessage (writes);
// the two may overlap, but no other code path uses the socket, per §5
// "the socket for peer P is mutated only by the code path handling P."
type peerHandle struct {
	conn *peerconn.Conn
	addr string

	amChoking       bool
	amInterested    bool
	peerChoking     bool
	peerInterested  bool
	bitfield        *bitfield.Bitfield
	lastRequestAt   time.Time
}

func newPeerHandle(conn *peerconn.Conn, addr string, numPieces int) *peerHandle {
	return &peerHandle{
		conn:        conn,
		addr:        addr,
		amChoking:   true,
		peerChoking: true,
		bitfield:    bitfield.New(uint32(numPieces)),
	}
}

// isEligible reports whether this peer may be given a new Request right
// now, per §4.6 step 4: ACTIVE (implicit — it's still in the peer set),
// am_interested && !peer_choking, and the 0.2s request cooldown elapsed.
func (p *peerHandle) isEligible(now time.Time, cooldown time.Duration) bool {
	return p.amInterested && !p.peerChoking && now.Sub(p.lastRequestAt) >= cooldown
}
