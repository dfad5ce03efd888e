package session

import (
	"github.com/kanhaiya38/torrent-dl/internal/bitfield"
	"github.com/kanhaiya38/torrent-dl/internal/peerprotocol"
)

// handlePeerMessage dispatches one decoded wire message per the rules of
// §4.4 "Message handling rules". Apart from addPeer marking us interested
// on connect, it is the only place that mutates a peerHandle's flags, and
// it is the only place that feeds data into the piece manager, keeping the
// piece manager's writes serialized as §5 requires even though each
// peer's bytes arrive on its own goroutine.
func (t *Torrent) handlePeerMessage(pmsg peerMessage) {
	ph := pmsg.peer
	switch msg := pmsg.msg.(type) {
	case peerprotocol.ChokeMessage:
		ph.peerChoking = true
	case peerprotocol.UnchokeMessage:
		ph.peerChoking = false
	case peerprotocol.InterestedMessage:
		ph.peerInterested = true
		if ph.amChoking {
			ph.amChoking = false
			_ = ph.conn.SendMessage(peerprotocol.UnchokeMessage{})
		}
	case peerprotocol.NotInterestedMessage:
		ph.peerInterested = false
	case peerprotocol.HaveMessage:
		if int(msg.Index) < int(ph.bitfield.Len()) {
			ph.bitfield.Set(msg.Index)
		}
	case peerprotocol.BitfieldMessage:
		bf, err := bitfield.NewBytes(msg.Data, uint32(t.pm.NumPieces()))
		if err != nil {
			t.log.Debugln("peer sent invalid bitfield, closing:", ph.addr, err)
			t.removePeer(ph)
			return
		}
		// Interested was already sent once on connect (we are always
		// interested, §4.4); no need to repeat it here.
		ph.bitfield = bf
	case peerprotocol.RequestMessage:
		// Upload is out of scope for this core (§4.4 "request: recorded
		// but upload is out of scope; core may ignore").
	case peerprotocol.PieceMessage:
		t.handlePieceMessage(msg)
	case peerprotocol.CancelMessage, peerprotocol.PortMessage:
		// accepted and ignored, per §4.4.
	}
}

// handlePieceMessage applies a received block to the piece manager, and
// on piece completion writes the verified bytes to disk and broadcasts
// Have to every connected peer, per §4.5 and §4.6 step 5.
func (t *Torrent) handlePieceMessage(msg peerprotocol.PieceMessage) {
	res, err := t.pm.ApplyBlock(int(msg.Index), msg.Begin, msg.Block)
	if err != nil {
		t.log.Debugln("apply block failed:", err)
		return
	}
	t.downloadSpeed.Update(int64(len(msg.Block)))
	if !res.Completed {
		return
	}
	if !res.Verified {
		t.log.Debugf("piece %d failed verification, rescheduling", msg.Index)
		return
	}
	if err := t.storage.WritePiece(int(msg.Index), res.Bytes); err != nil {
		t.log.Errorln("write piece to disk:", err)
		return
	}
	t.broadcastHave(uint32(msg.Index))
}

// broadcastHave sends Have(index) to every connected peer, per §4.6
// step 5. Have broadcasts may reorder relative to concurrent requests
// (§5 "Ordering guarantees"), which is harmless: peers simply learn
// about the piece a little later.
func (t *Torrent) broadcastHave(index uint32) {
	t.m.Lock()
	defer t.m.Unlock()
	for ph := range t.peers {
		_ = ph.conn.SendMessage(peerprotocol.HaveMessage{Index: index})
	}
}
