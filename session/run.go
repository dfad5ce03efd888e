package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kanhaiya38/torrent-dl/internal/peerconn"
	"github.com/kanhaiya38/torrent-dl/internal/peerprotocol"
	"github.com/kanhaiya38/torrent-dl/internal/piecemanager"
	"github.com/kanhaiya38/torrent-dl/internal/tracker"
	"golang.org/x/sync/errgroup"
)

// Run executes the full coordinator lifecycle of §4.6: announce to
// every tracker, dial peers up to the concurrency cap, then run the
// scheduling loop until every piece verifies, writing each to disk as it
// completes.
func (t *Torrent) Run(ctx context.Context) error {
	t.startedAt = time.Now()
	peers, err := t.announceAll(ctx)
	if err != nil {
		return fmt.Errorf("session: announce: %w", err)
	}
	t.log.Infof("announce returned %d peers", len(peers))

	pending := dedupePeers(peers)
	t.dialMore(ctx, &pending)

	ticker := time.NewTicker(t.config.SchedulerTick)
	defer ticker.Stop()

	// go-metrics EWMAs are defined to decay once per five-second tick
	// (NewEWMA1's alpha), independent of the scheduler's own tick rate.
	speedTicker := time.NewTicker(5 * time.Second)
	defer speedTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.closeAllPeers()
			return ctx.Err()
		case ph := <-t.newPeerC:
			t.addPeer(ph)
			t.dialMore(ctx, &pending)
		case ph := <-t.peerDisconnectC:
			t.removePeer(ph)
			t.dialMore(ctx, &pending)
		case pmsg := <-t.peerMsgC:
			t.handlePeerMessage(pmsg)
			if t.pm.AllComplete() {
				t.log.Info("download completed")
				close(t.completeC)
				t.closeAllPeers()
				return nil
			}
		case now := <-ticker.C:
			t.pm.ExpireStale(now, t.config.BlockTimeout)
			t.scheduleBlocks(now)
		case <-speedTicker.C:
			t.downloadSpeed.Tick()
		}
	}
}

// announceAll fans out one HTTP announce per tracker URL (errgroup,
// bounded by config.AnnounceTimeout per call) and accumulates peers
// across all of them, stopping early (canceling the announces still in
// flight) once the accumulated count reaches MaxAccumulatedPeers, per §4.3.
func (t *Torrent) announceAll(ctx context.Context) ([]tracker.Peer, error) {
	urls := t.mi.Trackers()
	if len(urls) == 0 {
		return nil, fmt.Errorf("no trackers in metainfo")
	}

	var (
		mu  sync.Mutex
		all []tracker.Peer
	)
	g, gctx := errgroup.WithContext(ctx)
	gctx, stopEarly := context.WithCancel(gctx)
	defer stopEarly()
	for _, u := range urls {
		announceURL := u
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, t.config.AnnounceTimeout)
			defer cancel()
			client := tracker.New(announceURL)
			peers, err := client.Announce(cctx, t.announceRequest())
			if err != nil {
				// Per-tracker failures are non-fatal (§4.3, §7): log and
				// move on rather than failing the whole announce round.
				t.log.Debugln("tracker announce failed:", announceURL, err)
				return nil
			}
			mu.Lock()
			if len(all) < t.config.MaxAccumulatedPeers {
				all = append(all, peers...)
			}
			if len(all) >= t.config.MaxAccumulatedPeers {
				stopEarly()
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// dedupePeers removes duplicate (ip, port) pairs, per §4.3.
func dedupePeers(peers []tracker.Peer) []tracker.Peer {
	seen := map[string]struct{}{}
	out := make([]tracker.Peer, 0, len(peers))
	for _, p := range peers {
		key := p.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// dialMore dials addresses off pending until MaxConcurrentPeers
// connections are outstanding, per §4.6 step 2.
func (t *Torrent) dialMore(ctx context.Context, pending *[]tracker.Peer) {
	t.m.Lock()
	active := len(t.peers)
	t.m.Unlock()
	for active < t.config.MaxConcurrentPeers && len(*pending) > 0 {
		addr := (*pending)[0]
		*pending = (*pending)[1:]
		active++
		go t.dialOne(ctx, addr)
	}
}

func (t *Torrent) dialOne(ctx context.Context, addr tracker.Peer) {
	conn, err := peerconn.DialAndHandshake(addr.String(), t.mi.Info.InfoHash, t.peerID, addr.PeerID, t.config.PeerConnectTimeout, t.log)
	if err != nil {
		t.log.Debugln("dial failed:", addr, err)
		return
	}
	ph := newPeerHandle(conn, addr.String(), t.pm.NumPieces())
	select {
	case t.newPeerC <- ph:
	case <-ctx.Done():
		conn.Close()
	}
}

func (t *Torrent) addPeer(ph *peerHandle) {
	t.m.Lock()
	t.peers[ph] = struct{}{}
	t.m.Unlock()

	go ph.conn.Run()
	go t.forwardMessages(ph)

	// We are always interested: the core only leeches, never seeds, so
	// there is no scenario where we would decline a peer's pieces.
	ph.amInterested = true
	_ = ph.conn.SendMessage(peerprotocol.InterestedMessage{})
}

func (t *Torrent) removePeer(ph *peerHandle) {
	t.m.Lock()
	delete(t.peers, ph)
	t.m.Unlock()
	ph.conn.Close()
}

func (t *Torrent) closeAllPeers() {
	t.m.Lock()
	peers := make([]*peerHandle, 0, len(t.peers))
	for ph := range t.peers {
		peers = append(peers, ph)
	}
	t.m.Unlock()
	for _, ph := range peers {
		ph.conn.Close()
	}
	if err := t.storage.Close(); err != nil {
		t.log.Errorln("closing storage:", err)
	}
}

// forwardMessages relays ph's incoming messages onto the shared
// peerMsgC, and reports disconnection once the peer's Messages channel
// closes — the fan-in half of the goroutine-per-peer model (§5).
func (t *Torrent) forwardMessages(ph *peerHandle) {
	for msg := range ph.conn.Messages() {
		t.peerMsgC <- peerMessage{peer: ph, msg: msg}
	}
	t.peerDisconnectC <- ph
}

// scheduleBlocks implements §4.6 step 4: for every incomplete piece,
// pick a random eligible peer that has it, reserve one of its blocks,
// and send the Request.
func (t *Torrent) scheduleBlocks(now time.Time) {
	t.m.Lock()
	eligible := make(map[int][]*peerHandle) // piece index -> peers that have it and are eligible
	for ph := range t.peers {
		if !ph.isEligible(now, t.config.RequestCooldown) {
			continue
		}
		for _, p := range t.pm.RequiredPieces() {
			if ph.bitfield.Test(uint32(p.Index)) {
				eligible[p.Index] = append(eligible[p.Index], ph)
			}
		}
	}
	t.m.Unlock()

	for _, p := range t.pm.RequiredPieces() {
		// A peer given a request earlier in this sweep is still cooling down.
		var candidates []*peerHandle
		for _, ph := range eligible[p.Index] {
			if ph.isEligible(now, t.config.RequestCooldown) {
				candidates = append(candidates, ph)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		ph := candidates[rand.Intn(len(candidates))]
		now := time.Now()
		begin, length, ok := piecemanager.ReserveBlock(p, now)
		if !ok {
			continue
		}
		ph.lastRequestAt = now
		_ = ph.conn.SendMessage(peerprotocol.RequestMessage{
			Index:  uint32(p.Index),
			Begin:  begin,
			Length: length,
		})
	}
}
