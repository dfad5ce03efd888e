package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/kanhaiya38/torrent-dl/internal/logger"
	"github.com/kanhaiya38/torrent-dl/internal/metainfo"
	"github.com/pkg/errors"
)

// Session manages a set of concurrently downloading Torrents, mirroring
// the teacher's session.Session as a thin registry — trimmed of its
// boltdb resume store, DHT node, blocklist and PEX bookkeeping, all out
// of scope here (§4.3/§4.6 cover only tracker-sourced peers).
type Session struct {
	config Config
	log    logger.Logger

	m        sync.Mutex
	torrents map[string]*Torrent
}

// New returns a Session that will use cfg as the default for every
// Torrent it creates.
func New(cfg Config) *Session {
	return &Session{
		config:   cfg,
		log:      logger.New("session"),
		torrents: make(map[string]*Torrent),
	}
}

// AddTorrent decodes a .torrent file and registers a new Torrent for it,
// keyed by its info-hash in hex.
func (s *Session) AddTorrent(r io.Reader) (*Torrent, error) {
	mi, err := metainfo.New(r)
	if err != nil {
		return nil, errors.Wrap(err, "session: parse metainfo")
	}
	key := fmt.Sprintf("%x", mi.Info.InfoHash)

	s.m.Lock()
	defer s.m.Unlock()
	if existing, ok := s.torrents[key]; ok {
		return existing, nil
	}
	t, err := NewTorrent(mi, s.config, logger.New("torrent "+mi.Info.Name))
	if err != nil {
		return nil, err
	}
	s.torrents[key] = t
	return t, nil
}

// Run downloads every registered torrent concurrently, returning once
// all have completed or ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	s.m.Lock()
	torrents := make([]*Torrent, 0, len(s.torrents))
	for _, t := range s.torrents {
		torrents = append(torrents, t)
	}
	s.m.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(torrents))
	for i, t := range torrents {
		wg.Add(1)
		go func(i int, t *Torrent) {
			defer wg.Done()
			errs[i] = t.Run(ctx)
		}(i, t)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
