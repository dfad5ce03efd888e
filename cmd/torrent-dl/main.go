// Command torrent-dl downloads a single .torrent file's content using the
// BEP 3 peer-to-peer protocol: parse metainfo, announce to its trackers,
// connect to peers, and write verified pieces to disk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kingpin"
	torrentdl "github.com/kanhaiya38/torrent-dl"
	"github.com/kanhaiya38/torrent-dl/internal/logger"
	"github.com/kanhaiya38/torrent-dl/session"
)

var (
	app = kingpin.New("torrent-dl", "A minimal BitTorrent leecher")

	torrentPath = app.Arg("torrent", "path to a .torrent file").Required().String()
	dataDir     = app.Flag("data-dir", "directory to write downloaded files into").Short('d').String()
	configPath  = app.Flag("config", "path to a YAML config file").Short('c').String()
	port        = app.Flag("port", "local port announced to trackers").Short('p').Uint16()
	maxPeers    = app.Flag("max-peers", "maximum concurrent peer connections").Int()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "torrent-dl:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := torrentdl.DefaultConfig
	if *configPath != "" {
		loaded, err := torrentdl.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = *loaded
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *maxPeers != 0 {
		cfg.MaxConcurrentPeers = *maxPeers
	}

	l := logger.New("torrent-dl")

	f, err := os.Open(*torrentPath)
	if err != nil {
		return fmt.Errorf("open torrent file: %w", err)
	}
	defer f.Close()

	sess := session.New(session.Config{
		DataDir:             cfg.DataDir,
		MaxConcurrentPeers:  cfg.MaxConcurrentPeers,
		MaxAccumulatedPeers: cfg.MaxAccumulatedPeers,
		PeerConnectTimeout:  cfg.PeerConnectTimeout,
		BlockTimeout:        cfg.BlockTimeout,
		RequestCooldown:     cfg.RequestCooldown,
		SchedulerTick:       cfg.SchedulerTick,
		AnnounceTimeout:     cfg.AnnounceTimeout,
		Port:                cfg.Port,
	})

	t, err := sess.AddTorrent(f)
	if err != nil {
		return fmt.Errorf("add torrent: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt)
	go func() {
		<-sigC
		l.Info("interrupted, shutting down")
		cancel()
	}()

	go reportProgress(ctx, t, l)

	if err := sess.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

func reportProgress(ctx context.Context, t *session.Torrent, l logger.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := t.Stats()
			l.Infof("%d/%d pieces, %d peers, %.1f KB/s",
				s.CompletedCount, s.NumPieces, s.Peers, s.DownloadSpeed/1024)
		}
	}
}
