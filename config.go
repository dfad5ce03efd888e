// Package torrentdl is the root of the BitTorrent leecher core: it holds
// client-wide configuration, loaded the way the teacher's root config.go
// does (YAML file with in-code defaults), upgraded from yaml.v1 to
// yaml.v2 and with go-homedir path expansion for DataDir to match how
// the teacher's session package expands its own config paths.
package torrentdl

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config holds every tunable named by the coordinator's lifecycle and
// concurrency model (§4.6, §5).
type Config struct {
	// Port is reported to trackers as our listening port. The core is
	// download-only and never accepts inbound connections.
	Port uint16 `yaml:"port"`

	// DataDir is where downloaded files are written, expanded for a
	// leading "~".
	DataDir string `yaml:"data_dir"`

	// MaxConcurrentPeers bounds simultaneous open peer connections
	// (§4.6 step 2, default 5).
	MaxConcurrentPeers int `yaml:"max_concurrent_peers"`

	// MaxAccumulatedPeers stops announce collection early once this many
	// peers have been collected across trackers (§4.3, default 50);
	// duplicate addresses are removed after collection.
	MaxAccumulatedPeers int `yaml:"max_accumulated_peers"`

	// PeerConnectTimeout bounds a single TCP connect attempt (§5, 2s).
	PeerConnectTimeout time.Duration `yaml:"peer_connect_timeout"`

	// BlockTimeout is how long a reserved block may sit PENDING before
	// it is reaped back to FREE (§4.5, §5, 5s).
	BlockTimeout time.Duration `yaml:"block_timeout"`

	// RequestCooldown is the minimum spacing between requests to the
	// same peer (§5, 0.2s).
	RequestCooldown time.Duration `yaml:"request_cooldown"`

	// SchedulerTick is how often the coordinator runs its block
	// scheduling sweep (§4.6 step 4).
	SchedulerTick time.Duration `yaml:"scheduler_tick"`

	// AnnounceTimeout bounds a single tracker's HTTP announce. Trackers
	// are announced to concurrently, each under its own timeout.
	AnnounceTimeout time.Duration `yaml:"announce_timeout"`
}

// DefaultConfig mirrors the numeric defaults named throughout §4 and §5.
var DefaultConfig = Config{
	Port:                6881,
	DataDir:             "~/torrent-dl",
	MaxConcurrentPeers:  5,
	MaxAccumulatedPeers: 50,
	PeerConnectTimeout:  2 * time.Second,
	BlockTimeout:        5 * time.Second,
	RequestCooldown:     200 * time.Millisecond,
	SchedulerTick:       200 * time.Millisecond,
	AnnounceTimeout:     15 * time.Second,
}

// LoadConfig reads a YAML config file over DefaultConfig, returning the
// defaults unchanged when filename does not exist — the same
// missing-file-is-fine behavior as the teacher's LoadConfig.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "config: read file")
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}
	expanded, err := homedir.Expand(c.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "config: expand data dir")
	}
	c.DataDir = expanded
	return &c, nil
}
