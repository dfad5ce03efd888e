// Package tracker implements Component D: building the HTTP announce
// request and parsing the bencoded response's peer list in either its
// compact or dictionary form. Grounded on the teacher's
// internal/tracker/httptracker package shape (stateless per-request
// Announce), generalized to accept both peer-list encodings per §4.3, and
// wired to github.com/cenkalti/backoff for per-tracker retry and
// golang.org/x/sync/errgroup for the multi-tracker fan-out done by the
// coordinator.
package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/kanhaiya38/torrent-dl/internal/bencode"
	"github.com/pkg/errors"
)

// Peer is one announced peer address. PeerID is only known when the
// tracker answered in dictionary form (§4.3); it is nil for compact-form
// peers, which carry no peer_id.
type Peer struct {
	IP     net.IP
	Port   uint16
	PeerID *[20]byte
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Client announces to a single tracker URL over HTTP. It is stateless
// across calls, per §5 "Shared resources".
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// New returns a Client for the given announce URL using a default HTTP
// client with a bounded timeout.
func New(announceURL string) *Client {
	return &Client{
		URL:        announceURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Announce sends one HTTP GET announce request and parses the response.
// Per-tracker transport and decode failures are returned to the caller,
// who treats them as non-fatal (§7 "tracker response: skip that
// tracker") and carries on with the other trackers.
func (c *Client) Announce(ctx context.Context, req AnnounceRequest) ([]Peer, error) {
	u, err := c.buildURL(req)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: build request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: new request")
	}
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: http request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("tracker: unexpected status %d", resp.StatusCode)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: read response")
	}
	val, err := bencode.Decode(body)
	if err != nil {
		return nil, errors.Wrap(err, "tracker: decode response")
	}
	dict, ok := val.(bencode.Dict)
	if !ok {
		return nil, errors.New("tracker: response is not a dictionary")
	}
	if reason, ok := dict["failure reason"].([]byte); ok {
		return nil, errors.Errorf("tracker: failure reason: %s", reason)
	}
	return parsePeers(dict["peers"])
}

// AnnounceWithRetry wraps Announce in an exponential backoff, for
// transient network failures against one tracker. It gives up and
// returns the last error once the backoff is exhausted.
func (c *Client) AnnounceWithRetry(ctx context.Context, req AnnounceRequest, maxElapsed time.Duration) ([]Peer, error) {
	var peers []Peer
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	operation := func() error {
		var err error
		peers, err = c.Announce(ctx, req)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return peers, nil
}

func (c *Client) buildURL(req AnnounceRequest) (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("info_hash", string(req.InfoHash[:]))
	q.Set("peer_id", string(req.PeerID[:]))
	q.Set("port", strconv.Itoa(req.Port))
	q.Set("uploaded", strconv.FormatInt(req.BytesUploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.BytesDownloaded, 10))
	q.Set("left", strconv.FormatInt(req.BytesLeft, 10))
	q.Set("compact", "1")
	if req.NumWant > 0 {
		q.Set("numwant", strconv.Itoa(req.NumWant))
	}
	if req.Event != EventNone {
		q.Set("event", string(req.Event))
	}
	u.RawQuery = encodeRawBytesQuery(q)
	return u.String(), nil
}

// encodeRawBytesQuery encodes q with url.Values.Encode, which escapes
// info_hash/peer_id byte by byte with no UTF-8 interpretation: every byte
// outside the unreserved set becomes %XX (§4.3 "20 raw bytes,
// percent-encoded"). A 0x20 byte is written as '+'.
func encodeRawBytesQuery(q url.Values) string {
	return q.Encode()
}

// parsePeers accepts either the compact (6-bytes-per-peer) or dictionary
// peer-list form, per §4.3 "Both forms MUST be accepted".
func parsePeers(v interface{}) ([]Peer, error) {
	switch val := v.(type) {
	case []byte:
		return parseCompactPeers(val)
	case bencode.List:
		return parseDictPeers(val)
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("tracker: unrecognized peers field type %T", v)
	}
}

func parseCompactPeers(b []byte) ([]Peer, error) {
	if len(b)%6 != 0 {
		return nil, fmt.Errorf("tracker: compact peers length %d not a multiple of 6", len(b))
	}
	n := len(b) / 6
	peers := make([]Peer, n)
	for i := 0; i < n; i++ {
		off := i * 6
		ip := net.IP(append([]byte(nil), b[off:off+4]...))
		port := binary.BigEndian.Uint16(b[off+4 : off+6])
		peers[i] = Peer{IP: ip, Port: port}
	}
	return peers, nil
}

func parseDictPeers(list bencode.List) ([]Peer, error) {
	peers := make([]Peer, 0, len(list))
	for _, item := range list {
		d, ok := item.(bencode.Dict)
		if !ok {
			return nil, errors.New("tracker: peer list entry is not a dictionary")
		}
		ipBytes, ok := d["ip"].([]byte)
		if !ok {
			return nil, errors.New("tracker: peer dict missing ip")
		}
		portVal, ok := d["port"].(int64)
		if !ok {
			return nil, errors.New("tracker: peer dict missing port")
		}
		ip := net.ParseIP(string(ipBytes))
		if ip == nil {
			return nil, fmt.Errorf("tracker: invalid peer ip %q", ipBytes)
		}
		p := Peer{IP: ip, Port: uint16(portVal)}
		if idBytes, ok := d["peer id"].([]byte); ok && len(idBytes) == 20 {
			var id [20]byte
			copy(id[:], idBytes)
			p.PeerID = &id
		}
		peers = append(peers, p)
	}
	return peers, nil
}
