package tracker

// AnnounceRequest carries everything a tracker announce needs to know
// about the torrent and client, grounded on the teacher's
// tracker.Torrent fields.
type AnnounceRequest struct {
	InfoHash        [20]byte
	PeerID          [20]byte
	Port            int
	BytesUploaded   int64
	BytesDownloaded int64
	BytesLeft       int64
	NumWant         int
	Event           Event
}

// Event is the announce "event" query parameter.
type Event string

// Announce events, per §4.3.
const (
	EventNone      Event = ""
	EventStarted   Event = "started"
	EventStopped   Event = "stopped"
	EventCompleted Event = "completed"
)
