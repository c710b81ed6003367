package sync

// State identifies where a sync pass currently is. A pass moves strictly
// forward: Idle, FetchingManifest, Diffing, Downloading (skipped when
// nothing changed), Persisting, Done. Error is reachable from
// FetchingManifest and Downloading only.
type State string

const (
	StateIdle             State = "idle"
	StateFetchingManifest State = "fetching-manifest"
	StateDiffing          State = "diffing"
	StateDownloading      State = "downloading"
	StatePersisting       State = "persisting"
	StateDone             State = "done"
	StateError            State = "error"
)

// Outcome is the transient result of one sync pass
type Outcome struct {
	// State is the terminal state of the pass: StateDone or StateError
	State State
	// Updated lists the relative paths that were downloaded, in order
	Updated []string
	// Err carries the recoverable failure when State is StateError
	Err error
}
