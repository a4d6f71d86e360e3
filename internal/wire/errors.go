package wire

import "errors"

// Error kinds per the error handling design: transient errors are swallowed
// at the boundary where they occur, peer-level errors close only the
// offending peer, and StreamerLost/ConfigInvalid/BindFailed escalate.
var (
	// ErrTransientIO marks a single recv/send failure that the caller should
	// log and retry on the next loop iteration.
	ErrTransientIO = errors.New("wire: transient I/O error")

	// ErrPeerGone marks a WS EOF or send error for one peer. Only that
	// peer's connection is closed; the pipeline continues.
	ErrPeerGone = errors.New("wire: peer disconnected")

	// ErrLagEviction marks a subscriber whose backlog exceeded
	// MAX_TOLERATED_MESSAGE_COUNT. The subscriber's socket is closed.
	ErrLagEviction = errors.New("wire: slow consumer evicted")

	// ErrStreamerLost marks the loss of the active StreamerSession. It is
	// escalated to the relay supervisor, which runs Cleaning.
	ErrStreamerLost = errors.New("wire: streamer lost")

	// ErrConfigInvalid is fatal at startup.
	ErrConfigInvalid = errors.New("wire: invalid configuration")

	// ErrTLSHandshakeFailed refuses a single peer; the accept loop continues.
	ErrTLSHandshakeFailed = errors.New("wire: tls handshake failed")

	// ErrDecodeFailed ends a FileSource's current playback cleanly; it is
	// not escalated.
	ErrDecodeFailed = errors.New("wire: container decode failed")

	// ErrBindFailed is returned when the Cleaning listener-socket rebind
	// retry loop exhausts its 1 s bound. Single failed attempts inside that
	// loop are benign and retried without an error value.
	ErrBindFailed = errors.New("wire: listener bind failed")
)

// LagError is returned by a Subscription's Recv when the publisher has
// overwritten messages the subscriber had not yet consumed. Skipped reports
// how many messages were lost.
type LagError struct {
	Skipped uint64
}

func (e *LagError) Error() string {
	return "wire: subscriber lagged, messages skipped"
}
