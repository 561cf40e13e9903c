package wsbridge

import "errors"

// Failure kinds surfaced to drivers. Routing code wraps these with %w so
// callers can classify them with errors.Is.
var (
	// ErrNoController rejects controller commands while no browser is
	// attached. The text reaches drivers verbatim.
	ErrNoController = errors.New("Chrome extension not connected. Open the browser with the bridge extension enabled and retry")

	// ErrSessionNotConnected means the session is known but its page agent
	// socket is absent, commonly right after a navigation.
	ErrSessionNotConnected = errors.New("session not connected: no page agent attached")

	// ErrRouteFailure means a routed request named a session this bridge
	// has never seen.
	ErrRouteFailure = errors.New("no route to session")

	// ErrTimeout is the per-request deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrStale is issued by the periodic sweep for requests that outlived
	// the stale threshold without a response.
	ErrStale = errors.New("request expired in the pending queue")

	// ErrBackPressure covers both pending-table eviction and a full
	// outbound peer queue.
	ErrBackPressure = errors.New("too many requests in flight")

	// ErrPeerGone rejects pendings when the peer that should answer them
	// disconnects. Wrapped with the peer kind: controller, page agent, or
	// bridge server.
	ErrPeerGone = errors.New("peer connection lost")
)
