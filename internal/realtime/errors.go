package realtime

import "errors"

// Error taxonomy for the session bridge. All fatal categories require the
// caller to tear down via Close; the bridge never reconnects on its own.
var (
	// ErrPermission: the local audio capture device was denied. Fatal, no retry.
	ErrPermission = errors.New("realtime: media permission denied")
	// ErrSignaling: credential issuance or offer/answer exchange failed. Fatal.
	ErrSignaling = errors.New("realtime: signaling exchange failed")
	// ErrConnectionTimeout: the connection did not reach the open state within
	// the configured bound. Fatal.
	ErrConnectionTimeout = errors.New("realtime: connection timeout")
	// ErrTransport: channel-level failure after establishment. Fatal.
	ErrTransport = errors.New("realtime: transport failure")
	// ErrNotOpen: a send was attempted while the event channel is not open.
	// The message is dropped; there is no queueing or retry.
	ErrNotOpen = errors.New("realtime: event channel not open")
	// ErrConnectInProgress: Connect was called while a previous Connect is
	// still establishing or open. Callers must serialize Connect calls.
	ErrConnectInProgress = errors.New("realtime: connect already in progress")
)
