// Package transport negotiates realtime connections to the model
// provider and exposes a uniform event channel over them.
//
// Two negotiators are provided: a WebRTC negotiator that carries audio
// on media tracks and events on a data channel, and a WebSocket
// negotiator that carries everything as JSON text frames. Session code
// talks to the Connection interface and does not care which one is
// underneath.
package transport

import "context"

// MediaInfo describes an audio stream on a connection.
type MediaInfo struct {
	Codec      string
	SampleRate int
	Channels   int
}

// Connection is an established realtime link. Send transmits a single
// serialized client event; Messages yields server events in arrival
// order and is closed when the connection dies.
type Connection interface {
	Send(data []byte) error

	Messages() <-chan []byte

	// RemoteMedia is fulfilled once when the remote audio stream is
	// known. Transports without separate media streams return a
	// closed channel.
	RemoteMedia() <-chan MediaInfo

	Info() MediaInfo

	Close() error
}

// Negotiator establishes a Connection using a short-lived credential.
type Negotiator interface {
	Open(ctx context.Context, credential string) (Connection, error)
}
