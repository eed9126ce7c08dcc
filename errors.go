package hazel

import "errors"

// Error constants shared across the package.
var (
	// ErrClosed is returned when attempting to use a connection that has
	// already been closed, either locally or by the remote peer.
	ErrClosed = errors.New("connection has been closed")

	// ErrNotAcknowledged is returned when a reliable packet exhausted its
	// retransmit attempts without an acknowledgement from the peer.
	ErrNotAcknowledged = errors.New("reliable packet was not acknowledged")

	// ErrConnectTimeout is returned by Connect when the HELLO exhausted its
	// retransmit attempts.
	ErrConnectTimeout = errors.New("connection attempt timed out")

	// ErrAlreadyConnected is returned by Connect on a client connection
	// whose handshake already completed.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrAlreadyDisconnected is returned by Disconnect on a connection that
	// is no longer open.
	ErrAlreadyDisconnected = errors.New("already disconnected")
)
