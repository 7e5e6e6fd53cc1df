// Package transport carries JSON-RPC messages over WebSocket connections
// and stdio.
package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrTransportClosed is returned by Read and Write after Close.
var ErrTransportClosed = errors.New("transport is closed")

// Transport is a bidirectional message channel. Read returns io.EOF when the
// peer closes cleanly. Close is safe to call more than once.
type Transport interface {
	ID() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
	Done() <-chan struct{}
}

// Info describes a transport connection for logging and status.
type Info struct {
	Type       string
	RemoteAddr string
}

// GenerateID generates a unique transport/client ID.
func GenerateID() string {
	return uuid.NewString()
}
