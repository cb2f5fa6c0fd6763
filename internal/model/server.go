package model

import (
	"context"
	"net"
)

// ListenerFactory opens the socket the API is served on. The TLS and
// plaintext variants live in internal/server.
type ListenerFactory interface {
	Listen(protocol, addr string) (net.Listener, error)
}

// Server is the lifecycle of the public API server.
type Server interface {
	Start(listeners ListenerFactory) error
	// Stop drains in-flight calls until ctx expires, then closes them.
	Stop(ctx context.Context) error
	Address() string
}
