// Package transport parameterizes the one stream-socket abstraction the
// coordinator and participant client share, over either TCP (the default,
// for cross-host use) or a Unix domain socket (single host). Unifying the
// two here avoids the near-duplicate accept/connect/teardown paths the
// reference implementation carries for AF_INET vs AF_UNIX.
package transport

import (
	"context"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Family selects the socket address family used for the coordinator's
// listening endpoint and the clients that dial it.
type Family string

const (
	// TCP binds/dials an AF_INET stream socket. This is the default.
	TCP Family = "tcp"
	// Unix binds/dials an AF_UNIX stream socket at a filesystem path.
	Unix Family = "unix"
)

// Endpoint describes where the coordinator listens and where clients dial.
type Endpoint struct {
	Family  Family
	Address string // host:port for TCP, filesystem path for Unix
}

func (e Endpoint) network() string {
	switch e.Family {
	case Unix:
		return "unix"
	default:
		return "tcp"
	}
}

// Listen creates the coordinator's listening endpoint. For a Unix endpoint,
// any stale socket file left over from an unclean previous run is removed
// first so bind doesn't fail with "address already in use".
func Listen(e Endpoint) (net.Listener, error) {
	if e.Family == Unix {
		if err := unix.Unlink(e.Address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("transport: removing stale socket %s: %w", e.Address, err)
		}
	}
	l, err := net.Listen(e.network(), e.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s %s: %w", e.network(), e.Address, err)
	}
	return l, nil
}

// Dial connects to the coordinator's endpoint, respecting ctx for cancellation.
func Dial(ctx context.Context, e Endpoint) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, e.network(), e.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s %s: %w", e.network(), e.Address, err)
	}
	return conn, nil
}

// Unbind removes the filesystem object backing a Unix endpoint. It is a
// no-op for TCP endpoints and idempotent for Unix ones.
func Unbind(e Endpoint) error {
	if e.Family != Unix {
		return nil
	}
	if err := unix.Unlink(e.Address); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("transport: unbind %s: %w", e.Address, err)
	}
	return nil
}
