// Package engine defines the tunnel engine consumed by the controller: an
// opaque capability that accepts a device file descriptor and a DNS
// transport and forwards packets. The packet-level NAT engine itself lives
// outside this repository; DNSGate is the built-in engine that handles only
// the fake-DNS path.
package engine

import (
	"time"

	"doh-vpn-gateway/internal/doh"
	"doh-vpn-gateway/internal/protect"
)

// Listener receives engine events. Delivery is best-effort; implementations
// must not block.
type Listener interface {
	// QueryCompleted is called once per DNS query answered (or failed)
	// through the live transport.
	QueryCompleted(server string, latency time.Duration, ok bool)

	// Stopped is called when the engine's processing loop exits on its own,
	// with the error that ended it. It is not called after Disconnect.
	Stopped(err error)
}

// Engine connects tunnel instances to an established interface.
type Engine interface {
	// Connect binds a new instance to the device fd. fakeDNS is the
	// "host:port" endpoint the engine intercepts for DNS. The fd remains
	// owned by the caller's interface handle.
	Connect(fd int, fakeDNS string, t doh.Transport, p protect.Protector, l Listener) (Instance, error)
}

// Instance is a running engine bound to one interface and one transport.
type Instance interface {
	// SetDNS atomically replaces the live DNS transport. The packet loop
	// observes either the old or the new transport, never a partial one.
	SetDNS(t doh.Transport) error

	// Disconnect stops the instance. Idempotent.
	Disconnect()
}
