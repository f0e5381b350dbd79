// Package protect marks gateway-owned sockets as exempt from capture by the
// virtual interface, so resolver and tunnel traffic cannot loop back through
// the tunnel itself.
package protect

import "syscall"

// Protector is the socket protection capability. Implementations return a
// dialer Control hook applied to every outbound socket the DoH transport and
// tunnel engine open.
//
// The variant is chosen once per controller instance: when the interface
// provisioner can exclude the gateway's own traffic from capture, protection
// is unnecessary and the null variant is used.
type Protector interface {
	// Control is usable as net.Dialer.Control / net.ListenConfig.Control.
	// A nil return value means the socket needs no per-socket work.
	Control(network, address string, c syscall.RawConn) error
}

// NullProtector is the no-op variant for platforms where the interface
// already excludes the gateway process's own traffic.
type NullProtector struct{}

func (NullProtector) Control(string, string, syscall.RawConn) error { return nil }

// Select returns the protector appropriate for the provisioned interface.
// excludesSelf reports whether the provisioner established the interface
// with self-traffic exclusion; fwmark is the routing mark reserved for
// gateway-owned sockets.
func Select(excludesSelf bool, fwmark int) Protector {
	if excludesSelf {
		return NullProtector{}
	}
	return newExplicitProtector(fwmark)
}
