package core

// TunnelState represents the lifecycle state of the VPN tunnel.
// It is owned by the tunnel controller and mutated only through its
// operations; everyone else observes it via the event bus.
type TunnelState int

const (
	// StateUninitialized means no virtual interface has been provisioned yet.
	StateUninitialized TunnelState = iota
	// StateEstablishing means the interface exists and the tunnel is being
	// brought up (DoH transport build + engine connect in progress).
	StateEstablishing
	// StateConnected means the engine instance is running and forwarding.
	StateConnected
	// StateFailing means the interface is still up but there is no live
	// engine instance. Recoverable by a later UpdateDNS/Start.
	StateFailing
	// StateClosed means the interface has been released. Terminal.
	StateClosed
)

func (s TunnelState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateEstablishing:
		return "establishing"
	case StateConnected:
		return "connected"
	case StateFailing:
		return "failing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
