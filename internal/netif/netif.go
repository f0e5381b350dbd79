// Package netif provisions the virtual network interface that captures the
// device's IP traffic, and hands ownership of it to the tunnel controller as
// an opaque handle.
package netif

import (
	"sync"

	"doh-vpn-gateway/internal/core"
)

// AddressPlan describes the interface the provisioner must establish. The
// values come from the fixed address scheme shared with the tunnel engine.
type AddressPlan struct {
	// Device is the requested device name ("" lets the kernel pick).
	Device string
	// Gateway is the interface's own address, e.g. "10.111.222.1".
	Gateway string
	// PrefixLen is the subnet prefix length (24 by convention).
	PrefixLen int
	// DNS is the fake resolver address routed into the interface.
	DNS string
	// MTU must match the tunnel engine's MTU.
	MTU int
	// ExcludeSelf requests that the gateway's own traffic bypass capture.
	ExcludeSelf bool
	// FwMark is the routing mark exempted from capture when self-exclusion
	// is done through policy routing. 0 means no exemption rule.
	FwMark int
}

// Provisioner establishes configured virtual interfaces. It stands in for
// the host OS's VPN provisioning API.
type Provisioner interface {
	// Establish creates and configures the interface. Any provisioning
	// failure (permissions, conflicting device) returns a nil handle and an
	// error; partial setup is rolled back.
	Establish(plan AddressPlan) (*Handle, error)

	// ExcludesSelfTraffic reports whether Establish honors
	// AddressPlan.ExcludeSelf without per-socket work. When false, the
	// explicit socket protector must be used instead.
	ExcludesSelfTraffic() bool
}

// Handle is the opaque descriptor for an established interface. It is owned
// exclusively by the tunnel controller and released exactly once.
type Handle struct {
	name string
	fd   int

	closeOnce sync.Once
	closeErr  error
	closeFn   func() error
}

// NewHandle wraps an established interface. closeFn releases the device and
// reverts any routing state; it runs at most once.
func NewHandle(name string, fd int, closeFn func() error) *Handle {
	return &Handle{name: name, fd: fd, closeFn: closeFn}
}

// Name returns the interface name.
func (h *Handle) Name() string { return h.name }

// Fd returns the device file descriptor handed to the tunnel engine. The
// handle retains ownership; callers must not close it.
func (h *Handle) Fd() int { return h.fd }

// Close releases the interface. The first call runs the release; later
// calls return the first call's result.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if h.closeFn != nil {
			h.closeErr = h.closeFn()
		}
		if h.closeErr != nil {
			core.Log.Warnf("NetIf", "Releasing %s: %v", h.name, h.closeErr)
		} else {
			core.Log.Infof("NetIf", "Released interface %s", h.name)
		}
	})
	return h.closeErr
}
