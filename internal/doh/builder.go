package doh

import (
	"fmt"

	"doh-vpn-gateway/internal/core"
	"doh-vpn-gateway/internal/protect"
)

// TransportBuilder builds DoH transports for the tunnel controller. It is
// safe to call repeatedly with different URLs while the tunnel runs.
type TransportBuilder interface {
	Build(rawURL string) (Transport, error)
}

// Builder is the production TransportBuilder: expand the URL, consult the
// bootstrap table, construct the transport. Every call produces a brand-new
// transport; nothing is cached and previously returned transports are never
// touched. Rebuilding even for an unchanged URL is deliberate: the old
// transport's sockets may sit on an interface that no longer exists and
// would block until a socket timeout.
type Builder struct {
	bootstrap *BootstrapTable
	protector protect.Protector
}

// NewBuilder creates a Builder. The protector is fixed for the builder's
// lifetime (capability selection happens once, at controller construction).
func NewBuilder(bootstrap *BootstrapTable, p protect.Protector) *Builder {
	return &Builder{bootstrap: bootstrap, protector: p}
}

// Build constructs a fresh transport for the given (possibly shorthand)
// resolver URL.
func (b *Builder) Build(rawURL string) (Transport, error) {
	serverURL, err := ExpandURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("expand resolver URL: %w", err)
	}

	ips := b.bootstrap.Lookup(serverURL)
	if len(ips) == 0 {
		core.Log.Debugf("DoH", "No bootstrap IPs for %s, relying on system resolution", serverURL)
	}

	t, err := NewTransport(serverURL, ips, b.protector)
	if err != nil {
		return nil, fmt.Errorf("construct transport: %w", err)
	}

	core.Log.Infof("DoH", "Built transport for %s (bootstrap IPs: %d)", serverURL, len(ips))
	return t, nil
}
