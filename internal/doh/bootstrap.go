// Package doh builds and runs DNS-over-HTTPS resolution paths: the bootstrap
// table, resolver URL expansion, the transport itself, and the builder that
// assembles fresh transports for the tunnel controller.
package doh

import (
	"net/netip"

	"doh-vpn-gateway/internal/core"
)

// BootstrapTable maps known resolver URLs to pre-resolved IP sets. It is
// built once at startup and never mutated; a resolver absent from the table
// is a normal case and the transport falls back to ordinary name resolution.
type BootstrapTable struct {
	ips map[string][]netip.Addr
}

// NewBootstrapTable builds the table from config entries. Unparseable IPs
// are skipped with a warning rather than failing startup.
func NewBootstrapTable(entries []core.BootstrapEntry) *BootstrapTable {
	t := &BootstrapTable{ips: make(map[string][]netip.Addr, len(entries))}
	for _, e := range entries {
		var addrs []netip.Addr
		for _, raw := range e.IPs {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				core.Log.Warnf("DoH", "Bootstrap entry %q: skipping bad IP %q: %v", e.URL, raw, err)
				continue
			}
			addrs = append(addrs, addr)
		}
		if len(addrs) > 0 {
			t.ips[e.URL] = addrs
		}
	}
	return t
}

// Lookup returns the pre-resolved IPs for an exact resolver URL match, or
// nil when the URL is not in the table.
func (t *BootstrapTable) Lookup(url string) []netip.Addr {
	if t == nil {
		return nil
	}
	return t.ips[url]
}

// Len returns the number of resolvers in the table.
func (t *BootstrapTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ips)
}
