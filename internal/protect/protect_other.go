//go:build !linux

package protect

import "doh-vpn-gateway/internal/core"

// Explicit protection needs SO_MARK, which only exists on Linux. Elsewhere
// the provisioner is expected to exclude self-traffic itself.
func newExplicitProtector(int) Protector {
	core.Log.Warnf("Protect", "explicit socket protection unavailable on this platform, using null protector")
	return NullProtector{}
}
