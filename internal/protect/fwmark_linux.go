//go:build linux

package protect

import (
	"syscall"

	"golang.org/x/sys/unix"

	"doh-vpn-gateway/internal/core"
)

// DefaultFwMark is the routing mark applied to protected sockets when the
// config does not override it. Policy routing must carry a matching rule
// that steers marked traffic past the tun default route.
const DefaultFwMark = 0x16a

// FwmarkProtector tags each socket with SO_MARK so the kernel's policy
// routing sends it out the physical interface instead of the tun device.
type FwmarkProtector struct {
	mark int
}

func newExplicitProtector(fwmark int) Protector {
	if fwmark == 0 {
		fwmark = DefaultFwMark
	}
	return &FwmarkProtector{mark: fwmark}
}

// Mark returns the routing mark this protector applies.
func (p *FwmarkProtector) Mark() int { return p.mark }

// Control implements Protector. It runs on the raw fd before connect.
func (p *FwmarkProtector) Control(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_MARK, p.mark)
	})
	if err != nil {
		return err
	}
	if sockErr != nil {
		core.Log.Warnf("Protect", "SO_MARK(%#x) on %s socket to %s: %v", p.mark, network, address, sockErr)
		return sockErr
	}
	return nil
}
