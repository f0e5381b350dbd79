//go:build linux

package netif

import (
	"fmt"
	"net"
	"os"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"

	"doh-vpn-gateway/internal/core"
	"doh-vpn-gateway/internal/protect"
)

// RouteTable is the policy routing table holding the capture default route.
// Unmarked traffic is steered into it; sockets carrying the protection mark
// fall through to the main table and the physical uplink.
const RouteTable = 1222

// LinuxProvisioner establishes a TUN device and wires addressing and policy
// routing through netlink.
type LinuxProvisioner struct{}

// NewProvisioner returns the platform provisioner.
func NewProvisioner() *LinuxProvisioner {
	return &LinuxProvisioner{}
}

// ExcludesSelfTraffic is false on Linux: self-exclusion works through the
// fwmark escape hatch, which needs every gateway socket marked explicitly.
func (p *LinuxProvisioner) ExcludesSelfTraffic() bool { return false }

// Establish creates the TUN device, assigns the gateway address, sets the
// MTU, brings the link up, and installs the capture default route plus the
// fwmark exemption rule. On any failure the partial state is rolled back
// and a nil handle is returned.
func (p *LinuxProvisioner) Establish(plan AddressPlan) (*Handle, error) {
	cfg := water.Config{DeviceType: water.TUN}
	cfg.Name = plan.Device

	ifce, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create tun device: %w", err)
	}
	name := ifce.Name()

	file, ok := ifce.ReadWriteCloser.(*os.File)
	if !ok {
		ifce.Close()
		return nil, fmt.Errorf("tun device %s: backend does not expose a file descriptor", name)
	}

	rule, err := p.configure(name, plan)
	if err != nil {
		ifce.Close()
		return nil, err
	}

	closeFn := func() error {
		if rule != nil {
			if err := netlink.RuleDel(rule); err != nil {
				core.Log.Warnf("NetIf", "Removing policy rule for %s: %v", name, err)
			}
		}
		// The route table empties itself when the non-persistent device goes
		// away with its fd.
		return ifce.Close()
	}

	core.Log.Infof("NetIf", "Established %s (%s/%d, dns=%s, mtu=%d)",
		name, plan.Gateway, plan.PrefixLen, plan.DNS, plan.MTU)
	return NewHandle(name, int(file.Fd()), closeFn), nil
}

func (p *LinuxProvisioner) configure(name string, plan AddressPlan) (*netlink.Rule, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("lookup link %s: %w", name, err)
	}

	addr, err := netlink.ParseAddr(fmt.Sprintf("%s/%d", plan.Gateway, plan.PrefixLen))
	if err != nil {
		return nil, fmt.Errorf("parse gateway address %s/%d: %w", plan.Gateway, plan.PrefixLen, err)
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return nil, fmt.Errorf("assign %s to %s: %w", addr, name, err)
	}

	if plan.MTU > 0 {
		if err := netlink.LinkSetMTU(link, plan.MTU); err != nil {
			return nil, fmt.Errorf("set MTU %d on %s: %w", plan.MTU, name, err)
		}
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return nil, fmt.Errorf("bring up %s: %w", name, err)
	}

	// Capture default route in a dedicated table.
	_, defaultDst, _ := net.ParseCIDR("0.0.0.0/0")
	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       defaultDst,
		Table:     RouteTable,
	}
	if err := netlink.RouteAdd(route); err != nil {
		return nil, fmt.Errorf("add capture route via %s: %w", name, err)
	}

	// Unmarked traffic looks up the capture table; marked (protected)
	// sockets skip it and reach the physical uplink through main. The mark
	// must resolve the same way the socket protector resolves it.
	rule := netlink.NewRule()
	rule.Family = netlink.FAMILY_V4
	rule.Table = RouteTable
	rule.Priority = 2000
	if plan.ExcludeSelf {
		mark := plan.FwMark
		if mark == 0 {
			mark = protect.DefaultFwMark
		}
		rule.Mark = uint32(mark)
		rule.Mask = ptr(uint32(0xffffffff))
		rule.Invert = true
	}
	if err := netlink.RuleAdd(rule); err != nil {
		return nil, fmt.Errorf("add policy rule for %s: %w", name, err)
	}

	return rule, nil
}

func ptr[T any](v T) *T { return &v }
