//go:build linux

package service

import (
	"sync"
	"time"

	"github.com/vishvananda/netlink"

	"doh-vpn-gateway/internal/core"
	"doh-vpn-gateway/internal/netif"
)

// debounceWindow coalesces bursts of netlink updates (a single connectivity
// change produces many) into one EventNetworkChanged.
const debounceWindow = 2 * time.Second

// NetworkMonitor watches netlink link and route updates and publishes
// debounced EventNetworkChanged events. Updates caused by the gateway's own
// interface and routing table are ignored, so the transport refresh they
// trigger cannot feed back into itself.
type NetworkMonitor struct {
	bus          *core.EventBus
	ignoreDevice string

	stopOnce sync.Once
	done     chan struct{}
}

// NewNetworkMonitor creates a monitor. ignoreDevice is the gateway's own
// tun device name ("" to ignore nothing).
func NewNetworkMonitor(bus *core.EventBus, ignoreDevice string) *NetworkMonitor {
	return &NetworkMonitor{
		bus:          bus,
		ignoreDevice: ignoreDevice,
		done:         make(chan struct{}),
	}
}

// Start subscribes to netlink updates and begins watching.
func (m *NetworkMonitor) Start() error {
	linkCh := make(chan netlink.LinkUpdate, 16)
	if err := netlink.LinkSubscribe(linkCh, m.done); err != nil {
		return err
	}
	routeCh := make(chan netlink.RouteUpdate, 64)
	if err := netlink.RouteSubscribe(routeCh, m.done); err != nil {
		return err
	}

	go m.watch(linkCh, routeCh)
	core.Log.Infof("Service", "Network monitor started (ignoring device %q)", m.ignoreDevice)
	return nil
}

// Stop ends the subscriptions. Idempotent.
func (m *NetworkMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *NetworkMonitor) watch(linkCh <-chan netlink.LinkUpdate, routeCh <-chan netlink.RouteUpdate) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case u, ok := <-linkCh:
			if !ok {
				return
			}
			if u.Link != nil && u.Link.Attrs().Name == m.ignoreDevice {
				continue
			}
			timer.Reset(debounceWindow)

		case r, ok := <-routeCh:
			if !ok {
				return
			}
			if r.Route.Table == netif.RouteTable {
				continue
			}
			timer.Reset(debounceWindow)

		case <-timer.C:
			core.Log.Debugf("Service", "Connectivity change detected")
			m.bus.Publish(core.Event{Type: core.EventNetworkChanged})

		case <-m.done:
			return
		}
	}
}
