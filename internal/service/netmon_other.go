//go:build !linux

package service

import "doh-vpn-gateway/internal/core"

// NetworkMonitor is a no-op where netlink is unavailable; UpdateDNS can
// still be driven by SIGHUP config reloads.
type NetworkMonitor struct{}

func NewNetworkMonitor(*core.EventBus, string) *NetworkMonitor { return &NetworkMonitor{} }

func (m *NetworkMonitor) Start() error {
	core.Log.Warnf("Service", "Network change monitoring not supported on this platform")
	return nil
}

func (m *NetworkMonitor) Stop() {}
