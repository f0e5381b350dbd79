// Package service wires the configuration store, the tunnel controller and
// the network-change monitor into a runnable gateway daemon.
package service

import (
	"doh-vpn-gateway/internal/core"
	"doh-vpn-gateway/internal/tunnel"
)

// Service orchestrates the gateway: it starts the tunnel, feeds resolver
// configuration changes and network changes into the controller, and tears
// everything down on stop.
type Service struct {
	cfg  *core.ConfigManager
	ctrl *tunnel.Controller
	bus  *core.EventBus
	mon  *NetworkMonitor
}

// New creates a Service. mon may be nil when network-change monitoring is
// unavailable.
func New(cfg *core.ConfigManager, ctrl *tunnel.Controller, bus *core.EventBus, mon *NetworkMonitor) *Service {
	return &Service{cfg: cfg, ctrl: ctrl, bus: bus, mon: mon}
}

// Start subscribes to config and network events and brings the tunnel up.
// A provisioning failure is returned to the caller; any later failure is
// reported through the event bus as a state change.
func (s *Service) Start() error {
	// A config reload may carry a new resolver URL; a network change means
	// the old transport's sockets may sit on a dead interface. Both funnel
	// into the same transport swap.
	s.bus.Subscribe(core.EventConfigReloaded, func(core.Event) {
		core.Log.Apply(s.cfg.Get().Logging)
		s.ctrl.UpdateDNS(s.cfg.GetResolverURL())
	})
	s.bus.Subscribe(core.EventNetworkChanged, func(core.Event) {
		core.Log.Infof("Service", "Network changed, refreshing DNS transport")
		s.ctrl.UpdateDNS(s.cfg.GetResolverURL())
	})

	if err := s.ctrl.Start(s.cfg.GetResolverURL()); err != nil {
		return err
	}

	if s.mon != nil {
		if err := s.mon.Start(); err != nil {
			core.Log.Warnf("Service", "Network monitor unavailable: %v", err)
		}
	}
	return nil
}

// Reload re-reads the config file. The resulting EventConfigReloaded drives
// the DNS transport swap.
func (s *Service) Reload() error {
	return s.cfg.Load()
}

// Stop shuts the monitor and the tunnel down. Safe to call more than once.
func (s *Service) Stop() {
	if s.mon != nil {
		s.mon.Stop()
	}
	s.ctrl.Close()
}
