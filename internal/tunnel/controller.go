// Package tunnel owns the lifecycle of the virtual interface, the DoH
// transport, and the tunnel engine instance, coordinating them under
// concurrent start/reconfigure/stop requests.
package tunnel

import (
	"errors"
	"sync"
	"time"

	"doh-vpn-gateway/internal/core"
	"doh-vpn-gateway/internal/doh"
	"doh-vpn-gateway/internal/engine"
	"doh-vpn-gateway/internal/netif"
	"doh-vpn-gateway/internal/protect"
)

// Config holds the controller's fixed parameters. Zero values fall back to
// the wire-contract constants shared with the engine.
type Config struct {
	// Device is the requested interface name ("" lets the kernel pick).
	Device string
	// Template is the subnet template (default IPv4Template).
	Template string
	// PrefixLen is the subnet prefix length (default PrefixLength).
	PrefixLen int
	// MTU for the interface (default InterfaceMTU).
	MTU int
	// ExcludeSelf requests self-traffic exclusion from the provisioner.
	ExcludeSelf bool
	// FwMark for the explicit protector's policy-routing escape hatch.
	FwMark int
}

// Deps are the controller's collaborators, injected at construction.
type Deps struct {
	Provisioner netif.Provisioner
	Builder     doh.TransportBuilder
	Engine      engine.Engine
	// Bus receives one EventTunnelStateChanged per state transition.
	Bus *core.EventBus
	// Protector overrides capability selection; nil selects from the
	// provisioner's self-exclusion capability.
	Protector protect.Protector
}

// The controller's state is a tagged union: an engine instance cannot exist
// without an interface handle, and a closed controller holds nothing.
type ctrlState interface {
	phase() core.TunnelState
}

type stUninitialized struct{}

type stEstablishing struct {
	handle *netif.Handle
}

type stConnected struct {
	handle    *netif.Handle
	inst      engine.Instance
	transport doh.Transport
}

type stFailing struct {
	handle *netif.Handle
}

type stClosed struct{}

func (stUninitialized) phase() core.TunnelState { return core.StateUninitialized }
func (*stEstablishing) phase() core.TunnelState { return core.StateEstablishing }
func (*stConnected) phase() core.TunnelState    { return core.StateConnected }
func (*stFailing) phase() core.TunnelState      { return core.StateFailing }
func (stClosed) phase() core.TunnelState        { return core.StateClosed }

// Controller drives the tunnel state machine. Start, UpdateDNS and Close
// are serialized by one mutex and each runs to completion; none is
// cancellable mid-flight. Bus handlers run under that lock and must not
// call back into the controller synchronously.
type Controller struct {
	mu    sync.Mutex
	state ctrlState

	cfg         Config
	provisioner netif.Provisioner
	builder     doh.TransportBuilder
	engine      engine.Engine
	protector   protect.Protector
	bus         *core.EventBus
}

// New creates a controller in the uninitialized state. The protection
// capability is selected here, once, from the provisioner's self-exclusion
// capability — never per call.
func New(cfg Config, deps Deps) *Controller {
	if cfg.Template == "" {
		cfg.Template = IPv4Template
	}
	if cfg.PrefixLen == 0 {
		cfg.PrefixLen = PrefixLength
	}
	if cfg.MTU == 0 {
		cfg.MTU = InterfaceMTU
	}

	p := deps.Protector
	if p == nil {
		p = protect.Select(deps.Provisioner.ExcludesSelfTraffic(), cfg.FwMark)
	}

	return &Controller{
		state:       stUninitialized{},
		cfg:         cfg,
		provisioner: deps.Provisioner,
		builder:     deps.Builder,
		engine:      deps.Engine,
		protector:   p,
		bus:         deps.Bus,
	}
}

// Protector returns the protection capability selected at construction.
func (c *Controller) Protector() protect.Protector { return c.protector }

// State returns the current lifecycle state.
func (c *Controller) State() core.TunnelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.phase()
}

// Start provisions the virtual interface and brings the tunnel up against
// the given resolver URL.
//
// A provisioning failure is returned synchronously; the controller never
// leaves the uninitialized state and no event fires, since no tunnel was
// ever created. Transport or engine failures are absorbed into the failing
// state (nil return, one event). Start is idempotent while an interface is
// already live, and a no-op after Close.
func (c *Controller) Start(resolverURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch st := c.state.(type) {
	case stClosed:
		core.Log.Warnf("Tunnel", "Start ignored: controller is closed")
		return nil
	case *stConnected, *stEstablishing:
		return nil
	case *stFailing:
		// The interface is still up; re-run the connect sequence on it.
		c.connectLocked(st.handle, resolverURL)
		return nil
	case stUninitialized:
		handle, err := c.provisioner.Establish(netif.AddressPlan{
			Device:      c.cfg.Device,
			Gateway:     Gateway.Make(c.cfg.Template),
			PrefixLen:   c.cfg.PrefixLen,
			DNS:         DNS.Make(c.cfg.Template),
			MTU:         c.cfg.MTU,
			ExcludeSelf: c.cfg.ExcludeSelf,
			FwMark:      c.cfg.FwMark,
		})
		if err != nil {
			return &ProvisioningError{Err: err}
		}
		if handle == nil {
			return &ProvisioningError{Err: errors.New("provisioner returned no handle")}
		}
		c.setState(&stEstablishing{handle: handle}, nil)
		c.connectLocked(handle, resolverURL)
		return nil
	default:
		return nil
	}
}

// UpdateDNS swaps the DNS transport in place, without touching the virtual
// interface. It is the entry point for both network-change and
// configuration-change events.
//
// A brand-new transport is built unconditionally — even when the URL has
// not changed — because the previous transport's sockets may sit on an
// interface that no longer exists and would block until a socket timeout.
// While failing (no live instance), it retries the full connect sequence.
func (c *Controller) UpdateDNS(resolverURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch st := c.state.(type) {
	case stUninitialized, stClosed:
		core.Log.Debugf("Tunnel", "UpdateDNS ignored in state %s", c.state.phase())
	case *stEstablishing:
		core.Log.Debugf("Tunnel", "UpdateDNS ignored while establishing")
	case *stFailing:
		// Creation may have failed because the resolver was unreachable;
		// this retry also picks up the new URL.
		c.connectLocked(st.handle, resolverURL)
	case *stConnected:
		t, err := c.builder.Build(resolverURL)
		if err != nil {
			c.tearDownInstance(st)
			c.failLocked(st.handle, &TransportBuildError{Err: err})
			return
		}
		if err := st.inst.SetDNS(t); err != nil {
			t.Close()
			c.tearDownInstance(st)
			c.failLocked(st.handle, &EngineConnectError{Err: err})
			return
		}
		old := st.transport
		st.transport = t
		old.Close()
		// Connected → Connected: no transition, no event.
	}
}

// Close disconnects any live engine instance and releases the interface
// handle exactly once, even if the disconnect fails. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var handle *netif.Handle
	switch st := c.state.(type) {
	case stClosed:
		return
	case *stConnected:
		c.tearDownInstance(st)
		handle = st.handle
	case *stEstablishing:
		handle = st.handle
	case *stFailing:
		handle = st.handle
	}

	if handle != nil {
		if err := handle.Close(); err != nil {
			// Logged, never escalated: cleanup must proceed regardless.
			cleanupErr := &IOCleanupError{Err: err}
			core.Log.Errorf("Tunnel", "%v", cleanupErr)
		}
	}

	c.setState(stClosed{}, nil)
}

// connectLocked runs the establishing sequence against an already
// provisioned interface: build the initial transport, connect the engine.
// Failures land in the failing state with the interface retained.
func (c *Controller) connectLocked(handle *netif.Handle, resolverURL string) {
	core.Log.Infof("Tunnel", "Connecting tunnel on %s (resolver=%s)", handle.Name(), resolverURL)

	t, err := c.builder.Build(resolverURL)
	if err != nil {
		c.failLocked(handle, &TransportBuildError{Err: err})
		return
	}

	inst, err := c.engine.Connect(handle.Fd(), FakeDNSAddr(c.cfg.Template), t, c.protector, c.listener())
	if err != nil {
		t.Close()
		c.failLocked(handle, &EngineConnectError{Err: err})
		return
	}

	c.setState(&stConnected{handle: handle, inst: inst, transport: t}, nil)
}

func (c *Controller) failLocked(handle *netif.Handle, err error) {
	core.Log.Errorf("Tunnel", "%v", err)
	c.setState(&stFailing{handle: handle}, err)
}

// tearDownInstance disconnects and discards the engine instance and its
// transport, leaving the handle to the caller.
func (c *Controller) tearDownInstance(st *stConnected) {
	st.inst.Disconnect()
	st.transport.Close()
}

// setState swaps the state and publishes one event per actual transition.
func (c *Controller) setState(next ctrlState, cause error) {
	old := c.state.phase()
	c.state = next
	if old == next.phase() {
		return
	}
	core.Log.Infof("Tunnel", "State %s -> %s", old, next.phase())
	if c.bus != nil {
		c.bus.Publish(core.Event{
			Type: core.EventTunnelStateChanged,
			Payload: core.TunnelStatePayload{
				OldState: old,
				NewState: next.phase(),
				Err:      cause,
			},
		})
	}
}

// listener adapts engine events onto the bus.
func (c *Controller) listener() engine.Listener {
	return &busListener{bus: c.bus}
}

type busListener struct {
	bus *core.EventBus
}

func (l *busListener) QueryCompleted(server string, latency time.Duration, ok bool) {
	if l.bus == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	l.bus.PublishAsync(core.Event{
		Type: core.EventQueryCompleted,
		Payload: core.QueryPayload{
			Server:    server,
			LatencyMs: latency.Milliseconds(),
			Status:    status,
		},
	})
}

func (l *busListener) Stopped(err error) {
	core.Log.Warnf("Tunnel", "Engine instance stopped on its own: %v", err)
}
