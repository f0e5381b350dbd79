package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sys/unix"

	"doh-vpn-gateway/internal/core"
	"doh-vpn-gateway/internal/doh"
	"doh-vpn-gateway/internal/protect"
)

const (
	readBufSize  = 65535
	queryTimeout = 10 * time.Second
)

// DNSGate is the built-in engine. It intercepts UDP packets addressed to
// the fake DNS endpoint, resolves them through the live DoH transport, and
// writes crafted replies back to the device. All other traffic is dropped;
// full forwarding engines plug in behind the same Engine interface.
type DNSGate struct{}

// NewDNSGate returns the built-in DNS-only engine.
func NewDNSGate() *DNSGate {
	return &DNSGate{}
}

// Connect validates the fd and fake DNS endpoint and starts the packet loop.
func (g *DNSGate) Connect(fd int, fakeDNS string, t doh.Transport, p protect.Protector, l Listener) (Instance, error) {
	if t == nil {
		return nil, errors.New("nil DNS transport")
	}
	host, portStr, err := net.SplitHostPort(fakeDNS)
	if err != nil {
		return nil, fmt.Errorf("fake DNS endpoint %q: %w", fakeDNS, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil, fmt.Errorf("fake DNS endpoint %q: %w", fakeDNS, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("fake DNS endpoint %q: %w", fakeDNS, err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return nil, fmt.Errorf("device fd %d: %w", fd, err)
	}

	inst := &gateInstance{
		fd:       fd,
		fakeIP:   addr,
		fakePort: uint16(port),
		listener: l,
		done:     make(chan struct{}),
	}
	inst.transport.Store(&t)

	go inst.loop()
	core.Log.Infof("Engine", "DNS gate connected (fd=%d, fake DNS=%s, resolver=%s)", fd, fakeDNS, t.URL())
	return inst, nil
}

type gateInstance struct {
	fd       int
	fakeIP   netip.Addr
	fakePort uint16
	listener Listener

	// transport holds the live DoH transport. Swapped whole by SetDNS; the
	// packet loop loads it once per query.
	transport atomic.Pointer[doh.Transport]

	stopOnce sync.Once
	done     chan struct{}
}

// SetDNS implements Instance.
func (i *gateInstance) SetDNS(t doh.Transport) error {
	if t == nil {
		return errors.New("nil DNS transport")
	}
	select {
	case <-i.done:
		return errors.New("instance is disconnected")
	default:
	}
	i.transport.Store(&t)
	core.Log.Infof("Engine", "DNS transport replaced (resolver=%s)", t.URL())
	return nil
}

// Disconnect implements Instance.
func (i *gateInstance) Disconnect() {
	i.stopOnce.Do(func() {
		close(i.done)
		core.Log.Infof("Engine", "DNS gate disconnected")
	})
}

func (i *gateInstance) loop() {
	buf := make([]byte, readBufSize)
	for {
		n, err := unix.Read(i.fd, buf)
		select {
		case <-i.done:
			return
		default:
		}
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			core.Log.Warnf("Engine", "Device read failed: %v", err)
			if i.listener != nil {
				i.listener.Stopped(err)
			}
			return
		}
		if n <= 0 {
			continue
		}

		d, ok := parseIPv4UDP(buf[:n])
		if !ok || d.dst != i.fakeIP || d.dstPort != i.fakePort {
			continue // not ours; a forwarding engine would route this
		}

		q := make([]byte, len(d.payload))
		copy(q, d.payload)
		go i.answer(d.src, d.srcPort, q)
	}
}

// answer resolves one intercepted query and writes the reply packet with the
// fake DNS endpoint as its source, so the client sees a normal answer.
func (i *gateInstance) answer(client netip.Addr, clientPort uint16, raw []byte) {
	msg := new(dns.Msg)
	if err := msg.Unpack(raw); err != nil {
		core.Log.Debugf("Engine", "Dropping unparseable DNS query from %s: %v", client, err)
		return
	}

	t := *i.transport.Load()
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	start := time.Now()
	resp, err := t.Query(ctx, msg)
	latency := time.Since(start)

	if err != nil {
		core.Log.Warnf("Engine", "Query via %s failed: %v", t.URL(), err)
		resp = new(dns.Msg)
		resp.SetRcode(msg, dns.RcodeServerFailure)
	}
	if i.listener != nil {
		i.listener.QueryCompleted(t.URL(), latency, err == nil)
	}

	packed, perr := resp.Pack()
	if perr != nil {
		core.Log.Warnf("Engine", "Packing reply failed: %v", perr)
		return
	}

	pkt := buildIPv4UDP(i.fakeIP, client, i.fakePort, clientPort, packed)
	if _, werr := unix.Write(i.fd, pkt); werr != nil {
		core.Log.Debugf("Engine", "Writing reply to device failed: %v", werr)
	}
}
