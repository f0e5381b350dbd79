package doh

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/http2"

	"doh-vpn-gateway/internal/protect"
)

const (
	mimeDNSMessage = "application/dns-message"

	dialTimeout      = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	idleConnTimeout  = 2 * time.Minute

	// maxResponseBytes caps a DoH response body; a DNS message cannot
	// legitimately exceed 64 KiB.
	maxResponseBytes = 65535
)

// Transport is a configured DoH resolution path. Exactly one transport is
// live at a time; a superseded transport is dropped, never reused.
type Transport interface {
	// Query sends one DNS message and returns the response. The message ID
	// on the wire is zeroed per RFC 8484 and restored on the answer.
	Query(ctx context.Context, q *dns.Msg) (*dns.Msg, error)

	// URL returns the fully expanded resolver URL this transport targets.
	URL() string

	// Close drops idle connections. In-flight queries are unaffected.
	Close()
}

type transport struct {
	serverURL string
	hostname  string
	bootstrap []netip.Addr
	dialer    *net.Dialer
	client    *http.Client
	next      atomic.Uint32 // round-robin cursor over bootstrap IPs
}

// NewTransport constructs a DoH transport for a fully expanded resolver URL.
// bootstrap may be empty, in which case the resolver hostname is resolved
// through ordinary means. Every socket the transport opens goes through the
// protector's control hook.
func NewTransport(serverURL string, bootstrap []netip.Addr, p protect.Protector) (Transport, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("resolver URL %q: %w", serverURL, err)
	}
	if u.Scheme != "https" || u.Hostname() == "" {
		return nil, fmt.Errorf("resolver URL %q: not a qualified https URL", serverURL)
	}

	t := &transport{
		serverURL: serverURL,
		hostname:  u.Hostname(),
		bootstrap: bootstrap,
	}
	t.dialer = &net.Dialer{Timeout: dialTimeout}
	if p != nil {
		t.dialer.Control = p.Control
	}

	ht := &http.Transport{
		DialContext:           t.dialContext,
		TLSClientConfig:       &tls.Config{ServerName: t.hostname},
		TLSHandshakeTimeout:   handshakeTimeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConnsPerHost:   4,
		ExpectContinueTimeout: time.Second,
	}
	if err := http2.ConfigureTransport(ht); err != nil {
		return nil, fmt.Errorf("configure h2 for %q: %w", serverURL, err)
	}

	t.client = &http.Client{Transport: ht}
	return t, nil
}

// dialContext pins connections to the resolver onto bootstrap IPs when the
// table had an entry for it. Other hosts (redirects) dial normally.
func (t *transport) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || len(t.bootstrap) == 0 || !strings.EqualFold(host, t.hostname) {
		return t.dialer.DialContext(ctx, network, addr)
	}

	start := int(t.next.Add(1)-1) % len(t.bootstrap)
	var lastErr error
	for i := range t.bootstrap {
		ip := t.bootstrap[(start+i)%len(t.bootstrap)]
		conn, err := t.dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all %d bootstrap IPs for %s unreachable: %w", len(t.bootstrap), t.hostname, lastErr)
}

func (t *transport) Query(ctx context.Context, q *dns.Msg) (*dns.Msg, error) {
	id := q.Id
	q.Id = 0
	packed, err := q.Pack()
	q.Id = id
	if err != nil {
		return nil, fmt.Errorf("pack query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL, bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mimeDNSMessage)
	req.Header.Set("Accept", mimeDNSMessage)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("query %s: HTTP %d", t.serverURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", t.serverURL, err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", t.serverURL, maxResponseBytes)
	}

	ans := new(dns.Msg)
	if err := ans.Unpack(body); err != nil {
		return nil, fmt.Errorf("unpack response from %s: %w", t.serverURL, err)
	}
	ans.Id = id
	return ans, nil
}

func (t *transport) URL() string { return t.serverURL }

func (t *transport) Close() {
	t.client.CloseIdleConnections()
}
