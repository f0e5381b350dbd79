package doh

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// newTestTransport points a transport at an httptest TLS server, reusing the
// server's pre-trusted client so no real dialing or certificates are needed.
func newTestTransport(t *testing.T, srv *httptest.Server) *transport {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return &transport{
		serverURL: srv.URL,
		hostname:  u.Hostname(),
		client:    srv.Client(),
	}
}

func testQuery(id uint16) *dns.Msg {
	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	q.Id = id
	return q
}

func TestTransportQuery(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != mimeDNSMessage {
			t.Errorf("Content-Type = %q", ct)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
			return
		}
		q := new(dns.Msg)
		if err := q.Unpack(body); err != nil {
			t.Errorf("unpack query: %v", err)
			return
		}
		// The ID on the wire must be zero.
		if q.Id != 0 {
			t.Errorf("wire query ID = %d, want 0", q.Id)
		}
		ans := new(dns.Msg)
		ans.SetReply(q)
		rr, _ := dns.NewRR("example.com. 300 IN A 93.184.216.34")
		ans.Answer = append(ans.Answer, rr)
		packed, _ := ans.Pack()
		w.Header().Set("Content-Type", mimeDNSMessage)
		w.Write(packed)
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	q := testQuery(0x1234)

	ans, err := tr.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// The caller's ID is restored on both sides of the exchange.
	if q.Id != 0x1234 {
		t.Errorf("query ID mutated to %d", q.Id)
	}
	if ans.Id != 0x1234 {
		t.Errorf("answer ID = %d, want 0x1234", ans.Id)
	}
	if len(ans.Answer) != 1 {
		t.Fatalf("answer count = %d, want 1", len(ans.Answer))
	}
	a, ok := ans.Answer[0].(*dns.A)
	if !ok || a.A.String() != "93.184.216.34" {
		t.Errorf("answer = %v", ans.Answer[0])
	}
}

func TestTransportQueryHTTPError(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	if _, err := tr.Query(context.Background(), testQuery(1)); err == nil {
		t.Fatal("Query succeeded against HTTP 502")
	} else if !strings.Contains(err.Error(), "502") {
		t.Errorf("error %v does not name the status", err)
	}
}

func TestTransportQueryOversizedResponse(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", mimeDNSMessage)
		w.Write(make([]byte, maxResponseBytes+100))
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	if _, err := tr.Query(context.Background(), testQuery(1)); err == nil {
		t.Fatal("Query accepted an oversized response")
	}
}

func TestTransportQueryGarbageResponse(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", mimeDNSMessage)
		w.Write([]byte("this is not a dns message"))
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	if _, err := tr.Query(context.Background(), testQuery(1)); err == nil {
		t.Fatal("Query accepted a garbage response")
	}
}

func TestDialContextPinsBootstrapIPs(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	_, port, _ := net.SplitHostPort(ln.Addr().String())

	tr := &transport{
		hostname:  "resolver.invalid",
		bootstrap: []netip.Addr{netip.MustParseAddr("127.0.0.1")},
		dialer:    &net.Dialer{Timeout: 2 * time.Second},
	}

	// The hostname never resolves; the dial must be pinned to the
	// bootstrap IP for it to succeed.
	conn, err := tr.dialContext(context.Background(), "tcp", net.JoinHostPort("resolver.invalid", port))
	if err != nil {
		t.Fatalf("dialContext: %v", err)
	}
	conn.Close()
}

func TestDialContextFallsThroughBadIPs(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	_, port, _ := net.SplitHostPort(ln.Addr().String())

	// First IP is unroutable per RFC 5737; the dial must move on and land
	// on the live one.
	tr := &transport{
		hostname: "resolver.invalid",
		bootstrap: []netip.Addr{
			netip.MustParseAddr("192.0.2.1"),
			netip.MustParseAddr("127.0.0.1"),
		},
		dialer: &net.Dialer{Timeout: 2 * time.Second},
	}

	conn, err := tr.dialContext(context.Background(), "tcp", net.JoinHostPort("resolver.invalid", port))
	if err != nil {
		t.Fatalf("dialContext: %v", err)
	}
	conn.Close()
}

func TestNewTransportValidation(t *testing.T) {
	if _, err := NewTransport("http://dns.google/dns-query", nil, nil); err == nil {
		t.Error("accepted http scheme")
	}
	if _, err := NewTransport("https:///dns-query", nil, nil); err == nil {
		t.Error("accepted URL with no host")
	}
	tr, err := NewTransport("https://dns.google/dns-query", nil, nil)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if tr.URL() != "https://dns.google/dns-query" {
		t.Errorf("URL = %q", tr.URL())
	}
	tr.Close()
}
