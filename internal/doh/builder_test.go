package doh

import (
	"testing"

	"doh-vpn-gateway/internal/core"
	"doh-vpn-gateway/internal/protect"
)

func TestBuilderExpandsAndPins(t *testing.T) {
	table := NewBootstrapTable([]core.BootstrapEntry{
		{URL: "https://dns.google/dns-query", IPs: []string{"8.8.8.8"}},
	})
	b := NewBuilder(table, protect.NullProtector{})

	tr, err := b.Build("dns.google")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tr.Close()

	if tr.URL() != "https://dns.google/dns-query" {
		t.Errorf("URL = %q, want expanded canonical form", tr.URL())
	}
	if got := tr.(*transport).bootstrap; len(got) != 1 || got[0].String() != "8.8.8.8" {
		t.Errorf("bootstrap IPs = %v, want [8.8.8.8]", got)
	}
}

func TestBuilderUnknownResolverGetsNoPins(t *testing.T) {
	b := NewBuilder(NewBootstrapTable(nil), protect.NullProtector{})

	tr, err := b.Build("https://doh.unknown.example/dns-query")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tr.Close()

	if got := tr.(*transport).bootstrap; len(got) != 0 {
		t.Errorf("bootstrap IPs = %v, want none", got)
	}
}

func TestBuilderNeverCaches(t *testing.T) {
	b := NewBuilder(NewBootstrapTable(nil), protect.NullProtector{})

	t1, err := b.Build("dns.google")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer t1.Close()
	t2, err := b.Build("dns.google")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer t2.Close()

	if t1 == t2 {
		t.Error("identical URLs returned the same transport instance")
	}
}

func TestBuilderRejectsBadURL(t *testing.T) {
	b := NewBuilder(NewBootstrapTable(nil), protect.NullProtector{})
	if _, err := b.Build("http://plaintext.example"); err == nil {
		t.Error("accepted non-https resolver")
	}
}
