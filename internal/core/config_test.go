package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cm := NewConfigManager(path, nil)

	if err := cm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cm.GetResolverURL(); got != "https://dns.google/dns-query" {
		t.Errorf("default resolver URL = %q", got)
	}
	// The default file is persisted so the next run survives offline.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestConfigLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `resolver:
  url: https://cloudflare-dns.com/dns-query
  bootstrap:
    - url: https://cloudflare-dns.com/dns-query
      ips: ["1.1.1.1", "1.0.0.1"]
tun:
  device: doh0
  mtu: 1400
  fwmark: 100
logging:
  level: debug
  components:
    doh: warn
`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cm := NewConfigManager(path, nil)
	if err := cm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := cm.Get()
	if cfg.Resolver.URL != "https://cloudflare-dns.com/dns-query" {
		t.Errorf("resolver URL = %q", cfg.Resolver.URL)
	}
	if len(cfg.Resolver.Bootstrap) != 1 {
		t.Fatalf("bootstrap entries = %d, want 1", len(cfg.Resolver.Bootstrap))
	}
	if b := cfg.Resolver.Bootstrap[0]; b.URL != "https://cloudflare-dns.com/dns-query" ||
		len(b.IPs) != 2 || b.IPs[0] != "1.1.1.1" {
		t.Errorf("bootstrap entry = %+v", b)
	}
	if cfg.Tun.Device != "doh0" || cfg.Tun.MTU != 1400 || cfg.Tun.FwMark != 100 {
		t.Errorf("tun config = %+v", cfg.Tun)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Components["doh"] != "warn" {
		t.Errorf("logging config = %+v", cfg.Logging)
	}
}

func TestConfigLoadFillsMissingResolverURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tun:\n  device: doh0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cm := NewConfigManager(path, nil)
	if err := cm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cm.GetResolverURL(); got != "https://dns.google/dns-query" {
		t.Errorf("resolver URL = %q, want default", got)
	}
}

func TestConfigLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{{{this is not yaml"), 0644); err != nil {
		t.Fatal(err)
	}
	cm := NewConfigManager(path, nil)
	if err := cm.Load(); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

func TestConfigLoadPublishesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	bus := NewEventBus()
	reloads := 0
	bus.Subscribe(EventConfigReloaded, func(Event) { reloads++ })

	cm := NewConfigManager(path, bus)
	if err := cm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cm.SetResolverURL("https://dns9.quad9.net/dns-query")
	if reloads == 0 {
		t.Error("SetResolverURL did not publish EventConfigReloaded")
	}
	if got := cm.GetResolverURL(); got != "https://dns9.quad9.net/dns-query" {
		t.Errorf("resolver URL = %q", got)
	}
}

func TestConfigSaveLoadSymmetry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cm := NewConfigManager(path, nil)
	if err := cm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cm.SetResolverURL("https://dns.example/custom")
	if err := cm.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cm2 := NewConfigManager(path, nil)
	if err := cm2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := cm2.GetResolverURL(); got != "https://dns.example/custom" {
		t.Errorf("resolver URL after reload = %q", got)
	}
}
