//go:build linux

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"doh-vpn-gateway/internal/core"
	"doh-vpn-gateway/internal/doh"
	"doh-vpn-gateway/internal/engine"
	"doh-vpn-gateway/internal/netif"
	"doh-vpn-gateway/internal/protect"
	"doh-vpn-gateway/internal/service"
	"doh-vpn-gateway/internal/tunnel"
)

// Build info — injected via ldflags at compile time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("doh-vpn-gateway %s (commit=%s, built=%s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("[Core] DoH VPN gateway %s starting...", version)

	// === 1. Core components ===
	bus := core.NewEventBus()

	cfgManager := core.NewConfigManager(*configPath, bus)
	if err := cfgManager.Load(); err != nil {
		log.Fatalf("[Core] Failed to load config: %v", err)
	}
	cfg := cfgManager.Get()
	core.Log.Apply(cfg.Logging)

	// === 2. Resolution path ===
	bootstrap := doh.NewBootstrapTable(cfg.Resolver.Bootstrap)
	provisioner := netif.NewProvisioner()

	// Protection capability: decided once, from what the provisioner can do.
	protector := protect.Select(provisioner.ExcludesSelfTraffic(), cfg.Tun.FwMark)
	builder := doh.NewBuilder(bootstrap, protector)

	// === 3. Tunnel controller ===
	excludeSelf := cfg.Tun.ExcludeSelf == nil || *cfg.Tun.ExcludeSelf
	ctrl := tunnel.New(tunnel.Config{
		Device:      cfg.Tun.Device,
		MTU:         cfg.Tun.MTU,
		ExcludeSelf: excludeSelf,
		FwMark:      cfg.Tun.FwMark,
	}, tunnel.Deps{
		Provisioner: provisioner,
		Builder:     builder,
		Engine:      engine.NewDNSGate(),
		Bus:         bus,
		Protector:   protector,
	})

	// === 4. Service wiring ===
	mon := service.NewNetworkMonitor(bus, cfg.Tun.Device)
	svc := service.New(cfgManager, ctrl, bus, mon)
	if err := svc.Start(); err != nil {
		log.Fatalf("[Core] Failed to start: %v", err)
	}

	// === 5. Signals ===
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			core.Log.Infof("Core", "SIGHUP: reloading configuration")
			if err := svc.Reload(); err != nil {
				core.Log.Errorf("Core", "Reload failed: %v", err)
			}
			continue
		}
		core.Log.Infof("Core", "Received %s, shutting down", sig)
		break
	}

	svc.Stop()
	log.Printf("[Core] DoH VPN gateway stopped")
}
