package core

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ResolverConfig holds the DoH resolver settings.
type ResolverConfig struct {
	// URL is the DoH resolver URL. Shorthand forms ("dns.google") are
	// accepted and expanded by the transport builder.
	URL string `yaml:"url"`
	// Bootstrap maps known resolver URLs to pre-resolved IPs, breaking the
	// circular dependency of resolving the resolver's own hostname.
	Bootstrap []BootstrapEntry `yaml:"bootstrap,omitempty"`
}

// BootstrapEntry is one pre-resolved resolver in the bootstrap table.
type BootstrapEntry struct {
	URL string   `yaml:"url"`
	IPs []string `yaml:"ips"`
}

// TunConfig holds virtual-interface settings.
type TunConfig struct {
	// Device is the TUN device name ("" lets the kernel pick).
	Device string `yaml:"device,omitempty"`
	// MTU for the interface. 0 means the default (1500), which must match
	// the tunnel engine's hardcoded MTU.
	MTU int `yaml:"mtu,omitempty"`
	// ExcludeSelf requests that the gateway's own traffic bypass the
	// interface. When the provisioner cannot honor it, sockets are
	// protected explicitly instead.
	ExcludeSelf *bool `yaml:"exclude_self,omitempty"`
	// FwMark is the routing mark used by the explicit socket protector.
	FwMark int `yaml:"fwmark,omitempty"`
}

// Config is the top-level gateway configuration.
type Config struct {
	Resolver ResolverConfig `yaml:"resolver"`
	Tun      TunConfig      `yaml:"tun,omitempty"`
	Logging  LogConfig      `yaml:"logging,omitempty"`
}

// defaultConfig returns an empty but valid configuration.
func defaultConfig() Config {
	return Config{
		Resolver: ResolverConfig{URL: "https://dns.google/dns-query"},
	}
}

// ConfigManager handles loading, saving, and hot-reloading configuration.
// It doubles as the resolver configuration store consumed by the service
// layer: GetResolverURL returns the current raw resolver URL.
type ConfigManager struct {
	mu       sync.RWMutex
	config   Config
	filePath string
	bus      *EventBus
}

// NewConfigManager creates a config manager that reads from the given file.
func NewConfigManager(filePath string, bus *EventBus) *ConfigManager {
	return &ConfigManager{
		filePath: filePath,
		bus:      bus,
	}
}

// Load reads and parses the configuration from disk.
// If the config file does not exist, it creates one with default values.
func (cm *ConfigManager) Load() error {
	data, err := os.ReadFile(cm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			Log.Infof("Core", "Config %s not found, creating default config", cm.filePath)
			cm.mu.Lock()
			cm.config = defaultConfig()
			cm.mu.Unlock()
			if saveErr := cm.Save(); saveErr != nil {
				return fmt.Errorf("[Core] failed to create default config: %w", saveErr)
			}
			return nil
		}
		return fmt.Errorf("[Core] failed to read config %s: %w", cm.filePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("[Core] failed to parse config: %w", err)
	}
	if cfg.Resolver.URL == "" {
		cfg.Resolver.URL = defaultConfig().Resolver.URL
	}

	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()

	if cm.bus != nil {
		cm.bus.Publish(Event{Type: EventConfigReloaded})
	}

	return nil
}

// Save writes the current configuration to disk.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	data, err := yaml.Marshal(&cm.config)
	cm.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("[Core] failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.filePath, data, 0644); err != nil {
		return fmt.Errorf("[Core] failed to write config %s: %w", cm.filePath, err)
	}

	return nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// GetResolverURL returns the configured raw resolver URL.
func (cm *ConfigManager) GetResolverURL() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.Resolver.URL
}

// SetResolverURL replaces the resolver URL and publishes EventConfigReloaded.
func (cm *ConfigManager) SetResolverURL(url string) {
	cm.mu.Lock()
	cm.config.Resolver.URL = url
	cm.mu.Unlock()

	if cm.bus != nil {
		cm.bus.Publish(Event{Type: EventConfigReloaded})
	}
}
