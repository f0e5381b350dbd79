package tunnel

import (
	"fmt"
	"net"
	"strconv"
)

// The gateway and the tunnel engine must agree on the layout of the private
// network. By convention the final byte of each well-known address within
// the subnet is fixed.
const (
	// IPv4Template is the subnet template; the single placeholder takes a
	// LanIP slot value.
	IPv4Template = "10.111.222.%d"
	// PrefixLength of the interface subnet.
	PrefixLength = 24
	// InterfaceMTU must match the engine's hardcoded MTU.
	InterfaceMTU = 1500
	// DNSPort is the port of the fake DNS endpoint.
	DNSPort = 53
)

// LanIP enumerates the well-known address slots within the subnet.
type LanIP int

const (
	// Gateway is the interface's own address.
	Gateway LanIP = 1
	// Router is the engine-side router address.
	Router LanIP = 2
	// DNS is the fake resolver address the engine intercepts.
	DNS LanIP = 3
)

// Make substitutes the slot's fixed final byte into the subnet template.
func (ip LanIP) Make(template string) string {
	return fmt.Sprintf(template, int(ip))
}

// FakeDNSAddr returns the "host:port" endpoint the engine treats as the DNS
// server for the given subnet template.
func FakeDNSAddr(template string) string {
	return net.JoinHostPort(DNS.Make(template), strconv.Itoa(DNSPort))
}
