package engine

import (
	"encoding/binary"
	"net/netip"
)

// udpDatagram is a parsed IPv4/UDP packet, the only shape the DNS gate
// cares about.
type udpDatagram struct {
	src     netip.Addr
	dst     netip.Addr
	srcPort uint16
	dstPort uint16
	payload []byte
}

const (
	ipv4MinHeaderLen = 20
	udpHeaderLen     = 8
	protoUDP         = 17
)

// parseIPv4UDP extracts a UDP datagram from a raw IPv4 packet. Returns
// false for anything else (IPv6, fragments, non-UDP, truncated).
func parseIPv4UDP(pkt []byte) (udpDatagram, bool) {
	var d udpDatagram
	if len(pkt) < ipv4MinHeaderLen {
		return d, false
	}
	if pkt[0]>>4 != 4 {
		return d, false
	}
	ihl := int(pkt[0]&0x0f) * 4
	if ihl < ipv4MinHeaderLen || len(pkt) < ihl+udpHeaderLen {
		return d, false
	}
	// More-fragments set or nonzero offset.
	if frag := binary.BigEndian.Uint16(pkt[6:8]); frag&0x3fff != 0 {
		return d, false
	}
	if pkt[9] != protoUDP {
		return d, false
	}

	totalLen := int(binary.BigEndian.Uint16(pkt[2:4]))
	if totalLen > len(pkt) || totalLen < ihl+udpHeaderLen {
		return d, false
	}

	udp := pkt[ihl:totalLen]
	udpLen := int(binary.BigEndian.Uint16(udp[4:6]))
	if udpLen < udpHeaderLen || udpLen > len(udp) {
		return d, false
	}

	d.src = netip.AddrFrom4([4]byte(pkt[12:16]))
	d.dst = netip.AddrFrom4([4]byte(pkt[16:20]))
	d.srcPort = binary.BigEndian.Uint16(udp[0:2])
	d.dstPort = binary.BigEndian.Uint16(udp[2:4])
	d.payload = udp[udpHeaderLen:udpLen]
	return d, true
}

// buildIPv4UDP assembles an IPv4/UDP packet. The UDP checksum is left zero,
// which IPv4 permits.
func buildIPv4UDP(src, dst netip.Addr, srcPort, dstPort uint16, payload []byte) []byte {
	total := ipv4MinHeaderLen + udpHeaderLen + len(payload)
	pkt := make([]byte, total)

	pkt[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(pkt[2:4], uint16(total))
	pkt[6] = 0x40 // don't fragment
	pkt[8] = 64   // TTL
	pkt[9] = protoUDP
	s4 := src.As4()
	d4 := dst.As4()
	copy(pkt[12:16], s4[:])
	copy(pkt[16:20], d4[:])
	binary.BigEndian.PutUint16(pkt[10:12], ipv4Checksum(pkt[:ipv4MinHeaderLen]))

	udp := pkt[ipv4MinHeaderLen:]
	binary.BigEndian.PutUint16(udp[0:2], srcPort)
	binary.BigEndian.PutUint16(udp[2:4], dstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpHeaderLen+len(payload)))
	copy(udp[udpHeaderLen:], payload)

	return pkt
}

func ipv4Checksum(hdr []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(hdr); i += 2 {
		if i == 10 {
			continue // checksum field itself
		}
		sum += uint32(binary.BigEndian.Uint16(hdr[i : i+2]))
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}
