package testutil

import (
	"net"
	"net/netip"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// MAC parses a MAC address or fails the test.
func MAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	m, err := net.ParseMAC(s)
	if err != nil {
		t.Fatalf("bad MAC %q: %v", s, err)
	}
	return m
}

// IPv4Frame builds an Ethernet+IPv4+UDP frame between two MACs.
func IPv4Frame(t *testing.T, srcMAC, dstMAC string) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       MAC(t, srcMAC),
		DstMAC:       MAC(t, dstMAC),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := layers.UDP{SrcPort: 4000, DstPort: 4001}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		t.Fatalf("udp checksum setup: %v", err)
	}
	return serialize(t, &eth, &ip, &udp)
}

// ARPRequest builds a broadcast ARP who-has frame.
func ARPRequest(t *testing.T, srcMAC, srcIP, targetIP string) []byte {
	t.Helper()
	src := MAC(t, srcMAC)
	eth := layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       MAC(t, "ff:ff:ff:ff:ff:ff"),
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         1,
		SourceHwAddress:   src,
		SourceProtAddress: netip.MustParseAddr(srcIP).AsSlice(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    netip.MustParseAddr(targetIP).AsSlice(),
	}
	return serialize(t, &eth, &arp)
}

// ARPReply builds a unicast ARP is-at frame.
func ARPReply(t *testing.T, srcMAC, srcIP, dstMAC, dstIP string) []byte {
	t.Helper()
	src := MAC(t, srcMAC)
	dst := MAC(t, dstMAC)
	eth := layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         2,
		SourceHwAddress:   src,
		SourceProtAddress: netip.MustParseAddr(srcIP).AsSlice(),
		DstHwAddress:      dst,
		DstProtAddress:    netip.MustParseAddr(dstIP).AsSlice(),
	}
	return serialize(t, &eth, &arp)
}

// LLDPFrame builds a minimal topology-discovery frame (ethertype 0x88cc).
func LLDPFrame(t *testing.T, srcMAC string) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       MAC(t, srcMAC),
		DstMAC:       MAC(t, "01:80:c2:00:00:0e"),
		EthernetType: layers.EthernetTypeLinkLayerDiscovery,
	}
	payload := gopacket.Payload(make([]byte, 8))
	return serialize(t, &eth, &payload)
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("serializing frame: %v", err)
	}
	return buf.Bytes()
}
