// Package packet decodes the few frame shapes the controller reacts to
// (Ethernet, ARP, IPv4) and synthesizes proxy ARP replies.
package packet

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// ARPRequest and ARPReply are the ARP opcodes the controller handles.
const (
	ARPRequest uint16 = 1
	ARPReply   uint16 = 2
)

// ARP holds the sender/target fields of a decoded ARP packet.
type ARP struct {
	Op        uint16
	SenderMAC net.HardwareAddr
	SenderIP  netip.Addr
	TargetMAC net.HardwareAddr
	TargetIP  netip.Addr
}

// Frame is a decoded Ethernet frame. ARP is nil unless the payload decoded
// as ARP.
type Frame struct {
	SrcMAC    net.HardwareAddr
	DstMAC    net.HardwareAddr
	EtherType uint16
	ARP       *ARP
	IsIPv4    bool
}

// Decode parses an Ethernet frame. It fails only when the Ethernet header
// itself cannot be decoded; unknown payloads still yield a Frame so the
// engine can apply its default L2 handling.
func Decode(data []byte) (*Frame, error) {
	var (
		eth layers.Ethernet
		arp layers.ARP
		ip4 layers.IPv4
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &arp, &ip4)
	parser.IgnoreUnsupported = true

	decoded := make([]gopacket.LayerType, 0, 3)
	if err := parser.DecodeLayers(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if len(decoded) == 0 || decoded[0] != layers.LayerTypeEthernet {
		return nil, fmt.Errorf("frame has no ethernet header")
	}

	frame := &Frame{
		SrcMAC:    eth.SrcMAC,
		DstMAC:    eth.DstMAC,
		EtherType: uint16(eth.EthernetType),
	}
	for _, lt := range decoded[1:] {
		switch lt {
		case layers.LayerTypeARP:
			senderIP, _ := netip.AddrFromSlice(arp.SourceProtAddress)
			targetIP, _ := netip.AddrFromSlice(arp.DstProtAddress)
			frame.ARP = &ARP{
				Op:        arp.Operation,
				SenderMAC: net.HardwareAddr(arp.SourceHwAddress),
				SenderIP:  senderIP,
				TargetMAC: net.HardwareAddr(arp.DstHwAddress),
				TargetIP:  targetIP,
			}
		case layers.LayerTypeIPv4:
			frame.IsIPv4 = true
		}
	}
	return frame, nil
}

// IsMulticast reports whether the MAC has the group bit set. Broadcast
// frames satisfy this too.
func IsMulticast(mac net.HardwareAddr) bool {
	return len(mac) > 0 && mac[0]&1 == 1
}

// BuildARPReply serializes a unicast ARP reply answering on behalf of
// srcIP/srcMAC, addressed to dstIP/dstMAC.
func BuildARPReply(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP netip.Addr) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         ARPReply,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: srcIP.AsSlice(),
		DstHwAddress:      dstMAC,
		DstProtAddress:    dstIP.AsSlice(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, fmt.Errorf("serializing arp reply: %w", err)
	}
	return buf.Bytes(), nil
}
