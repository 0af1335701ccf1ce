package packet

import (
	"net"
	"net/netip"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

func mac(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	m, err := net.ParseMAC(s)
	if err != nil {
		t.Fatalf("bad MAC %q: %v", s, err)
	}
	return m
}

func TestBuildARPReply_RoundTrip(t *testing.T) {
	srcMAC := mac(t, "00:11:22:33:44:55")
	dstMAC := mac(t, "66:77:88:99:aa:bb")
	srcIP := netip.MustParseAddr("10.0.0.2")
	dstIP := netip.MustParseAddr("10.0.0.1")

	data, err := BuildARPReply(srcMAC, dstMAC, srcIP, dstIP)
	if err != nil {
		t.Fatalf("BuildARPReply: %v", err)
	}

	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if frame.EtherType != 0x0806 {
		t.Errorf("EtherType = %#x, want 0x0806", frame.EtherType)
	}
	if frame.ARP == nil {
		t.Fatal("ARP layer not decoded")
	}
	if frame.ARP.Op != ARPReply {
		t.Errorf("Op = %d, want %d", frame.ARP.Op, ARPReply)
	}
	if frame.ARP.SenderMAC.String() != srcMAC.String() {
		t.Errorf("SenderMAC = %s, want %s", frame.ARP.SenderMAC, srcMAC)
	}
	if frame.ARP.SenderIP != srcIP {
		t.Errorf("SenderIP = %s, want %s", frame.ARP.SenderIP, srcIP)
	}
	if frame.ARP.TargetIP != dstIP {
		t.Errorf("TargetIP = %s, want %s", frame.ARP.TargetIP, dstIP)
	}
}

func TestDecode_IPv4(t *testing.T) {
	eth := layers.Ethernet{
		SrcMAC:       mac(t, "00:00:00:00:00:01"),
		DstMAC:       mac(t, "00:00:00:00:00:02"),
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
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	frame, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !frame.IsIPv4 {
		t.Error("IsIPv4 = false, want true")
	}
	if frame.ARP != nil {
		t.Error("ARP should be nil for IPv4 frame")
	}
	if frame.SrcMAC.String() != "00:00:00:00:00:01" {
		t.Errorf("SrcMAC = %s", frame.SrcMAC)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error for truncated frame")
	}
}

func TestIsMulticast(t *testing.T) {
	tests := []struct {
		mac  string
		want bool
	}{
		{"ff:ff:ff:ff:ff:ff", true},
		{"01:00:5e:00:00:01", true},
		{"00:11:22:33:44:55", false},
		{"02:42:ac:11:00:02", false},
	}
	for _, tt := range tests {
		if got := IsMulticast(mac(t, tt.mac)); got != tt.want {
			t.Errorf("IsMulticast(%s) = %v, want %v", tt.mac, got, tt.want)
		}
	}
}
