package router

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// The icmpType*/icmpCode* constants mirror the RFC 792 type/code pairs
// spec.md §4.3/§4.4 names explicitly.
const (
	icmpTypeEchoReply    = layers.ICMPv4TypeEchoReply
	icmpTypeEchoRequest  = layers.ICMPv4TypeEchoRequest
	icmpTypeDestUnreach  = layers.ICMPv4TypeDestinationUnreachable
	icmpTypeTimeExceeded = layers.ICMPv4TypeTimeExceeded

	icmpCodeNetUnreachable  = 0
	icmpCodeHostUnreachable = 1
	icmpCodePortUnreachable = 3
	icmpCodeTTLExceeded     = 0
)

// decodedFrame is the parsed view of one Ethernet frame the core dispatch
// loop needs; layers are nil when not present.
type decodedFrame struct {
	packet gopacket.Packet
	eth    *layers.Ethernet
	arp    *layers.ARP
	ip     *layers.IPv4
	icmp   *layers.ICMPv4
	tcp    *layers.TCP
}

func decodeFrame(frame []byte) (*decodedFrame, error) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	if err := packet.ErrorLayer(); err != nil {
		return nil, fmt.Errorf("router: decode error: %w", err.Error())
	}
	d := &decodedFrame{packet: packet}
	if l := packet.Layer(layers.LayerTypeEthernet); l != nil {
		d.eth = l.(*layers.Ethernet)
	}
	if l := packet.Layer(layers.LayerTypeARP); l != nil {
		d.arp = l.(*layers.ARP)
	}
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		d.ip = l.(*layers.IPv4)
	}
	if l := packet.Layer(layers.LayerTypeICMPv4); l != nil {
		d.icmp = l.(*layers.ICMPv4)
	}
	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		d.tcp = l.(*layers.TCP)
	}
	return d, nil
}

func ipToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

func uint32ToIP(v uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// serializeFrame rebuilds a frame with freshly computed checksums, used for
// every ICMP message and ARP request/reply the router originates and for
// every frame rebuildFrame re-serializes.
func serializeFrame(layersList ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, layersList...); err != nil {
		return nil, fmt.Errorf("router: serialize: %w", err)
	}
	return buf.Bytes(), nil
}
