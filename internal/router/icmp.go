package router

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// sendARPRequest broadcasts an ARP request for ip out iface, used both for
// the first lookup miss in handleIP and for the sweeper's periodic retries.
func (r *Router) sendARPRequest(ip uint32, iface string) error {
	local := r.ifaces.ByName(iface)
	if local == nil {
		return fmt.Errorf("router: unknown interface %q", iface)
	}
	eth := &layers.Ethernet{
		SrcMAC:       local.MAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   local.MAC,
		SourceProtAddress: uint32ToIP(local.IP).To4(),
		DstHwAddress:      net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstProtAddress:    uint32ToIP(ip).To4(),
	}
	frame, err := serializeFrame(eth, arp)
	if err != nil {
		return err
	}
	return r.send(frame, iface)
}

// sendARPReply answers a request targeting local with the resolved mac for
// local's own IP.
func (r *Router) sendARPReply(local *Interface, dstMAC net.HardwareAddr, dstIP uint32) error {
	eth := &layers.Ethernet{SrcMAC: local.MAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   local.MAC,
		SourceProtAddress: uint32ToIP(local.IP).To4(),
		DstHwAddress:      dstMAC,
		DstProtAddress:    uint32ToIP(dstIP).To4(),
	}
	frame, err := serializeFrame(eth, arp)
	if err != nil {
		return err
	}
	metricARPRepliesSent.WithLabelValues(local.Name).Inc()
	return r.send(frame, local.Name)
}

// sendHostUnreachable is the ARPCache's escape hatch when a pending request
// exhausts its retries: an ICMP host-unreachable is sent to the source of
// every frame that had been queued against it.
func (r *Router) sendHostUnreachable(frame []byte, iface string) error {
	d, err := decodeFrame(frame)
	if err != nil || d.ip == nil {
		return nil
	}
	return r.sendICMPErrorRaw(d, iface, uint8(icmpTypeDestUnreach), icmpCodeHostUnreachable)
}

// sendICMPError builds and sends an ICMP type-3/type-11 error referencing
// the original packet in d, back out the ingress interface with that
// interface's IP as source (spec.md §4.3).
func (r *Router) sendICMPError(d *decodedFrame, iface string, icmpType, code uint8) error {
	return r.sendICMPErrorRaw(d, iface, icmpType, code)
}

func (r *Router) sendICMPErrorRaw(d *decodedFrame, iface string, icmpType, code uint8) error {
	local := r.ifaces.ByName(iface)
	if local == nil {
		return fmt.Errorf("router: unknown ingress interface %q", iface)
	}

	origHeader := d.ip.Contents
	origPayload := d.ip.Payload
	if len(origPayload) > 8 {
		origPayload = origPayload[:8]
	}
	icmpPayload := append(append([]byte(nil), origHeader...), origPayload...)

	srcMAC := local.MAC
	dstMAC := net.HardwareAddr(d.eth.SrcMAC)

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    uint32ToIP(local.IP),
		DstIP:    d.ip.SrcIP,
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(icmpType, code)}

	frame, err := serializeFrame(eth, ip, icmp, gopacket.Payload(icmpPayload))
	if err != nil {
		return err
	}
	return r.send(frame, iface)
}

// sendEchoReply answers an ICMP echo request addressed to a local
// interface, swapping src/dst and flipping type 8→0.
func (r *Router) sendEchoReply(d *decodedFrame, local *Interface) error {
	eth := &layers.Ethernet{SrcMAC: local.MAC, DstMAC: d.eth.SrcMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    d.ip.DstIP,
		DstIP:    d.ip.SrcIP,
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(uint8(icmpTypeEchoReply), 0),
		Id:       d.icmp.Id,
		Seq:      d.icmp.Seq,
	}
	frame, err := serializeFrame(eth, ip, icmp, gopacket.Payload(d.icmp.LayerPayload()))
	if err != nil {
		return err
	}
	return r.send(frame, local.Name)
}
