package router

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// SendFunc hands a fully-serialized Ethernet frame to the link for
// transmission out the named interface — the sr_send_packet primitive of
// spec.md §6.
type SendFunc func(frame []byte, iface string) error

// Router is the per-packet classifier of spec.md §4.3: it dispatches
// Ethernet/ARP/IP, performs routing-table lookup, drives ARP resolution,
// and emits ICMP as required. One Router instance is the runtime context
// spec.md §9 calls for in place of the original's global mutable state.
type Router struct {
	log    *slog.Logger
	ifaces *InterfaceSet
	routes *RouteTable
	arp    *ARPCache
	send   SendFunc

	nat           *NATTable
	natEnabled    bool
	internalIface string
}

// NewRouter wires a Router; the ARP cache's send callbacks are bound to this
// instance's own methods once it exists.
func NewRouter(log *slog.Logger, ifaces *InterfaceSet, routes *RouteTable, send SendFunc) *Router {
	r := &Router{log: log, ifaces: ifaces, routes: routes, send: send}
	r.arp = NewARPCache(log, r.sendARPRequest, r.sendHostUnreachable)
	return r
}

// EnableNAT turns on NAT translation: packets ingressing on internalIface
// are translated outbound (source rewritten to externalIP), and packets
// ingressing on any other interface are translated inbound.
func (r *Router) EnableNAT(externalIP uint32, internalIface string) {
	r.nat = NewNATTable(r.log, externalIP)
	r.natEnabled = true
	r.internalIface = internalIface
}

// Run starts the ARP and (if enabled) NAT background sweepers; it blocks
// until ctx is canceled.
func (r *Router) Run(ctx context.Context) {
	if r.natEnabled {
		go r.nat.Run(ctx)
	}
	r.arp.Run(ctx)
}

// HandlePacket is the sr_handlepacket equivalent: classify frame, received
// on iface, and react per spec.md §4.3.
func (r *Router) HandlePacket(frame []byte, iface string) error {
	d, err := decodeFrame(frame)
	if err != nil {
		metricPacketsDropped.WithLabelValues("decode_error").Inc()
		return nil
	}
	if d.eth == nil {
		metricPacketsDropped.WithLabelValues("no_ethernet_header").Inc()
		return nil
	}

	switch {
	case d.arp != nil:
		return r.handleARP(d, iface)
	case d.ip != nil:
		return r.handleIP(d, iface)
	default:
		metricPacketsDropped.WithLabelValues("unsupported_ethertype").Inc()
		return nil
	}
}

func (r *Router) handleARP(d *decodedFrame, iface string) error {
	targetIP := ipBytesToUint32(d.arp.DstProtAddress)
	senderIP := ipBytesToUint32(d.arp.SourceProtAddress)
	senderMAC := net.HardwareAddr(d.arp.SourceHwAddress)

	switch d.arp.Operation {
	case layers.ARPRequest:
		local := r.ifaces.ByIP(targetIP)
		if local == nil {
			metricPacketsDropped.WithLabelValues("arp_request_not_local").Inc()
			return nil
		}
		r.arp.Insert(senderIP, senderMAC)
		return r.sendARPReply(local, senderMAC, senderIP)

	case layers.ARPReply:
		frames := r.arp.Insert(senderIP, senderMAC)
		for _, qf := range frames {
			if err := r.forwardResolved(qf.Frame, qf.Iface, senderMAC); err != nil {
				r.log.Warn("router: error flushing queued frame", "error", err)
			}
		}
		return nil

	default:
		metricPacketsDropped.WithLabelValues("unsupported_arp_op").Inc()
		return nil
	}
}

func (r *Router) handleIP(d *decodedFrame, iface string) error {
	ip := d.ip

	if r.natEnabled {
		if err := r.applyNAT(d, iface); err != nil {
			metricPacketsDropped.WithLabelValues("nat_miss").Inc()
			return nil
		}
	}

	if ip.TTL <= 1 {
		metricICMPSent.WithLabelValues("time_exceeded").Inc()
		return r.sendICMPError(d, iface, uint8(icmpTypeTimeExceeded), icmpCodeTTLExceeded)
	}
	ip.TTL--

	if local := r.ifaces.ByIP(ipToUint32(ip.DstIP)); local != nil {
		if d.icmp != nil && d.icmp.TypeCode.Type() == icmpTypeEchoRequest {
			metricICMPSent.WithLabelValues("echo_reply").Inc()
			return r.sendEchoReply(d, local)
		}
		metricICMPSent.WithLabelValues("port_unreachable").Inc()
		return r.sendICMPError(d, iface, uint8(icmpTypeDestUnreach), icmpCodePortUnreachable)
	}

	route, ok := r.routes.Lookup(ipToUint32(ip.DstIP))
	if !ok {
		metricICMPSent.WithLabelValues("net_unreachable").Inc()
		return r.sendICMPError(d, iface, uint8(icmpTypeDestUnreach), icmpCodeNetUnreachable)
	}

	updated, err := rebuildFrame(d.eth, d)
	if err != nil {
		return err
	}

	nextHop := route.GW
	if nextHop == 0 {
		nextHop = ipToUint32(ip.DstIP)
	}
	if mac := r.arp.Lookup(nextHop); mac != nil {
		return r.forwardResolved(updated, route.Iface, mac)
	}

	r.arp.QueueRequest(nextHop, updated, route.Iface, iface)
	if err := r.sendARPRequest(nextHop, route.Iface); err != nil {
		r.log.Warn("router: error sending initial arp request", "error", err)
	}
	return nil
}

func (r *Router) applyNAT(d *decodedFrame, iface string) error {
	ip := d.ip
	typ, aux, flags := natClassify(d)

	if iface == r.internalIface {
		m := r.nat.TranslateOutbound(typ, ipToUint32(ip.SrcIP), aux, flags)
		rewriteOutbound(d, m)
		metricNATTranslations.WithLabelValues("outbound", natTypeLabel(typ)).Inc()
		return nil
	}
	if d.tcp != nil {
		// Inbound TCP is keyed by the external port it is addressed to.
		aux = uint16(d.tcp.DstPort)
	}
	m, err := r.nat.TranslateInbound(typ, aux, flags)
	if err != nil {
		return err
	}
	rewriteInbound(d, m)
	metricNATTranslations.WithLabelValues("inbound", natTypeLabel(typ)).Inc()
	return nil
}

func natTypeLabel(t NATType) string {
	if t == NATTypeTCP {
		return "tcp"
	}
	return "icmp"
}

func natClassify(d *decodedFrame) (NATType, uint16, TCPFlags) {
	if d.tcp != nil {
		return NATTypeTCP, uint16(d.tcp.SrcPort), TCPFlags{SYN: d.tcp.SYN, ACK: d.tcp.ACK, FIN: d.tcp.FIN}
	}
	if d.icmp != nil {
		return NATTypeICMP, uint16(d.icmp.Id), TCPFlags{}
	}
	return NATTypeICMP, 0, TCPFlags{}
}

func rewriteOutbound(d *decodedFrame, m Mapping) {
	d.ip.SrcIP = uint32ToIP(m.IPExt)
	if d.tcp != nil {
		d.tcp.SrcPort = layers.TCPPort(m.AuxExt)
	} else if d.icmp != nil {
		d.icmp.Id = m.AuxExt
	}
}

func rewriteInbound(d *decodedFrame, m Mapping) {
	d.ip.DstIP = uint32ToIP(m.IPInt)
	if d.tcp != nil {
		d.tcp.DstPort = layers.TCPPort(m.AuxInt)
	} else if d.icmp != nil {
		d.icmp.Id = m.AuxInt
	}
}

// forwardResolved rewrites Ethernet addressing on a raw frame and sends it
// out iface once dstMAC has been resolved.
func (r *Router) forwardResolved(frame []byte, iface string, dstMAC net.HardwareAddr) error {
	local := r.ifaces.ByName(iface)
	if local == nil {
		metricPacketsDropped.WithLabelValues("unknown_egress_iface").Inc()
		return fmt.Errorf("router: unknown egress interface %q", iface)
	}
	d, err := decodeFrame(frame)
	if err != nil {
		return err
	}
	eth := &layers.Ethernet{SrcMAC: local.MAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	out, err := rebuildFrame(eth, d)
	if err != nil {
		return err
	}
	metricPacketsForwarded.WithLabelValues(iface).Inc()
	return r.send(out, iface)
}

// rebuildFrame re-serializes eth plus d's IP(+ICMP/TCP) layers, recomputing
// checksums — used after TTL decrement, NAT rewriting, or re-addressing.
func rebuildFrame(eth *layers.Ethernet, d *decodedFrame) ([]byte, error) {
	ls := []gopacket.SerializableLayer{eth, d.ip}
	switch {
	case d.icmp != nil:
		ls = append(ls, d.icmp, gopacket.Payload(d.icmp.LayerPayload()))
	case d.tcp != nil:
		_ = d.tcp.SetNetworkLayerForChecksum(d.ip)
		ls = append(ls, d.tcp, gopacket.Payload(d.tcp.LayerPayload()))
	default:
		ls = append(ls, gopacket.Payload(d.ip.LayerPayload()))
	}
	return serializeFrame(ls...)
}

func ipBytesToUint32(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return ipToUint32(net.IP(b))
}
