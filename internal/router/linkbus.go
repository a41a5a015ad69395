package router

import (
	"fmt"
	"log/slog"
	"net"
)

// LinkBus is the non-pcap fallback transport for cmd/router: a single UDP
// socket carrying frames for every local interface multiplexed over one
// connection to a link-layer broker, the same role the course harness's
// sr_integration external link emulator plays for the VNS-based reference
// router. Each datagram is an interface name (length-prefixed) followed by
// one raw Ethernet frame.
type LinkBus struct {
	conn   *net.UDPConn
	peer   *net.UDPAddr
	logger *slog.Logger
}

// DialLinkBus opens a UDP socket bound to localAddr and addressed to the
// broker at brokerAddr.
func DialLinkBus(localAddr, brokerAddr string, logger *slog.Logger) (*LinkBus, error) {
	laddr, err := net.ResolveUDPAddr("udp4", localAddr)
	if err != nil {
		return nil, fmt.Errorf("router: resolving local link-bus address: %w", err)
	}
	raddr, err := net.ResolveUDPAddr("udp4", brokerAddr)
	if err != nil {
		return nil, fmt.Errorf("router: resolving link-bus broker address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("router: binding link-bus socket: %w", err)
	}
	return &LinkBus{conn: conn, peer: raddr, logger: logger}, nil
}

// Close releases the underlying socket.
func (b *LinkBus) Close() error { return b.conn.Close() }

// Send implements router.SendFunc: it envelopes frame with iface and writes
// it to the broker.
func (b *LinkBus) Send(frame []byte, iface string) error {
	if len(iface) > 255 {
		return fmt.Errorf("router: interface name %q too long for link-bus envelope", iface)
	}
	buf := make([]byte, 1+len(iface)+len(frame))
	buf[0] = uint8(len(iface))
	copy(buf[1:], iface)
	copy(buf[1+len(iface):], frame)
	_, err := b.conn.WriteToUDP(buf, b.peer)
	return err
}

// Run reads frames off the socket until it errors, decoding the envelope
// and handing (frame, iface) to deliver.
func (b *LinkBus) Run(deliver func(frame []byte, iface string) error) {
	buf := make([]byte, 64*1024)
	for {
		n, _, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			b.logger.Debug("router: link-bus receive loop exiting", "error", err)
			return
		}
		if n < 1 {
			continue
		}
		ifaceLen := int(buf[0])
		if n < 1+ifaceLen {
			b.logger.Warn("router: malformed link-bus envelope, dropping")
			continue
		}
		iface := string(buf[1 : 1+ifaceLen])
		frame := append([]byte(nil), buf[1+ifaceLen:n]...)
		if err := deliver(frame, iface); err != nil {
			b.logger.Warn("router: error handling frame", "error", err, "iface", iface)
		}
	}
}
