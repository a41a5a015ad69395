// Package link implements the external collaborators spec.md §6 treats as
// out of scope for the protocol cores: a datagram transport for conn_send,
// and application stdin/stdout piping for conn_input/conn_output.
package link

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// packetConn is the minimal transport both Endpoint and LossyConn need.
type packetConn interface {
	ReadFrom(buf []byte) (n int, raddr *net.UDPAddr, err error)
	WriteTo(buf []byte, dst *net.UDPAddr) (int, error)
	Close() error
}

// UDPConn is a thin IPv4 UDP socket wrapper, grounded on the control-message
// plumbing liveness.UDPConn sets up for its own transport. A point-to-point
// ctcp endpoint never needs to pin its outgoing interface or source address
// the way liveness.UDPConn.WriteTo does, so writes stay a plain net.UDPConn
// send; reads keep the ipv4.PacketConn path so a future multi-homed harness
// can recover which local address a datagram actually arrived on.
type UDPConn struct {
	raw *net.UDPConn
	pc4 *ipv4.PacketConn
}

// ListenUDP binds bindAddr ("ip:port") and returns a configured UDPConn.
func ListenUDP(bindAddr string) (*UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp4", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("link: resolve bind addr: %w", err)
	}
	raw, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("link: listen: %w", err)
	}
	pc4 := ipv4.NewPacketConn(raw)
	if err := pc4.SetControlMessage(ipv4.FlagDst, true); err != nil {
		return nil, fmt.Errorf("link: enabling control messages: %w", err)
	}
	return &UDPConn{raw: raw, pc4: pc4}, nil
}

// ReadFrom reads one datagram and the peer it arrived from.
func (u *UDPConn) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, _, raddr, err := u.pc4.ReadFrom(buf)
	if err != nil {
		return 0, nil, err
	}
	ua, _ := raddr.(*net.UDPAddr)
	return n, ua, nil
}

// WriteTo sends buf to dst.
func (u *UDPConn) WriteTo(buf []byte, dst *net.UDPAddr) (int, error) {
	return u.raw.WriteToUDP(buf, dst)
}

// Close closes the underlying socket.
func (u *UDPConn) Close() error { return u.raw.Close() }

// LocalAddr returns the bound local address.
func (u *UDPConn) LocalAddr() net.Addr { return u.raw.LocalAddr() }
