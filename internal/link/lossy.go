package link

import (
	"math/rand"
	"net"
	"sync"
)

// LossyConn decorates a packetConn with outbound packet drop, generalized
// from the soft-loss/hard-loss fault injection used to make liveness
// sessions flap under degraded links. It exists so tests can reproduce
// spec.md §8 scenario 2 (a lost ACK) deterministically instead of relying on
// a real flaky network.
type LossyConn struct {
	packetConn

	mu sync.Mutex

	rng     *rand.Rand
	dropPct float64 // [0,1], probabilistic drop applied to every WriteTo

	// dropNext, when > 0, unconditionally drops that many upcoming writes
	// regardless of dropPct, then decrements. Used for "drop exactly the
	// next ACK" style scenarios.
	dropNext int
}

// NewLossyConn wraps conn with no fault configured.
func NewLossyConn(conn packetConn, seed int64) *LossyConn {
	return &LossyConn{packetConn: conn, rng: rand.New(rand.NewSource(seed))}
}

// SetSoftLoss makes a fraction pct (0..1) of future writes silently drop.
func (c *LossyConn) SetSoftLoss(pct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropPct = pct
}

// SetHardLoss drops every future write until cleared.
func (c *LossyConn) SetHardLoss() { c.SetSoftLoss(1) }

// SetNoFault clears any configured probabilistic loss.
func (c *LossyConn) SetNoFault() { c.SetSoftLoss(0) }

// DropNext arranges for the next n writes to be unconditionally dropped.
func (c *LossyConn) DropNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropNext = n
}

// WriteTo drops the datagram (reporting success to the caller, exactly as a
// real unreliable link would) according to the configured fault, otherwise
// forwards to the wrapped connection.
func (c *LossyConn) WriteTo(buf []byte, dst *net.UDPAddr) (int, error) {
	c.mu.Lock()
	if c.dropNext > 0 {
		c.dropNext--
		c.mu.Unlock()
		return len(buf), nil
	}
	drop := c.dropPct > 0 && c.rng.Float64() < c.dropPct
	c.mu.Unlock()
	if drop {
		return len(buf), nil
	}
	return c.packetConn.WriteTo(buf, dst)
}
