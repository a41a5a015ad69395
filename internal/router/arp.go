package router

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Lam920/cs144-lab/pkg/dllist"
)

const (
	arpEntryTTL      = 15 * time.Second
	arpRetryInterval = 1 * time.Second
	arpMaxRetries    = 5
	arpSweepInterval = 1 * time.Second
)

// QueuedFrame is one Ethernet frame deferred against a pending ARP request,
// holding enough context to re-send or bounce it once the request resolves
// or gives up (spec.md §3.4). Iface is the egress interface the resolved
// frame will be sent out once ARP succeeds; IngressIface is the interface
// the original packet arrived on, needed to bounce a host-unreachable back
// toward its true source rather than out the (unrelated) egress link.
type QueuedFrame struct {
	Frame        []byte
	Iface        string
	IngressIface string
}

type arpEntry struct {
	mac     net.HardwareAddr
	ip      uint32
	inserts time.Time
}

// pendingRequest is an ARP query awaiting reply, per the GLOSSARY.
type pendingRequest struct {
	ip        uint32
	sentCount int
	lastSent  time.Time
	queued    *dllist.List[QueuedFrame]
}

// ARPCache is the address-resolution table of spec.md §3.4/§4.4: a map of
// resolved entries plus a set of pending requests with queued packets. A
// plain sync.Mutex guards it — never a recursive mutex; see DESIGN.md for
// why the corpus's lock style was chosen over spec.md's original recursive
// mutex. The lock is never held across ConnSend/socket I/O (spec.md §5).
type ARPCache struct {
	mu      sync.Mutex
	log     *slog.Logger
	entries map[uint32]*arpEntry
	pending map[uint32]*pendingRequest

	// sendRequest broadcasts an ARP request for ip on iface.
	sendRequest func(ip uint32, iface string) error
	// sendHostUnreachable emits an ICMP host-unreachable to the original
	// sender of frame, which arrived on iface.
	sendHostUnreachable func(frame []byte, iface string) error
}

// NewARPCache constructs an empty cache wired to the router's send
// primitives.
func NewARPCache(log *slog.Logger, sendRequest func(ip uint32, iface string) error, sendHostUnreachable func(frame []byte, iface string) error) *ARPCache {
	return &ARPCache{
		log:                 log,
		entries:             make(map[uint32]*arpEntry),
		pending:             make(map[uint32]*pendingRequest),
		sendRequest:         sendRequest,
		sendHostUnreachable: sendHostUnreachable,
	}
}

// Lookup returns a resolved mac copy, or nil if unresolved.
func (c *ARPCache) Lookup(ip uint32) net.HardwareAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ip]
	if !ok {
		return nil
	}
	mac := make(net.HardwareAddr, len(e.mac))
	copy(mac, e.mac)
	return mac
}

// Insert upserts a resolved entry and, if a pending request existed for ip,
// returns its queued frames (already removed from the pending table) so the
// caller can flush them outside the lock.
func (c *ARPCache) Insert(ip uint32, mac net.HardwareAddr) []QueuedFrame {
	c.mu.Lock()
	entry := &arpEntry{mac: append(net.HardwareAddr(nil), mac...), ip: ip, inserts: time.Now()}
	c.entries[ip] = entry

	req, ok := c.pending[ip]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.pending, ip)
	var frames []QueuedFrame
	req.queued.Each(func(n *dllist.Node[QueuedFrame]) { frames = append(frames, n.Value) })
	c.mu.Unlock()
	return frames
}

// QueueRequest creates or appends to a pending request for ip. ingressIface
// is the interface the original frame arrived on, used only if the request
// ultimately times out and a host-unreachable must bounce back to it.
func (c *ARPCache) QueueRequest(ip uint32, frame []byte, iface, ingressIface string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.pending[ip]
	if !ok {
		req = &pendingRequest{ip: ip, queued: dllist.New[QueuedFrame]()}
		c.pending[ip] = req
	}
	req.queued.PushBack(QueuedFrame{Frame: append([]byte(nil), frame...), Iface: iface, IngressIface: ingressIface})
}

// DestroyRequest removes the pending request for ip, if any.
func (c *ARPCache) DestroyRequest(ip uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, ip)
}

// Sweep runs the background sweeper's single pass: request retry/timeout and
// resolved-entry expiry (spec.md §4.4). It is exported so Run's ticker loop
// and tests can both drive exactly one pass deterministically.
func (c *ARPCache) Sweep(now time.Time) {
	c.mu.Lock()
	var toUnreach []*pendingRequest
	var toRetry []retryTarget
	for ip, req := range c.pending {
		if now.Sub(req.lastSent) < arpRetryInterval {
			continue
		}
		if req.sentCount >= arpMaxRetries {
			delete(c.pending, ip)
			toUnreach = append(toUnreach, req)
			continue
		}
		req.sentCount++
		req.lastSent = now
		toRetry = append(toRetry, retryTarget{ip: req.ip, iface: firstIface(req)})
	}
	for ip, e := range c.entries {
		if now.Sub(e.inserts) > arpEntryTTL {
			delete(c.entries, ip)
		}
	}
	c.mu.Unlock()

	for _, t := range toRetry {
		if err := c.sendRequest(t.ip, t.iface); err != nil {
			c.log.Warn("router.arp: error sending arp request", "error", err)
		}
	}

	for _, req := range toUnreach {
		req.queued.Each(func(n *dllist.Node[QueuedFrame]) {
			if err := c.sendHostUnreachable(n.Value.Frame, n.Value.IngressIface); err != nil {
				c.log.Warn("router.arp: error sending host unreachable", "error", err)
			}
		})
		c.log.Info("router.arp: pending request exhausted retries, destroyed", "retries", arpMaxRetries)
	}
}

// retryTarget is one ARP request Sweep decided to re-send, collected under
// the lock and dispatched after release so the lock is held for the whole
// pass over c.pending, never across c.sendRequest's I/O.
type retryTarget struct {
	ip    uint32
	iface string
}

// firstIface reports the egress interface ARP requests should retry on,
// taken from the oldest queued frame (all frames queued against the same
// pending request share the same next-hop egress interface).
func firstIface(req *pendingRequest) string {
	front := req.queued.Front()
	if front == nil {
		return ""
	}
	return front.Value.Iface
}

// Run drives the sweeper on a 1-second ticker until ctx is canceled, the
// same ticker-goroutine-cancelled-by-context shape as
// liveness.Scheduler.Run(ctx).
func (c *ARPCache) Run(ctx context.Context) {
	t := time.NewTicker(arpSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Debug("router.arp: sweeper stopped", "reason", ctx.Err())
			return
		case now := <-t.C:
			c.Sweep(now)
		}
	}
}
