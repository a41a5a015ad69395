package ctcp

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Lam920/cs144-lab/pkg/dllist"
)

// GBNConn implements the go-back-N variant of spec.md §4.2: up to
// cfg.SendWindow bytes of unacknowledged data may be outstanding at once,
// and the receiver discards out-of-order data rather than buffering it.
type GBNConn struct {
	host Host
	cfg  Config
	reg  *Registry
	node *dllist.Node[Conn]

	mu sync.Mutex

	sendBase     uint32
	nextSeqno    uint32
	recvExpected uint32
	lastAckSent  uint32
	latestAckSeen uint32

	// outstanding holds segments oldest-first; seqno is monotonically
	// increasing across the slice.
	outstanding []outstandingSegment

	needResend bool
	eofSent    bool

	rtAttempts         int
	ticksSinceProgress int

	destroyed bool
}

// OpenGBN initializes go-back-N connection state and registers it.
func OpenGBN(host Host, cfg Config, reg *Registry) (*GBNConn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &GBNConn{
		host:          host,
		cfg:           cfg,
		reg:           reg,
		sendBase:      1,
		nextSeqno:     1,
		recvExpected:  1,
		lastAckSent:   1,
		latestAckSeen: 1,
	}
	c.node = reg.Add(c)
	cfg.Logger.Info("ctcp.gbn: connection opened", "timer", cfg.Timer, "rt_timeout", cfg.RTTimeout, "mss", cfg.MSS, "send_window", cfg.SendWindow)
	return c, nil
}

// Variant implements Conn.
func (c *GBNConn) Variant() string { return "gbn" }

// Read fills the send window: each call transmits one segment if there is
// room, otherwise defers until the window opens up.
func (c *GBNConn) Read() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed || c.eofSent {
		return nil
	}
	if c.nextSeqno-c.sendBase >= uint32(c.cfg.SendWindow) {
		return nil
	}

	buf := make([]byte, c.cfg.MSS)
	n, err := c.host.ConnInput(buf)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return err
		}
		seg := &Segment{Seqno: c.nextSeqno, Ackno: c.recvExpected, Flags: FlagFIN | FlagACK, Window: c.cfg.RecvWindow}
		wire := seg.Marshal()
		if sendErr := c.host.ConnSend(wire); sendErr != nil {
			c.cfg.Logger.Warn("ctcp.gbn: error sending FIN", "error", sendErr)
		}
		c.outstanding = append(c.outstanding, outstandingSegment{seqno: c.nextSeqno, bytes: wire, firstTx: time.Now()})
		c.eofSent = true
		metricSegmentsSent.WithLabelValues("gbn", "false").Inc()
		c.cfg.Logger.Debug("ctcp.gbn: sent FIN", "seqno", c.nextSeqno)
		return nil
	}
	if n == 0 {
		return nil
	}

	data := append([]byte(nil), buf[:n]...)
	seg := &Segment{Seqno: c.nextSeqno, Ackno: c.recvExpected, Flags: FlagACK, Window: c.cfg.RecvWindow, Data: data}
	wire := seg.Marshal()
	if err := c.host.ConnSend(wire); err != nil {
		c.cfg.Logger.Warn("ctcp.gbn: error sending segment", "error", err)
	}
	c.outstanding = append(c.outstanding, outstandingSegment{seqno: c.nextSeqno, bytes: wire, firstTx: time.Now()})
	c.nextSeqno += uint32(n)
	metricSegmentsSent.WithLabelValues("gbn", "false").Inc()
	c.cfg.Logger.Debug("ctcp.gbn: sent segment", "seqno", seg.Seqno, "len", n)
	return nil
}

// Receive processes one inbound datagram b.
func (c *GBNConn) Receive(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}

	if !Verify(b) {
		metricChecksumErrors.WithLabelValues("gbn").Inc()
		nak := &Segment{Seqno: 0, Ackno: 0, Flags: FlagACK}
		if err := c.host.ConnSend(nak.Marshal()); err != nil {
			c.cfg.Logger.Warn("ctcp.gbn: error sending sentinel NAK", "error", err)
		}
		c.cfg.Logger.Debug("ctcp.gbn: corrupt segment, sent sentinel NAK")
		return nil
	}
	seg, err := Unmarshal(b)
	if err != nil {
		return err
	}

	if seg.Flags&FlagFIN != 0 {
		ack := &Segment{Seqno: c.nextSeqno, Ackno: seg.Seqno, Flags: FlagACK, Window: c.cfg.RecvWindow}
		if err := c.host.ConnSend(ack.Marshal()); err != nil {
			c.cfg.Logger.Warn("ctcp.gbn: error acking FIN", "error", err)
		}
		c.host.ConnEOF()
		c.destroyLocked("fin")
		return nil
	}

	if seg.Seqno == 0 && seg.Ackno == 0 && IsPureAck(seg) {
		// Sentinel NAK: peer received a corrupted segment of ours.
		c.needResend = true
		return nil
	}

	if seg.Flags&FlagACK != 0 && len(seg.Data) > 0 {
		if seg.Seqno == c.recvExpected {
			if _, err := c.host.ConnOutput(seg.Data); err != nil {
				c.cfg.Logger.Warn("ctcp.gbn: error delivering data to application", "error", err)
			}
			c.recvExpected += uint32(len(seg.Data))
			c.lastAckSent = c.recvExpected
			ack := &Segment{Seqno: c.nextSeqno, Ackno: c.recvExpected, Flags: FlagACK, Window: c.cfg.RecvWindow}
			if err := c.host.ConnSend(ack.Marshal()); err != nil {
				c.cfg.Logger.Warn("ctcp.gbn: error sending ack", "error", err)
			}
		} else {
			// Out-of-order: discard and re-send the last in-order ack.
			ack := &Segment{Seqno: c.nextSeqno, Ackno: c.lastAckSent, Flags: FlagACK, Window: c.cfg.RecvWindow}
			if err := c.host.ConnSend(ack.Marshal()); err != nil {
				c.cfg.Logger.Warn("ctcp.gbn: error resending last ack", "error", err)
			}
			c.cfg.Logger.Debug("ctcp.gbn: out-of-order segment discarded", "seqno", seg.Seqno, "recv_expected", c.recvExpected)
		}
		return nil
	}

	// Pure ACK.
	if seg.Ackno == c.latestAckSeen && seg.Ackno > 1 {
		c.needResend = true
		return nil
	}
	c.latestAckSeen = seg.Ackno
	c.sendBase = seg.Ackno
	if c.sendBase == c.nextSeqno {
		c.rtAttempts = 0
		c.ticksSinceProgress = 0
		c.needResend = false
	}
	kept := c.outstanding[:0]
	for _, o := range c.outstanding {
		if o.seqno >= c.sendBase {
			kept = append(kept, o)
		}
	}
	c.outstanding = kept
	return nil
}

// Timer is invoked every cfg.Timer interval.
func (c *GBNConn) Timer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	if c.rtAttempts >= MaxRTAttempts {
		c.cfg.Logger.Warn("ctcp.gbn: retransmission budget exceeded, tearing down")
		c.destroyLocked("rt_attempts_exceeded")
		return
	}

	if len(c.outstanding) == 0 && !c.needResend {
		c.ticksSinceProgress = 0
		return
	}

	c.ticksSinceProgress++
	if c.ticksSinceProgress >= TicksToRetransmit {
		for _, o := range c.outstanding {
			if err := c.host.ConnSend(o.bytes); err != nil {
				c.cfg.Logger.Warn("ctcp.gbn: error retransmitting", "error", err, "seqno", o.seqno)
			}
			metricSegmentsSent.WithLabelValues("gbn", "true").Inc()
		}
		c.ticksSinceProgress = 0
		c.rtAttempts++
		c.needResend = false
		c.cfg.Logger.Debug("ctcp.gbn: retransmitted outstanding queue", "count", len(c.outstanding), "rt_attempts", c.rtAttempts)
	}
}

// Destroy tears the connection down and removes it from the registry.
func (c *GBNConn) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyLocked("external")
}

func (c *GBNConn) destroyLocked(reason string) {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.host.ConnRemove()
	c.reg.Remove(c.node)
	metricTeardowns.WithLabelValues("gbn", reason).Inc()
	c.cfg.Logger.Info("ctcp.gbn: connection destroyed", "reason", reason)
}
