package ctcp

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Lam920/cs144-lab/pkg/dllist"
)

// outstandingSegment tracks one unacknowledged segment, keyed by its
// starting seqno, with the wire bytes kept immutable so retransmission never
// mutates seqno, len, or checksum (spec.md §8's quantified invariant).
type outstandingSegment struct {
	seqno   uint32
	bytes   []byte
	firstTx time.Time
}

// StopWaitConn implements the stop-and-wait variant of spec.md §4.1: at most
// one segment in flight at a time.
type StopWaitConn struct {
	host Host
	cfg  Config
	reg  *Registry
	node *dllist.Node[Conn]

	mu sync.Mutex

	sendBase     uint32
	nextSeqno    uint32
	recvExpected uint32
	lastAckSent  uint32

	outstanding *outstandingSegment

	// eofSent marks that read() observed host EOF and transmitted FIN; the
	// FIN segment is then carried as the outstanding segment like any other
	// and can be retransmitted the same way.
	eofSent bool

	rtAttempts         int
	ticksSinceProgress int

	destroyed bool
}

// OpenStopWait initializes stop-and-wait connection state and registers it.
// It fills defaults into its own copy of cfg and forces that copy's
// SendWindow to MSS; the caller's Config is not modified.
func OpenStopWait(host Host, cfg Config, reg *Registry) (*StopWaitConn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.SendWindow = uint16(cfg.MSS)

	c := &StopWaitConn{
		host:         host,
		cfg:          cfg,
		reg:          reg,
		sendBase:     1,
		nextSeqno:    1,
		recvExpected: 1,
		lastAckSent:  1,
	}
	c.node = reg.Add(c)
	cfg.Logger.Info("ctcp.stopwait: connection opened", "timer", cfg.Timer, "rt_timeout", cfg.RTTimeout, "mss", cfg.MSS)
	return c, nil
}

// Variant implements Conn.
func (c *StopWaitConn) Variant() string { return "stopwait" }

// Read is invoked when the host has application input ready to send.
func (c *StopWaitConn) Read() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed || c.outstanding != nil || c.eofSent {
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
			c.cfg.Logger.Warn("ctcp.stopwait: error sending FIN", "error", sendErr)
		}
		c.outstanding = &outstandingSegment{seqno: c.nextSeqno, bytes: wire, firstTx: time.Now()}
		c.eofSent = true
		metricSegmentsSent.WithLabelValues("stopwait", "false").Inc()
		c.cfg.Logger.Debug("ctcp.stopwait: sent FIN", "seqno", c.nextSeqno)
		return nil
	}
	if n == 0 {
		return nil
	}

	data := append([]byte(nil), buf[:n]...)
	seg := &Segment{Seqno: c.nextSeqno, Ackno: c.recvExpected, Flags: FlagACK, Window: c.cfg.RecvWindow, Data: data}
	wire := seg.Marshal()
	if err := c.host.ConnSend(wire); err != nil {
		c.cfg.Logger.Warn("ctcp.stopwait: error sending segment", "error", err)
	}
	c.outstanding = &outstandingSegment{seqno: c.nextSeqno, bytes: wire, firstTx: time.Now()}
	c.nextSeqno += uint32(n)
	c.rtAttempts = 0
	c.ticksSinceProgress = 0
	metricSegmentsSent.WithLabelValues("stopwait", "false").Inc()
	c.cfg.Logger.Debug("ctcp.stopwait: sent segment", "seqno", seg.Seqno, "len", n)
	return nil
}

// Receive processes one inbound datagram b.
func (c *StopWaitConn) Receive(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}

	if !Verify(b) {
		metricChecksumErrors.WithLabelValues("stopwait").Inc()
		c.cfg.Logger.Debug("ctcp.stopwait: dropping segment with bad checksum")
		return nil
	}
	seg, err := Unmarshal(b)
	if err != nil {
		return err
	}

	if len(seg.Data) > 0 && seg.Seqno < c.recvExpected {
		// Duplicate already-delivered data; drop silently.
		return nil
	}

	if seg.Flags&FlagFIN != 0 {
		ack := &Segment{Seqno: c.nextSeqno, Ackno: seg.Seqno, Flags: FlagACK, Window: c.cfg.RecvWindow}
		if err := c.host.ConnSend(ack.Marshal()); err != nil {
			c.cfg.Logger.Warn("ctcp.stopwait: error acking FIN", "error", err)
		}
		c.host.ConnEOF()
		c.destroyLocked("fin")
		return nil
	}

	if IsPureAck(seg) {
		if c.outstanding != nil {
			end := c.outstanding.seqno + uint32(len(c.outstanding.bytes)-HeaderLen)
			if seg.Ackno >= end {
				c.sendBase = end
				c.outstanding = nil
				c.rtAttempts = 0
				c.ticksSinceProgress = 0
			}
		}
		return nil
	}

	if seg.Seqno == c.recvExpected && len(seg.Data) > 0 {
		if _, err := c.host.ConnOutput(seg.Data); err != nil {
			c.cfg.Logger.Warn("ctcp.stopwait: error delivering data to application", "error", err)
		}
		c.recvExpected += uint32(len(seg.Data))
		c.lastAckSent = c.recvExpected
		ack := &Segment{Seqno: c.nextSeqno, Ackno: c.recvExpected, Flags: FlagACK, Window: c.cfg.RecvWindow}
		if err := c.host.ConnSend(ack.Marshal()); err != nil {
			c.cfg.Logger.Warn("ctcp.stopwait: error sending ack", "error", err)
		}
	}
	return nil
}

// Timer is invoked every cfg.Timer interval.
func (c *StopWaitConn) Timer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	if c.rtAttempts >= MaxRTAttempts {
		c.cfg.Logger.Warn("ctcp.stopwait: retransmission budget exceeded, tearing down")
		c.destroyLocked("rt_attempts_exceeded")
		return
	}
	if c.outstanding == nil {
		c.ticksSinceProgress = 0
		return
	}
	c.ticksSinceProgress++
	if c.ticksSinceProgress >= TicksToRetransmit {
		if err := c.host.ConnSend(c.outstanding.bytes); err != nil {
			c.cfg.Logger.Warn("ctcp.stopwait: error retransmitting", "error", err)
		}
		c.rtAttempts++
		c.ticksSinceProgress = 0
		metricSegmentsSent.WithLabelValues("stopwait", "true").Inc()
		c.cfg.Logger.Debug("ctcp.stopwait: retransmitted segment", "seqno", c.outstanding.seqno, "rt_attempts", c.rtAttempts)
	}
}

// Destroy tears the connection down and removes it from the registry.
func (c *StopWaitConn) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyLocked("external")
}

func (c *StopWaitConn) destroyLocked(reason string) {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.host.ConnRemove()
	c.reg.Remove(c.node)
	metricTeardowns.WithLabelValues("stopwait", reason).Inc()
	c.cfg.Logger.Info("ctcp.stopwait: connection destroyed", "reason", reason)
}
