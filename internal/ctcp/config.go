package ctcp

import (
	"errors"
	"log/slog"
	"time"
)

// Default timings and sizing, per spec.md §4.1: Config.Validate fills these
// into zero-valued fields. OpenStopWait and OpenGBN validate their own copy
// of the Config; the caller's value is not modified.
const (
	DefaultTimer      = 40 * time.Millisecond
	DefaultRTTimeout  = 200 * time.Millisecond
	DefaultMSS        = MaxSegmentSize
	DefaultSendWindow = DefaultMSS
	DefaultRecvWindow = 4 * DefaultMSS

	// MaxRTAttempts is the retransmission budget of spec.md §3.2: once this
	// many retransmissions have been made without progress, the next Timer()
	// call tears the connection down.
	MaxRTAttempts = 5

	// TicksToRetransmit is the number of Timer() calls without progress
	// that triggers a retransmission (5 × 40ms ≈ 200ms, spec.md §4.1/§4.2).
	TicksToRetransmit = 5
)

// Config mirrors liveness.ManagerConfig: a plain struct with a Validate
// method that fills documented defaults and rejects invalid combinations.
type Config struct {
	Logger *slog.Logger

	// Timer is the interval between Timer() invocations.
	Timer time.Duration
	// RTTimeout is the retransmission timeout budget (informational; the
	// actual trigger is TicksToRetransmit consecutive Timer() calls).
	RTTimeout time.Duration
	// MSS caps the payload size of a single segment.
	MSS int
	// SendWindow bounds in-flight unacknowledged bytes for the GBN variant;
	// ignored by the stop-and-wait variant, which always behaves as if it
	// were MSS.
	SendWindow uint16
	// RecvWindow is advertised to the peer in every outgoing segment.
	RecvWindow uint16
}

// Validate fills zero-valued fields with their documented defaults and
// rejects out-of-range values.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Timer == 0 {
		c.Timer = DefaultTimer
	}
	if c.Timer < 0 {
		return errors.New("ctcp: timer must be greater than 0")
	}
	if c.RTTimeout == 0 {
		c.RTTimeout = DefaultRTTimeout
	}
	if c.RTTimeout < 0 {
		return errors.New("ctcp: rt_timeout must be greater than 0")
	}
	if c.MSS == 0 {
		c.MSS = DefaultMSS
	}
	if c.MSS < 0 || c.MSS > MaxSegmentSize {
		return errors.New("ctcp: mss out of range")
	}
	if c.SendWindow == 0 {
		c.SendWindow = uint16(c.MSS)
	}
	if c.RecvWindow == 0 {
		c.RecvWindow = DefaultRecvWindow
	}
	return nil
}
