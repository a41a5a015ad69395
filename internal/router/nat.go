package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// NATType discriminates the two multiplexed protocols NAT tracks.
type NATType int

const (
	NATTypeICMP NATType = iota
	NATTypeTCP
)

// TCPState is the minimal per-mapping connection state inferred from
// observed SYN/ACK/FIN flags, supplementing the distilled spec per its own
// design note (§9) so the differentiated established/transitory timeouts
// are actually reachable instead of always falling back to the conservative
// one.
type TCPState int

const (
	TCPStateNone TCPState = iota
	TCPStateSynSent
	TCPStateEstablished
	TCPStateFinWait
	TCPStateClosed
)

const (
	natPortMin = 1024
	natPortMax = 65535

	natICMPTimeout        = 60 * time.Second
	natTCPEstablishedIdle = 7440 * time.Second
	natTCPTransitoryIdle  = 300 * time.Second
	natSweepInterval      = 1 * time.Second
)

// natKey identifies a mapping from the internal side.
type natKey struct {
	typ    NATType
	ipInt  uint32
	auxInt uint16
}

// Mapping is one NAT table entry (spec.md §3.5). Fields are copied out to
// callers by value. A mapping records no per-peer connection set.
type Mapping struct {
	Type        NATType
	IPInt       uint32
	AuxInt      uint16
	IPExt       uint32
	AuxExt      uint16
	LastUpdated time.Time
	TCPState    TCPState
}

// NATTable implements the endpoint-independent mapping of spec.md §3.5/§4.5.
// A plain sync.Mutex guards it (see ARPCache's doc comment for why not a
// recursive mutex); lookups and inserts hold it for the duration of their
// work and return deep copies, matching spec.md §4.5's stated contract even
// without a recursive lock, since this table's own methods never call back
// into each other while holding it.
type NATTable struct {
	mu  sync.Mutex
	log *slog.Logger

	byInternal map[natKey]*Mapping
	byExternal map[natKey]*Mapping // aux-keyed, ipInt/auxInt unused

	externalIP uint32
	nextPort   uint16
}

var ErrNATMiss = errors.New("router: nat: no mapping for inbound packet")

// NewNATTable constructs an empty table for the given external interface IP.
func NewNATTable(log *slog.Logger, externalIP uint32) *NATTable {
	return &NATTable{
		log:        log,
		byInternal: make(map[natKey]*Mapping),
		byExternal: make(map[natKey]*Mapping),
		externalIP: externalIP,
		nextPort:   natPortMin,
	}
}

// TranslateOutbound looks up (or creates) the mapping for a packet leaving
// the internal interface, updates its state from observed TCP flags, and
// returns a copy of the resulting mapping.
func (t *NATTable) TranslateOutbound(typ NATType, ipInt uint32, auxInt uint16, flags TCPFlags) Mapping {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := natKey{typ: typ, ipInt: ipInt, auxInt: auxInt}
	m, ok := t.byInternal[key]
	if !ok {
		auxExt := t.allocatePortLocked(typ)
		m = &Mapping{Type: typ, IPInt: ipInt, AuxInt: auxInt, IPExt: t.externalIP, AuxExt: auxExt}
		t.byInternal[key] = m
		t.byExternal[natKey{typ: typ, auxInt: auxExt}] = m
	}
	m.LastUpdated = time.Now()
	if typ == NATTypeTCP {
		m.TCPState = nextTCPState(m.TCPState, flags)
	}
	return *m
}

// TranslateInbound looks up the mapping for a packet arriving from outside
// addressed to (auxExt, typ). ErrNATMiss is returned on miss, per spec.md
// §4.5's "on miss, drop."
func (t *NATTable) TranslateInbound(typ NATType, auxExt uint16, flags TCPFlags) (Mapping, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.byExternal[natKey{typ: typ, auxInt: auxExt}]
	if !ok {
		return Mapping{}, ErrNATMiss
	}
	m.LastUpdated = time.Now()
	if typ == NATTypeTCP {
		m.TCPState = nextTCPState(m.TCPState, flags)
	}
	return *m, nil
}

// allocatePortLocked draws the next external port with wrap-and-probe on
// collision (spec.md §3.5). Caller must hold t.mu.
func (t *NATTable) allocatePortLocked(typ NATType) uint16 {
	start := t.nextPort
	for {
		candidate := t.nextPort
		t.nextPort++
		if t.nextPort == 0 || t.nextPort > natPortMax {
			t.nextPort = natPortMin
		}
		if _, taken := t.byExternal[natKey{typ: typ, auxInt: candidate}]; !taken {
			return candidate
		}
		if t.nextPort == start {
			// Exhausted the entire port space; caller will overwrite an
			// arbitrary mapping rather than loop forever.
			return candidate
		}
	}
}

// TCPFlags is the minimal subset of TCP control bits NAT inspects to
// maintain per-mapping connection state.
type TCPFlags struct {
	SYN, ACK, FIN bool
}

func nextTCPState(cur TCPState, f TCPFlags) TCPState {
	switch {
	case f.FIN:
		return TCPStateFinWait
	case f.SYN && !f.ACK:
		return TCPStateSynSent
	case cur == TCPStateSynSent && f.ACK:
		return TCPStateEstablished
	case cur == TCPStateNone:
		return TCPStateEstablished
	default:
		return cur
	}
}

func idleTimeout(m *Mapping) time.Duration {
	switch m.Type {
	case NATTypeICMP:
		return natICMPTimeout
	case NATTypeTCP:
		if m.TCPState == TCPStateEstablished {
			return natTCPEstablishedIdle
		}
		return natTCPTransitoryIdle
	default:
		return natTCPTransitoryIdle
	}
}

// Sweep drops mappings idle past their type/state-specific timeout
// (spec.md §4.5's timeout sweeper).
func (t *NATTable) Sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, m := range t.byInternal {
		if now.Sub(m.LastUpdated) > idleTimeout(m) {
			delete(t.byInternal, k)
			delete(t.byExternal, natKey{typ: m.Type, auxInt: m.AuxExt})
		}
	}
}

// Run drives the sweeper on a 1-second ticker until ctx is canceled.
func (t *NATTable) Run(ctx context.Context) {
	ticker := time.NewTicker(natSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.log.Debug("router.nat: sweeper stopped", "reason", ctx.Err())
			return
		case now := <-ticker.C:
			t.Sweep(now)
		}
	}
}
