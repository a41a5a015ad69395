package router

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strings"
)

// Route is one routing-table entry: {dest, mask, gw, iface}.
type Route struct {
	Dest  uint32
	Mask  uint32
	GW    uint32
	Iface string
}

// RouteTable is the unordered set of routing entries spec.md §3.6 defines,
// loaded once at startup the way routing.loadConfig reads its JSON file,
// generalized here to the whitespace-delimited "dest gw mask iface" format
// spec.md §6 specifies.
type RouteTable struct {
	routes []Route
}

// LoadRouteTable reads a routing table file of lines "dest gw mask iface".
func LoadRouteTable(path string) (*RouteTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("router: opening routing table: %w", err)
	}
	defer f.Close()

	rt := &RouteTable{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("router: routing table line %d: expected 4 fields, got %d", lineNo, len(fields))
		}
		dest, err := parseIPv4(fields[0])
		if err != nil {
			return nil, fmt.Errorf("router: routing table line %d: dest: %w", lineNo, err)
		}
		gw, err := parseIPv4(fields[1])
		if err != nil {
			return nil, fmt.Errorf("router: routing table line %d: gw: %w", lineNo, err)
		}
		mask, err := parseIPv4(fields[2])
		if err != nil {
			return nil, fmt.Errorf("router: routing table line %d: mask: %w", lineNo, err)
		}
		rt.routes = append(rt.routes, Route{Dest: dest, Mask: mask, GW: gw, Iface: fields[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("router: reading routing table: %w", err)
	}
	return rt, nil
}

func parseIPv4(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("invalid ip %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("not an ipv4 address: %q", s)
	}
	return binary.BigEndian.Uint32(ip4), nil
}

// Lookup performs longest-prefix match: the returned entry satisfies
// (mask & target) == dest, and no other entry in the table has a longer
// mask that also satisfies this constraint (spec.md §3.6, §8 LPM
// invariant).
func (rt *RouteTable) Lookup(target uint32) (Route, bool) {
	var best Route
	found := false
	for _, r := range rt.routes {
		if target&r.Mask != r.Dest {
			continue
		}
		if !found || maskLen(r.Mask) > maskLen(best.Mask) {
			best = r
			found = true
		}
	}
	return best, found
}

func maskLen(mask uint32) int {
	n := 0
	for mask != 0 {
		n += int(mask & 1)
		mask >>= 1
	}
	return n
}

// Routes returns a copy of all entries, for diagnostics/printing.
func (rt *RouteTable) Routes() []Route {
	out := make([]Route, len(rt.routes))
	copy(out, rt.routes)
	return out
}
