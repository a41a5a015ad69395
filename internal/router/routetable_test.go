package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRouteFile(t *testing.T, lines string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rtable")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestRouter_RouteTable_LongestPrefixMatchWins(t *testing.T) {
	t.Parallel()
	path := writeRouteFile(t, ""+
		"10.0.0.0 192.168.2.1 255.0.0.0 eth0\n"+
		"10.0.1.0 192.168.2.1 255.255.255.0 eth2\n"+
		"0.0.0.0 192.168.1.1 0.0.0.0 eth1\n")

	rt, err := LoadRouteTable(path)
	require.NoError(t, err)

	route, ok := rt.Lookup(parseIPv4T(t, "10.0.1.5"))
	require.True(t, ok)
	require.Equal(t, "eth2", route.Iface, "the /24 entry is a longer match than the /8 or the default route")
}

func TestRouter_RouteTable_FallsBackToDefaultRoute(t *testing.T) {
	t.Parallel()
	path := writeRouteFile(t, "0.0.0.0 192.168.1.1 0.0.0.0 eth1\n")
	rt, err := LoadRouteTable(path)
	require.NoError(t, err)

	route, ok := rt.Lookup(parseIPv4T(t, "8.8.8.8"))
	require.True(t, ok)
	require.Equal(t, "eth1", route.Iface)
}

func TestRouter_RouteTable_MissReturnsFalse(t *testing.T) {
	t.Parallel()
	path := writeRouteFile(t, "10.0.0.0 192.168.2.1 255.0.0.0 eth0\n")
	rt, err := LoadRouteTable(path)
	require.NoError(t, err)

	_, ok := rt.Lookup(parseIPv4T(t, "8.8.8.8"))
	require.False(t, ok)
}

func TestRouter_RouteTable_RejectsMalformedLine(t *testing.T) {
	t.Parallel()
	path := writeRouteFile(t, "10.0.0.0 192.168.2.1 255.0.0.0\n")
	_, err := LoadRouteTable(path)
	require.Error(t, err)
}

func parseIPv4T(t *testing.T, s string) uint32 {
	t.Helper()
	v, err := parseIPv4(s)
	require.NoError(t, err)
	return v
}
