package router

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouter_LinkBus_SendRecvRoundtrip(t *testing.T) {
	t.Parallel()

	srv, err := DialLinkBus("127.0.0.1:0", "127.0.0.1:1", discardLogger())
	require.NoError(t, err)
	defer srv.Close()

	cl, err := DialLinkBus("127.0.0.1:0", srv.conn.LocalAddr().String(), discardLogger())
	require.NoError(t, err)
	defer cl.Close()

	var mu sync.Mutex
	var gotFrame []byte
	var gotIface string
	done := make(chan struct{})

	go srv.Run(func(frame []byte, iface string) error {
		mu.Lock()
		gotFrame = frame
		gotIface = iface
		mu.Unlock()
		close(done)
		return nil
	})

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, cl.Send(payload, "eth0"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered frame")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "eth0", gotIface)
	require.Equal(t, payload, gotFrame)
}

func TestRouter_LinkBus_RejectsOversizedIfaceName(t *testing.T) {
	t.Parallel()

	b, err := DialLinkBus("127.0.0.1:0", "127.0.0.1:1", discardLogger())
	require.NoError(t, err)
	defer b.Close()

	longName := make([]byte, 256)
	for i := range longName {
		longName[i] = 'a'
	}
	err = b.Send([]byte("x"), string(longName))
	require.Error(t, err)
}

func TestRouter_LinkBus_DropsMalformedEnvelope(t *testing.T) {
	t.Parallel()

	srv, err := DialLinkBus("127.0.0.1:0", "127.0.0.1:1", discardLogger())
	require.NoError(t, err)
	defer srv.Close()

	cl, err := DialLinkBus("127.0.0.1:0", srv.conn.LocalAddr().String(), discardLogger())
	require.NoError(t, err)
	defer cl.Close()

	delivered := make(chan struct{}, 1)
	go srv.Run(func(frame []byte, iface string) error {
		delivered <- struct{}{}
		return nil
	})

	// Envelope claims a 10-byte interface name but carries none: malformed,
	// must be dropped rather than delivered or panicking the reader.
	_, err = cl.conn.WriteToUDP([]byte{10}, srv.conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	// Follow with a well-formed frame to confirm the reader kept running.
	require.NoError(t, cl.Send([]byte("ok"), "eth1"))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery after malformed envelope")
	}
}
