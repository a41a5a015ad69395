package link

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	sent [][]byte
}

func (r *recordingConn) ReadFrom(buf []byte) (int, *net.UDPAddr, error) { return 0, nil, nil }
func (r *recordingConn) WriteTo(buf []byte, dst *net.UDPAddr) (int, error) {
	r.sent = append(r.sent, append([]byte(nil), buf...))
	return len(buf), nil
}
func (r *recordingConn) Close() error { return nil }

func TestLink_LossyConn_DropNextSuppressesExactCount(t *testing.T) {
	t.Parallel()
	base := &recordingConn{}
	lossy := NewLossyConn(base, 1)
	lossy.DropNext(1)

	n, err := lossy.WriteTo([]byte("a"), &net.UDPAddr{})
	require.NoError(t, err)
	require.Equal(t, 1, n, "the caller sees a successful write even though it was dropped")
	require.Empty(t, base.sent)

	_, err = lossy.WriteTo([]byte("b"), &net.UDPAddr{})
	require.NoError(t, err)
	require.Len(t, base.sent, 1)
	require.Equal(t, []byte("b"), base.sent[0])
}

func TestLink_LossyConn_HardLossDropsEverything(t *testing.T) {
	t.Parallel()
	base := &recordingConn{}
	lossy := NewLossyConn(base, 2)
	lossy.SetHardLoss()

	for i := 0; i < 10; i++ {
		_, err := lossy.WriteTo([]byte("x"), &net.UDPAddr{})
		require.NoError(t, err)
	}
	require.Empty(t, base.sent)

	lossy.SetNoFault()
	_, err := lossy.WriteTo([]byte("y"), &net.UDPAddr{})
	require.NoError(t, err)
	require.Len(t, base.sent, 1)
}
