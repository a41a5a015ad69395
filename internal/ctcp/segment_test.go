package ctcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCtcp_Segment_MarshalUnmarshalRoundtrip(t *testing.T) {
	t.Parallel()
	seg := &Segment{Seqno: 1, Ackno: 6, Flags: FlagACK, Window: 4096, Data: []byte("HELLO")}
	wire := seg.Marshal()

	got, err := Unmarshal(wire)
	require.NoError(t, err)
	require.Equal(t, seg.Seqno, got.Seqno)
	require.Equal(t, seg.Ackno, got.Ackno)
	require.Equal(t, seg.Flags, got.Flags)
	require.Equal(t, seg.Data, got.Data)
	require.True(t, Verify(wire))
}

func TestCtcp_Segment_VerifyDetectsCorruption(t *testing.T) {
	t.Parallel()
	seg := &Segment{Seqno: 1, Ackno: 1, Flags: FlagACK, Data: []byte("payload with a \x00 NUL byte")}
	wire := seg.Marshal()
	require.True(t, Verify(wire))

	corrupt := append([]byte(nil), wire...)
	corrupt[HeaderLen] ^= 0xFF
	require.False(t, Verify(corrupt))
}

func TestCtcp_Segment_NulBytesDoNotTruncatePayload(t *testing.T) {
	t.Parallel()
	// Regression for the strlen() bug in spec.md §9: a payload containing
	// NUL bytes must round-trip at its full length, not truncate at the
	// first zero byte.
	data := []byte{'a', 0, 'b', 0, 'c'}
	seg := &Segment{Seqno: 1, Ackno: 1, Flags: FlagACK, Data: data}
	wire := seg.Marshal()

	got, err := Unmarshal(wire)
	require.NoError(t, err)
	require.Len(t, got.Data, len(data))
	require.Equal(t, data, got.Data)
}

func TestCtcp_InternetChecksum_OddLength(t *testing.T) {
	t.Parallel()
	b := []byte{0x01, 0x02, 0x03}
	cksum := InternetChecksum(b)
	require.NotZero(t, cksum)
}

func TestCtcp_IsPureAck(t *testing.T) {
	t.Parallel()
	require.True(t, IsPureAck(&Segment{Flags: FlagACK}))
	require.False(t, IsPureAck(&Segment{Flags: FlagACK, Data: []byte{1}}))
	require.False(t, IsPureAck(&Segment{Flags: FlagFIN}))
}
