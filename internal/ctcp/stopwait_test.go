package ctcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCtcp_StopWait_HappyPath covers spec.md §8 scenario 1: the sender
// transmits "HELLO", the receiver acks ackno=6, and send_base advances with
// no retransmission over the next 5 timer ticks.
func TestCtcp_StopWait_HappyPath(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	host.queueInput([]byte("HELLO"))

	c, err := OpenStopWait(host, testConfig(), reg)
	require.NoError(t, err)

	require.NoError(t, c.Read())
	require.Equal(t, 1, host.sentCount())
	sent := host.lastSent()
	seg, err := Unmarshal(sent)
	require.NoError(t, err)
	require.Equal(t, uint32(1), seg.Seqno)
	require.Equal(t, []byte("HELLO"), seg.Data)
	require.NotNil(t, c.outstanding)
	require.Equal(t, uint32(1), c.sendBase)

	ack := (&Segment{Seqno: 1, Ackno: 6, Flags: FlagACK}).Marshal()
	require.NoError(t, c.Receive(ack))
	require.Nil(t, c.outstanding)
	require.Equal(t, uint32(6), c.sendBase)

	for i := 0; i < 5; i++ {
		c.Timer()
	}
	require.Equal(t, 1, host.sentCount(), "no retransmission once the outstanding segment was acked")
	require.Equal(t, 0, c.rtAttempts)
}

// TestCtcp_StopWait_LostAckTriggersRetransmit covers spec.md §8 scenario 2.
func TestCtcp_StopWait_LostAckTriggersRetransmit(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	host.queueInput([]byte("HELLO"))

	c, err := OpenStopWait(host, testConfig(), reg)
	require.NoError(t, err)
	require.NoError(t, c.Read())
	require.Equal(t, 1, host.sentCount())
	original := host.lastSent()

	// Simulate the ACK being dropped by the test harness: do not deliver it.
	for i := 0; i < 4; i++ {
		c.Timer()
		require.Equal(t, 1, host.sentCount(), "must not retransmit before 5 ticks")
	}
	c.Timer()
	require.Equal(t, 2, host.sentCount(), "retransmits after 5 ticks (~200ms)")
	require.Equal(t, original, host.lastSent(), "retransmission is byte-identical")
	require.Equal(t, 1, c.rtAttempts)

	ack := (&Segment{Seqno: 1, Ackno: 6, Flags: FlagACK}).Marshal()
	require.NoError(t, c.Receive(ack))
	require.Equal(t, 0, c.rtAttempts)
}

func TestCtcp_StopWait_DropsCorruptSegment(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	c, err := OpenStopWait(host, testConfig(), reg)
	require.NoError(t, err)

	seg := (&Segment{Seqno: 1, Ackno: 1, Flags: FlagACK, Data: []byte("hi")}).Marshal()
	seg[HeaderLen] ^= 0xFF
	require.NoError(t, c.Receive(seg))
	require.Empty(t, host.output, "corrupt segment must be silently dropped")
	require.Equal(t, uint32(1), c.recvExpected)
}

func TestCtcp_StopWait_DropsDuplicateData(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	c, err := OpenStopWait(host, testConfig(), reg)
	require.NoError(t, err)

	seg := (&Segment{Seqno: 1, Ackno: 1, Flags: FlagACK, Data: []byte("HELLO")}).Marshal()
	require.NoError(t, c.Receive(seg))
	require.Len(t, host.output, 1)
	require.Equal(t, uint32(6), c.recvExpected)

	// Re-deliver the same segment (e.g. our ack was lost and the peer
	// retransmitted): must not be delivered twice.
	require.NoError(t, c.Receive(seg))
	require.Len(t, host.output, 1)
}

func TestCtcp_StopWait_FinTearsDownConnection(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	c, err := OpenStopWait(host, testConfig(), reg)
	require.NoError(t, err)

	fin := (&Segment{Seqno: 1, Ackno: 1, Flags: FlagFIN | FlagACK}).Marshal()
	require.NoError(t, c.Receive(fin))
	require.True(t, host.eofSignal)
	require.True(t, host.removed)
	require.Equal(t, 0, reg.Len())
}

func TestCtcp_StopWait_TeardownAfterFiveRetransmissions(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	host.queueInput([]byte("X"))

	c, err := OpenStopWait(host, testConfig(), reg)
	require.NoError(t, err)
	require.NoError(t, c.Read())

	for i := 0; i < MaxRTAttempts; i++ {
		for j := 0; j < TicksToRetransmit; j++ {
			c.Timer()
		}
	}
	require.Equal(t, MaxRTAttempts, c.rtAttempts)
	require.False(t, c.destroyed)

	c.Timer()
	require.True(t, c.destroyed)
	require.Equal(t, 0, reg.Len())
}
