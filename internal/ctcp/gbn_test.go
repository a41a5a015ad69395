package ctcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCtcp_GBN_OutOfOrderDelivery covers spec.md §8 scenario 3: segments
// 1, 6, 11 arrive as 1, 11, 6. The receiver delivers 1, discards 11 while
// re-acking 6, delivers 6 acking 11, then on retransmit of 11 delivers it
// acking 16.
func TestCtcp_GBN_OutOfOrderDelivery(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	c, err := OpenGBN(host, testConfig(), reg)
	require.NoError(t, err)

	seg1 := (&Segment{Seqno: 1, Ackno: 1, Flags: FlagACK, Data: []byte("AAAAA")}).Marshal()
	seg6 := (&Segment{Seqno: 6, Ackno: 1, Flags: FlagACK, Data: []byte("BBBBB")}).Marshal()
	seg11 := (&Segment{Seqno: 11, Ackno: 1, Flags: FlagACK, Data: []byte("CCCCC")}).Marshal()

	// Delivered in order: 1, 11, 6.
	require.NoError(t, c.Receive(seg1))
	require.Len(t, host.output, 1)
	require.Equal(t, uint32(6), c.recvExpected)
	lastAck, err := Unmarshal(host.lastSent())
	require.NoError(t, err)
	require.Equal(t, uint32(6), lastAck.Ackno)

	require.NoError(t, c.Receive(seg11))
	require.Len(t, host.output, 1, "out-of-order segment 11 must be discarded, not delivered")
	lastAck, err = Unmarshal(host.lastSent())
	require.NoError(t, err)
	require.Equal(t, uint32(6), lastAck.Ackno, "re-acks the last in-order byte")

	require.NoError(t, c.Receive(seg6))
	require.Len(t, host.output, 2)
	require.Equal(t, uint32(11), c.recvExpected)
	lastAck, err = Unmarshal(host.lastSent())
	require.NoError(t, err)
	require.Equal(t, uint32(11), lastAck.Ackno)

	// Retransmit of 11 now arrives in order.
	require.NoError(t, c.Receive(seg11))
	require.Len(t, host.output, 3)
	require.Equal(t, uint32(16), c.recvExpected)
	lastAck, err = Unmarshal(host.lastSent())
	require.NoError(t, err)
	require.Equal(t, uint32(16), lastAck.Ackno)
}

func TestCtcp_GBN_WindowLimitsOutstandingSegments(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	cfg := testConfig()
	cfg.SendWindow = 10
	c, err := OpenGBN(host, cfg, reg)
	require.NoError(t, err)

	host.queueInput([]byte("AAAAA"))
	require.NoError(t, c.Read())
	require.Equal(t, 1, host.sentCount())

	host.queueInput([]byte("BBBBB"))
	require.NoError(t, c.Read())
	require.Equal(t, 2, host.sentCount())

	// Window is full (10 bytes outstanding): a third segment must wait.
	host.queueInput([]byte("CCCCC"))
	require.NoError(t, c.Read())
	require.Equal(t, 2, host.sentCount(), "send window exhausted, no further segment transmitted")
}

func TestCtcp_GBN_CumulativeAckSlidesWindow(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	c, err := OpenGBN(host, testConfig(), reg)
	require.NoError(t, err)

	host.queueInput([]byte("AAAAA"))
	host.queueInput([]byte("BBBBB"))
	require.NoError(t, c.Read())
	require.NoError(t, c.Read())
	require.Len(t, c.outstanding, 2)

	ack := (&Segment{Seqno: 1, Ackno: 11, Flags: FlagACK}).Marshal()
	require.NoError(t, c.Receive(ack))
	require.Equal(t, uint32(11), c.sendBase)
	require.Empty(t, c.outstanding, "cumulative ack past both segments clears the outstanding queue")
	require.Equal(t, 0, c.rtAttempts)
}

func TestCtcp_GBN_RetransmitsEntireOutstandingQueue(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	c, err := OpenGBN(host, testConfig(), reg)
	require.NoError(t, err)

	host.queueInput([]byte("AAAAA"))
	host.queueInput([]byte("BBBBB"))
	require.NoError(t, c.Read())
	require.NoError(t, c.Read())
	require.Equal(t, 2, host.sentCount())

	for i := 0; i < TicksToRetransmit; i++ {
		c.Timer()
	}
	require.Equal(t, 4, host.sentCount(), "retransmits both outstanding segments in order")
	require.Equal(t, 1, c.rtAttempts)
}

func TestCtcp_GBN_SentinelNakOnCorruptSegment(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	c, err := OpenGBN(host, testConfig(), reg)
	require.NoError(t, err)

	seg := (&Segment{Seqno: 1, Ackno: 1, Flags: FlagACK, Data: []byte("hi")}).Marshal()
	seg[HeaderLen] ^= 0xFF
	require.NoError(t, c.Receive(seg))
	require.Equal(t, 1, host.sentCount())
	nak, err := Unmarshal(host.lastSent())
	require.NoError(t, err)
	require.Equal(t, uint32(0), nak.Seqno)
	require.Equal(t, uint32(0), nak.Ackno)
}

func TestCtcp_GBN_FinTearsDownConnection(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	host := newFakeHost()
	c, err := OpenGBN(host, testConfig(), reg)
	require.NoError(t, err)

	fin := (&Segment{Seqno: 1, Ackno: 1, Flags: FlagFIN | FlagACK}).Marshal()
	require.NoError(t, c.Receive(fin))
	require.True(t, host.eofSignal)
	require.True(t, host.removed)
	require.Equal(t, 0, reg.Len())
}
