package server

import (
	"errors"
	"testing"
	"time"

	"github.com/Mmx233/limbo/protocol"
	"github.com/Mmx233/limbo/server/bootstrap"
	"github.com/Mmx233/limbo/server/state"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testMachine(t testing.TB) *state.Machine {
	m, err := state.New(state.Config{MOTD: "test"}, nil, bootstrap.New(bootstrap.Settings{Brand: "test"}, nil))
	if err != nil {
		t.Fatalf("create machine: %v", err)
	}
	return m
}

func frame(id int32, build func(w *protocol.Writer)) []byte {
	return protocol.Encode(id, build)
}

func handshakeFrame(intent int32) []byte {
	return frame(protocol.HandshakeIntention, func(w *protocol.Writer) {
		w.WriteVarInt(protocol.ProtocolVersion)
		w.WriteString("localhost")
		w.WriteUint16(25565)
		w.WriteVarInt(intent)
	})
}

func newTestConn(proxy bool) *conn {
	return newConn(-1, 1, "127.0.0.1:40000", proxy, zerolog.Nop())
}

func TestConnProcess_StatusExchange(t *testing.T) {
	c := newTestConn(false)
	m := testMachine(t)
	now := time.Now()

	in := append(handshakeFrame(protocol.IntentStatus), frame(protocol.StatusRequest, nil)...)
	require.NoError(t, c.appendInbound(in))

	n, err := c.process(m, zerolog.Nop(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, state.Status, c.session.State)
	assert.Len(t, c.out, 1)
	assert.Empty(t, c.in)
}

func TestConnProcess_PartialFrameWaits(t *testing.T) {
	c := newTestConn(false)
	m := testMachine(t)
	hs := handshakeFrame(protocol.IntentLogin)

	for i := range hs[:len(hs)-1] {
		require.NoError(t, c.appendInbound(hs[i:i+1]))
		n, err := c.process(m, zerolog.Nop(), time.Now())
		require.NoError(t, err)
		require.Zero(t, n)
	}
	assert.Equal(t, len(hs)-1, len(c.in), "nothing consumed before the frame completes")

	require.NoError(t, c.appendInbound(hs[len(hs)-1:]))
	n, err := c.process(m, zerolog.Nop(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, state.Login, c.session.State)
}

func TestConnProcess_Malformed(t *testing.T) {
	c := newTestConn(false)
	require.NoError(t, c.appendInbound([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}))
	_, err := c.process(testMachine(t), zerolog.Nop(), time.Now())
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestConnProcess_UnknownHandshakeCloses(t *testing.T) {
	c := newTestConn(false)
	require.NoError(t, c.appendInbound(frame(0xFF, nil)))
	_, err := c.process(testMachine(t), zerolog.Nop(), time.Now())
	assert.ErrorIs(t, err, state.ErrUnexpectedPacket)
	assert.Equal(t, state.Closed, c.session.State)
}

func TestConnProcess_NoDispatchAfterCloseScheduled(t *testing.T) {
	c := newTestConn(false)
	m := testMachine(t)

	in := handshakeFrame(protocol.IntentStatus)
	in = append(in, frame(protocol.StatusPing, func(w *protocol.Writer) { w.WriteInt64(42) })...)
	in = append(in, frame(protocol.StatusRequest, nil)...)
	require.NoError(t, c.appendInbound(in))

	n, err := c.process(m, zerolog.Nop(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "request after ping must not be dispatched")
	assert.True(t, c.closeAfterFlush)
	assert.Len(t, c.out, 1)
}

func TestConnProcess_ProxyHeader(t *testing.T) {
	c := newTestConn(true)
	m := testMachine(t)
	header := proxyHeader(t, 2, "198.51.100.20")

	require.NoError(t, c.appendInbound(header[:5]))
	n, err := c.process(m, zerolog.Nop(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, c.awaitingProxy)

	require.NoError(t, c.appendInbound(append(header[5:], handshakeFrame(protocol.IntentStatus)...)))
	n, err = c.process(m, zerolog.Nop(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, c.awaitingProxy)
	assert.Equal(t, "198.51.100.20:51000", c.remote)
}

func TestConnProcess_ProxyRequired(t *testing.T) {
	c := newTestConn(true)
	require.NoError(t, c.appendInbound(handshakeFrame(protocol.IntentStatus)))
	_, err := c.process(testMachine(t), zerolog.Nop(), time.Now())
	assert.ErrorIs(t, err, ErrNotProxyHeader)
}

func TestConnAppendInbound_Bound(t *testing.T) {
	c := newTestConn(false)
	require.NoError(t, c.appendInbound(make([]byte, MaxInbound)))
	assert.ErrorIs(t, c.appendInbound([]byte{0}), ErrInboundOverflow)
}

func TestConnFlush_PartialWrites(t *testing.T) {
	c := newTestConn(false)
	c.enqueue([]byte("hello"), []byte("world"))

	var sent []byte
	budget := 3
	write := func(p []byte) (int, error) {
		n := min(budget, len(p))
		budget -= n
		sent = append(sent, p[:n]...)
		return n, nil
	}

	written, drained, err := c.flush(write)
	require.NoError(t, err)
	assert.False(t, drained)
	assert.Zero(t, written)
	assert.Equal(t, 3, c.outOff)

	budget = 4
	written, drained, err = c.flush(write)
	require.NoError(t, err)
	assert.False(t, drained)
	assert.Equal(t, 1, written)

	budget = 100
	written, drained, err = c.flush(write)
	require.NoError(t, err)
	assert.True(t, drained)
	assert.Equal(t, 1, written)
	assert.Equal(t, "helloworld", string(sent))
	assert.False(t, c.pending())
}

func TestConnFlush_Error(t *testing.T) {
	c := newTestConn(false)
	c.enqueue([]byte("x"))
	boom := errors.New("broken pipe")
	_, drained, err := c.flush(func([]byte) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, drained)
	assert.True(t, c.pending())
}

func TestConnKeepAlive_OnlyInPlay(t *testing.T) {
	c := newTestConn(false)
	now := time.Now()
	assert.False(t, c.keepAlive(now.Add(time.Hour), time.Second))

	c.session.State = state.Play
	c.lastKeepAlive = now
	assert.False(t, c.keepAlive(now.Add(999*time.Millisecond), time.Second))
	assert.True(t, c.keepAlive(now.Add(time.Second), time.Second))
	require.Len(t, c.out, 1)

	body, _, res := protocol.NextFrame(c.out[0])
	require.Equal(t, protocol.Complete, res)
	assert.EqualValues(t, protocol.PlayKeepAlive, body[0])
}

// Feature: keep-alive, Property 1: One Keep-Alive Per Interval
// *For any* sequence of sweep times, a play connection SHALL receive a
// keep-alive only when at least one interval has passed since the previous
// one, and SHALL never receive two within one interval.
func TestKeepAliveInterval_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		interval := time.Duration(rapid.IntRange(1, 100).Draw(t, "interval_ms")) * time.Millisecond
		steps := rapid.SliceOfN(rapid.IntRange(0, 50), 1, 200).Draw(t, "steps_ms")

		start := time.Unix(1_700_000_000, 0)
		c := newTestConn(false)
		c.session.State = state.Play
		c.lastKeepAlive = start

		now, last := start, start
		for _, step := range steps {
			now = now.Add(time.Duration(step) * time.Millisecond)
			due := now.Sub(last) >= interval
			sent := c.keepAlive(now, interval)
			if sent != due {
				t.Fatalf("at %v after %v: sent=%v due=%v", now.Sub(start), now.Sub(last), sent, due)
			}
			if sent {
				last = now
			}
		}
	})
}
