package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mmx233/limbo/protocol"
	"github.com/Mmx233/limbo/server/state"
	"github.com/rs/zerolog"
)

// MaxInbound bounds the unprocessed bytes buffered for one connection.
const MaxInbound = 1 << 20

var (
	ErrInboundOverflow = errors.New("inbound buffer limit exceeded")
	ErrMalformedFrame  = errors.New("malformed frame length")
	ErrSessionClosed   = errors.New("session closed")
)

// conn is the state of one accepted socket. It is owned by the event loop.
type conn struct {
	fd     int
	id     uint64
	remote string
	logger zerolog.Logger

	in     []byte
	out    [][]byte
	outOff int // bytes of out[0] already written

	session         state.Session
	lastKeepAlive   time.Time
	closeAfterFlush bool
	awaitingProxy   bool
	writeInterest   bool
}

func newConn(fd int, id uint64, remote string, awaitingProxy bool, logger zerolog.Logger) *conn {
	c := &conn{
		fd:            fd,
		id:            id,
		session:       state.NewSession(),
		awaitingProxy: awaitingProxy,
	}
	c.setRemote(remote, logger)
	return c
}

func (c *conn) setRemote(remote string, base zerolog.Logger) {
	c.remote = remote
	c.logger = base.With().Uint64("conn_id", c.id).Str("remote", remote).Logger()
}

// enqueue appends frames to the outbound queue. Frames are never modified and
// may be shared between connections.
func (c *conn) enqueue(frames ...[]byte) {
	c.out = append(c.out, frames...)
}

func (c *conn) pending() bool {
	return len(c.out) > 0
}

// flush writes queued frames in order until the queue drains or write stops
// accepting bytes. write must return 0 and a nil error when the socket would
// block. drained reports an empty queue.
func (c *conn) flush(write func([]byte) (int, error)) (written int, drained bool, err error) {
	for len(c.out) > 0 {
		frame := c.out[0][c.outOff:]
		n, err := write(frame)
		if n > 0 {
			c.outOff += n
		}
		if err != nil {
			return written, false, err
		}
		if n < len(frame) {
			return written, false, nil
		}
		c.out[0] = nil
		c.out = c.out[1:]
		c.outOff = 0
		written++
	}
	c.out = nil
	return written, true, nil
}

// process consumes the PROXY header if one is still expected, then
// dispatches every complete frame at the head of the inbound buffer and
// compacts the buffer to the unconsumed tail. It returns the number of frames
// dispatched.
func (c *conn) process(m *state.Machine, base zerolog.Logger, now time.Time) (int, error) {
	if c.awaitingProxy {
		n, err := proxyHeaderLen(c.in)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, nil
		}
		h, err := parseProxyHeader(c.in[:n])
		if err != nil {
			return 0, err
		}
		if h.SourceAddr != nil {
			c.setRemote(h.SourceAddr.String(), base)
		}
		c.awaitingProxy = false
		c.in = c.in[:copy(c.in, c.in[n:])]
		c.logger.Debug().Msg("PROXY header accepted")
	}

	off, dispatched := 0, 0
	for !c.closeAfterFlush {
		body, n, res := protocol.NextFrame(c.in[off:])
		if res == protocol.Incomplete {
			break
		}
		if res == protocol.Malformed {
			return dispatched, ErrMalformedFrame
		}
		off += n
		dispatched++

		prev := c.session.State
		next, out, err := m.Step(c.session, body)
		c.session = next
		if err != nil {
			return dispatched, err
		}
		if next.State != prev {
			c.logger.Debug().Stringer("from", prev).Stringer("to", next.State).Msg("state transition")
			switch next.State {
			case state.Play:
				c.lastKeepAlive = now
				c.logger.Info().Str("username", next.Username).Str("uuid", next.UUID.String()).Msg("player parked")
			case state.Closed:
				return dispatched, ErrSessionClosed
			}
		}
		c.enqueue(out.Frames...)
		if out.CloseAfterFlush {
			c.closeAfterFlush = true
		}
	}

	c.in = c.in[:copy(c.in, c.in[off:])]
	return dispatched, nil
}

// keepAlive queues a keep-alive when the connection is in play and the last
// one is at least interval old.
func (c *conn) keepAlive(now time.Time, interval time.Duration) bool {
	if c.session.State != state.Play || c.closeAfterFlush {
		return false
	}
	if now.Sub(c.lastKeepAlive) < interval {
		return false
	}
	c.enqueue(state.KeepAlive(now.UnixMilli()))
	c.lastKeepAlive = now
	return true
}

// appendInbound adds freshly read bytes, enforcing MaxInbound.
func (c *conn) appendInbound(p []byte) error {
	if len(c.in)+len(p) > MaxInbound {
		return fmt.Errorf("%w: %d bytes", ErrInboundOverflow, len(c.in)+len(p))
	}
	c.in = append(c.in, p...)
	return nil
}
