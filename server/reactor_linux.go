//go:build linux

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

const (
	maxEvents   = 256
	readBufSize = 64 * 1024
)

type reactor struct {
	epfd      int
	lfd       int
	conns     map[int]*conn
	nextID    uint64
	readBuf   []byte
	events    []unix.EpollEvent
	lastSweep time.Time
}

// Listen binds the listening socket and creates the poller. Bind failures are
// returned here, before any event loop runs.
func (s *Server) Listen() error {
	if s.addr != nil {
		return nil
	}

	ip, err := s.config.Listen.GetIP()
	if err != nil {
		return err
	}

	family := unix.AF_INET6
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		family = unix.AF_INET
		sa4 := &unix.SockaddrInet4{Port: s.config.Listen.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		sa6 := &unix.SockaddrInet6{Port: s.config.Listen.Port}
		copy(sa6.Addr[:], ip.To16())
		sa = sa6
	}

	lfd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return fmt.Errorf("create socket: %w", err)
	}
	if err := unix.SetsockoptInt(lfd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(lfd)
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(lfd, sa); err != nil {
		_ = unix.Close(lfd)
		return fmt.Errorf("bind %s: %w", s.config.Listen.Addr(), err)
	}
	if err := unix.Listen(lfd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(lfd)
		return fmt.Errorf("listen %s: %w", s.config.Listen.Addr(), err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		_ = unix.Close(lfd)
		return fmt.Errorf("create epoll: %w", err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, lfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(lfd)}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(lfd)
		return fmt.Errorf("register listener: %w", err)
	}

	bound, err := unix.Getsockname(lfd)
	if err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(lfd)
		return fmt.Errorf("getsockname: %w", err)
	}

	s.addr = tcpAddr(bound)
	s.reactor = reactor{
		epfd:    epfd,
		lfd:     lfd,
		conns:   make(map[int]*conn),
		readBuf: make([]byte, readBufSize),
		events:  make([]unix.EpollEvent, maxEvents),
	}

	s.logger.Info().
		Str("listen", s.addr.String()).
		Bool("proxy_protocol", s.config.ProxyProtocol).
		Msg("listener started")
	return nil
}

// Serve runs the event loop on the calling goroutine until ctx is cancelled.
// Every connection, the listener and the poller are closed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	defer s.shutdown()

	r := &s.reactor
	timeout := int(s.config.PollTimeout / time.Millisecond)
	if timeout < 1 {
		timeout = 1
	}

	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("server shutting down")
			return ctx.Err()
		}

		n, err := unix.EpollWait(r.epfd, r.events, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll wait: %w", err)
		}

		now := s.now()
		for i := 0; i < n; i++ {
			ev := r.events[i]
			fd := int(ev.Fd)
			if fd == r.lfd {
				s.acceptAll(now)
				continue
			}
			if c, ok := r.conns[fd]; ok {
				s.handle(c, ev.Events, now)
			}
		}

		s.sweep(s.now())
	}
}

func (s *Server) acceptAll(now time.Time) {
	r := &s.reactor
	for {
		fd, sa, err := unix.Accept4(r.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				s.logger.Warn().Err(err).Msg("accept connection failed")
			}
			return
		}

		remote := tcpAddr(sa)
		if s.limiter != nil && !s.limiter.Allow(remote.IP.String(), now) {
			s.stats.Rejected.Add(1)
			s.logger.Debug().Str("remote", remote.String()).Msg("connection rate limited")
			_ = unix.Close(fd)
			continue
		}

		if err := setSocketOptions(fd); err != nil {
			s.logger.Warn().Err(err).Str("remote", remote.String()).Msg("set socket options failed")
		}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: readEvents, Fd: int32(fd)}); err != nil {
			s.logger.Error().Err(err).Msg("register connection failed")
			_ = unix.Close(fd)
			continue
		}

		r.nextID++
		c := newConn(fd, r.nextID, remote.String(), s.config.ProxyProtocol, s.logger)
		r.conns[fd] = c
		s.stats.Accepted.Add(1)
		s.stats.Active.Add(1)
		c.logger.Debug().Msg("new connection")
	}
}

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLRDHUP
	writeEvents = readEvents | unix.EPOLLOUT
)

// handle processes one readiness notification. Any failure, including a
// panic, closes only this connection.
func (s *Server) handle(c *conn, events uint32, now time.Time) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error().Interface("panic", p).Msg("connection handler panicked")
			s.closeConn(c)
		}
	}()

	if events&unix.EPOLLIN != 0 {
		if err := s.readable(c, now); err != nil {
			s.closeWithError(c, err)
			return
		}
	} else if events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		s.closeConn(c)
		return
	}

	if events&unix.EPOLLOUT != 0 {
		if err := s.writable(c); err != nil {
			s.closeWithError(c, err)
		}
	}
}

func (s *Server) readable(c *conn, now time.Time) error {
	n, err := unix.Read(c.fd, s.reactor.readBuf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		return io.EOF
	}
	if err := c.appendInbound(s.reactor.readBuf[:n]); err != nil {
		return err
	}

	dispatched, err := c.process(s.machine, s.logger, now)
	s.stats.FramesIn.Add(int64(dispatched))
	if err != nil {
		return err
	}
	if c.pending() {
		return s.setWriteInterest(c, true)
	}
	return nil
}

func (s *Server) writable(c *conn) error {
	written, drained, err := c.flush(func(p []byte) (int, error) {
		n, err := unix.Write(c.fd, p)
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		if n < 0 {
			n = 0
		}
		return n, err
	})
	s.stats.FramesOut.Add(int64(written))
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if !drained {
		return nil
	}
	if c.closeAfterFlush {
		s.closeConn(c)
		return nil
	}
	return s.setWriteInterest(c, false)
}

func (s *Server) setWriteInterest(c *conn, on bool) error {
	if c.writeInterest == on {
		return nil
	}
	events := uint32(readEvents)
	if on {
		events = writeEvents
	}
	if err := unix.EpollCtl(s.reactor.epfd, unix.EPOLL_CTL_MOD, c.fd, &unix.EpollEvent{Events: events, Fd: int32(c.fd)}); err != nil {
		return fmt.Errorf("update interest: %w", err)
	}
	c.writeInterest = on
	return nil
}

// sweep sends due keep-alives and drops idle rate limiter buckets.
func (s *Server) sweep(now time.Time) {
	for _, c := range s.reactor.conns {
		if !c.keepAlive(now, s.config.KeepAliveInterval) {
			continue
		}
		s.stats.KeepAlives.Add(1)
		if err := s.setWriteInterest(c, true); err != nil {
			s.closeWithError(c, err)
		}
	}

	if s.limiter != nil && now.Sub(s.reactor.lastSweep) >= limiterIdle {
		s.limiter.Sweep(now)
		s.reactor.lastSweep = now
	}
}

func (s *Server) closeWithError(c *conn, err error) {
	if errors.Is(err, io.EOF) {
		c.logger.Debug().Msg("connection closed by peer")
	} else {
		c.logger.Debug().Err(err).Stringer("state", c.session.State).Msg("closing connection")
	}
	s.closeConn(c)
}

func (s *Server) closeConn(c *conn) {
	r := &s.reactor
	if _, ok := r.conns[c.fd]; !ok {
		return
	}
	delete(r.conns, c.fd)
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	_ = unix.Close(c.fd)
	s.stats.Active.Add(-1)
	s.stats.Closed.Add(1)
}

func (s *Server) shutdown() {
	r := &s.reactor
	for _, c := range r.conns {
		s.closeConn(c)
	}
	_ = unix.Close(r.lfd)
	_ = unix.Close(r.epfd)
	s.logger.Info().Object("stats", s.stats.Snapshot()).Msg("server stopped")
}

func tcpAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]).To16(), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return &net.TCPAddr{}
	}
}
