package server

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Stats are engine counters. They are written by the event loop and may be
// read from any goroutine.
type Stats struct {
	Accepted   atomic.Int64
	Rejected   atomic.Int64
	Active     atomic.Int64
	Closed     atomic.Int64
	FramesIn   atomic.Int64
	FramesOut  atomic.Int64
	KeepAlives atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Accepted   int64 `json:"accepted"`
	Rejected   int64 `json:"rejected"`
	Active     int64 `json:"active"`
	Closed     int64 `json:"closed"`
	FramesIn   int64 `json:"frames_in"`
	FramesOut  int64 `json:"frames_out"`
	KeepAlives int64 `json:"keep_alives"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Accepted:   s.Accepted.Load(),
		Rejected:   s.Rejected.Load(),
		Active:     s.Active.Load(),
		Closed:     s.Closed.Load(),
		FramesIn:   s.FramesIn.Load(),
		FramesOut:  s.FramesOut.Load(),
		KeepAlives: s.KeepAlives.Load(),
	}
}

// MarshalZerologObject lets a snapshot be logged with Object.
func (s StatsSnapshot) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("accepted", s.Accepted).
		Int64("rejected", s.Rejected).
		Int64("active", s.Active).
		Int64("closed", s.Closed).
		Int64("frames_in", s.FramesIn).
		Int64("frames_out", s.FramesOut).
		Int64("keep_alives", s.KeepAlives)
}
