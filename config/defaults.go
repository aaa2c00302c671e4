package config

import (
	"time"
)

// Default values applied to zero-valued fields
const (
	DefaultIP   = "0.0.0.0"
	DefaultPort = 25565

	DefaultMOTD  = "Limbo"
	DefaultBrand = "Limbo"

	// DefaultDimension is the dimension clients spawn into
	DefaultDimension = "minecraft:overworld"

	// DefaultKeepAliveInterval is the time between keep-alives sent to idle players
	DefaultKeepAliveInterval = 10 * time.Second

	// DefaultPollTimeout bounds a single readiness wait of the event loop
	DefaultPollTimeout = 10 * time.Millisecond

	// DefaultLogMaxSize is the rotated log file size in megabytes
	DefaultLogMaxSize = 100
)

// Dimensions lists the dimensions a client can be placed in.
var Dimensions = []string{
	"minecraft:overworld",
	"minecraft:the_nether",
	"minecraft:the_end",
}

// ApplyDefaults fills zero-valued fields of Server with default values.
func (s *Server) ApplyDefaults() {
	if s.Listen.IP == "" {
		s.Listen.IP = DefaultIP
	}
	if s.Listen.Port == 0 {
		s.Listen.Port = DefaultPort
	}
	if s.MOTD == "" {
		s.MOTD = DefaultMOTD
	}
	if s.Brand == "" {
		s.Brand = DefaultBrand
	}
	s.Dimension = NormalizeDimension(s.Dimension)
	if s.KeepAliveInterval == 0 {
		s.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if s.PollTimeout == 0 {
		s.PollTimeout = DefaultPollTimeout
	}
	if s.RateLimit.PerSecond > 0 && s.RateLimit.Burst == 0 {
		s.RateLimit.Burst = int(s.RateLimit.PerSecond)
		if s.RateLimit.Burst < 1 {
			s.RateLimit.Burst = 1
		}
	}
	if s.Log.File != "" && s.Log.MaxSize == 0 {
		s.Log.MaxSize = DefaultLogMaxSize
	}
}
