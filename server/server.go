package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Mmx233/limbo/config"
	"github.com/Mmx233/limbo/protocol"
	"github.com/Mmx233/limbo/registry"
	"github.com/Mmx233/limbo/server/auth"
	"github.com/Mmx233/limbo/server/auth/forwarding"
	"github.com/Mmx233/limbo/server/bootstrap"
	"github.com/Mmx233/limbo/server/state"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Server is the limbo server: a single goroutine event loop parking every
// client in an idle play session.
type Server struct {
	config  *config.Server
	machine *state.Machine
	limiter *acceptLimiter
	stats   Stats
	logger  zerolog.Logger

	// now is the clock used for keep-alives and rate limiting
	now func() time.Time

	addr    *net.TCPAddr
	reactor reactor
}

// New creates a new server
func New(conf *config.Server, tables *registry.Tables) (*Server, error) {
	// Apply defaults to ensure all required fields have values
	conf.ApplyDefaults()

	logger := log.With().Str("com", "server").Logger()

	var verifier auth.Verifier
	if conf.Forwarding.Enabled {
		if err := conf.Forwarding.Validate(); err != nil {
			return nil, err
		}
		verifier = forwarding.New([]byte(conf.Forwarding.Secret))
		logger.Info().Str("channel", forwarding.Channel).Msg("modern forwarding enabled")
	}

	seq := bootstrap.New(bootstrap.Settings{
		Hardcore: conf.Hardcore,
		Spawn: bootstrap.Position{
			X:     conf.Spawn.X,
			Y:     conf.Spawn.Y,
			Z:     conf.Spawn.Z,
			Yaw:   conf.Spawn.Yaw,
			Pitch: conf.Spawn.Pitch,
		},
		Dimension: conf.Dimension,
		Brand:     conf.Brand,
	}, tables)

	machine, err := state.New(state.Config{
		Forwarding:      conf.Forwarding.Enabled,
		MOTD:            conf.MOTD,
		VersionName:     protocol.VersionName,
		ProtocolVersion: protocol.ProtocolVersion,
	}, verifier, seq)
	if err != nil {
		return nil, fmt.Errorf("create state machine: %w", err)
	}

	limiter := newAcceptLimiter(conf.RateLimit.PerSecond, conf.RateLimit.Burst)
	if limiter != nil {
		logger.Info().
			Float64("per_second", conf.RateLimit.PerSecond).
			Int("burst", conf.RateLimit.Burst).
			Msg("accept rate limit enabled")
	}

	return &Server{
		config:  conf,
		machine: machine,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Start loads the registry tables, binds the listener and runs the event
// loop until ctx is cancelled.
func Start(ctx context.Context, conf *config.Server) error {
	tables, err := loadTables(conf.Registry)
	if err != nil {
		return err
	}

	srv, err := New(conf, tables)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	return srv.Serve(ctx)
}

func loadTables(path string) (*registry.Tables, error) {
	if path == "" {
		log.Warn().Str("com", "server").Msg("no registry tables configured, clients may reject the configuration phase")
		return registry.Empty(), nil
	}
	tables, err := registry.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	log.Info().Str("com", "server").
		Str("path", path).
		Int("registries", len(tables.Registries)).
		Int("tags", len(tables.Tags)).
		Msg("registry tables loaded")
	return tables, nil
}

// Addr returns the bound listen address, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.addr == nil {
		return nil
	}
	return s.addr
}

// Stats returns a snapshot of the engine counters.
func (s *Server) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}
