package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

type Server struct {
	Listen    Listen `yaml:"listen"`
	MOTD      string `yaml:"motd"`
	Brand     string `yaml:"brand"`
	Hardcore  bool   `yaml:"hardcore"`
	Dimension string `yaml:"dimension"`
	Spawn     Spawn  `yaml:"spawn"`

	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	PollTimeout       time.Duration `yaml:"poll_timeout"`

	Forwarding    Forwarding `yaml:"forwarding"`
	ProxyProtocol bool       `yaml:"proxy_protocol"`
	RateLimit     RateLimit  `yaml:"rate_limit"`

	// Registry is the path of the registry and tag tables, optionally gzipped.
	Registry string `yaml:"registry"`
	Log      Log    `yaml:"log"`
}

type Spawn struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
	Yaw   float32 `yaml:"yaw"`
	Pitch float32 `yaml:"pitch"`
}

type Forwarding struct {
	Enabled    bool   `yaml:"enabled"`
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"`
}

// LoadSecret reads SecretFile into Secret when Secret is not set inline.
func (f *Forwarding) LoadSecret() error {
	if f.Secret != "" || f.SecretFile == "" {
		return nil
	}
	data, err := os.ReadFile(f.SecretFile)
	if err != nil {
		return fmt.Errorf("read forwarding secret: %w", err)
	}
	f.Secret = strings.TrimSpace(string(data))
	return nil
}

func (f Forwarding) Validate() error {
	if f.Enabled && f.Secret == "" {
		return errors.New("forwarding is enabled but no secret is configured")
	}
	return nil
}

type RateLimit struct {
	// PerSecond is the accepted connection rate per source IP. Zero disables
	// the limiter.
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// NormalizeDimension adds the minecraft namespace to bare dimension names and
// falls back to the default dimension when empty.
func NormalizeDimension(name string) string {
	if name == "" {
		return DefaultDimension
	}
	if !strings.Contains(name, ":") {
		return "minecraft:" + name
	}
	return name
}

// ApplyEnv overrides fields from LIMBO_ prefixed environment variables.
func (s *Server) ApplyEnv() error {
	s.Listen.IP = GetenvDefault(EnvPrefix+"LISTEN_IP", s.Listen.IP)
	if port := os.Getenv(EnvPrefix + "LISTEN_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
			return fmt.Errorf("invalid %sLISTEN_PORT %q: %w", EnvPrefix, port, err)
		}
		s.Listen.Port = p
	}
	s.Forwarding.Secret = GetenvDefault(EnvPrefix+"FORWARDING_SECRET", s.Forwarding.Secret)
	return nil
}

func (s *Server) Validate() error {
	if _, err := s.Listen.GetIP(); err != nil {
		return err
	}
	if s.Listen.Port < 1 || s.Listen.Port > 65535 {
		return fmt.Errorf("invalid listen port: %d", s.Listen.Port)
	}
	if !slices.Contains(Dimensions, s.Dimension) {
		return fmt.Errorf("unknown dimension %q, expected one of %s", s.Dimension, strings.Join(Dimensions, ", "))
	}
	if s.KeepAliveInterval < 0 {
		return fmt.Errorf("keep_alive_interval must be positive, got %v", s.KeepAliveInterval)
	}
	if s.PollTimeout < time.Millisecond {
		return fmt.Errorf("poll_timeout must be at least 1ms, got %v", s.PollTimeout)
	}
	if s.RateLimit.PerSecond < 0 || s.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	if err := s.Forwarding.Validate(); err != nil {
		return err
	}
	return s.Log.Validate()
}
