package run

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mmx233/limbo/config"
	"github.com/Mmx233/limbo/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile = config.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	Cmd        = &cobra.Command{
		Use:   "run",
		Short: "Run limbo server",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "server-cmd").Logger()

	// Load configuration
	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadServerConfig(configFile)
	if err != nil {
		return err
	}

	if closer := setupLogFile(cfg.Log); closer != nil {
		defer closer()
		logger = log.With().Str("com", "server-cmd").Logger()
		logger.Info().Str("file", cfg.Log.File).Msg("log file enabled")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Msg("starting limbo server")
		err := server.Start(ctx, cfg)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		errCh <- err
	}()

	// Wait for signal or error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
		if err := <-errCh; err != nil {
			return err
		}
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	}

	logger.Info().Msg("server stopped")
	return nil
}

// setupLogFile tees the global logger into a rotating file. It returns nil
// when no file is configured.
func setupLogFile(conf config.Log) func() {
	w := conf.NewWriter()
	if w == nil {
		return nil
	}
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: zerolog.TimeFormatUnix,
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, w))
	return func() { _ = w.Close() }
}
