package config

import (
	"fmt"
	"os"

	"github.com/Mmx233/limbo/examples"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string // --config flag value

	Cmd = &cobra.Command{
		Use:   "config",
		Short: "Generate server configuration file",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "output config file path")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "generate").Logger()

	if err := WriteServerConfig(configFile); err != nil {
		return err
	}

	logger.Info().Str("file", configFile).Msg("generated server configuration")
	return nil
}

// WriteServerConfig writes the embedded server template to outputPath. It
// refuses to overwrite an existing file.
func WriteServerConfig(outputPath string) error {
	// Check if file exists
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("file already exists: %s", outputPath)
	}

	// Load embedded template
	content, err := examples.ServerConfig()
	if err != nil {
		return fmt.Errorf("load server config template: %w", err)
	}

	// Write to file
	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
