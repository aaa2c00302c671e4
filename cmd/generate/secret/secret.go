package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// MinBytes is the smallest accepted amount of secret entropy.
const MinBytes = 16

var (
	outputPath string
	size       int
	Cmd        = &cobra.Command{
		Use:   "secret",
		Short: "Generate a modern forwarding secret file",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
)

func init() {
	Cmd.Flags().StringVarP(&outputPath, "output", "o", "forwarding.secret", "output file path")
	Cmd.Flags().IntVarP(&size, "bytes", "b", 32, "random bytes in the secret")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "generate").Logger()

	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("file already exists: %s", outputPath)
	}

	secret, err := Generate(size)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(secret+"\n"), 0600); err != nil {
		return fmt.Errorf("write secret: %w", err)
	}

	logger.Info().Str("file", outputPath).Msg("generated forwarding secret, copy it into the proxy configuration")
	return nil
}

// Generate returns n random bytes encoded as unpadded URL-safe base64.
func Generate(n int) (string, error) {
	if n < MinBytes {
		return "", errors.New("secret must be at least 16 bytes")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
