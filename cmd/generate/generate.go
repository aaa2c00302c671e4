package generate

import (
	"github.com/Mmx233/limbo/cmd/generate/config"
	"github.com/Mmx233/limbo/cmd/generate/secret"
	"github.com/spf13/cobra"
)

var (
	Cmd = &cobra.Command{
		Use:   "generate",
		Short: "Generate resources",
		Args:  cobra.NoArgs,
	}
)

func init() {
	Cmd.AddCommand(secret.Cmd)
	Cmd.AddCommand(config.Cmd)
}
