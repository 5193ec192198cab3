// Package cli is the custodian command line: serve the API, migrate the
// schema and seed inventory.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "custodian",
		Short: "Election equipment chain of custody",
		Long: `custodian tracks election equipment from warehouse to poll site and back:
assets, tamper seals, kits, transport manifests, custody transfers with
signed acknowledgment forms, and physical inventory audits.

Configuration is read from CUSTODIAN_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newSeedCommand())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
