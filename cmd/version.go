// File: cmd/version.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is the application version.
// This value is intended to be set at build time using ldflags.
// Example: go build -ldflags "-X github.com/translators-dev/bridge-cli/cmd.Version=1.0.0"
var Version = "2.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bridge-cli version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stdout, Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
