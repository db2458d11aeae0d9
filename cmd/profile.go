// -- cmd/profile.go --
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/translators-dev/bridge-cli/internal/observability"
	"github.com/translators-dev/bridge-cli/internal/profile"
)

var profileAsJSON bool

var profileCmd = &cobra.Command{
	Use:   "profile <export-path>",
	Short: "Extract a cognitive profile from a completed export document.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfile,
}

func init() {
	profileCmd.Flags().BoolVar(&profileAsJSON, "json", false, "emit the profile as JSON")
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	extractor := profile.NewExtractor(observability.GetLogger())
	p, err := extractor.Extract(args[0])
	if err != nil {
		return err
	}

	if profileAsJSON {
		out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	}

	fmt.Fprintf(os.Stdout, "Profile %s (generator %s)\n", p.Checksum, p.GeneratorVersion)
	if p.Anchor != "" {
		fmt.Fprintf(os.Stdout, "Anchor: %s\n", p.Anchor)
	}
	for _, t := range p.Traits {
		fmt.Fprintf(os.Stdout, "  %-24s %.2f  %s\n", t.Dimension, t.Score, t.Behavior)
	}
	for _, insight := range p.Insights {
		fmt.Fprintf(os.Stdout, "  * %s\n", insight)
	}
	return nil
}
