package commands

import (
	"github.com/spf13/cobra"

	"github.com/mm-zacharydavison/rpckit/internal/cli/config"
	"github.com/mm-zacharydavison/rpckit/internal/compiler"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/report"
)

var (
	inspectConfigPath string
	inspectFormat     string
)

// NewInspectCommand creates the inspect command
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Discover contracts without writing artifacts",
		Long: `Run the discovery, extraction, and resolution passes and print what
generation would produce: modules, patterns, type closures, and external
packages. Nothing is written.`,
		RunE: runInspect,
	}

	cmd.Flags().StringVarP(&inspectConfigPath, "config", "c", "", "Path to rpckit.yml (default: search working directory)")
	cmd.Flags().StringVarP(&inspectFormat, "format", "f", "table", "Output format (table, json)")

	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(inspectConfigPath)
	if err != nil {
		return err
	}

	result, err := compiler.New(compiler.Options{
		BaseDir: cfg.BaseDir,
		Roots:   cfg.Roots,
		Output:  cfg.OutputDir(),
		Package: cfg.Package,
	}).Analyze()
	if err != nil {
		return err
	}

	printWarnings(cmd, result)

	summary := report.Build(result)
	if inspectFormat == "json" {
		return summary.WriteJSON(cmd.OutOrStdout())
	}
	summary.WriteTable(cmd.OutOrStdout())
	return nil
}
