package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mm-zacharydavison/rpckit/internal/cli/config"
	"github.com/mm-zacharydavison/rpckit/internal/compiler"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/report"
)

var (
	generateConfigPath string
	generateFormat     string
	generateQuiet      bool
)

// NewGenerateCommand creates the generate command
func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate contract artifacts from annotated source",
		Long: `Scan the configured package roots for rpc:controller and rpc:method
directives, resolve every referenced type, and write one contract package
per module plus the aggregate client package into the output directory.

The workspace config (rpckit.yml) is required; run rpckit new to create
one.`,
		RunE: runGenerate,
	}

	cmd.Flags().StringVarP(&generateConfigPath, "config", "c", "", "Path to rpckit.yml (default: search working directory)")
	cmd.Flags().StringVarP(&generateFormat, "format", "f", "table", "Summary format (table, json)")
	cmd.Flags().BoolVarP(&generateQuiet, "quiet", "q", false, "Suppress the summary, print warnings only")

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(generateConfigPath)
	if err != nil {
		return err
	}

	result, err := compiler.New(compiler.Options{
		BaseDir: cfg.BaseDir,
		Roots:   cfg.Roots,
		Output:  cfg.OutputDir(),
		Package: cfg.Package,
	}).Generate()
	if err != nil {
		return err
	}

	printWarnings(cmd, result)

	if !generateQuiet {
		summary := report.Build(result)
		if generateFormat == "json" {
			if err := summary.WriteJSON(cmd.OutOrStdout()); err != nil {
				return err
			}
		} else {
			summary.WriteTable(cmd.OutOrStdout())
		}
	}

	successColor := color.New(color.FgGreen, color.Bold)
	successColor.Fprintf(cmd.OutOrStdout(), "\nGenerated %d artifacts into %s\n",
		len(result.Emission.Files), cfg.OutputDir())

	printManifestNotice(cmd, result)
	return nil
}

// printWarnings prints every warning diagnostic, one line each.
func printWarnings(cmd *cobra.Command, result *compiler.Result) {
	warnColor := color.New(color.FgYellow)
	for _, d := range result.Diagnostics.Warnings() {
		warnColor.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", d.Error())
	}
}

// printManifestNotice tells the user what the manifest update did and
// whether go mod tidy is needed.
func printManifestNotice(cmd *cobra.Command, result *compiler.Result) {
	emission := result.Emission
	if emission == nil || len(emission.RequiresAdded) == 0 {
		return
	}

	infoColor := color.New(color.FgCyan)
	infoColor.Fprintf(cmd.OutOrStdout(), "Added to %s:\n", emission.Manifest)
	for _, entry := range emission.RequiresAdded {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", entry)
	}
	if emission.TidyNeeded {
		infoColor.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(`
Some versions are placeholders; run go mod tidy to resolve them.`))
	}
}
