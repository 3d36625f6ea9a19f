package commands

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mm-zacharydavison/rpckit/internal/cli/config"
	"github.com/mm-zacharydavison/rpckit/internal/compiler"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/source"
	"github.com/mm-zacharydavison/rpckit/internal/watch"
)

var watchConfigPath string

// watchCacheSize bounds the parse cache shared across regenerations.
const watchCacheSize = 512

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate artifacts when source changes",
		Long: `Generate once, then watch the configured package roots and regenerate
on every change. With watch.reload_addr configured, regeneration events
are broadcast to websocket clients at /reload.`,
		RunE: runWatch,
	}

	cmd.Flags().StringVarP(&watchConfigPath, "config", "c", "", "Path to rpckit.yml (default: search working directory)")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(watchConfigPath)
	if err != nil {
		return err
	}

	roots, err := source.ExpandRoots(cfg.BaseDir, cfg.Roots)
	if err != nil {
		return err
	}
	dirs := make([]string, len(roots))
	for i, root := range roots {
		dirs[i] = root.Dir
	}

	c := compiler.New(compiler.Options{
		BaseDir:   cfg.BaseDir,
		Roots:     cfg.Roots,
		Output:    cfg.OutputDir(),
		Package:   cfg.Package,
		CacheSize: watchCacheSize,
	})

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	successColor := color.New(color.FgGreen, color.Bold)
	errorColor := color.New(color.FgRed, color.Bold)
	warnColor := color.New(color.FgYellow)

	session := watch.NewSession(c, watch.Options{
		Dirs:       dirs,
		Debounce:   time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
		ReloadAddr: cfg.Watch.ReloadAddr,
		Logger:     logger,
		OnResult: func(result *compiler.Result, err error) {
			if err != nil {
				errorColor.Fprintf(cmd.ErrOrStderr(), "generation failed: %v\n", err)
				return
			}
			for _, d := range result.Diagnostics.Warnings() {
				warnColor.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", d.Error())
			}
			successColor.Fprintf(cmd.OutOrStdout(), "generated %d artifacts (%d contracts)\n",
				len(result.Emission.Files), result.Contracts.Len())
		},
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	color.New(color.FgCyan).Fprintf(cmd.OutOrStdout(), "Watching %d roots; press Ctrl+C to stop\n", len(dirs))
	return session.Run(ctx)
}
