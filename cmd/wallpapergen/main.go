package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jrwhip/ComfyUI/internal/comfy"
	"github.com/jrwhip/ComfyUI/internal/orchestrator"
	"github.com/jrwhip/ComfyUI/pkg/config"
	"github.com/jrwhip/ComfyUI/pkg/workflow"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func main() {
	cfgPath := getenv("WALLPAPERGEN_CONFIG", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "wallpapergen",
		Short: "ComfyUI wallpaper generator",
		Long:  "Generates a wallpaper with a local ComfyUI server and sets it as the system background.",
	}
	root.SilenceUsage = true
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Config file path")

	root.AddCommand(generateCmd(&cfgPath, ui))
	root.AddCommand(extractCmd(ui))
	root.AddCommand(configCmd(&cfgPath, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func generateCmd(cfgPath *string, ui *ui) *cobra.Command {
	var (
		workflowPath string
		noEnrich     bool
		noSet        bool
	)
	cmd := &cobra.Command{
		Use:     "generate",
		Short:   "Generate a wallpaper and set it as the background",
		Example: "wallpapergen generate --config ~/.config/wallpapergen/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigOptional(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if workflowPath != "" {
				cfg.WorkflowPath = workflowPath
			}
			if noEnrich {
				cfg.EnrichEnabled = false
			}
			if noSet {
				cfg.SetWallpaper = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, closeLog := newLogger(cfg.LogFile, ui)
			defer closeLog()
			logger.Info("=== ComfyUI Wallpaper Generator ===")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			o := orchestrator.New(cfg, logger)
			interactive := term.IsTerminal(int(os.Stdout.Fd()))

			var spin *spinner.Spinner
			if interactive {
				spin = spinner.New(spinner.CharSets[14], 120*time.Millisecond)
				spin.Suffix = " Generating wallpaper..."
				spin.Start()
				defer spin.Stop()

				var bar *progressbar.ProgressBar
				var once sync.Once
				o.OnProgress = func(p comfy.Progress) {
					once.Do(func() {
						spin.Stop()
						bar = progressbar.NewOptions(p.Max,
							progressbar.OptionSetDescription("Sampling"),
							progressbar.OptionSetWidth(18),
							progressbar.OptionShowCount(),
							progressbar.OptionClearOnFinish(),
						)
					})
					_ = bar.Set(p.Value)
				}
			}

			path, err := o.Run(ctx)
			if spin != nil {
				spin.Stop()
			}
			if err != nil {
				if orchestrator.IsNoArtifact(err) {
					fmt.Printf("%s Generation finished but produced no image\n", ui.warn("[WARN]"))
				}
				if path != "" {
					fmt.Printf("%s Wallpaper saved: %s\n", ui.info("[INFO]"), path)
				}
				return err
			}
			fmt.Printf("%s Wallpaper saved: %s\n", ui.ok("[OK]"), path)
			if cfg.SetWallpaper {
				fmt.Printf("%s Background updated\n", ui.ok("[OK]"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowPath, "workflow", "", "Workflow file override")
	cmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "Skip prompt enrichment, use the template prompt")
	cmd.Flags().BoolVar(&noSet, "no-set", false, "Save the wallpaper without setting the background")
	return cmd
}

func extractCmd(ui *ui) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:     "extract <image.png> [output.json]",
		Short:   "Extract the embedded workflow from a generated PNG",
		Example: "wallpapergen extract output/ComfyUI_00001_.png workflow.json",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := workflow.ExtractEmbedded(args[0], key)
			if err != nil {
				return err
			}
			if len(args) == 2 {
				if err := os.WriteFile(args[1], append(out, '\n'), 0o644); err != nil {
					return err
				}
				fmt.Printf("%s Workflow saved to: %s\n", ui.ok("[OK]"), args[1])
				return nil
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "workflow", "Metadata key to extract (workflow or prompt)")
	return cmd
}

func configCmd(cfgPath *string, ui *ui) *cobra.Command {
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigOptional(*cfgPath)
			if err != nil {
				return err
			}
			fmt.Printf("%s Effective configuration\n", ui.title("wallpapergen"))
			fmt.Printf("%s Server:        %s\n", ui.info("•"), cfg.ServerAddr)
			fmt.Printf("%s ComfyUI dir:   %s\n", ui.info("•"), cfg.ComfyDir)
			fmt.Printf("%s Workflow:      %s\n", ui.info("•"), cfg.WorkflowPath)
			fmt.Printf("%s Wallpaper dir: %s\n", ui.info("•"), cfg.WallpaperDir)
			fmt.Printf("%s Symlink:       %s\n", ui.info("•"), cfg.SymlinkPath)
			fmt.Printf("%s Log file:      %s\n", ui.info("•"), cfg.LogFile)
			fmt.Printf("%s Seed path:     node %s input %s\n", ui.info("•"), cfg.SeedNode, cfg.SeedInput)
			fmt.Printf("%s Prompt path:   node %s input %s\n", ui.info("•"), cfg.PromptNode, cfg.PromptInput)
			fmt.Printf("%s Enrichment:    %v (%s)\n", ui.info("•"), cfg.EnrichEnabled, cfg.EnrichCLIPath)
			fmt.Printf("%s Set wallpaper: %v (%s)\n", ui.info("•"), cfg.SetWallpaper, cfg.SwaybgPath)
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration operations",
	}
	cmd.AddCommand(show)
	return cmd
}

// newLogger tees structured logs to stderr and the run log file. A log file
// that cannot be opened downgrades to stderr only.
func newLogger(logFile string, ui *ui) (*slog.Logger, func()) {
	w := io.Writer(os.Stderr)
	closeLog := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s cannot open log file %s: %v\n", ui.warn("[WARN]"), logFile, err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
			closeLog = func() { _ = f.Close() }
		}
	}
	return slog.New(slog.NewTextHandler(w, nil)), closeLog
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
