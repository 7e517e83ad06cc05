package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/watcher"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Watch a directory and analyze new videos as they arrive",
	Long: `Watch monitors a directory for new or modified videos and runs the full
analysis on each one once it has stopped growing. Videos are identified by
content, so renamed or copied files are not analyzed twice; the history of
processed and failed videos survives restarts.

Examples:
  # Watch the current directory
  llmcuts watch .

  # Watch recursively, export clips and move finished videos away
  llmcuts watch ./inbox -r --export --move-to ./done

  # Process what is already there and exit
  llmcuts watch ./batch --once

  # Watch specific file types
  llmcuts watch ./recordings --pattern "*.mkv,*.webm"`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	// Watch options
	watchCmd.Flags().StringSlice("pattern", nil, "file patterns to watch (comma-separated)")
	watchCmd.Flags().BoolP("recursive", "r", false, "watch subdirectories recursively")
	watchCmd.Flags().Duration("interval", 0, "rescan interval for missed files")
	watchCmd.Flags().Bool("once", false, "process existing files and exit")
	watchCmd.Flags().Bool("no-existing", false, "skip processing existing files on startup")

	// Processing options
	watchCmd.Flags().Duration("stability-wait", 0, "time a file must stay unchanged before processing")
	watchCmd.Flags().Duration("processing-timeout", 0, "maximum time to process a single file")
	watchCmd.Flags().Int("max-workers", 0, "maximum concurrent analyses")
	watchCmd.Flags().Bool("force", false, "ignore every cached step, including the transcript")

	// Output options
	watchCmd.Flags().Bool("export", false, "export clips for every analyzed video")
	watchCmd.Flags().String("export-dir", "", "root directory for exported clips")
	watchCmd.Flags().String("quality", "", "export quality (original, high, medium, low)")
	watchCmd.Flags().String("move-to", "", "move processed videos to this directory")

	// History options
	watchCmd.Flags().String("history-db", "", "path to history database")
	watchCmd.Flags().Bool("retry-failed", false, "retry previously failed videos")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")

	watchDir := args[0]
	info, err := os.Stat(watchDir)
	if err != nil {
		return fmt.Errorf("invalid watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path must be a directory")
	}

	cfg, err := loadWatchConfig(cmd, watchDir)
	if err != nil {
		return err
	}
	log.Debug().Interface("config", cfg).Msg("Loaded watch configuration")

	comps, err := buildComponents()
	if err != nil {
		return err
	}
	if comps.LLM == nil {
		return fmt.Errorf("watch mode needs an API key for cut analysis. Set LLMCUTS_OPENAI_API_KEY or use --api-key")
	}

	fileWatcher, err := watcher.NewFileWatcher(cfg, comps.Pipeline, comps.Exporter, comps.Hasher)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	out := cmd.OutOrStdout()
	fileWatcher.SetProgressCallback(func(event *watcher.ProgressEvent) {
		printWatchEvent(out, event)
	})

	ctx := cmd.Context()
	if err := fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	once, _ := cmd.Flags().GetBool("once")
	if once {
		log.Info().Msg("Running in once mode, will exit after processing existing files")
		done := make(chan struct{})
		go func() {
			fileWatcher.WaitForInitialProcessing().Wait()
			close(done)
		}()
		select {
		case <-done:
			log.Info().Msg("Initial processing completed, exiting")
		case <-ctx.Done():
		}
	} else {
		fmt.Fprintf(out, "\nWatching directory: %s\n", watchDir)
		if cfg.Recursive {
			fmt.Fprintln(out, "   Recursive: yes")
		}
		fmt.Fprintf(out, "   Patterns: %s\n", strings.Join(cfg.Patterns, ", "))
		fmt.Fprintf(out, "   Workers: %d\n", cfg.MaxWorkers)
		if cfg.Export {
			fmt.Fprintf(out, "   Clips: %s (%s)\n", cfg.ExportDir, cfg.Quality)
		}
		if cfg.MoveToDir != "" {
			fmt.Fprintf(out, "   Move to: %s\n", cfg.MoveToDir)
		}
		fmt.Fprintln(out, "\nPress Ctrl+C to stop watching...")

		stopStats := make(chan struct{})
		go displayStats(out, fileWatcher, stopStats)
		<-ctx.Done()
		close(stopStats)
		fmt.Fprintln(out, "\nShutting down...")
	}

	if err := fileWatcher.Stop(); err != nil {
		return fmt.Errorf("error stopping file watcher: %w", err)
	}

	stats := fileWatcher.GetStats()
	fmt.Fprintln(out, "\nFinal statistics:")
	fmt.Fprintln(out, renderTable(
		[]string{"Processed", "Failed", "Skipped", "Clips", "Clip size", "Duration"},
		[][]string{{
			fmt.Sprint(stats.ProcessedCount),
			fmt.Sprint(stats.FailedCount),
			fmt.Sprint(stats.SkippedCount),
			fmt.Sprint(stats.ClipCount),
			humanBytes(stats.TotalSize),
			time.Since(stats.StartTime).Round(time.Second).String(),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	return nil
}

// loadWatchConfig starts from the watch section of the config file and
// applies the flags that were set explicitly
func loadWatchConfig(cmd *cobra.Command, watchDir string) (*watcher.WatchConfig, error) {
	quality, err := qualityFlag(cmd)
	if err != nil {
		return nil, err
	}
	cfg := watcher.FromConfig(appConfig, watchDir)
	cfg.Quality = quality

	flags := cmd.Flags()
	if flags.Changed("pattern") {
		cfg.Patterns, _ = flags.GetStringSlice("pattern")
	}
	if flags.Changed("recursive") {
		cfg.Recursive, _ = flags.GetBool("recursive")
	}
	if flags.Changed("interval") {
		cfg.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("stability-wait") {
		cfg.StabilityWait, _ = flags.GetDuration("stability-wait")
	}
	if flags.Changed("processing-timeout") {
		cfg.ProcessingTimeout, _ = flags.GetDuration("processing-timeout")
	}
	if flags.Changed("max-workers") {
		cfg.MaxWorkers, _ = flags.GetInt("max-workers")
	}
	if flags.Changed("export") {
		cfg.Export, _ = flags.GetBool("export")
	}
	if flags.Changed("export-dir") {
		cfg.ExportDir, _ = flags.GetString("export-dir")
	}
	if flags.Changed("move-to") {
		cfg.MoveToDir, _ = flags.GetString("move-to")
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB, _ = flags.GetString("history-db")
	}
	if flags.Changed("retry-failed") {
		cfg.RetryFailed, _ = flags.GetBool("retry-failed")
	}
	if noExisting, _ := flags.GetBool("no-existing"); noExisting {
		cfg.ProcessExisting = false
	}
	cfg.Force, _ = flags.GetBool("force")

	if cfg.MaxWorkers < 1 {
		return nil, fmt.Errorf("--max-workers must be at least 1")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("--interval must be positive")
	}
	if cfg.ProcessingTimeout <= 0 {
		return nil, fmt.Errorf("--processing-timeout must be positive")
	}
	return cfg, nil
}

func printWatchEvent(w io.Writer, event *watcher.ProgressEvent) {
	switch event.Type {
	case watcher.EventFound:
		fmt.Fprintf(w, "Found: %s\n", event.FilePath)
	case watcher.EventProcessing:
		fmt.Fprintf(w, "Processing: %s\n", event.FilePath)
	case watcher.EventExporting:
		fmt.Fprintf(w, "Exporting: %s\n", event.FilePath)
	case watcher.EventCompleted:
		fmt.Fprintf(w, "Completed: %s - %s\n", event.FilePath, event.Message)
	case watcher.EventFailed:
		fmt.Fprintf(w, "Failed: %s - %v\n", event.FilePath, event.Error)
	case watcher.EventSkipped:
		if event.Settled {
			fmt.Fprintf(w, "Skipped: %s - %s\n", event.FilePath, event.Message)
		}
	}
}

func displayStats(w io.Writer, fw watcher.FileWatcher, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats := fw.GetStats()
			if stats.ProcessedCount > 0 || stats.FailedCount > 0 {
				fmt.Fprintf(w, "Stats - Processed: %d | Failed: %d | In progress: %d | Clips: %d\n",
					stats.ProcessedCount, stats.FailedCount, stats.InProgress, stats.ClipCount)
			}
		}
	}
}
