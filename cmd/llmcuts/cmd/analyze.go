package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/export"
	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/pipeline"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [video files...]",
	Short: "Find clip-worthy cuts in one or more videos",
	Long: `Analyze runs the full pipeline on each video: audio extraction,
transcription, topic analysis and cut generation. Every step is cached by the
content hash of the video, so re-running on the same content is instant.

Examples:
  # Analyze a single video
  llmcuts analyze talk.mp4

  # Re-run the LLM phases but keep the transcript
  llmcuts analyze talk.mp4 --skip-topics-cache

  # Start over, transcription included
  llmcuts analyze talk.mp4 --force

  # Analyze and export the clips at medium quality
  llmcuts analyze talk.mp4 --export --quality medium

  # Write the result as JSON
  llmcuts analyze talk.mp4 -o talk.cuts.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().Bool("force", false, "ignore every cached step, including the transcript")
	analyzeCmd.Flags().Bool("skip-topics-cache", false, "regenerate topics and cuts but reuse the cached transcript")
	analyzeCmd.Flags().Bool("json", false, "print the result as JSON")
	analyzeCmd.Flags().StringP("output", "o", "", "write the result as JSON to this file (single video only)")
	analyzeCmd.Flags().Bool("export", false, "export each cut as a clip")
	analyzeCmd.Flags().String("quality", "", "export quality (original, high, medium, low)")
	analyzeCmd.Flags().String("export-dir", "", "clip output directory (default <export.output_dir>/<video name>)")
	analyzeCmd.Flags().Int("max-cuts", 0, "maximum number of cuts to keep")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("analyze")

	outputFile, _ := cmd.Flags().GetString("output")
	if outputFile != "" && len(args) > 1 {
		return fmt.Errorf("--output can only be used with a single video")
	}
	if cmd.Flags().Changed("max-cuts") {
		appConfig.Cuts.MaxCuts, _ = cmd.Flags().GetInt("max-cuts")
	}
	quality, err := qualityFlag(cmd)
	if err != nil {
		return err
	}

	comps, err := buildComponents()
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	skipTopics, _ := cmd.Flags().GetBool("skip-topics-cache")
	asJSON, _ := cmd.Flags().GetBool("json")
	doExport, _ := cmd.Flags().GetBool("export")
	exportDir, _ := cmd.Flags().GetString("export-dir")

	out := cmd.OutOrStdout()
	var failed []string
	for i, videoPath := range args {
		if len(args) > 1 {
			log.Info().Int("file", i+1).Int("total", len(args)).Str("path", videoPath).Msg("Processing file")
		}

		start := time.Now()
		progress := newProgressPrinter(os.Stderr)
		outcome := <-comps.Pipeline.RunAsync(cmd.Context(), videoPath, pipeline.Options{
			Force:           force,
			SkipTopicsCache: skipTopics,
			Progress:        progress.pipeline,
		})
		progress.finish()
		if outcome.Err != nil {
			log.Error().Err(outcome.Err).Str("path", videoPath).Msg("Analysis failed")
			failed = append(failed, videoPath)
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			continue
		}
		res := outcome.Result

		switch {
		case outputFile != "":
			if err := writeResultFile(outputFile, res); err != nil {
				return err
			}
			fmt.Fprintf(out, "Result written to %s\n", outputFile)
		case asJSON:
			if err := writeJSON(out, res); err != nil {
				return err
			}
		default:
			printResult(cmd, res, time.Since(start))
		}

		if doExport {
			dir := exportDir
			if dir == "" {
				dir = clipDir(appConfig.Export.OutputDir, videoPath)
			}
			if err := exportClips(cmd, comps.Exporter, videoPath, res.Final.Cuts, dir, quality); err != nil {
				log.Error().Err(err).Str("path", videoPath).Msg("Export failed")
				failed = append(failed, videoPath)
			}
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d videos failed: %s", len(failed), len(args), strings.Join(failed, ", "))
	}
	return nil
}

func printResult(cmd *cobra.Command, res *pipeline.Result, elapsed time.Duration) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s\n", res.VideoPath)
	fmt.Fprintf(out, "Hash: %s", shortKey(res.Hash))
	if res.Model != "" {
		fmt.Fprintf(out, "  Model: %s", res.Model)
	}
	if res.FromCache {
		fmt.Fprint(out, "  (cached)")
	} else {
		fmt.Fprintf(out, "  Took: %v", elapsed.Round(time.Second))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, cutsTable(res.Final.Cuts))
	printStats(out, res.Stats)
}

func writeResultFile(path string, res *pipeline.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writeJSON(f, res); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return f.Close()
}

// exportClips renders list from videoPath into dir and prints a summary
// table. It fails only when no clip could be written.
func exportClips(cmd *cobra.Command, exporter *export.Exporter, videoPath string, list []cuts.Cut, dir string, q export.Quality) error {
	progress := newProgressPrinter(os.Stderr)
	res, err := exporter.ExportBatch(cmd.Context(), videoPath, list, dir, q, progress.export)
	progress.finish()
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(res.Outputs)+len(res.Failed))
	for _, o := range res.Outputs {
		rows = append(rows, []string{"ok", o, fileSize(o)})
	}
	for _, f := range res.Failed {
		rows = append(rows, []string{"failed", f.Cut.Title, f.Err.Error()})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"Status", "Clip", "Size"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight}))
	fmt.Fprintf(out, "Exported %d of %d clips to %s\n", len(res.Outputs), len(list), dir)

	if len(res.Outputs) == 0 && len(res.Failed) > 0 {
		return fmt.Errorf("all %d clips failed to export", len(res.Failed))
	}
	return nil
}

func qualityFlag(cmd *cobra.Command) (export.Quality, error) {
	q := appConfig.Export.Quality
	if cmd.Flags().Changed("quality") {
		q, _ = cmd.Flags().GetString("quality")
	}
	for _, known := range export.Qualities {
		if export.Quality(q) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown quality %q (want original, high, medium or low)", q)
}

// clipDir is root/<sanitized video name>
func clipDir(root, videoPath string) string {
	base := filepath.Base(videoPath)
	return filepath.Join(root, export.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base))))
}

func shortKey(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "-"
	}
	return humanBytes(info.Size())
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
