package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eternnoir/llmcuts/pkg/cache"
	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/export"
	"github.com/eternnoir/llmcuts/pkg/media"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <video>",
	Short: "Export cuts as individual clips",
	Long: `Export renders every cut of a video into its own file with FFmpeg.
The cuts come from the cache (run "analyze" first) or from a hand-written
list given with --manual.

Examples:
  # Export the cached cuts next to the configured output directory
  llmcuts export talk.mp4

  # Export a hand-written list at low quality
  llmcuts export talk.mp4 --manual picks.txt --quality low -d ./shorts`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("manual", "", "file with a hand-written cut list")
	exportCmd.Flags().String("quality", "", "export quality (original, high, medium, low)")
	exportCmd.Flags().StringP("output-dir", "d", "", "clip output directory (default <export.output_dir>/<video name>)")
	exportCmd.Flags().IntSlice("only", nil, "export only these cut numbers (1-based)")
}

func runExport(cmd *cobra.Command, args []string) error {
	videoPath := args[0]
	quality, err := qualityFlag(cmd)
	if err != nil {
		return err
	}

	list, err := exportList(cmd, videoPath)
	if err != nil {
		return err
	}
	if only, _ := cmd.Flags().GetIntSlice("only"); len(only) > 0 {
		if list, err = pick(list, only); err != nil {
			return err
		}
	}

	dir, _ := cmd.Flags().GetString("output-dir")
	if dir == "" {
		dir = clipDir(appConfig.Export.OutputDir, videoPath)
	}
	return exportClips(cmd, export.New(), videoPath, list, dir, quality)
}

// exportList returns the manual list validated against the video, or the
// cached cuts
func exportList(cmd *cobra.Command, videoPath string) ([]cuts.Cut, error) {
	manual, _ := cmd.Flags().GetString("manual")
	if manual == "" {
		store, err := cache.Open(appConfig.Cache.Dir)
		if err != nil {
			return nil, err
		}
		payload, _, err := loadCuts(store, videoPath)
		if err != nil {
			return nil, err
		}
		return payload.CutsData.Cuts, nil
	}

	data, err := os.ReadFile(manual)
	if err != nil {
		return nil, fmt.Errorf("failed to read cut list: %w", err)
	}
	list, err := cuts.ParseManual(string(data), manual)
	if err != nil {
		return nil, err
	}
	info, err := media.NewProcessor().ValidateFile(cmd.Context(), videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to validate video: %w", err)
	}
	return cuts.Validate(list, info.Duration, cuts.Options{})
}

func pick(list []cuts.Cut, numbers []int) ([]cuts.Cut, error) {
	out := make([]cuts.Cut, 0, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > len(list) {
			return nil, fmt.Errorf("cut %d out of range (1-%d)", n, len(list))
		}
		out = append(out, list[n-1])
	}
	return out, nil
}
