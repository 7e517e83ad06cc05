package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eternnoir/llmcuts/pkg/cache"
	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/fingerprint"
	"github.com/eternnoir/llmcuts/pkg/timecode"
)

var cutsCmd = &cobra.Command{
	Use:   "cuts",
	Short: "Inspect and edit cut lists",
}

var cutsListCmd = &cobra.Command{
	Use:   "list <video | cache key prefix>",
	Short: "Show the cached cuts for a video",
	Long: `List prints the cuts stored for a video. The argument is either the
video file itself or a prefix of its cache key as shown by "cache show".`,
	Args: cobra.ExactArgs(1),
	RunE: runCutsList,
}

var cutsParseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a hand-written cut list",
	Long: `Parse reads cuts in the form

  HH:MM:SS - HH:MM:SS - Title - optional description

one per line, from a file or from stdin. Blank lines are ignored. With
--video and --save the list is validated against the video and stored as its
cuts, replacing any generated ones.

Examples:
  llmcuts cuts parse picks.txt
  pbpaste | llmcuts cuts parse --json
  llmcuts cuts parse picks.txt --video talk.mp4 --save`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCutsParse,
}

func init() {
	rootCmd.AddCommand(cutsCmd)
	cutsCmd.AddCommand(cutsListCmd, cutsParseCmd)

	cutsListCmd.Flags().Bool("json", false, "print the cut record as JSON")

	cutsParseCmd.Flags().Bool("json", false, "print the parsed cuts as JSON")
	cutsParseCmd.Flags().String("video", "", "video the cuts belong to")
	cutsParseCmd.Flags().Bool("save", false, "store the cuts in the cache for --video")
}

// resolveKey maps a video path or cache key prefix to a cache key
func resolveKey(store *cache.Manager, arg string) (string, string, error) {
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		id, err := fingerprint.Identify(arg)
		if err != nil {
			return "", "", err
		}
		return id.Hash, id.Path, nil
	}
	entry, err := store.Lookup(arg)
	if err != nil {
		return "", "", err
	}
	return entry.Hash, entry.VideoPath, nil
}

func loadCuts(store *cache.Manager, arg string) (*cache.CutsPayload, string, error) {
	hash, videoPath, err := resolveKey(store, arg)
	if err != nil {
		return nil, "", err
	}
	var payload cache.CutsPayload
	if _, err := store.Load(cache.KindCuts, hash, &payload); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, "", fmt.Errorf("no cuts cached for %s, run \"llmcuts analyze\" first", arg)
		}
		return nil, "", err
	}
	if payload.CutsData == nil {
		return nil, "", fmt.Errorf("cached cuts for %s are empty", arg)
	}
	return &payload, videoPath, nil
}

func runCutsList(cmd *cobra.Command, args []string) error {
	store, err := cache.Open(appConfig.Cache.Dir)
	if err != nil {
		return err
	}
	payload, videoPath, err := loadCuts(store, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, payload)
	}

	final := payload.CutsData
	info := payload.ProcessingInfo
	fmt.Fprintf(out, "%s\n", videoPath)
	fmt.Fprintf(out, "Source: %s", info.Phase)
	if info.Model != "" {
		fmt.Fprintf(out, " (%s)", info.Model)
	}
	if !info.Timestamp.IsZero() {
		fmt.Fprintf(out, ", %s", info.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, cutsTable(final.Cuts))

	duration := 0.0
	if seconds, err := timecode.Parse(final.VideoInfo.Duration); err == nil {
		duration = seconds
	}
	printStats(out, cuts.Summarize(final.Cuts, duration))
	return nil
}

func runCutsParse(cmd *cobra.Command, args []string) error {
	var (
		data   []byte
		err    error
		source = "stdin"
	)
	if len(args) == 1 && args[0] != "-" {
		source = args[0]
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read cut list: %w", err)
	}

	list, err := cuts.ParseManual(string(data), source)
	if err != nil {
		return err
	}

	videoPath, _ := cmd.Flags().GetString("video")
	save, _ := cmd.Flags().GetBool("save")
	out := cmd.OutOrStdout()

	if save {
		if videoPath == "" {
			return fmt.Errorf("--save requires --video")
		}
		comps, err := buildComponents()
		if err != nil {
			return err
		}
		res, err := comps.Pipeline.SaveCuts(cmd.Context(), videoPath, list)
		if err != nil {
			return err
		}
		list = res.Final.Cuts
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved %d cuts for %s (key %s)\n", len(list), videoPath, shortKey(res.Hash))
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, list)
	}
	fmt.Fprintln(out, cutsTable(list))
	return nil
}
