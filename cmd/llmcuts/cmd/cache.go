package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eternnoir/llmcuts/pkg/cache"
	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/media"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the processing cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List cached videos and cache usage",
	Args:  cobra.NoArgs,
	RunE:  runCacheShow,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [cache key prefix]",
	Short: "Remove cached records for one video or for all videos",
	Long: `Clear removes the transcription, topics and cuts records of one video,
identified by a cache key prefix or by the video file itself. With --all every
record and every cached audio track is removed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)

	cacheShowCmd.Flags().Bool("json", false, "print entries as JSON")
	cacheClearCmd.Flags().Bool("all", false, "clear the whole cache")
}

func audioCache() *media.AudioCache {
	return media.NewAudioCache(filepath.Join(appConfig.Cache.Dir, "audio"), nil)
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	store, err := cache.Open(appConfig.Cache.Dir)
	if err != nil {
		return err
	}
	stats, err := store.Stats()
	if err != nil {
		return err
	}
	entries, err := store.Entries()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(out, struct {
			Stats   *cache.Stats  `json:"stats"`
			Entries []cache.Entry `json:"entries"`
		}{stats, entries})
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		var kinds []string
		for _, k := range cache.Kinds {
			if e.Has(k) {
				kinds = append(kinds, string(k))
			}
		}
		rows = append(rows, []string{
			shortKey(e.Hash),
			truncateString(e.VideoPath, 60),
			strings.Join(kinds, ", "),
			e.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Key", "Video", "Records", "Updated"}, rows, nil))

	tracks, audioBytes := audioCache().Size()
	fmt.Fprintf(out, "Cache: %s\n", store.Dir())
	fmt.Fprintf(out, "%d videos, %d transcriptions, %d topics, %d cuts (%s)\n",
		stats.Videos,
		stats.Records[cache.KindTranscription],
		stats.Records[cache.KindTopics],
		stats.Records[cache.KindCuts],
		humanBytes(stats.Bytes))
	fmt.Fprintf(out, "%d cached audio tracks (%s)\n", tracks, humanBytes(audioBytes))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cache")
	all, _ := cmd.Flags().GetBool("all")
	if all == (len(args) == 1) {
		return fmt.Errorf("give either a cache key prefix or --all")
	}

	store, err := cache.Open(appConfig.Cache.Dir)
	if err != nil {
		return err
	}
	audio := audioCache()
	out := cmd.OutOrStdout()

	if all {
		removed, err := store.ClearAll()
		if err != nil {
			return err
		}
		tracks, err := audio.Clear()
		if err != nil {
			return err
		}
		log.Info().Int("records", removed).Int("audio", tracks).Msg("Cache cleared")
		fmt.Fprintf(out, "Removed %d records and %d audio tracks\n", removed, tracks)
		return nil
	}

	hash, videoPath, err := resolveKey(store, args[0])
	if err != nil {
		return err
	}
	removed, err := store.Clear(hash)
	if err != nil {
		return err
	}
	if err := audio.Remove(hash); err != nil {
		return err
	}
	log.Info().Str("hash", hash).Int("records", removed).Msg("Cache entry cleared")
	fmt.Fprintf(out, "Removed %d records for %s\n", removed, videoPath)
	return nil
}
