package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/pipeline"
	"github.com/eternnoir/llmcuts/pkg/transcriber"
)

// transcribeCmd represents the transcribe command
var transcribeCmd = &cobra.Command{
	Use:   "transcribe [video files...]",
	Short: "Transcribe videos without running the LLM analysis",
	Long: `Transcribe extracts the audio of each video and transcribes it with the
configured backend. The transcript is cached exactly as "analyze" would cache
it, so a later analysis starts from the LLM phases.

Examples:
  # Transcribe to talk.txt next to the video
  llmcuts transcribe talk.mp4

  # Subtitles with the local whisper CLI
  llmcuts transcribe talk.mp4 --backend local --format srt

  # Force the language and write JSON segments
  llmcuts transcribe talk.mp4 --language en --format json -o talk.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().StringP("output", "o", "", "output file path (default: <video>.<format>)")
	transcribeCmd.Flags().String("format", "text", "output format (text, json, srt)")
	transcribeCmd.Flags().String("language", "", "language code passed to the backend (e.g. en)")
	transcribeCmd.Flags().String("backend", "", "transcription backend (auto, api, local)")
	transcribeCmd.Flags().Int("chunk-minutes", 0, "chunk duration in minutes for long audio")
	transcribeCmd.Flags().Int("workers", 0, "number of concurrent chunk uploads")
	transcribeCmd.Flags().Bool("stdout", false, "print the transcript instead of writing a file")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("transcribe")

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text", "json", "srt":
	default:
		return fmt.Errorf("unknown format %q (want text, json or srt)", format)
	}
	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath != "" && len(args) > 1 {
		return fmt.Errorf("--output can only be used with a single video")
	}
	toStdout, _ := cmd.Flags().GetBool("stdout")

	tc := &appConfig.Transcribe
	if cmd.Flags().Changed("language") {
		tc.Language, _ = cmd.Flags().GetString("language")
	}
	if cmd.Flags().Changed("backend") {
		tc.Backend, _ = cmd.Flags().GetString("backend")
	}
	if cmd.Flags().Changed("chunk-minutes") {
		tc.ChunkMinutes, _ = cmd.Flags().GetInt("chunk-minutes")
	}
	if cmd.Flags().Changed("workers") {
		tc.Workers, _ = cmd.Flags().GetInt("workers")
	}

	comps, err := buildComponents()
	if err != nil {
		return err
	}

	var failed int
	for _, videoPath := range args {
		start := time.Now()
		progress := newProgressPrinter(os.Stderr)
		res, err := comps.Pipeline.Transcribe(cmd.Context(), videoPath, pipeline.Options{Progress: progress.pipeline})
		progress.finish()
		if err != nil {
			log.Error().Err(err).Str("path", videoPath).Msg("Transcription failed")
			failed++
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			continue
		}

		data, err := renderTranscript(res.Transcript, format)
		if err != nil {
			return err
		}
		if toStdout {
			_, _ = cmd.OutOrStdout().Write(data)
			continue
		}

		target := outputPath
		if target == "" {
			target = defaultTranscriptPath(videoPath, format)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("failed to write transcript: %w", err)
		}

		t := res.Transcript
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d segments, %s, %s, %v)\n",
			videoPath, target, len(t.Segments), t.Backend, t.Model, time.Since(start).Round(time.Second))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed to transcribe", failed, len(args))
	}
	return nil
}

func renderTranscript(t *transcriber.Transcript, format string) ([]byte, error) {
	switch format {
	case "srt":
		return t.ToSRT(), nil
	case "json":
		var sb strings.Builder
		if err := writeJSON(&sb, t); err != nil {
			return nil, fmt.Errorf("failed to encode transcript: %w", err)
		}
		return []byte(sb.String()), nil
	default:
		return []byte(strings.TrimSpace(t.Text) + "\n"), nil
	}
}

func defaultTranscriptPath(videoPath, format string) string {
	ext := ".txt"
	switch format {
	case "json":
		ext = ".transcript.json"
	case "srt":
		ext = ".srt"
	}
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ext
}
