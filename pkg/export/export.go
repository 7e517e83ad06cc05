// Package export cuts clips out of a source video with ffmpeg.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/media"
	"github.com/eternnoir/llmcuts/pkg/timecode"
)

// MinOutputSize is the smallest clip accepted as a successful export.
const MinOutputSize = 1000

const maxNameLength = 100

// ErrOutputTooSmall is returned when ffmpeg produced a missing or tiny file.
var ErrOutputTooSmall = errors.New("exported clip is too small")

// Quality names an encoding preset
type Quality string

const (
	QualityOriginal Quality = "original"
	QualityHigh     Quality = "high"
	QualityMedium   Quality = "medium"
	QualityLow      Quality = "low"
)

// Qualities lists the known presets
var Qualities = []Quality{QualityOriginal, QualityHigh, QualityMedium, QualityLow}

// Preset returns the ffmpeg output arguments for q. Unknown names use
// stream copy.
func Preset(q Quality) ffmpeg.KwArgs {
	switch q {
	case QualityHigh:
		return encode(18, "medium", "192k")
	case QualityMedium:
		return encode(23, "medium", "128k")
	case QualityLow:
		return encode(28, "fast", "96k")
	}
	return ffmpeg.KwArgs{"c:v": "copy", "c:a": "copy"}
}

func encode(crf int, preset, audioBitrate string) ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"c:v":    "libx264",
		"crf":    strconv.Itoa(crf),
		"preset": preset,
		"c:a":    "aac",
		"b:a":    audioBitrate,
	}
}

// Progress is reported before and after each clip in a batch
type Progress struct {
	Index   int     `json:"index"`
	Total   int     `json:"total"`
	Title   string  `json:"title"`
	Output  string  `json:"output,omitempty"`
	Percent float64 `json:"percent"`
	Done    bool    `json:"done"`
	Err     error   `json:"-"`
}

// ProgressFunc receives batch progress
type ProgressFunc func(Progress)

// Failure records one clip that could not be exported
type Failure struct {
	Cut    cuts.Cut
	Output string
	Err    error
}

// BatchResult lists written files and failures
type BatchResult struct {
	Outputs []string
	Failed  []Failure
}

// Exporter runs ffmpeg to write clips
type Exporter struct {
	run     func(ctx context.Context, stream *ffmpeg.Stream) error
	minSize int64
}

// Option configures an Exporter
type Option func(*Exporter)

// WithRunner replaces the ffmpeg runner
func WithRunner(run func(ctx context.Context, stream *ffmpeg.Stream) error) Option {
	return func(e *Exporter) {
		if run != nil {
			e.run = run
		}
	}
}

// New creates an exporter that runs the ffmpeg binary
func New(opts ...Option) *Exporter {
	e := &Exporter{run: media.Run, minSize: MinOutputSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ClipStream builds the ffmpeg invocation for one clip
func ClipStream(videoPath string, start, duration float64, outputPath string, q Quality) *ffmpeg.Stream {
	args := Preset(q)
	args["ss"] = timecode.FormatPrecise(start)
	args["t"] = timecode.FormatPrecise(duration)
	return ffmpeg.Input(videoPath).Output(outputPath, args)
}

// ExportCut writes one clip named after the cut's title and returns its path
func (e *Exporter) ExportCut(ctx context.Context, videoPath string, cut cuts.Cut, outDir string, q Quality) (string, error) {
	output := filepath.Join(outDir, SanitizeFilename(cut.Title)+".mp4")
	if err := e.exportTo(ctx, videoPath, cut, output, q); err != nil {
		return "", err
	}
	return output, nil
}

// ExportBatch writes every cut in order. A failed clip is recorded and the
// batch continues; cancellation stops before the next clip and returns the
// partial result with ctx.Err().
func (e *Exporter) ExportBatch(ctx context.Context, videoPath string, list []cuts.Cut, outDir string, q Quality, progress ProgressFunc) (*BatchResult, error) {
	log := logger.Component(ctx, "export").
		WithField("video", filepath.Base(videoPath)).
		WithField("quality", string(q))
	result := &BatchResult{}
	names := uniqueNames(list)
	total := len(list)

	notify := func(p Progress) {
		if progress != nil {
			progress(p)
		}
	}

	for i, cut := range list {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("exported", len(result.Outputs)).Msg("Export cancelled")
			return result, err
		}

		output := filepath.Join(outDir, names[i])
		notify(Progress{Index: i, Total: total, Title: cut.Title, Output: output, Percent: percent(i, total)})

		err := e.exportTo(ctx, videoPath, cut, output, q)
		if err != nil {
			log.Error().Err(err).Str("title", cut.Title).Msg("Failed to export clip")
			result.Failed = append(result.Failed, Failure{Cut: cut, Output: output, Err: err})
		} else {
			result.Outputs = append(result.Outputs, output)
		}
		notify(Progress{Index: i, Total: total, Title: cut.Title, Output: output, Percent: percent(i+1, total), Done: true, Err: err})
	}

	log.Info().
		Int("exported", len(result.Outputs)).
		Int("failed", len(result.Failed)).
		Msg("Export finished")
	return result, nil
}

func (e *Exporter) exportTo(ctx context.Context, videoPath string, cut cuts.Cut, output string, q Quality) error {
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("input video not found: %w", err)
	}
	start, end, err := cut.Span()
	if err != nil {
		return fmt.Errorf("invalid cut %q: %w", cut.Title, err)
	}
	if end <= start {
		return fmt.Errorf("invalid time range %s to %s", cut.Start, cut.End)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	logger.Component(ctx, "export").Debug().
		Str("title", cut.Title).
		Float64("start", start).
		Float64("duration", end-start).
		Str("output", output).
		Msg("Exporting clip")

	if err := e.run(ctx, ClipStream(videoPath, start, end-start, output, q)); err != nil {
		return fmt.Errorf("failed to export clip: %w", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputTooSmall, err)
	}
	if info.Size() <= e.minSize {
		return fmt.Errorf("%w: %d bytes", ErrOutputTooSmall, info.Size())
	}
	return nil
}

// SanitizeFilename makes a cut title safe to use as a file name
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "Untitled"
	}
	if len(name) > maxNameLength {
		name = truncate(name, maxNameLength)
	}
	return name
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for i := range s {
		if i > n {
			break
		}
		end = i
	}
	return s[:end]
}

func uniqueNames(list []cuts.Cut) []string {
	used := make(map[string]int, len(list))
	names := make([]string, len(list))
	for i, c := range list {
		base := SanitizeFilename(c.Title)
		key := strings.ToLower(base)
		used[key]++
		if n := used[key]; n > 1 {
			names[i] = fmt.Sprintf("%s_%d.mp4", base, n)
			continue
		}
		names[i] = base + ".mp4"
	}
	return names
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}
