package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/eternnoir/llmcuts/pkg/logger"
)

var (
	// ErrUnsupported is returned for files whose extension is not a known video container.
	ErrUnsupported = errors.New("unsupported video format")
	// ErrNoAudio is returned when the container has no audio stream.
	ErrNoAudio = errors.New("video has no audio stream")
)

// SampleRate and Channels of the extracted speech track.
const (
	SampleRate = 16000
	Channels   = 1
)

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".avi": true,
	".webm": true, ".m4v": true, ".flv": true, ".wmv": true,
}

// ProcessorImpl implements Tool with ffprobe/ffmpeg.
type ProcessorImpl struct {
	probe func(path string) (string, error)
}

// NewProcessor creates a new ffmpeg-backed processor
func NewProcessor() *ProcessorImpl {
	return &ProcessorImpl{
		probe: func(path string) (string, error) { return ffmpeg.Probe(path) },
	}
}

// Probe extracts duration, resolution and stream info from a video file
func (p *ProcessorImpl) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	log := logger.Component(ctx, "media").WithField("file", filepath.Base(path))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat video: %w", err)
	}

	raw, err := p.probe(path)
	if err != nil {
		log.Error().Err(err).Msg("ffprobe failed")
		return nil, fmt.Errorf("failed to probe file: %w", err)
	}

	info, err := ParseProbe(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse probe info: %w", err)
	}
	info.Path = path
	info.Filename = filepath.Base(path)
	if info.Size == 0 {
		info.Size = stat.Size()
	}

	log.Debug().
		Float64("duration", info.Duration).
		Str("resolution", info.Resolution).
		Float64("fps", info.FPS).
		Bool("has_audio", info.HasAudio).
		Msg("Probed video")

	return info, nil
}

// ExtractAudio writes a mono 16 kHz pcm_s16le WAV of the video's audio track
func (p *ProcessorImpl) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	log := logger.Component(ctx, "media").
		WithField("input", filepath.Base(videoPath)).
		WithField("output", filepath.Base(outputPath))

	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("input file does not exist: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	started := time.Now()
	if err := Run(ctx, ExtractAudioStream(videoPath, outputPath)); err != nil {
		return fmt.Errorf("failed to extract audio: %w", err)
	}

	stat, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("output file was not created: %w", err)
	}

	log.Info().
		Dur("elapsed", time.Since(started)).
		Int64("bytes", stat.Size()).
		Msg("Audio extracted")
	return nil
}

// ExtractAudioStream builds the ffmpeg invocation used by ExtractAudio.
func ExtractAudioStream(videoPath, outputPath string) *ffmpeg.Stream {
	return ffmpeg.Input(videoPath).Output(outputPath, ffmpeg.KwArgs{
		"vn":     "",
		"f":      "wav",
		"acodec": "pcm_s16le",
		"ar":     strconv.Itoa(SampleRate),
		"ac":     strconv.Itoa(Channels),
	})
}

// IsSupported checks the extension against known video containers
func IsSupported(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// ValidateFile checks existence, extension and the presence of audio.
func (p *ProcessorImpl) ValidateFile(ctx context.Context, path string) (*VideoInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("file does not exist: %w", err)
	}
	if !IsSupported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	info, err := p.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("invalid or corrupted file: %w", err)
	}
	if !info.HasAudio {
		return nil, ErrNoAudio
	}
	return info, nil
}

// ParseProbe converts ffprobe JSON into VideoInfo
func ParseProbe(raw string) (*VideoInfo, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
			Size     string `json:"size"`
		} `json:"format"`
		Streams []struct {
			CodecType    string `json:"codec_type"`
			CodecName    string `json:"codec_name"`
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			RFrameRate   string `json:"r_frame_rate"`
			AvgFrameRate string `json:"avg_frame_rate"`
			Duration     string `json:"duration"`
		} `json:"streams"`
	}

	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, fmt.Errorf("failed to parse probe JSON: %w", err)
	}

	info := &VideoInfo{}
	if v, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = v
	}
	if v, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.BitRate = v
	}
	if v, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
		info.Size = v
	}

	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseRate(s.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = parseRate(s.RFrameRate)
			}
			if info.Duration == 0 {
				if v, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					info.Duration = v
				}
			}
		case "audio":
			if !info.HasAudio {
				info.HasAudio = true
				info.AudioCodec = s.CodecName
			}
		}
	}

	if info.Width > 0 && info.Height > 0 {
		info.Resolution = fmt.Sprintf("%dx%d", info.Width, info.Height)
	}
	return info, nil
}

// parseRate handles ffprobe's "30000/1001" style rates.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return float64(int(n/d*100+0.5)) / 100
}
