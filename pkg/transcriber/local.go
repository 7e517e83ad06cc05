package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eternnoir/llmcuts/pkg/logger"
)

// CommandRunner executes an external command and returns combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LocalBackend runs a whisper CLI that writes JSON next to a work dir
type LocalBackend struct {
	command string
	model   string // empty selects by duration
	device  string
	workDir string
	run     CommandRunner
}

// LocalOption configures a LocalBackend
type LocalOption func(*LocalBackend)

// WithLocalModel pins the preferred model name
func WithLocalModel(model string) LocalOption {
	return func(b *LocalBackend) { b.model = model }
}

// WithDevice passes --device to the CLI unless it is "auto"
func WithDevice(device string) LocalOption {
	return func(b *LocalBackend) { b.device = device }
}

// WithCommandRunner replaces exec for tests
func WithCommandRunner(run CommandRunner) LocalOption {
	return func(b *LocalBackend) { b.run = run }
}

// WithWorkDir sets where the CLI writes its JSON
func WithWorkDir(dir string) LocalOption {
	return func(b *LocalBackend) { b.workDir = dir }
}

// NewLocalBackend creates a backend around the given whisper executable
func NewLocalBackend(command string, opts ...LocalOption) *LocalBackend {
	if command == "" {
		command = "whisper"
	}
	b := &LocalBackend{
		command: command,
		device:  "auto",
		run:     execRunner,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the backend identifier
func (b *LocalBackend) Name() string {
	return "local"
}

// ModelForDuration picks a model size that keeps long videos tractable.
func ModelForDuration(seconds float64) string {
	switch {
	case seconds <= 0:
		return "medium"
	case seconds < 10*60:
		return "small"
	case seconds < 60*60:
		return "medium"
	default:
		return "large"
	}
}

// ModelCandidates returns the preferred model followed by smaller fallbacks.
func ModelCandidates(preferred string) []string {
	return dedupe([]string{preferred, "medium", "small", "base"})
}

// Transcribe runs the CLI once per candidate model until one succeeds
func (b *LocalBackend) Transcribe(ctx context.Context, audioPath string, opts Options) (*Transcript, error) {
	log := logger.Component(ctx, "whisper-local").WithField("file", filepath.Base(audioPath))

	preferred := b.model
	if preferred == "" {
		preferred = ModelForDuration(opts.Duration)
	}

	outDir := b.workDir
	if outDir == "" {
		var err error
		outDir, err = os.MkdirTemp("", "llmcuts_whisper_*")
		if err != nil {
			return nil, fmt.Errorf("failed to create whisper output dir: %w", err)
		}
		defer os.RemoveAll(outDir)
	} else if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create whisper output dir: %w", err)
	}

	var lastErr error
	for _, model := range ModelCandidates(preferred) {
		args := b.args(audioPath, model, outDir, opts)
		log.Info().Str("model", model).Msg("Running local whisper")

		out, err := b.run(ctx, b.command, args...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%s %s: %w: %s", b.command, model, err, tail(string(out), 400))
			log.Warn().Err(lastErr).Str("model", model).Msg("Local model failed, trying next")
			continue
		}

		jsonPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))+".json")
		t, err := readWhisperJSON(jsonPath)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("model", model).Msg("Local model output unreadable, trying next")
			continue
		}
		t.Model = model
		t.Backend = b.Name()
		return t, nil
	}

	return nil, fmt.Errorf("%w: last error: %v", ErrAllModelsFailed, lastErr)
}

func (b *LocalBackend) args(audioPath, model, outDir string, opts Options) []string {
	args := []string{
		audioPath,
		"--model", model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
		"--task", "transcribe",
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.Prompt != "" {
		args = append(args, "--initial_prompt", opts.Prompt)
	}
	if b.device != "" && b.device != "auto" {
		args = append(args, "--device", b.device)
		if b.device == "cpu" {
			args = append(args, "--fp16", "False")
		}
	}
	return args
}

// whisperJSON is the file the reference whisper CLI writes. Timestamps are
// decoded as decimals so 0.1-style values do not pick up float noise before
// rounding to milliseconds.
type whisperJSON struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		ID    int             `json:"id"`
		Start decimal.Decimal `json:"start"`
		End   decimal.Decimal `json:"end"`
		Text  string          `json:"text"`
	} `json:"segments"`
}

func readWhisperJSON(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}
	return parseWhisperJSON(data)
}

func parseWhisperJSON(data []byte) (*Transcript, error) {
	var raw whisperJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	t := &Transcript{
		Text:     strings.TrimSpace(raw.Text),
		Language: raw.Language,
		Segments: make([]Segment, 0, len(raw.Segments)),
	}
	for _, s := range raw.Segments {
		seg := Segment{
			ID:    s.ID,
			Start: s.Start.Round(3).InexactFloat64(),
			End:   s.End.Round(3).InexactFloat64(),
			Text:  strings.TrimSpace(s.Text),
		}
		if seg.End > t.Duration {
			t.Duration = seg.End
		}
		t.Segments = append(t.Segments, seg)
	}
	return t, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
