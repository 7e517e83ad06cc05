// Package prompts loads the two analysis templates and fills them with
// transcript and video data.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/media"
	"github.com/eternnoir/llmcuts/pkg/timecode"
	"github.com/eternnoir/llmcuts/pkg/transcriber"
)

// Loader holds the templates read from a prompts directory
type Loader struct {
	dir string

	mu     sync.RWMutex
	topics string
	cuts   string
}

// NewLoader reads the templates in dir, writing the built-in defaults for
// any that are missing. An empty dir uses the defaults without touching
// the filesystem.
func NewLoader(dir string) (*Loader, error) {
	l := &Loader{dir: dir}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the template directory
func (l *Loader) Dir() string {
	return l.dir
}

// Reload re-reads both templates from disk
func (l *Loader) Reload() error {
	topics, err := l.loadOrCreate(TopicsFile, defaultTopicsTemplate)
	if err != nil {
		return err
	}
	cutsTmpl, err := l.loadOrCreate(CutsFile, defaultCutsTemplate)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.topics, l.cuts = topics, cutsTmpl
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadOrCreate(name, fallback string) (string, error) {
	if l.dir == "" {
		return fallback, nil
	}
	log := logger.WithComponent("prompts").WithField("template", name)
	path := filepath.Join(l.dir, name)

	data, err := os.ReadFile(path)
	if err == nil {
		log.Debug().Str("path", path).Msg("Loaded template")
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read template %s: %w", path, err)
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create prompts directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(fallback), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default template %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Created default template")
	return fallback, nil
}

// BuildTopicsPrompt fills the topics template
func (l *Loader) BuildTopicsPrompt(t *transcriber.Transcript, info *media.VideoInfo) string {
	l.mu.RLock()
	tmpl := l.topics
	l.mu.RUnlock()

	text := strings.TrimSpace(t.Text)
	if text == "" {
		parts := make([]string, 0, len(t.Segments))
		for _, s := range t.Segments {
			parts = append(parts, strings.TrimSpace(s.Text))
		}
		text = strings.Join(parts, " ")
	}

	filename, duration := videoFields(info)
	return strings.NewReplacer(
		"{filename}", filename,
		"{duration}", duration,
		"{transcript_text}", text,
	).Replace(tmpl)
}

// BuildCutsPrompt fills the cuts template
func (l *Loader) BuildCutsPrompt(topics *cuts.TopicsResult, t *transcriber.Transcript, info *media.VideoInfo) string {
	l.mu.RLock()
	tmpl := l.cuts
	l.mu.RUnlock()

	filename, duration := videoFields(info)
	return strings.NewReplacer(
		"{filename}", filename,
		"{duration}", duration,
		"{topics_json}", FormatTopics(topics),
		"{timestamped_transcript}", TimestampedTranscript(t),
	).Replace(tmpl)
}

// TimestampedTranscript renders one "[HH:MM:SS - HH:MM:SS] text" line per
// segment, or the plain text when there are no segments.
func TimestampedTranscript(t *transcriber.Transcript) string {
	if len(t.Segments) == 0 {
		return t.Text
	}
	var b strings.Builder
	for _, s := range t.Segments {
		fmt.Fprintf(&b, "[%s - %s] %s\n", timecode.Format(s.Start), timecode.Format(s.End), strings.TrimSpace(s.Text))
	}
	return b.String()
}

// FormatTopics renders topics as readable text rather than raw JSON
func FormatTopics(r *cuts.TopicsResult) string {
	if r == nil || len(r.Topics) == 0 {
		return "No topics identified."
	}

	var b strings.Builder
	if r.Summary != nil {
		total := r.Summary.TotalTopics
		if total == 0 {
			total = len(r.Topics)
		}
		fmt.Fprintf(&b, "TOPICS SUMMARY: %d topics identified\n\n", total)
	}

	for _, t := range r.Topics {
		title := t.Title
		if title == "" {
			title = "Untitled Topic"
		}
		desc := t.Description
		if desc == "" {
			desc = "No description"
		}
		importance := t.ImportanceLevel
		if importance == "" {
			importance = "unknown"
		}

		fmt.Fprintf(&b, "%d. %s\n", t.ID, title)
		fmt.Fprintf(&b, "   Description: %s\n", desc)
		fmt.Fprintf(&b, "   Importance: %s\n", importance)
		if len(t.Keywords) > 0 {
			fmt.Fprintf(&b, "   Keywords: %s\n", strings.Join(t.Keywords, ", "))
		}
		if len(t.RelatedTopics) > 0 {
			related := make([]string, len(t.RelatedTopics))
			for i, id := range t.RelatedTopics {
				related[i] = strconv.Itoa(id)
			}
			fmt.Fprintf(&b, "   Related: %s\n", strings.Join(related, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func videoFields(info *media.VideoInfo) (filename, duration string) {
	filename, duration = "video.mp4", "Unknown"
	if info == nil {
		return
	}
	if info.Filename != "" {
		filename = filepath.Base(info.Filename)
	} else if info.Path != "" {
		filename = filepath.Base(info.Path)
	}
	if info.Duration > 0 {
		duration = timecode.Format(info.Duration)
	}
	return
}
