package cuts

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/timecode"
)

// ErrNoValidCuts is returned when validation leaves nothing
var ErrNoValidCuts = errors.New("no valid cuts")

// DefaultKeywords mark short cuts worth keeping on their own
var DefaultKeywords = []string{
	"tip", "insight", "key", "important", "critical", "essential",
	"pro tip", "quick tip", "takeaway", "lesson", "principle", "rule",
	"secret", "hack", "trick", "warning", "note",
}

// Options bounds validation
type Options struct {
	// MaxCuts truncates the sorted list; 0 keeps everything
	MaxCuts int
}

type span struct {
	cut        Cut
	start, end float64
}

// Validate drops unusable cuts, clamps ends to the video duration, sorts by
// start and renumbers from 1. duration <= 0 disables clamping.
func Validate(in []Cut, duration float64, opts Options) ([]Cut, error) {
	log := logger.WithComponent("cuts")

	spans := make([]span, 0, len(in))
	for i, c := range in {
		c.Title = strings.TrimSpace(c.Title)
		if strings.TrimSpace(c.Start) == "" || strings.TrimSpace(c.End) == "" || c.Title == "" {
			log.Debug().Int("index", i).Msg("Dropping cut with missing fields")
			continue
		}
		start, end, err := c.Span()
		if err != nil {
			log.Debug().Err(err).Int("index", i).Str("title", c.Title).Msg("Dropping cut with bad timestamps")
			continue
		}
		if duration > 0 {
			if start >= duration {
				log.Debug().Int("index", i).Str("title", c.Title).Msg("Dropping cut past the end of the video")
				continue
			}
			if end > duration {
				end = duration
			}
		}
		if end <= start {
			log.Debug().Int("index", i).Str("title", c.Title).Msg("Dropping cut with empty span")
			continue
		}
		spans = append(spans, span{cut: c, start: start, end: end})
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	if opts.MaxCuts > 0 && len(spans) > opts.MaxCuts {
		log.Warn().Int("cuts", len(spans)).Int("max", opts.MaxCuts).Msg("Too many cuts, truncating")
		spans = spans[:opts.MaxCuts]
	}
	if len(spans) == 0 {
		return nil, ErrNoValidCuts
	}

	out := make([]Cut, len(spans))
	for i, s := range spans {
		c := s.cut
		c.ID = i + 1
		c.Start = timecode.Format(s.start)
		c.End = timecode.Format(s.end)
		c.Duration = timecode.Format(s.end - s.start)
		out[i] = c
	}

	log.Info().Int("input", len(in)).Int("valid", len(out)).Msg("Cuts validated")
	return out, nil
}

// MergeShort keeps cuts shorter than minDuration only when their title or
// description mentions a keyword. Other short cuts absorb the following
// cut. The last cut is always kept. Nil keywords means DefaultKeywords.
func MergeShort(in []Cut, minDuration float64, keywords []string) []Cut {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	log := logger.WithComponent("cuts")

	out := make([]Cut, 0, len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		if c.Seconds() >= minDuration || hasKeyword(c, keywords) || i+1 == len(in) {
			out = append(out, c)
			continue
		}
		merged := merge(c, in[i+1])
		log.Debug().Str("title", merged.Title).Msg("Merged short cut with next")
		out = append(out, merged)
		i++
	}

	for i := range out {
		out[i].ID = i + 1
	}
	return out
}

func hasKeyword(c Cut, keywords []string) bool {
	title := strings.ToLower(c.Title)
	desc := strings.ToLower(c.Description)
	for _, k := range keywords {
		k = strings.ToLower(k)
		if k != "" && (strings.Contains(title, k) || strings.Contains(desc, k)) {
			return true
		}
	}
	return false
}

func merge(a, b Cut) Cut {
	m := Cut{
		ID:             a.ID,
		Start:          a.Start,
		End:            b.End,
		Title:          fmt.Sprintf("%s + %s", a.Title, b.Title),
		Description:    fmt.Sprintf("%s Combined with: %s", a.Description, b.Description),
		ContentType:    a.ContentType,
		QualityScore:   a.QualityScore,
		SourceTopicIDs: unionInts(a.SourceTopicIDs, b.SourceTopicIDs),
	}
	if s := m.Seconds(); s > 0 {
		m.Duration = timecode.Format(s)
	}
	return m
}

func unionInts(a, b []int) []int {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, v := range append(append([]int(nil), a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
