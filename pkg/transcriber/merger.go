package transcriber

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eternnoir/llmcuts/pkg/media"
)

// ChunkResult pairs a chunk window with its transcript. Segment times in
// Transcript are relative to the chunk start.
type ChunkResult struct {
	Chunk      *media.ChunkInfo
	Transcript *Transcript
}

// ChunkMergerImpl implements ChunkMerger
type ChunkMergerImpl struct {
	// Adjacent boundary segments at least this similar are treated as the
	// same utterance heard twice in the overlap.
	similarityThreshold float64
}

// NewChunkMerger creates a new chunk merger
func NewChunkMerger() *ChunkMergerImpl {
	return &ChunkMergerImpl{similarityThreshold: 0.8}
}

// Merge shifts every chunk onto the video timeline and drops the duplicate
// speech transcribed in the overlap between neighbouring chunks. Inside an
// overlap window the earlier chunk owns segments starting before the window
// midpoint and the later chunk owns the rest.
func (m *ChunkMergerImpl) Merge(chunks []ChunkResult) *Transcript {
	sorted := make([]ChunkResult, 0, len(chunks))
	for _, c := range chunks {
		if c.Transcript != nil && c.Chunk != nil {
			sorted = append(sorted, c)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Chunk.Start < sorted[j].Chunk.Start })

	out := &Transcript{ChunkCount: len(sorted)}
	if len(sorted) == 0 {
		return out
	}

	var texts []string
	for i, c := range sorted {
		offset := c.Chunk.Start.Seconds()

		lower := offset
		if i > 0 {
			prevEnd := sorted[i-1].Chunk.End.Seconds()
			if prevEnd > offset {
				lower = (offset + prevEnd) / 2
			}
		}
		upper := c.Chunk.End.Seconds()
		if i+1 < len(sorted) {
			nextStart := sorted[i+1].Chunk.Start.Seconds()
			if nextStart < upper {
				upper = (nextStart + upper) / 2
			}
		} else {
			upper = -1 // last chunk keeps everything to the end
		}

		if len(c.Transcript.Segments) == 0 {
			if t := strings.TrimSpace(c.Transcript.Text); t != "" {
				texts = append(texts, t)
			}
		}

		kept := len(out.Segments)
		for _, seg := range c.Transcript.Segments {
			abs := Segment{Start: seg.Start + offset, End: seg.End + offset, Text: seg.Text}
			if i > 0 && abs.Start < lower {
				continue
			}
			if upper >= 0 && abs.Start >= upper {
				continue
			}
			if n := len(out.Segments); n > 0 && m.isDuplicate(out.Segments[n-1], abs) {
				continue
			}
			out.Segments = append(out.Segments, abs)
		}
		for _, seg := range out.Segments[kept:] {
			texts = append(texts, seg.Text)
		}

		if out.Language == "" {
			out.Language = c.Transcript.Language
		}
		if out.Model == "" {
			out.Model = c.Transcript.Model
		}
		if out.Backend == "" {
			out.Backend = c.Transcript.Backend
		}
		if end := c.Chunk.End.Seconds(); end > out.Duration {
			out.Duration = end
		}
	}

	for i := range out.Segments {
		out.Segments[i].ID = i
	}
	out.Text = strings.TrimSpace(strings.Join(texts, " "))
	return out
}

func (m *ChunkMergerImpl) isDuplicate(prev, cur Segment) bool {
	overlaps := prev.End > cur.Start && cur.End > prev.Start
	return overlaps && calculateTextSimilarity(prev.Text, cur.Text) >= m.similarityThreshold
}

// calculateTextSimilarity is the share of cur's words also present in prev.
func calculateTextSimilarity(prev, cur string) float64 {
	words1 := strings.Fields(strings.ToLower(prev))
	words2 := strings.Fields(strings.ToLower(cur))
	if len(words1) == 0 || len(words2) == 0 {
		return 0
	}

	set := make(map[string]bool, len(words1))
	for _, w := range words1 {
		set[w] = true
	}
	common := 0
	for _, w := range words2 {
		if set[w] {
			common++
		}
	}
	return float64(common) / float64(len(words2))
}

// ToSRT renders the transcript as SRT subtitles
func (t *Transcript) ToSRT() []byte {
	if len(t.Segments) == 0 {
		return []byte(t.Text)
	}

	var b strings.Builder
	for i, seg := range t.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTime(seg.Start), formatSRTTime(seg.End), seg.Text)
	}
	return []byte(b.String())
}

func formatSRTTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d,%03d",
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60, int(d.Milliseconds())%1000)
}
