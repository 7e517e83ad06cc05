package cuts

import (
	"path/filepath"
	"sort"

	"github.com/eternnoir/llmcuts/pkg/media"
	"github.com/eternnoir/llmcuts/pkg/timecode"
)

// BuildFinal wraps cuts with the video summary. Missing durations are
// filled from the cut spans.
func BuildFinal(in []Cut, info *media.VideoInfo) *Final {
	out := make([]Cut, len(in))
	for i, c := range in {
		if c.Duration == "" {
			c.Duration = timecode.Format(c.Seconds())
		}
		out[i] = c
	}

	summary := VideoSummary{
		Filename:   "video.mp4",
		Duration:   "00:00:00",
		Resolution: "Unknown",
		FPS:        30,
		TotalCuts:  len(out),
	}
	if info != nil {
		if info.Filename != "" {
			summary.Filename = filepath.Base(info.Filename)
		} else if info.Path != "" {
			summary.Filename = filepath.Base(info.Path)
		}
		if info.Duration > 0 {
			summary.Duration = timecode.Format(info.Duration)
		}
		if info.Resolution != "" {
			summary.Resolution = info.Resolution
		}
		if info.FPS > 0 {
			summary.FPS = info.FPS
		}
	}

	return &Final{Cuts: out, VideoInfo: summary}
}

// Stats describes a cut list against its video
type Stats struct {
	Count           int     `json:"count"`
	TotalSeconds    float64 `json:"total_seconds"`
	AverageSeconds  float64 `json:"average_seconds"`
	CoveragePercent float64 `json:"coverage_percent"`
}

// Summarize totals cut lengths. Coverage counts overlapping cuts once and
// is zero when videoDuration is unknown.
func Summarize(in []Cut, videoDuration float64) Stats {
	st := Stats{Count: len(in)}
	if len(in) == 0 {
		return st
	}

	type interval struct{ start, end float64 }
	var ivs []interval
	for _, c := range in {
		start, end, err := c.Span()
		if err != nil || end <= start {
			continue
		}
		st.TotalSeconds += end - start
		ivs = append(ivs, interval{start, end})
	}
	st.AverageSeconds = st.TotalSeconds / float64(len(in))

	if videoDuration <= 0 || len(ivs) == 0 {
		return st
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start < ivs[j].start })
	var covered float64
	cur := ivs[0]
	for _, iv := range ivs[1:] {
		if iv.start <= cur.end {
			if iv.end > cur.end {
				cur.end = iv.end
			}
			continue
		}
		covered += cur.end - cur.start
		cur = iv
	}
	covered += cur.end - cur.start
	if covered > videoDuration {
		covered = videoDuration
	}
	st.CoveragePercent = covered / videoDuration * 100
	return st
}
