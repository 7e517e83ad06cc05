// Package cuts holds the topic and cut documents produced by the analysis
// and the rules that turn raw model output into usable clip boundaries.
package cuts

import (
	"fmt"

	"github.com/eternnoir/llmcuts/pkg/timecode"
)

// Topic is one subject the model found in the transcript
type Topic struct {
	ID                int      `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	ContentType       string   `json:"content_type,omitempty"`
	ImportanceLevel   string   `json:"importance_level,omitempty"`
	EstimatedDuration string   `json:"estimated_duration,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
	RelatedTopics     []int    `json:"related_topics,omitempty"`
}

// TopicsSummary is the model's own tally of the topics it returned
type TopicsSummary struct {
	TotalTopics      int    `json:"total_topics"`
	MajorThemes      int    `json:"major_themes,omitempty"`
	KeyInsights      int    `json:"key_insights,omitempty"`
	StoriesExamples  int    `json:"stories_examples,omitempty"`
	RecommendedFocus string `json:"recommended_focus,omitempty"`
}

// TopicsResult is the topics analysis reply
type TopicsResult struct {
	Topics  []Topic        `json:"topics"`
	Summary *TopicsSummary `json:"summary,omitempty"`
}

// Cut is a suggested clip. Start, End and Duration are HH:MM:SS.
type Cut struct {
	ID             int    `json:"id"`
	Start          string `json:"start"`
	End            string `json:"end"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Duration       string `json:"duration,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
	SourceTopicIDs []int  `json:"source_topic_ids,omitempty"`
	QualityScore   string `json:"quality_score,omitempty"`
}

// Span parses Start and End into seconds
func (c Cut) Span() (start, end float64, err error) {
	if start, err = timecode.Parse(c.Start); err != nil {
		return 0, 0, fmt.Errorf("start: %w", err)
	}
	if end, err = timecode.Parse(c.End); err != nil {
		return 0, 0, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

// Seconds returns the cut length, or 0 when the times do not parse
func (c Cut) Seconds() float64 {
	start, end, err := c.Span()
	if err != nil || end < start {
		return 0
	}
	return end - start
}

// CutsSummary is the summary block of the cuts reply
type CutsSummary struct {
	TotalCuts           int            `json:"total_cuts"`
	CoveragePercentage  float64        `json:"coverage_percentage,omitempty"`
	AvgCutDuration      string         `json:"avg_cut_duration,omitempty"`
	ContentDistribution map[string]int `json:"content_distribution,omitempty"`
}

// CutsResult is the cuts generation reply
type CutsResult struct {
	Cuts    []Cut        `json:"cuts"`
	Summary *CutsSummary `json:"summary,omitempty"`
}

// VideoSummary describes the source video in the final document
type VideoSummary struct {
	Filename   string  `json:"filename"`
	Duration   string  `json:"duration"`
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps"`
	TotalCuts  int     `json:"total_cuts"`
}

// Final is the document handed to the user and stored in the cuts cache
type Final struct {
	Cuts      []Cut        `json:"cuts"`
	VideoInfo VideoSummary `json:"video_info"`
}
