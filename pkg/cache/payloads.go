package cache

import (
	"time"

	"github.com/eternnoir/llmcuts/pkg/cuts"
	"github.com/eternnoir/llmcuts/pkg/media"
	"github.com/eternnoir/llmcuts/pkg/transcriber"
)

// ProcessingInfo records how an LLM-derived record was produced
type ProcessingInfo struct {
	Phase     string    `json:"phase"`
	Model     string    `json:"model_used,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptionPayload is stored under KindTranscription
type TranscriptionPayload struct {
	Transcription *transcriber.Transcript `json:"transcription"`
	VideoInfo     *media.VideoInfo        `json:"video_info"`
}

// TopicsPayload is stored under KindTopics
type TopicsPayload struct {
	Topics         *cuts.TopicsResult `json:"topics"`
	ProcessingInfo ProcessingInfo     `json:"processing_info"`
}

// CutsPayload is stored under KindCuts
type CutsPayload struct {
	CutsData       *cuts.Final    `json:"cuts_data"`
	ProcessingInfo ProcessingInfo `json:"processing_info"`
}
