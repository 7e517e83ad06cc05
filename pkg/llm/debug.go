package llm

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/eternnoir/llmcuts/pkg/logger"
)

const redacted = "Bearer [REDACTED]"

type debugDumper struct {
	dir string
}

type debugRecord struct {
	ID            string                       `json:"id"`
	Time          time.Time                    `json:"time"`
	Model         string                       `json:"model"`
	Error         string                       `json:"error"`
	Authorization string                       `json:"authorization"`
	Request       openai.ChatCompletionRequest `json:"request"`
}

// dump writes req and its failure to <dir>/<uuid>.json. The request never
// carries credentials; the header is recorded only as a redacted marker.
func (d *debugDumper) dump(ctx context.Context, model string, req openai.ChatCompletionRequest, cause error) string {
	if d == nil {
		return ""
	}
	log := logger.Component(ctx, "llm-debug")

	rec := debugRecord{
		ID:            uuid.NewString(),
		Time:          time.Now().UTC(),
		Model:         model,
		Error:         cause.Error(),
		Authorization: redacted,
		Request:       req,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode debug record")
		return ""
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		log.Warn().Err(err).Msg("Failed to create debug directory")
		return ""
	}
	path := filepath.Join(d.dir, rec.ID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		log.Warn().Err(err).Msg("Failed to write debug record")
		return ""
	}
	log.Debug().Str("path", path).Msg("Failed request dumped")
	return path
}
