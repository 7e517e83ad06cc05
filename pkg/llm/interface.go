package llm

import (
	"context"
	"encoding/json"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// ErrAllModelsFailed is returned when every model in the chain failed.
var ErrAllModelsFailed = errors.New("all LLM models failed")

// ErrEmptyResponse is returned when a model answered with no content.
var ErrEmptyResponse = errors.New("empty response from LLM")

// Request is one prompt sent to a chat model
type Request struct {
	System string
	Prompt string
	// JSON asks for a JSON object and validates the reply before accepting it
	JSON bool
	// Decode, when set on a JSON request, receives the extracted object.
	// An error rejects the reply and moves on to the next model.
	Decode func(payload string) error
}

// DecodeInto returns a Decode func that unmarshals into a fresh T and
// stores it in dst only when the whole payload decodes.
func DecodeInto[T any](dst *T) func(string) error {
	return func(payload string) error {
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// Response is the accepted reply. For JSON requests Content holds the
// extracted (and if needed repaired) JSON object.
type Response struct {
	Content string
	Model   string
}

// Completer sends a prompt to a model chain
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ChatClient is the subset of the go-openai client used here
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
