package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/eternnoir/llmcuts/pkg/logger"
	"github.com/eternnoir/llmcuts/pkg/retry"
)

const (
	defaultMaxCompletionTokens = 8192
	defaultTemperature         = 0.3
)

// Client walks a model chain over the chat completions API
type Client struct {
	client              ChatClient
	models              []string
	maxCompletionTokens int
	reasoningEffort     string
	temperature         float32
	policy              retry.Policy
	debug               *debugDumper
}

// Option customizes the client
type Option func(*Client)

// WithModels sets the chain tried in order; duplicates are dropped
func WithModels(models ...string) Option {
	return func(c *Client) {
		if m := dedupe(models); len(m) > 0 {
			c.models = m
		}
	}
}

// WithMaxCompletionTokens caps the reply size
func WithMaxCompletionTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxCompletionTokens = n
		}
	}
}

// WithReasoningEffort sets low, medium or high for reasoning models
func WithReasoningEffort(effort string) Option {
	return func(c *Client) { c.reasoningEffort = strings.ToLower(strings.TrimSpace(effort)) }
}

// WithTemperature sets sampling temperature for standard models
func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = t }
}

// WithRetryPolicy overrides per-model retry behaviour
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithDebugDir dumps every failed request as JSON into dir
func WithDebugDir(dir string) Option {
	return func(c *Client) {
		if dir != "" {
			c.debug = &debugDumper{dir: dir}
		}
	}
}

// NewClient creates a client over a go-openai chat client
func NewClient(client ChatClient, opts ...Option) *Client {
	c := &Client{
		client:              client,
		models:              []string{openai.GPT4o},
		maxCompletionTokens: defaultMaxCompletionTokens,
		reasoningEffort:     "high",
		temperature:         defaultTemperature,
		policy:              retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Models returns the chain in the order it is tried
func (c *Client) Models() []string {
	return append([]string(nil), c.models...)
}

// ModelChain orders model names for a run. With preferReasoning the
// reasoning model leads, otherwise it is tried last.
func ModelChain(reasoning, def string, fallbacks []string, preferReasoning bool) []string {
	chain := make([]string, 0, len(fallbacks)+2)
	if preferReasoning {
		chain = append(chain, reasoning)
	}
	chain = append(chain, def)
	chain = append(chain, fallbacks...)
	if !preferReasoning {
		chain = append(chain, reasoning)
	}
	return dedupe(chain)
}

// IsReasoningModel reports whether model belongs to the o-series, which
// rejects temperature and takes a reasoning effort instead.
func IsReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if m == prefix || strings.HasPrefix(m, prefix+"-") {
			return true
		}
	}
	return false
}

// Complete tries each model until one returns usable content
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	log := logger.Component(ctx, "llm")
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("llm complete: prompt required")
	}

	log.Info().
		Int("models", len(c.models)).
		Int("prompt_chars", len(req.Prompt)).
		Bool("json", req.JSON).
		Msg("Starting LLM request")

	var lastErr error
	for _, model := range c.models {
		started := time.Now()
		chatReq := c.buildRequest(model, req)

		var content string
		err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
			resp, err := c.client.CreateChatCompletion(ctx, chatReq)
			if err != nil {
				return err
			}
			content = firstContent(resp)
			if content == "" {
				return ErrEmptyResponse
			}
			return nil
		}, func(attempt int, delay time.Duration, err error) {
			log.Warn().Err(err).Str("model", model).Int("attempt", attempt).Dur("delay", delay).Msg("Retrying LLM request")
		})

		if err == nil && req.JSON {
			var extracted string
			if extracted, err = ExtractJSON(content); err == nil {
				content = extracted
			} else {
				err = fmt.Errorf("invalid JSON reply: %w", err)
			}
		}
		if err == nil && req.JSON && req.Decode != nil {
			if derr := req.Decode(content); derr != nil {
				err = fmt.Errorf("reply does not match expected schema: %w", derr)
			}
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = fmt.Errorf("%s: %w", model, err)
			log.Warn().Err(err).Str("model", model).Dur("elapsed", time.Since(started)).Msg("Model failed, trying next")
			c.debug.dump(ctx, model, chatReq, err)
			continue
		}

		log.Info().
			Str("model", model).
			Int("response_chars", len(content)).
			Dur("elapsed", time.Since(started)).
			Msg("LLM response received")
		return &Response{Content: content, Model: model}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no models configured")
	}
	return nil, fmt.Errorf("%w: last error: %v", ErrAllModelsFailed, lastErr)
}

func (c *Client) buildRequest(model string, req Request) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:               model,
		MaxCompletionTokens: c.maxCompletionTokens,
	}

	if IsReasoningModel(model) {
		// o-series models get the system text folded into the user turn
		prompt := req.Prompt
		if req.System != "" {
			prompt = req.System + "\n\n" + req.Prompt
		}
		chatReq.Messages = []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}}
		chatReq.ReasoningEffort = c.reasoningEffort
	} else {
		if req.System != "" {
			chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
		}
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
		chatReq.Temperature = c.temperature
	}

	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return chatReq
}

func firstContent(resp openai.ChatCompletionResponse) string {
	for _, choice := range resp.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content
		}
	}
	return ""
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
