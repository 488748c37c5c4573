// Package llm is the completion backend of the plan builder. The adapter
// speaks the OpenAI chat completions API, which every backend the platform
// targets (OpenAI, OpenRouter, vLLM, ollama) exposes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/virtualpytest/pilot/pkg/config"
	"github.com/virtualpytest/pilot/pkg/core"
)

// Request is one plain-text completion call. The plan builder does not use
// tool calling or streaming: prompts and responses are text contracts parsed
// by the pipeline.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// Response carries the completion text plus token usage for metrics.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Client is the completion backend the plan builder depends on.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ChatClient is the subset of the go-openai client the adapter uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI implements Client over an OpenAI-compatible endpoint.
type OpenAI struct {
	chat      ChatClient
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewOpenAI builds the adapter from provider configuration. The API key is
// read from the environment variable named by APIKeyEnv, never from the
// configuration file itself.
func NewOpenAI(cfg *config.LLMProviderConfig) (*OpenAI, error) {
	if cfg == nil || cfg.Model == "" {
		return nil, fmt.Errorf("llm provider config with a model is required")
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("api key environment variable %q is not set", cfg.APIKeyEnv)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	slog.Info("LLM client configured", "model", cfg.Model, "base_url", clientCfg.BaseURL)

	return &OpenAI{
		chat:      openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}, nil
}

// NewOpenAIWithChat wires a custom chat transport. Tests use it to avoid the
// network.
func NewOpenAIWithChat(chat ChatClient, model string) *OpenAI {
	return &OpenAI{chat: chat, model: model}
}

// Complete runs one chat completion pinned to temperature zero. Plan
// generation must be repeatable: the same prompt over the same context
// should yield the same plan.
func (c *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.User) == "" {
		return Response{}, core.Errf(core.KindInvalidInput, "completion request has no user prompt")
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		// The request struct drops a zero temperature on marshal, which would
		// fall back to the provider default. The smallest non-zero float32
		// pins deterministic sampling.
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		kind := core.KindInternal
		switch {
		case errors.Is(err, context.Canceled):
			kind = core.KindCancelled
		case errors.Is(err, context.DeadlineExceeded):
			kind = core.KindTimeout
		}
		return Response{}, core.WrapErr(kind, err, "completion call failed")
	}
	if len(resp.Choices) == 0 {
		return Response{}, core.Errf(core.KindInternal, "completion returned no choices")
	}

	slog.Debug("Completion finished",
		"model", c.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start))

	return Response{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
