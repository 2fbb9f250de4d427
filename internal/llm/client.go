// Package llm talks to the chat completion service for the two language
// stages of the pipeline: optional context generation from the image and
// its recognized text, and batched translation of all text blocks in one
// request.
package llm

import (
	"context"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-5-nano"

// ChatClient is the subset of *openai.Client used here.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ClientFactory builds a chat client for an API key. Keys are resolved per
// pipeline run, so clients are not long-lived.
type ClientFactory func(apiKey string) ChatClient

// NewOpenAIFactory returns a factory for go-openai clients. baseURL and
// httpClient are optional.
func NewOpenAIFactory(baseURL string, httpClient *http.Client) ClientFactory {
	return func(apiKey string) ChatClient {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		if httpClient != nil {
			cfg.HTTPClient = httpClient
		}
		return openai.NewClientWithConfig(cfg)
	}
}

func firstContent(resp openai.ChatCompletionResponse) (string, bool) {
	if len(resp.Choices) == 0 {
		return "", false
	}
	return resp.Choices[0].Message.Content, true
}
