package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// OpenAIConfig configures OpenAI-compatible chat completion clients.
type OpenAIConfig struct {
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint with a
// single credential.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient creates a client bound to apiKey.
func NewOpenAIClient(apiKey string, cfg OpenAIConfig) *OpenAIClient {
	oc := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// NewOpenAIFactory returns a Factory producing OpenAIClients.
func NewOpenAIFactory(cfg OpenAIConfig) Factory {
	return func(credential string) (Client, error) {
		if credential == "" {
			return nil, errors.New("llm: openai: empty credential")
		}
		return NewOpenAIClient(credential, cfg), nil
	}
}

// Invoke sends prompt as a single user message.
func (c *OpenAIClient) Invoke(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", &Error{Kind: classifyOpenAI(err), Op: "openai chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindTransient, Op: "openai chat completion", Err: errors.New("no choices in response")}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &Error{Kind: KindTransient, Op: "openai chat completion", Err: errors.New("empty completion")}
	}
	return content, nil
}

// classifyOpenAI maps go-openai errors to a Kind using the HTTP status first
// and the upstream message second.
func classifyOpenAI(err error) Kind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if k := classifyStatus(apiErr.HTTPStatusCode); k == KindQuota {
			return k
		}
		if ClassifyMessage(apiErr.Message+" "+apiErr.Type) == KindQuota {
			return KindQuota
		}
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if k := classifyStatus(reqErr.HTTPStatusCode); k == KindQuota {
			return k
		}
		if ClassifyMessage(string(reqErr.Body)) == KindQuota {
			return KindQuota
		}
		return classifyStatus(reqErr.HTTPStatusCode)
	}
	return Classify(err)
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindQuota
	case status == http.StatusRequestTimeout, status >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}
