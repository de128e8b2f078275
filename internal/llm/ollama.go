package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient calls a local Ollama chat model. Ollama needs no credential,
// so it is normally wrapped in a single-entry pool.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a client for Ollama's /api/chat endpoint.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: DefaultCallTimeout + 5*time.Second, // per-call context timeout fires first
		},
	}
}

// NewOllamaFactory returns a Factory that ignores the credential.
func NewOllamaFactory(baseURL, model string) Factory {
	client := NewOllamaClient(baseURL, model)
	return func(string) (Client, error) { return client, nil }
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Invoke sends prompt as a single user message.
func (c *OllamaClient) Invoke(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: []ollamaChatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return "", &Error{Kind: KindFatal, Op: "ollama marshal", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindFatal, Op: "ollama create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransient, Op: "ollama request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
		kind := classifyStatus(resp.StatusCode)
		if kind != KindQuota && ClassifyMessage(string(respBody)) == KindQuota {
			kind = KindQuota
		}
		return "", &Error{Kind: kind, Op: "ollama chat", Err: err}
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &Error{Kind: KindTransient, Op: "ollama decode response", Err: err}
	}
	if result.Error != "" {
		return "", &Error{Kind: ClassifyMessage(result.Error), Op: "ollama chat", Err: errors.New(result.Error)}
	}
	content := strings.TrimSpace(result.Message.Content)
	if content == "" {
		return "", &Error{Kind: KindTransient, Op: "ollama chat", Err: errors.New("empty completion")}
	}
	return content, nil
}

// Reachable reports whether an Ollama server responds at baseURL.
func Reachable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
