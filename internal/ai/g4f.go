// g4f.go
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

type G4FProvider struct {
	name    string
	baseURL string
	model   string
	client  *http.Client
}

func NewG4FProvider(engine string) *G4FProvider {
	// engine examples:
	//   g4f:gpt-oss-120b
	//   g4f:groq/qwen/qwen3-32b
	//   g4f:ollama/gpt-oss:20b
	parts := strings.SplitN(engine, ":", 2)
	if len(parts) != 2 {
		// fallback to legacy
		parts = []string{"g4f", "gpt-oss-120b"}
	}
	target := parts[1]

	var base, model string
	switch {
	case strings.HasPrefix(target, "groq/"):
		base = "https://g4f.dev/api/groq"
		model = strings.TrimPrefix(target, "groq/")
	case strings.HasPrefix(target, "ollama/"):
		base = "https://g4f.dev/api/ollama"
		model = strings.TrimPrefix(target, "ollama/")
	default:
		// default OSS
		base = "https://g4f.dev/api/gpt-oss-120b"
		model = target
	}

	return &G4FProvider{
		name:    engine,
		baseURL: base,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *G4FProvider) Name() string       { return p.name }
func (p *G4FProvider) SupportsChat() bool { return true }

func (p *G4FProvider) Generate(req Request) (string, error) {
	payload := map[string]interface{}{
		"model":    p.model,
		"messages": req.Messages,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	bodyBytes, _ := json.Marshal(payload)

	httpReq, err := http.NewRequest(http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &ProviderError{Provider: p.name, Kind: ErrMalformed, Detail: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	httpReq = httpReq.WithContext(ctx)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyTransport(p.name, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{
			Provider: p.name,
			Kind:     KindFromStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Detail:   truncate(respBody),
		}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderError{Provider: p.name, Kind: ErrMalformed, Detail: "unmarshal: " + truncate(respBody)}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Provider: p.name, Kind: ErrMalformed, Detail: "empty choices"}
	}
	if parsed.Choices[0].FinishReason == "content_filter" {
		return "", &ProviderError{Provider: p.name, Kind: ErrContentBlocked, Detail: "finish_reason=content_filter"}
	}

	reply := cleanReply(parsed.Choices[0].Message.Content)
	if isGarbageResponse(reply) {
		return "", &ProviderError{Provider: p.name, Kind: ErrMalformed, Detail: "garbage reply"}
	}
	return reply, nil
}
