package ai

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

type PollinationsProvider struct {
	client *http.Client
}

func NewPollinationsProvider() *PollinationsProvider {
	return &PollinationsProvider{
		client: &http.Client{
			Timeout: 25 * time.Second,
		},
	}
}

func (p *PollinationsProvider) Name() string       { return "pollinations" }
func (p *PollinationsProvider) SupportsChat() bool { return true }

func (p *PollinationsProvider) Generate(req Request) (string, error) {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = 1
	}

	messages := make([]interface{}, 0, len(req.Messages))
	for i, m := range req.Messages {
		// Attach the image (if any) to the last user turn, OpenAI
		// content-parts style.
		if len(req.Image) > 0 && i == lastUserIndex(req.Messages) {
			messages = append(messages, map[string]interface{}{
				"role": m.Role,
				"content": []interface{}{
					map[string]interface{}{"type": "text", "text": m.Content},
					map[string]interface{}{"type": "image_url", "image_url": map[string]string{
						"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image),
					}},
				},
			})
			continue
		}
		messages = append(messages, m)
	}

	payload := map[string]interface{}{
		"model":       "openai",
		"messages":    messages,
		"temperature": temperature,
		"private":     true,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Kind: ErrMalformed, Detail: err.Error()}
	}

	httpReq, err := http.NewRequest(
		http.MethodPost,
		"https://text.pollinations.ai/openai",
		bytes.NewReader(data),
	)
	if err != nil {
		return "", &ProviderError{Provider: p.Name(), Kind: ErrMalformed, Detail: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyTransport(p.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(p.Name(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{
			Provider: p.Name(),
			Kind:     KindFromStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Detail:   truncate(body),
		}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return "", &ProviderError{Provider: p.Name(), Kind: ErrMalformed, Detail: "returned html"}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &ProviderError{Provider: p.Name(), Kind: ErrMalformed, Detail: err.Error()}
	}

	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Kind: ErrMalformed, Detail: "empty choices"}
	}

	reply := cleanReply(parsed.Choices[0].Message.Content)
	if isGarbageResponse(reply) {
		return "", &ProviderError{Provider: p.Name(), Kind: ErrMalformed, Detail: "garbage reply"}
	}

	return reply, nil
}

func lastUserIndex(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return i
		}
	}
	return -1
}
