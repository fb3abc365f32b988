package ai

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PollinationsTextProvider uses the plain GET completion endpoint.
// It only accepts a flat prompt, so the dispatcher flattens chat turns
// before calling it.
type PollinationsTextProvider struct {
	client *http.Client
}

func NewPollinationsTextProvider() *PollinationsTextProvider {
	return &PollinationsTextProvider{
		client: &http.Client{
			Timeout: 25 * time.Second,
		},
	}
}

func (p *PollinationsTextProvider) Name() string       { return "pollinations-text" }
func (p *PollinationsTextProvider) SupportsChat() bool { return false }

func (p *PollinationsTextProvider) Generate(req Request) (string, error) {
	prompt := req.Text
	if prompt == "" {
		prompt = FlattenMessages(req.Messages)
	}
	// The endpoint chokes on very long paths.
	if len(prompt) > 6000 {
		prompt = prompt[len(prompt)-6000:]
	}

	endpoint := "https://text.pollinations.ai/" + url.PathEscape(prompt)
	resp, err := p.client.Get(endpoint)
	if err != nil {
		return "", classifyTransport(p.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
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

	reply := cleanReply(string(body))
	if isGarbageResponse(reply) {
		return "", &ProviderError{Provider: p.Name(), Kind: ErrMalformed, Detail: "garbage reply"}
	}
	return reply, nil
}
