package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

func newAnthropicProvider(opts Options) *anthropicProvider {
	reqOpts := []aoption.RequestOption{
		aoption.WithAPIKey(opts.APIKey),
		aoption.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, aoption.WithBaseURL(opts.BaseURL))
	}
	return &anthropicProvider{
		client:    anthropic.NewClient(reqOpts...),
		model:     opts.Model,
		maxTokens: int64(opts.MaxOutputTokens),
		timeout:   opts.Timeout,
	}
}

func (p *anthropicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p == nil {
		return "", errors.New("nil provider")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("missing prompt")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
