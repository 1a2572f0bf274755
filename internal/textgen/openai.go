package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"
)

type openAIProvider struct {
	client    openai.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

func newOpenAIProvider(opts Options) *openAIProvider {
	reqOpts := []ooption.RequestOption{
		ooption.WithAPIKey(opts.APIKey),
		ooption.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, ooption.WithBaseURL(opts.BaseURL))
	}
	return &openAIProvider{
		client:    openai.NewClient(reqOpts...),
		model:     opts.Model,
		maxTokens: int64(opts.MaxOutputTokens),
		timeout:   opts.Timeout,
	}
}

func (p *openAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p == nil {
		return "", errors.New("nil provider")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("missing prompt")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Responses.New(ctx, oresponses.ResponseNewParams{
		Model:           oshared.ResponsesModel(p.model),
		MaxOutputTokens: openai.Int(p.maxTokens),
		Input:           oresponses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	out := strings.TrimSpace(resp.OutputText())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
