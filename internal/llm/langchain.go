package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/chatlog/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// langchainClient routes completions through langchaingo, which covers
// OpenAI-compatible servers (vLLM, LocalAI, Ollama's /v1) as well as OpenAI.
type langchainClient struct {
	model string
	llm   llms.Model
	opts  options
}

func newLangchain(cfg config.LLMConfig, o options) (*langchainClient, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	lcOpts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithModel(model),
		openai.WithHTTPClient(o.httpClient),
	}
	if cfg.BaseURL != "" {
		lcOpts = append(lcOpts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	lm, err := openai.New(lcOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating langchain client: %w", err)
	}
	return &langchainClient{model: model, llm: lm, opts: o}, nil
}

func (c *langchainClient) Model() string { return c.model }

func (c *langchainClient) Complete(ctx context.Context, req Request) (string, error) {
	req, err := c.opts.prepare(ctx, req)
	if err != nil {
		return "", err
	}

	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))

	callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("langchain generate: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
