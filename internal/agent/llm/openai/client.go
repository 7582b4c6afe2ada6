// Package openai uses an OpenAI-compatible chat completion API for vision OCR and
// text generation.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/feichai0017/sheetscan/internal/agent/document"
	"github.com/feichai0017/sheetscan/internal/agent/llm"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/retry"
)

const systemPrompt = "You are a precise document analysis assistant. Follow the requested output format exactly."

type Config struct {
	APIKey      string  `yaml:"-"`
	BaseURL     string  `yaml:"baseURL"`
	VisionModel string  `yaml:"visionModel"`
	TextModel   string  `yaml:"textModel"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float32 `yaml:"temperature"`
}

func DefaultConfig() Config {
	return Config{
		VisionModel: openai.GPT4o,
		TextModel:   openai.GPT4oMini,
		MaxTokens:   2048,
		Temperature: 0.1,
	}
}

// Client implements both document.Processor and analysis.Generator.
type Client struct {
	api    *openai.Client
	config Config
	logger logger.Logger
}

func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	def := DefaultConfig()
	if cfg.VisionModel == "" {
		cfg.VisionModel = def.VisionModel
	}
	if cfg.TextModel == "" {
		cfg.TextModel = def.TextModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Client{
		api:    openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: log.Named("openai"),
	}, nil
}

func (c *Client) CanProcess(mimeType string) bool {
	return llm.CanProcess(mimeType)
}

// Recognize sends the image inline as a data URI.
func (c *Client) Recognize(ctx context.Context, in document.Input) (string, error) {
	data, mimeType, err := llm.VisionImage(in.Data, in.MimeType)
	if err != nil {
		return "", err
	}
	uri := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	return c.complete(ctx, c.config.VisionModel, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: llm.RecognitionPrompt(in.Language)},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    uri,
				Detail: openai.ImageURLDetailHigh,
			}},
		},
	})
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, c.config.TextModel, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}

func (c *Client) complete(ctx context.Context, model string, msg openai.ChatCompletionMessage) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			msg,
		},
	})
	if err != nil {
		return "", classify(fmt.Errorf("chat completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	c.logger.Debug("Chat completion finished",
		logger.String("model", model),
		logger.Int("promptTokens", resp.Usage.PromptTokens),
		logger.Int("completionTokens", resp.Usage.CompletionTokens),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) Close() error {
	return nil
}

// classify marks HTTP 429 responses for the retry layer.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return retry.MarkRateLimited(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return retry.MarkRateLimited(err)
	}
	return err
}
