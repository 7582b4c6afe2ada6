// Package ollama talks to a local Ollama server for vision OCR and text generation.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/feichai0017/sheetscan/internal/agent/document"
	"github.com/feichai0017/sheetscan/internal/agent/llm"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/retry"
)

type Config struct {
	Endpoint    string        `yaml:"endpoint"`
	VisionModel string        `yaml:"visionModel"`
	TextModel   string        `yaml:"textModel"`
	MaxTokens   int           `yaml:"maxTokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint:    "http://localhost:11434",
		VisionModel: "llava",
		TextModel:   "llama3",
		MaxTokens:   2048,
		Temperature: 0.1,
		Timeout:     120 * time.Second,
	}
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Images  []string `json:"images,omitempty"`
	Stream  bool     `json:"stream"`
	Options options  `json:"options"`
}

type options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// generateResponse Ollama /api/generate 响应
type generateResponse struct {
	Response      string `json:"response"`
	Model         string `json:"model"`
	Done          bool   `json:"done"`
	TotalDuration int64  `json:"total_duration,omitempty"`
	EvalCount     int    `json:"eval_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Client 实现 document.Processor 和 analysis.Generator
type Client struct {
	config     Config
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(cfg Config, log logger.Logger) *Client {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = def.VisionModel
	}
	if cfg.TextModel == "" {
		cfg.TextModel = def.TextModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.Named("ollama"),
	}
}

func (c *Client) CanProcess(mimeType string) bool {
	return llm.CanProcess(mimeType)
}

// Recognize 使用视觉模型识别图像中的文本
func (c *Client) Recognize(ctx context.Context, in document.Input) (string, error) {
	data, _, err := llm.VisionImage(in.Data, in.MimeType)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, generateRequest{
		Model:  c.config.VisionModel,
		Prompt: llm.RecognitionPrompt(in.Language),
		Images: []string{base64.StdEncoding.EncodeToString(data)},
	})
}

// Generate 使用文本模型生成回答
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, generateRequest{
		Model:  c.config.TextModel,
		Prompt: prompt,
	})
}

func (c *Client) generate(ctx context.Context, body generateRequest) (string, error) {
	body.Stream = false
	body.Options = options{Temperature: c.config.Temperature, NumPredict: c.config.MaxTokens}

	reqData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint+"/api/generate", bytes.NewReader(reqData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", retry.MarkRateLimited(err)
		}
		return "", err
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama error: %s", result.Error)
	}

	c.logger.Debug("Ollama generation finished",
		logger.String("model", body.Model),
		logger.Int("evalCount", result.EvalCount),
		logger.Duration("elapsed", time.Since(start)),
	)
	return strings.TrimSpace(result.Response), nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
