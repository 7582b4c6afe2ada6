package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	ProviderTesseract = "tesseract"
	ProviderTextract  = "textract"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"
)

var ErrMissingCredentials = errors.New("missing provider credentials")

var (
	aiOnce   sync.Once
	aiConfig *AIConfig
)

// AIConfig selects the OCR and text-understanding providers.
type AIConfig struct {
	OCRProvider  string
	TextProvider string

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIVisionModel string
	OpenAITextModel   string

	OllamaEndpoint    string
	OllamaVisionModel string
	OllamaTextModel   string
}

func GetAIConfig() *AIConfig {
	aiOnce.Do(func() {
		loadEnv()
		aiConfig = LoadAIConfig()
	})
	return aiConfig
}

func LoadAIConfig() *AIConfig {
	return &AIConfig{
		OCRProvider:       strings.ToLower(getEnv("OCR_PROVIDER", ProviderTesseract)),
		TextProvider:      strings.ToLower(getEnv("TEXT_PROVIDER", ProviderNone)),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OpenAIVisionModel: getEnv("OPENAI_VISION_MODEL", ""),
		OpenAITextModel:   getEnv("OPENAI_MODEL", ""),
		OllamaEndpoint:    getEnv("OLLAMA_ENDPOINT", "http://localhost:11434"),
		OllamaVisionModel: getEnv("OLLAMA_VISION_MODEL", ""),
		OllamaTextModel:   getEnv("OLLAMA_MODEL", ""),
	}
}

// Validate reports unknown providers and missing credentials for the selected ones.
func (c *AIConfig) Validate() error {
	var errs []error

	switch c.OCRProvider {
	case ProviderTesseract, ProviderTextract, ProviderOllama:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: OPENAI_API_KEY is required for OCR_PROVIDER=openai", ErrMissingCredentials))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown OCR provider %q", c.OCRProvider))
	}

	switch c.TextProvider {
	case ProviderNone, "":
	case ProviderOllama:
		if c.OllamaEndpoint == "" {
			errs = append(errs, fmt.Errorf("%w: OLLAMA_ENDPOINT is required for TEXT_PROVIDER=ollama", ErrMissingCredentials))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: OPENAI_API_KEY is required for TEXT_PROVIDER=openai", ErrMissingCredentials))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown text provider %q", c.TextProvider))
	}

	return errors.Join(errs...)
}
