package config

import "sync"

var (
	textractOnce   sync.Once
	textractConfig *TextractConfig
)

type TextractConfig struct {
	Region        string
	AccessKey     string
	SecretKey     string
	MinConfidence float64
	EnableTable   bool
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadEnv()
		textractConfig = LoadTextractConfig()
	})
	return textractConfig
}

func LoadTextractConfig() *TextractConfig {
	return &TextractConfig{
		Region:        getEnv("AWS_REGION", "us-east-1"),
		AccessKey:     getEnv("AWS_ACCESS_KEY", ""),
		SecretKey:     getEnv("AWS_SECRET_KEY", ""),
		MinConfidence: float64(getInt("TEXTRACT_MIN_CONFIDENCE", 50)),
		EnableTable:   getBool("TEXTRACT_ENABLE_TABLES", true),
	}
}
