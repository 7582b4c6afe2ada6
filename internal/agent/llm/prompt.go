// Package llm holds what the model-backed recognizers share.
package llm

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/png"
	"strings"

	_ "golang.org/x/image/tiff"

	"github.com/feichai0017/sheetscan/internal/models"
)

// RecognitionPrompt asks a vision model for the text of an image, keeping table layout.
func RecognitionPrompt(lang models.Language) string {
	focus := "English"
	if lang == models.Indonesian {
		focus = "Bahasa Indonesia"
	}
	return fmt.Sprintf("Extract all text from this image, focusing on %s content. "+
		"If the image contains any structured data, tables, or spreadsheet-like content, "+
		"organize it as a table with one row per line and cells separated by \" | \". "+
		"Maintain column and row alignments as shown in the image. "+
		"Return only the extracted text.", focus)
}

// VisionImage returns bytes a vision API accepts. JPEG and PNG pass through,
// other raster formats are re-encoded as PNG.
func VisionImage(data []byte, mimeType string) ([]byte, string, error) {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return data, "image/jpeg", nil
	case "image/png":
		return data, "image/png", nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}

// CanProcess reports whether VisionImage can prepare the type.
func CanProcess(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/tiff":
		return true
	default:
		return false
	}
}
