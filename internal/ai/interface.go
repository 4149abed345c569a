// interface.go - OCR provider interface shared by Gemini and Azure

package ai

import "context"

// OCRProvider reads an invoice image and returns its text lines top to bottom.
// Every failure is wrapped in common.ErrOCRUnavailable.
type OCRProvider interface {
	ExtractLines(ctx context.Context, imagePath string) ([]string, error)

	// GetProviderName returns "gemini" or "azure"
	GetProviderName() string
}

// OCRProviderConfig selects and configures providers
type OCRProviderConfig struct {
	// Provider name: "gemini" or "azure"
	Provider string

	// Gemini configuration
	GeminiAPIKey string
	GeminiModel  string

	// Azure Computer Vision configuration
	AzureEndpoint string
	AzureKey      string

	RatePerMinute int
}
