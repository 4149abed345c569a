// azure.go - Azure Computer Vision printed text OCR as the fallback provider

package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
	"github.com/bosocmputer/invoice_resolver/internal/ratelimit"
	"go.uber.org/zap"
)

// printedTextRecognizer is the part of computervision.BaseClient the provider uses
type printedTextRecognizer interface {
	RecognizePrintedTextInStream(ctx context.Context, detectOrientation bool, imageParameter io.ReadCloser, language computervision.OcrLanguages) (computervision.OcrResult, error)
}

// AzureProvider runs the synchronous OCR endpoint with Russian as the document language
type AzureProvider struct {
	client       printedTextRecognizer
	preprocessor *processor.ImagePreprocessor
	limiter      *ratelimit.RateLimiter
	retry        RetryConfig
	timeout      time.Duration
	log          *zap.Logger
}

// NewAzureProvider creates a client authorised with the Cognitive Services key
func NewAzureProvider(endpoint, apiKey string, opts ProviderOptions) (*AzureProvider, error) {
	if endpoint == "" || apiKey == "" {
		return nil, errors.New("azure: AZURE_VISION_ENDPOINT and AZURE_VISION_KEY are required")
	}
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	return newAzureProvider(client, opts), nil
}

func newAzureProvider(client printedTextRecognizer, opts ProviderOptions) *AzureProvider {
	opts = opts.withDefaults()
	return &AzureProvider{
		client:       client,
		preprocessor: opts.Preprocessor,
		limiter:      opts.Limiter,
		retry:        opts.Retry,
		timeout:      opts.Timeout,
		log:          opts.Logger.With(zap.String("provider", "azure")),
	}
}

func (p *AzureProvider) GetProviderName() string { return "azure" }

func (p *AzureProvider) ExtractLines(ctx context.Context, imagePath string) ([]string, error) {
	imageData, mimeType, err := p.preprocessor.Preprocess(imagePath)
	if err != nil {
		return nil, common.OCRError("azure", err)
	}
	if mimeType == "application/pdf" {
		return nil, common.OCRError("azure", errors.New("printed text OCR does not accept PDF documents"))
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, common.OCRError("azure", err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	var result computervision.OcrResult
	err = callWithRetry(ctx, "azure", p.retry, p.log, func(ctx context.Context) error {
		var callErr error
		result, callErr = p.client.RecognizePrintedTextInStream(ctx, true,
			io.NopCloser(bytes.NewReader(imageData)),
			computervision.OcrLanguagesRu,
		)
		return callErr
	})
	if err != nil {
		return nil, common.OCRError("azure", fmt.Errorf("failed to extract text: %w", err))
	}

	lines := linesFromOCRResult(result)
	p.log.Info("lines extracted",
		zap.Int("image_bytes", len(imageData)),
		zap.Int("lines", len(lines)),
		zap.Duration("duration", time.Since(started)))
	return lines, nil
}

// linesFromOCRResult joins the words of every line, region by region
func linesFromOCRResult(result computervision.OcrResult) []string {
	var lines []string
	if result.Regions == nil {
		return lines
	}
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			words := make([]string, 0, len(*line.Words))
			for _, word := range *line.Words {
				if word.Text != nil {
					words = append(words, *word.Text)
				}
			}
			lines = append(lines, strings.Join(words, " "))
		}
	}
	return cleanLines(lines)
}
