// gemini.go - Gemini vision model as the primary OCR provider

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
	"github.com/bosocmputer/invoice_resolver/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// contentGenerator is the part of *genai.GenerativeModel the provider uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiProvider sends the preprocessed image to a Gemini model and asks for text lines
type GeminiProvider struct {
	modelName    string
	model        contentGenerator
	client       *genai.Client
	preprocessor *processor.ImagePreprocessor
	limiter      *ratelimit.RateLimiter
	retry        RetryConfig
	timeout      time.Duration
	log          *zap.Logger
}

type linesResponse struct {
	Lines []string `json:"lines"`
}

// NewGeminiProvider creates the Gemini client; Close releases it
func NewGeminiProvider(ctx context.Context, apiKey, modelName string, opts ProviderOptions) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// explicit MaxOutputTokens avoids silent truncation on long invoices
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptr(int32(8192)),
		Temperature:     ptr(float32(0)),
	}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = createLinesSchema()

	p := newGeminiProvider(model, modelName, opts)
	p.client = client
	return p, nil
}

func newGeminiProvider(model contentGenerator, modelName string, opts ProviderOptions) *GeminiProvider {
	opts = opts.withDefaults()
	return &GeminiProvider{
		modelName:    modelName,
		model:        model,
		preprocessor: opts.Preprocessor,
		limiter:      opts.Limiter,
		retry:        opts.Retry,
		timeout:      opts.Timeout,
		log:          opts.Logger.With(zap.String("provider", "gemini")),
	}
}

func (p *GeminiProvider) GetProviderName() string { return "gemini" }

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *GeminiProvider) ExtractLines(ctx context.Context, imagePath string) ([]string, error) {
	imageData, mimeType, err := p.preprocessor.Preprocess(imagePath)
	if err != nil {
		p.log.Warn("preprocessing failed, using original file", zap.String("path", imagePath), zap.Error(err))
		if imageData, err = os.ReadFile(imagePath); err != nil {
			return nil, common.OCRError("gemini", fmt.Errorf("failed to read file: %w", err))
		}
		mimeType = processor.MimeTypeFor(imagePath)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, common.OCRError("gemini", err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	var resp *genai.GenerateContentResponse
	err = callWithRetry(ctx, "gemini", p.retry, p.log, func(ctx context.Context) error {
		var callErr error
		resp, callErr = p.model.GenerateContent(ctx,
			genai.Text(GetLineExtractionPrompt()),
			genai.Blob{MIMEType: mimeType, Data: imageData},
		)
		return callErr
	})
	if err != nil {
		return nil, common.OCRError("gemini", err)
	}

	lines, err := p.parseResponse(resp)
	if err != nil {
		return nil, common.OCRError("gemini", err)
	}

	fields := []zap.Field{
		zap.String("model", p.modelName),
		zap.Int("image_bytes", len(imageData)),
		zap.Int("lines", len(lines)),
		zap.Duration("duration", time.Since(started)),
	}
	if resp.UsageMetadata != nil {
		fields = append(fields, zap.Int32("total_tokens", resp.UsageMetadata.TotalTokenCount))
	}
	p.log.Info("lines extracted", fields...)
	return lines, nil
}

// parseResponse reads the JSON lines array, falling back to one line per newline
// when the model returned plain or truncated text
func (p *GeminiProvider) parseResponse(resp *genai.GenerateContentResponse) ([]string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("no response from Gemini API")
	}
	candidate := resp.Candidates[0]

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	raw := text.String()
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty response from Gemini API")
	}
	if candidate.FinishReason == genai.FinishReasonMaxTokens {
		p.log.Warn("response truncated by token limit, lines may be incomplete")
	}

	var parsed linesResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		p.log.Warn("JSON parse failed, using plain text lines", zap.Error(err))
		parsed.Lines = strings.Split(raw, "\n")
	}
	return cleanLines(parsed.Lines), nil
}

// createLinesSchema constrains the response to {"lines": [...]}
func createLinesSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"lines": {
				Type:        genai.TypeArray,
				Description: "Every printed line of the document, top to bottom, exactly as printed",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"lines"},
	}
}

// cleanLines trims lines and drops blanks
func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
