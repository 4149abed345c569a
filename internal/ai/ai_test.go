package ai

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

var fastRetry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiple: 2}

func testOptions() ProviderOptions {
	return ProviderOptions{Retry: fastRetry, Logger: zap.NewNop()}
}

func writeScan(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really an image"), 0o600))
	return path
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []genai.Part{genai.Text(text)}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	errs    []error
	resp    *genai.GenerateContentResponse
	gotMIME string
}

func (g *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	for _, p := range parts {
		if b, ok := p.(genai.Blob); ok {
			g.gotMIME = b.MIMEType
		}
	}
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return nil, err
	}
	return g.resp, nil
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  string
		retryable bool
	}{
		{"rate limit", &googleapi.Error{Code: 429}, "rate_limit", true},
		{"unauthorized", &googleapi.Error{Code: 401}, "unauthorized", false},
		{"server", &googleapi.Error{Code: 503}, "server_error", true},
		{"azure server", autorest.DetailedError{StatusCode: 502, Message: "bad gateway"}, "server_error", true},
		{"azure bad request", autorest.DetailedError{StatusCode: 400}, "bad_request", false},
		{"deadline", context.DeadlineExceeded, "timeout", true},
		{"wrapped deadline", errors.Join(errors.New("call"), context.DeadlineExceeded), "timeout", true},
		{"canceled", context.Canceled, "canceled", false},
		{"quota", errors.New("Quota exhausted for today"), "quota_exceeded", false},
		{"connection", errors.New("connection reset by peer"), "network_error", true},
		{"other", errors.New("boom"), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := categorizeError(tt.err)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.Nil(t, categorizeError(nil))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiple: 2}
	assert.Equal(t, time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(3, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(4, cfg))
}

func TestCallWithRetry(t *testing.T) {
	attempts := 0
	err := callWithRetry(context.Background(), "test", fastRetry, zap.NewNop(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &googleapi.Error{Code: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = callWithRetry(context.Background(), "test", fastRetry, zap.NewNop(), func(context.Context) error {
		attempts++
		return &googleapi.Error{Code: 403}
	})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "forbidden", apiErr.Category)
	assert.Equal(t, 1, attempts)

	attempts = 0
	err = callWithRetry(context.Background(), "test", fastRetry, zap.NewNop(), func(context.Context) error {
		attempts++
		return &googleapi.Error{Code: 500}
	})
	assert.Error(t, err)
	assert.Equal(t, fastRetry.MaxAttempts, attempts)
}

func TestGeminiExtractLines(t *testing.T) {
	gen := &fakeGenerator{
		errs: []error{&googleapi.Error{Code: 500}},
		resp: textResponse(`{"lines": ["  ООО \"Ромашка\"  ", "", "Мука пшен в/с | 10 | кг | 100,00"]}`),
	}
	p := newGeminiProvider(gen, "gemini-test", testOptions())

	lines, err := p.ExtractLines(context.Background(), writeScan(t, "invoice.png"))
	require.NoError(t, err)
	assert.Equal(t, []string{`ООО "Ромашка"`, "Мука пшен в/с | 10 | кг | 100,00"}, lines)
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, "image/png", gen.gotMIME)
	assert.Equal(t, "gemini", p.GetProviderName())
}

func TestGeminiPlainTextFallback(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("Накладная № 42\nСахар песок 5 кг\n")}
	p := newGeminiProvider(gen, "gemini-test", testOptions())

	lines, err := p.ExtractLines(context.Background(), writeScan(t, "invoice.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Накладная № 42", "Сахар песок 5 кг"}, lines)
}

func TestGeminiFailuresAreOCRUnavailable(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		path func(t *testing.T) string
	}{
		{"empty response", &fakeGenerator{resp: textResponse("   ")}, func(t *testing.T) string { return writeScan(t, "a.jpg") }},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}, func(t *testing.T) string { return writeScan(t, "a.jpg") }},
		{"api error", &fakeGenerator{errs: []error{&googleapi.Error{Code: 401}}}, func(t *testing.T) string { return writeScan(t, "a.jpg") }},
		{"missing file", &fakeGenerator{}, func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.jpg") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newGeminiProvider(tt.gen, "gemini-test", testOptions())
			_, err := p.ExtractLines(context.Background(), tt.path(t))
			assert.ErrorIs(t, err, common.ErrOCRUnavailable)
		})
	}
}

type fakeRecognizer struct {
	result computervision.OcrResult
	err    error
	lang   computervision.OcrLanguages
	body   []byte
}

func (r *fakeRecognizer) RecognizePrintedTextInStream(_ context.Context, _ bool, image io.ReadCloser, language computervision.OcrLanguages) (computervision.OcrResult, error) {
	r.lang = language
	r.body, _ = io.ReadAll(image)
	return r.result, r.err
}

func words(texts ...string) *[]computervision.OcrWord {
	out := make([]computervision.OcrWord, 0, len(texts))
	for i := range texts {
		out = append(out, computervision.OcrWord{Text: &texts[i]})
	}
	return &out
}

func TestAzureExtractLines(t *testing.T) {
	rec := &fakeRecognizer{result: computervision.OcrResult{
		Regions: &[]computervision.OcrRegion{
			{Lines: &[]computervision.OcrLine{
				{Words: words("ООО", "\"Ромашка\"")},
				{Words: words("Сыр", "российск.", "1,5", "кг")},
			}},
			{Lines: &[]computervision.OcrLine{{Words: words(" ")}, {}}},
			{},
		},
	}}
	p := newAzureProvider(rec, testOptions())

	lines, err := p.ExtractLines(context.Background(), writeScan(t, "invoice.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []string{`ООО "Ромашка"`, "Сыр российск. 1,5 кг"}, lines)
	assert.Equal(t, computervision.OcrLanguagesRu, rec.lang)
	assert.Equal(t, []byte("not really an image"), rec.body)
}

func TestAzureRejectsPDFAndWrapsErrors(t *testing.T) {
	p := newAzureProvider(&fakeRecognizer{}, testOptions())
	_, err := p.ExtractLines(context.Background(), writeScan(t, "invoice.pdf"))
	assert.ErrorIs(t, err, common.ErrOCRUnavailable)

	p = newAzureProvider(&fakeRecognizer{err: autorest.DetailedError{StatusCode: 401}}, testOptions())
	_, err = p.ExtractLines(context.Background(), writeScan(t, "invoice.jpg"))
	assert.ErrorIs(t, err, common.ErrOCRUnavailable)
}

type stubProvider struct {
	name  string
	lines []string
	err   error
	calls int
}

func (s *stubProvider) ExtractLines(context.Context, string) ([]string, error) {
	s.calls++
	return s.lines, s.err
}

func (s *stubProvider) GetProviderName() string { return s.name }

func TestFallbackProvider(t *testing.T) {
	primary := &stubProvider{name: "gemini", err: common.OCRError("gemini", errors.New("down"))}
	fallback := &stubProvider{name: "azure", lines: []string{"Сахар"}}
	p := NewFallbackProvider(primary, fallback, zap.NewNop())

	lines, err := p.ExtractLines(context.Background(), "scan.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"Сахар"}, lines)
	assert.Equal(t, "gemini+azure", p.GetProviderName())

	fallback.err = common.OCRError("azure", errors.New("also down"))
	_, err = p.ExtractLines(context.Background(), "scan.jpg")
	assert.ErrorIs(t, err, common.ErrOCRUnavailable)
	assert.Contains(t, err.Error(), "also down")

	primary.err = nil
	primary.lines = []string{"Мука"}
	fallback.calls = 0
	lines, err = p.ExtractLines(context.Background(), "scan.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"Мука"}, lines)
	assert.Zero(t, fallback.calls)
}

func TestCreateOCRProvider(t *testing.T) {
	ctx := context.Background()

	_, err := CreateOCRProvider(ctx, OCRProviderConfig{Provider: "mistral"}, testOptions())
	assert.Error(t, err)

	_, err = CreateOCRProvider(ctx, OCRProviderConfig{Provider: "gemini"}, testOptions())
	assert.Error(t, err)

	p, err := CreateOCRProviderWithFallback(ctx, OCRProviderConfig{
		Provider:      "azure",
		AzureEndpoint: "https://example.cognitiveservices.azure.com/",
		AzureKey:      "key",
	}, testOptions())
	require.NoError(t, err)
	assert.Equal(t, "azure", p.GetProviderName())
}
