// factory.go - OCR provider factory with optional fallback

package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
	"github.com/bosocmputer/invoice_resolver/internal/ratelimit"
	"go.uber.org/zap"
)

// ProviderOptions are shared by every provider; zero values get defaults
type ProviderOptions struct {
	Preprocessor *processor.ImagePreprocessor
	Limiter      *ratelimit.RateLimiter
	Retry        RetryConfig
	Timeout      time.Duration
	Logger       *zap.Logger
}

func (o ProviderOptions) withDefaults() ProviderOptions {
	if o.Preprocessor == nil {
		o.Preprocessor = processor.NewImagePreprocessor(false, 0)
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = DefaultRetryConfig
	}
	o.Logger = common.OrGlobal(o.Logger)
	return o
}

// CreateOCRProvider creates the provider named in cfg. Each provider gets its own rate limiter.
func CreateOCRProvider(ctx context.Context, cfg OCRProviderConfig, opts ProviderOptions) (OCRProvider, error) {
	switch cfg.Provider {
	case "gemini":
		opts.Limiter = ratelimit.NewRateLimiter(cfg.RatePerMinute, 1)
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, opts)
	case "azure":
		opts.Limiter = ratelimit.NewRateLimiter(cfg.RatePerMinute, 1)
		return NewAzureProvider(cfg.AzureEndpoint, cfg.AzureKey, opts)
	default:
		return nil, fmt.Errorf("unsupported OCR provider: %s (supported: gemini, azure)", cfg.Provider)
	}
}

// CreateOCRProviderWithFallback creates the primary provider and, when the other one is
// configured, wraps both so a failed primary call is retried on the fallback
func CreateOCRProviderWithFallback(ctx context.Context, cfg OCRProviderConfig, opts ProviderOptions) (OCRProvider, error) {
	primary, err := CreateOCRProvider(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	fallbackCfg := cfg
	switch cfg.Provider {
	case "gemini":
		if cfg.AzureEndpoint == "" || cfg.AzureKey == "" {
			return primary, nil
		}
		fallbackCfg.Provider = "azure"
	case "azure":
		if cfg.GeminiAPIKey == "" {
			return primary, nil
		}
		fallbackCfg.Provider = "gemini"
	}

	fallback, err := CreateOCRProvider(ctx, fallbackCfg, opts)
	if err != nil {
		return nil, err
	}

	log := common.OrGlobal(opts.Logger)
	log.Info("fallback OCR provider configured",
		zap.String("primary", primary.GetProviderName()),
		zap.String("fallback", fallback.GetProviderName()))
	return NewFallbackProvider(primary, fallback, log), nil
}

// FallbackProvider tries primary first and fallback when primary fails
type FallbackProvider struct {
	primary  OCRProvider
	fallback OCRProvider
	log      *zap.Logger
}

func NewFallbackProvider(primary, fallback OCRProvider, log *zap.Logger) *FallbackProvider {
	return &FallbackProvider{primary: primary, fallback: fallback, log: common.OrGlobal(log)}
}

func (f *FallbackProvider) GetProviderName() string {
	return f.primary.GetProviderName() + "+" + f.fallback.GetProviderName()
}

func (f *FallbackProvider) ExtractLines(ctx context.Context, imagePath string) ([]string, error) {
	lines, err := f.primary.ExtractLines(ctx, imagePath)
	if err == nil {
		return lines, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	f.log.Warn("primary OCR provider failed, trying fallback",
		zap.String("primary", f.primary.GetProviderName()),
		zap.String("fallback", f.fallback.GetProviderName()),
		zap.Error(err))

	lines, fbErr := f.fallback.ExtractLines(ctx, imagePath)
	if fbErr != nil {
		return nil, errors.Join(err, fbErr)
	}
	return lines, nil
}

// Close releases providers that hold clients
func (f *FallbackProvider) Close() error {
	var errs []error
	for _, p := range []OCRProvider{f.primary, f.fallback} {
		if c, ok := p.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
