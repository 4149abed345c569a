// gemini_retry.go - Retry logic and error classification for OCR API calls

package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/Azure/go-autorest/autorest"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// RetryConfig defines retry behavior for OCR API calls
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for retry behavior
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// APIError is a categorized provider error
type APIError struct {
	Err        error
	Category   string
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *APIError) Unwrap() error { return e.Err }

// categorizeError decides whether a failed call is worth repeating
func categorizeError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	out := &APIError{Err: err, Category: "unknown", Message: err.Error()}

	var gErr *googleapi.Error
	var dErr autorest.DetailedError
	switch {
	case errors.As(err, &gErr):
		categorizeStatus(out, gErr.Code, gErr.Message)
		return out
	case errors.As(err, &dErr):
		if code, ok := dErr.StatusCode.(int); ok && code != 0 {
			categorizeStatus(out, code, dErr.Message)
			return out
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Category, out.Message, out.Retryable = "timeout", "Request timeout - processing took too long", true
		return out
	case errors.Is(err, context.Canceled):
		out.Category, out.Message = "canceled", "Request was canceled"
		return out
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		out.Category, out.Message, out.Retryable = "network_error", "Network connection error", true
		return out
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "quota"):
		out.Category, out.Message = "quota_exceeded", "API quota exceeded - daily or monthly limit reached"
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		out.Category, out.Message, out.Retryable = "timeout", "Request timeout", true
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network"):
		out.Category, out.Message, out.Retryable = "network_error", "Network connection error", true
	}
	return out
}

// categorizeStatus maps an HTTP status from Google or Azure onto a category
func categorizeStatus(out *APIError, code int, message string) {
	out.StatusCode = code
	switch code {
	case 400:
		out.Category, out.Message = "bad_request", "Invalid request format or parameters"
	case 401:
		out.Category, out.Message = "unauthorized", "Invalid API key or authentication failed"
	case 403:
		out.Category, out.Message = "forbidden", "API key lacks required permissions"
	case 404:
		out.Category, out.Message = "not_found", "Model not found or invalid endpoint"
	case 413:
		out.Category, out.Message = "payload_too_large", "Request size exceeds limit (reduce image size)"
	case 429:
		out.Category, out.Message, out.Retryable = "rate_limit", "Rate limit exceeded - too many requests", true
	case 500, 502, 503, 504:
		out.Category, out.Message, out.Retryable = "server_error", fmt.Sprintf("Server error (%d)", code), true
	default:
		out.Category = "unknown_api_error"
		out.Message = fmt.Sprintf("API error: %s", message)
		out.Retryable = code >= 500
	}
}

// callWithRetry runs call until it succeeds, fails with a non-retryable error or attempts run out
func callWithRetry(ctx context.Context, provider string, config RetryConfig, log *zap.Logger, call func(context.Context) error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	var last *APIError

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := call(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("retry succeeded", zap.String("provider", provider), zap.Int("attempt", attempt))
			}
			return nil
		}

		last = categorizeError(err)
		log.Warn("OCR call failed",
			zap.String("provider", provider),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", config.MaxAttempts),
			zap.String("category", last.Category),
			zap.Error(err))

		if !last.Retryable || attempt >= config.MaxAttempts {
			break
		}

		delay := calculateBackoff(attempt, config)
		if last.Category == "rate_limit" {
			delay *= 2
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during retry wait: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return last
}

// calculateBackoff computes exponential backoff delay capped at MaxDelay
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
