// request_context.go - Request tracking and logging system

package common

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestContext tracks a request lifecycle with per-step timing
type RequestContext struct {
	RequestID string
	StartTime time.Time
	Logger    *zap.Logger

	mu               sync.Mutex
	steps            []StepLog
	currentStep      string
	currentStepStart time.Time
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration_ms"`
	Status    string    `json:"status"` // "success", "failed", "skipped"
	Error     string    `json:"error,omitempty"`
}

type requestContextKey struct{}

// NewRequestContext creates a new request tracking context
func NewRequestContext(logger *zap.Logger) *RequestContext {
	reqID := uuid.New().String()
	l := OrGlobal(logger).With(zap.String("request_id", reqID))
	l.Debug("request started")

	return &RequestContext{
		RequestID: reqID,
		StartTime: time.Now(),
		Logger:    l,
	}
}

// WithRequestContext stores rc in ctx
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the request context stored in ctx, or a fresh one
func FromContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return rc
	}
	return NewRequestContext(nil)
}

// RequestIDFrom returns the request id stored in ctx, or ""
func RequestIDFrom(ctx context.Context) string {
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return rc.RequestID
	}
	return ""
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.currentStep = stepName
	rc.currentStepStart = time.Now()
	rc.Logger.Debug("step started", zap.String("step", stepName))
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.currentStep == "" {
		return
	}

	duration := time.Since(rc.currentStepStart)
	step := StepLog{
		Name:      rc.currentStep,
		StartTime: rc.currentStepStart,
		Duration:  duration.Milliseconds(),
		Status:    "success",
	}

	if err != nil {
		step.Status = "failed"
		step.Error = err.Error()
		rc.Logger.Error("step failed", zap.String("step", rc.currentStep), zap.Duration("duration", duration), zap.Error(err))
	} else {
		rc.Logger.Info("step finished", zap.String("step", rc.currentStep), zap.Duration("duration", duration))
	}

	rc.steps = append(rc.steps, step)
	rc.currentStep = ""
}

// Steps returns a copy of the recorded steps
func (rc *RequestContext) Steps() []StepLog {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out := make([]StepLog, len(rc.steps))
	copy(out, rc.steps)
	return out
}

// GetSummary returns a final summary of the entire request
func (rc *RequestContext) GetSummary() map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	totalDuration := time.Since(rc.StartTime).Milliseconds()
	stepBreakdown := make(map[string]int64, len(rc.steps))
	failed := 0
	for _, step := range rc.steps {
		stepBreakdown[step.Name] = step.Duration
		if step.Status == "failed" {
			failed++
		}
	}

	rc.Logger.Info("request finished",
		zap.Int64("total_duration_ms", totalDuration),
		zap.Int("steps", len(rc.steps)),
		zap.Int("failed_steps", failed))

	return map[string]interface{}{
		"request_id":        rc.RequestID,
		"total_duration_ms": totalDuration,
		"step_breakdown":    stepBreakdown,
		"total_steps":       len(rc.steps),
		"failed_steps":      failed,
	}
}
