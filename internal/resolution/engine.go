// engine.go - Exact -> alias -> fuzzy resolution with confirmation driven learning

package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
	"github.com/bosocmputer/invoice_resolver/internal/storage"
	"go.uber.org/zap"
)

// Options holds the decision thresholds
type Options struct {
	AutoThreshold    float64 // score >= auto resolves and learns the alias
	SuggestThreshold float64 // suggest <= score < auto asks a human
	TopK             int
	Workers          int // parallel lanes in ResolveBatch
	CacheTTL         time.Duration
}

// DefaultOptions mirrors the config defaults
func DefaultOptions() Options {
	return Options{AutoThreshold: 0.92, SuggestThreshold: 0.70, TopK: 3, Workers: 4, CacheTTL: storage.DefaultCacheTTL}
}

// Validate checks 0 < suggest <= auto <= 1
func (o Options) Validate() error {
	if o.SuggestThreshold <= 0 || o.SuggestThreshold > o.AutoThreshold || o.AutoThreshold > 1 {
		return fmt.Errorf("thresholds must satisfy 0 < suggest (%.2f) <= auto (%.2f) <= 1", o.SuggestThreshold, o.AutoThreshold)
	}
	if o.TopK < 1 || o.Workers < 1 {
		return fmt.Errorf("top-k (%d) and workers (%d) must be positive", o.TopK, o.Workers)
	}
	return nil
}

// Dependencies are the collaborators an Engine needs; Journal, Metrics and Logger are optional
type Dependencies struct {
	Normalizers *processor.NormalizerSet
	Aliases     storage.AliasStore
	Catalog     storage.EntityCatalog
	Journal     storage.DecisionJournal
	Metrics     *Metrics
	Logger      *zap.Logger
}

// Engine resolves product and supplier names. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	opts        Options
	normalizers *processor.NormalizerSet
	matcher     *processor.FuzzyMatcher
	aliases     storage.AliasStore
	catalog     storage.EntityCatalog
	cache       *storage.CatalogCache
	journal     storage.DecisionJournal
	metrics     *Metrics
	log         *zap.Logger
}

func NewEngine(deps Dependencies, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Normalizers == nil || deps.Aliases == nil || deps.Catalog == nil {
		return nil, errors.New("engine needs normalizers, alias store and catalog")
	}
	if deps.Journal == nil {
		deps.Journal = storage.NopJournal{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}

	return &Engine{
		opts:        opts,
		normalizers: deps.Normalizers,
		matcher:     processor.NewFuzzyMatcher(),
		aliases:     deps.Aliases,
		catalog:     deps.Catalog,
		cache:       storage.NewCatalogCache(deps.Catalog, deps.Aliases, deps.Normalizers.Normalize, opts.CacheTTL),
		journal:     deps.Journal,
		metrics:     deps.Metrics,
		log:         common.OrGlobal(deps.Logger),
	}, nil
}

// Options returns the thresholds in use
func (e *Engine) Options() Options { return e.opts }

// Normalize exposes the per kind normalizer
func (e *Engine) Normalize(kind common.EntityKind, raw string) string {
	return e.normalizers.Normalize(kind, raw)
}

// InvalidateCatalog must be called after catalog mutations made outside the engine
func (e *Engine) InvalidateCatalog(kind common.EntityKind) {
	e.cache.Invalidate(kind)
}

func (e *Engine) prepare(kind common.EntityKind, raw string) (Result, error) {
	if !kind.Valid() {
		return Result{}, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	if err := processor.ValidateText(raw); err != nil {
		return Result{}, err
	}
	return Result{Kind: kind, Query: raw, Normalized: e.normalizers.Normalize(kind, raw), Candidates: []processor.Match{}}, nil
}

// Resolve runs the exact, alias and fuzzy stages for one name
func (e *Engine) Resolve(ctx context.Context, kind common.EntityKind, raw string) (Result, error) {
	started := time.Now()
	res, err := e.prepare(kind, raw)
	if err != nil {
		return Result{}, err
	}

	res, err = e.resolve(ctx, res)
	return e.finish(ctx, "resolve", res, started, err)
}

// ResolveSupplier checks the tax identifier before the name stages; a tax id hit counts as Exact
func (e *Engine) ResolveSupplier(ctx context.Context, raw, taxID string) (Result, error) {
	started := time.Now()
	res, err := e.prepare(common.KindSupplier, raw)
	if err != nil {
		return Result{}, err
	}

	if entry, found, err := e.catalog.FindByTaxID(ctx, taxID); err != nil {
		return e.finish(ctx, "resolve", res, started, err)
	} else if found {
		return e.finish(ctx, "resolve", resolved(res, OutcomeExact, entry.ID, 1), started, nil)
	}

	res, err = e.resolve(ctx, res)
	return e.finish(ctx, "resolve", res, started, err)
}

func (e *Engine) resolve(ctx context.Context, res Result) (Result, error) {
	res.Outcome = OutcomeNoMatch
	if res.Normalized == "" {
		return res, nil
	}

	snap, err := e.cache.Get(ctx, res.Kind)
	if err != nil {
		return res, err
	}

	// Stage 1: canonical name
	if id, ok := snap.Canonical(res.Normalized); ok {
		return resolved(res, OutcomeExact, id, 1), nil
	}

	// Stage 2: learned alias
	id, found, err := e.aliases.Lookup(ctx, res.Kind, res.Normalized)
	if err != nil {
		return res, err
	}
	if found {
		return resolved(res, OutcomeAliasHit, id, 1), nil
	}

	// Stage 3: fuzzy over canonicals and aliases
	matches := e.matcher.Match(res.Normalized, snap.Candidates())
	if len(matches) > e.opts.TopK {
		matches = matches[:e.opts.TopK]
	}
	res.Candidates = matches
	if len(matches) == 0 {
		return res, nil
	}

	best := matches[0]
	switch {
	case best.Score >= e.opts.AutoThreshold:
		if err := e.learn(ctx, res.Kind, res.Normalized, best.EntityID); err != nil {
			return res, err
		}
		return resolved(res, OutcomeAutoFuzzy, best.EntityID, best.Score), nil
	case best.Score >= e.opts.SuggestThreshold:
		res.Outcome = OutcomeAmbiguous
	default:
		res.Outcome = OutcomeNoMatch
	}
	res.Score = best.Score
	return res, nil
}

// learn records alias -> id and makes it visible to the next fuzzy pool
func (e *Engine) learn(ctx context.Context, kind common.EntityKind, alias string, id uint) error {
	err := e.aliases.Record(ctx, kind, alias, id)
	if errors.Is(err, common.ErrStoreConflict) {
		e.metrics.conflict(kind)
	}
	if err != nil {
		return err
	}
	e.cache.Invalidate(kind)
	return nil
}

// Confirm is the bot's "this name is that entity" answer
func (e *Engine) Confirm(ctx context.Context, kind common.EntityKind, query string, entityID uint) (Result, error) {
	started := time.Now()
	res, err := e.prepare(kind, query)
	if err != nil {
		return Result{}, err
	}
	if res.Normalized == "" {
		return Result{}, fmt.Errorf("%w: %q normalizes to nothing", common.ErrNormalizationInput, query)
	}

	entry, err := e.catalog.GetEntity(ctx, kind, entityID)
	if err != nil {
		return e.finish(ctx, "confirm", res, started, err)
	}

	// another entity's canonical name always wins over an alias
	if err := e.checkShadow(ctx, kind, res.Normalized, entry.ID); err != nil {
		return e.finish(ctx, "confirm", res, started, err)
	}

	// the canonical form needs no alias
	if e.normalizers.Normalize(kind, entry.Name) != res.Normalized {
		if err := e.learn(ctx, kind, res.Normalized, entry.ID); err != nil {
			return e.finish(ctx, "confirm", res, started, err)
		}
	}
	return e.finish(ctx, "confirm", resolved(res, OutcomeResolved, entry.ID, 1), started, nil)
}

// Reject records that a human declined every candidate; nothing is written to the alias store
func (e *Engine) Reject(ctx context.Context, kind common.EntityKind, query string) (Result, error) {
	started := time.Now()
	res, err := e.prepare(kind, query)
	if err != nil {
		return Result{}, err
	}
	res.Outcome = OutcomeRejected
	return e.finish(ctx, "reject", res, started, nil)
}

// ConfirmNew creates the entity the bot asked for and learns the query as its alias
func (e *Engine) ConfirmNew(ctx context.Context, kind common.EntityKind, query string, entity storage.NewEntity) (Result, error) {
	started := time.Now()
	res, err := e.prepare(kind, query)
	if err != nil {
		return Result{}, err
	}
	if entity.Name == "" {
		entity.Name = query
	}
	if err := processor.ValidateText(entity.Name); err != nil {
		return Result{}, err
	}
	canonical := e.normalizers.Normalize(kind, entity.Name)
	if canonical == "" {
		return Result{}, fmt.Errorf("%w: entity name %q normalizes to nothing", common.ErrNormalizationInput, entity.Name)
	}

	// the query, or the new name, already is an existing entity's canonical name
	for _, name := range []string{res.Normalized, canonical} {
		if err := e.checkShadow(ctx, kind, name, 0); err != nil {
			return e.finish(ctx, "confirm_new", res, started, err)
		}
	}

	learnAlias := res.Normalized != "" && res.Normalized != canonical
	if learnAlias {
		// refuse before creating anything when the alias is already taken
		if existing, found, err := e.aliases.Lookup(ctx, kind, res.Normalized); err != nil {
			return e.finish(ctx, "confirm_new", res, started, err)
		} else if found {
			e.metrics.conflict(kind)
			return e.finish(ctx, "confirm_new", res, started,
				&common.ConflictError{Kind: kind, Alias: res.Normalized, Existing: existing})
		}
	}

	entry, err := e.catalog.CreateEntity(ctx, kind, entity)
	if err != nil {
		return e.finish(ctx, "confirm_new", res, started, err)
	}
	e.cache.Invalidate(kind)

	if learnAlias {
		if err := e.learn(ctx, kind, res.Normalized, entry.ID); err != nil {
			// lost the alias to a concurrent writer: drop the entity nobody can reach
			if derr := e.catalog.DeleteEntity(ctx, kind, entry.ID); derr != nil {
				e.log.Error("failed to remove orphaned entity",
					zap.String("kind", kind.String()), zap.Uint("entity_id", entry.ID), zap.Error(derr))
			}
			e.cache.Invalidate(kind)
			return e.finish(ctx, "confirm_new", res, started, err)
		}
	}
	return e.finish(ctx, "confirm_new", resolved(res, OutcomeResolved, entry.ID, 1), started, nil)
}

// checkShadow refuses an alias that equals the canonical name of an entity other than id
func (e *Engine) checkShadow(ctx context.Context, kind common.EntityKind, normalized string, id uint) error {
	if normalized == "" {
		return nil
	}
	snap, err := e.cache.Get(ctx, kind)
	if err != nil {
		return err
	}
	if existing, ok := snap.Canonical(normalized); ok && existing != id {
		e.metrics.conflict(kind)
		return &common.ConflictError{Kind: kind, Alias: normalized, Existing: existing, Requested: id}
	}
	return nil
}

// finish logs, counts and journals one decision
func (e *Engine) finish(ctx context.Context, action string, res Result, started time.Time, err error) (Result, error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.String("kind", res.Kind.String()),
		zap.String("normalized", res.Normalized),
		zap.String("outcome", string(res.Outcome)),
		zap.Float64("score", res.Score),
	}
	reqID := common.RequestIDFrom(ctx)
	if reqID != "" {
		fields = append(fields, zap.String("request_id", reqID))
	}

	decision := storage.Decision{
		RequestID:  reqID,
		Action:     action,
		Kind:       res.Kind,
		Query:      res.Query,
		Normalized: res.Normalized,
		Outcome:    string(res.Outcome),
		EntityID:   res.EntityID,
		Score:      res.Score,
		CreatedAt:  time.Now().UTC(),
	}
	for _, c := range res.Candidates {
		decision.Candidates = append(decision.Candidates, storage.DecisionOption{EntityID: c.EntityID, Score: c.Score})
	}

	switch {
	case err == nil:
		e.metrics.observe(res.Kind, res.Outcome, started)
		e.log.Info("name resolved", fields...)
	case errors.Is(err, common.ErrStoreConflict):
		decision.Error = err.Error()
		e.log.Warn("alias conflict", append(fields, zap.Error(err))...)
	default:
		decision.Error = err.Error()
		e.log.Error("resolution failed", append(fields, zap.Error(err))...)
	}

	if jerr := e.journal.Record(ctx, decision); jerr != nil {
		e.log.Warn("failed to journal decision", zap.Error(jerr))
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}
