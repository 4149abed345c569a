// batch.go - Parallel resolution of invoice lines

package resolution

import (
	"context"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"golang.org/x/sync/errgroup"
)

// Query is one name to resolve in a batch. TaxID is only used for suppliers.
type Query struct {
	Kind  common.EntityKind `json:"kind" binding:"required"`
	Text  string            `json:"text"`
	TaxID string            `json:"tax_id,omitempty"`
}

type laneKey struct {
	kind       common.EntityKind
	normalized string
}

// ResolveBatch resolves queries concurrently. Queries sharing kind and normalized
// name run in input order on one lane, so an alias learned by the first is an
// AliasHit for the rest. Results are returned in input order; the first failure
// aborts the batch as a *common.LineError (lines are 1-based).
func (e *Engine) ResolveBatch(ctx context.Context, queries []Query) ([]Result, error) {
	lanes := make(map[laneKey][]int)
	var order []laneKey
	for i, q := range queries {
		if !q.Kind.Valid() {
			return nil, &common.LineError{Line: i + 1, Kind: q.Kind, Err: common.ErrUnknownKind}
		}
		key := laneKey{kind: q.Kind, normalized: e.normalizers.Normalize(q.Kind, q.Text)}
		if _, ok := lanes[key]; !ok {
			order = append(order, key)
		}
		lanes[key] = append(lanes[key], i)
	}

	results := make([]Result, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for _, key := range order {
		indices := lanes[key]
		g.Go(func() error {
			for _, i := range indices {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := e.resolveQuery(ctx, queries[i])
				if err != nil {
					return &common.LineError{Line: i + 1, Kind: queries[i].Kind, Err: err}
				}
				results[i] = res
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) resolveQuery(ctx context.Context, q Query) (Result, error) {
	if q.Kind == common.KindSupplier && q.TaxID != "" {
		return e.ResolveSupplier(ctx, q.Text, q.TaxID)
	}
	return e.Resolve(ctx, q.Kind, q.Text)
}
