// review.go - Problems the operator should look at before an invoice is stored

package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
	"github.com/bosocmputer/invoice_resolver/internal/resolution"
	"github.com/shopspring/decimal"
)

// IssueType classifies a review finding
type IssueType string

const (
	IssueSupplierMissing  IssueType = "supplier_missing"
	IssueSupplierNotFound IssueType = "supplier_not_found"
	IssueNoPositions      IssueType = "no_positions"
	IssueNoName           IssueType = "position_no_name"
	IssueProductNotFound  IssueType = "product_not_found"
	IssueProductAmbiguous IssueType = "product_low_confidence"
	IssueNoQuantity       IssueType = "position_no_quantity"
	IssueNoUnit           IssueType = "position_no_unit"
	IssueUnitMismatch     IssueType = "unit_mismatch"
	IssueNoTotal          IssueType = "no_total"
	IssueSumMismatch      IssueType = "sum_mismatch"
)

// sums may differ by one kopeck
var sumTolerance = decimal.NewFromFloat(0.01)

// Issue is one finding; Line is 1-based and zero for header findings
type Issue struct {
	Type    IssueType `json:"type"`
	Line    int       `json:"line,omitempty"`
	Message string    `json:"message"`
}

// Review lists what keeps a draft from being stored cleanly. An empty result means nothing to fix.
func (a *Assembler) Review(ctx context.Context, draft InvoiceDraft) ([]Issue, error) {
	issues := []Issue{}
	add := func(t IssueType, line int, format string, args ...interface{}) {
		issues = append(issues, Issue{Type: t, Line: line, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case strings.TrimSpace(draft.Supplier.Query) == "" && draft.Supplier.ResolvedID() == nil:
		add(IssueSupplierMissing, 0, "supplier is not specified")
	case draft.Supplier.ResolvedID() == nil:
		add(IssueSupplierNotFound, 0, "supplier not found: %s", draft.Supplier.Query)
	}

	active := 0
	lineSum := decimal.Zero
	for i, line := range draft.Lines {
		if line.Deleted {
			continue
		}
		active++
		n := i + 1

		lineSum = lineSum.Add(lineAmount(line))
		if strings.TrimSpace(line.Name) == "" {
			add(IssueNoName, n, "line %d: name is missing", n)
			continue
		}

		productID := line.Product.ResolvedID()
		switch {
		case productID != nil:
		case line.Product.Outcome == resolution.OutcomeAmbiguous:
			add(IssueProductAmbiguous, n, "line %d: low confidence match for %q, candidates: %s",
				n, line.Name, candidateList(line.Product.Candidates))
		default:
			add(IssueProductNotFound, n, "line %d: product not found: %s", n, line.Name)
		}

		if !line.Quantity.Valid || !line.Quantity.Decimal.IsPositive() {
			add(IssueNoQuantity, n, "line %d: quantity is missing", n)
		}

		unit := processor.NormalizeUnit(line.Unit)
		if unit == "" {
			add(IssueNoUnit, n, "line %d: unit is missing", n)
			continue
		}
		if productID != nil {
			entry, err := a.catalog.GetEntity(ctx, common.KindProduct, *productID)
			if errors.Is(err, common.ErrEntityNotFound) {
				add(IssueProductNotFound, n, "line %d: product %d no longer exists", n, *productID)
				continue
			}
			if err != nil {
				return nil, err
			}
			if entry.Unit != "" {
				if _, ok := processor.ConvertUnit(1, unit, entry.Unit); !ok {
					add(IssueUnitMismatch, n, "line %d: incompatible units %s vs %s", n, unit, processor.NormalizeUnit(entry.Unit))
				}
			}
		}
	}

	if active == 0 {
		add(IssueNoPositions, 0, "invoice has no positions")
	}

	if !draft.TotalSum.IsPositive() {
		add(IssueNoTotal, 0, "total sum is missing")
	} else if draft.TotalSum.Sub(lineSum).Abs().GreaterThan(sumTolerance) {
		add(IssueSumMismatch, 0, "line sums (%s) do not match total (%s)", lineSum.StringFixed(2), draft.TotalSum.StringFixed(2))
	}
	return issues, nil
}

// lineAmount is the printed sum, or price times quantity when the sum is missing
func lineAmount(line Line) decimal.Decimal {
	switch {
	case line.Sum.Valid:
		return line.Sum.Decimal
	case line.Price.Valid && line.Quantity.Valid:
		return line.Price.Decimal.Mul(line.Quantity.Decimal).Round(2)
	}
	return decimal.Zero
}

func candidateList(matches []processor.Match) string {
	if len(matches) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", m.Text, m.Score))
	}
	return strings.Join(parts, ", ")
}
