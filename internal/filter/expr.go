// Package filter evaluates table questions against product rows.
//
// The filter oracle's natural-language output is parsed into a small,
// closed expression language and interpreted here. Nothing the oracle
// returns is ever executed as code: an expression the parser does not
// recognize is rejected outright.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/buyerd/internal/catalog"
)

// ErrExecutionFailed indicates the oracle produced no usable expression
// or the expression could not be evaluated.
var ErrExecutionFailed = errors.New("filter execution failed")

// Field names a queryable column of the product row set.
type Field string

const (
	FieldPrice   Field = "price"
	FieldRating  Field = "rating"
	FieldReviews Field = "reviews"
	FieldTitle   Field = "title"
	FieldSource  Field = "source"
)

// Op is a comparison operator.
type Op string

const (
	OpLT Op = "lt"
	OpLE Op = "le"
	OpGT Op = "gt"
	OpGE Op = "ge"
	OpEQ Op = "eq"
)

// ExprKind tags the expression variant.
type ExprKind string

const (
	// KindCompare keeps rows where a numeric field satisfies cmp value.
	KindCompare ExprKind = "compare"
	// KindContains keeps rows whose text field contains a substring.
	KindContains ExprKind = "contains"
	// KindAll keeps rows satisfying every child expression.
	KindAll ExprKind = "all"
	// KindTopK keeps the k extreme rows ordered by a numeric field.
	KindTopK ExprKind = "top_k"
	// KindCount yields the row count as a scalar.
	KindCount ExprKind = "count"
	// KindMean yields the mean of a numeric field as a scalar.
	KindMean ExprKind = "mean"
)

// Expr is one node of the expression tree.
type Expr struct {
	Kind ExprKind `json:"kind"`

	Field Field   `json:"field,omitempty"`
	Cmp   Op      `json:"cmp,omitempty"`
	Value float64 `json:"value,omitempty"`

	Text string `json:"text,omitempty"`

	K          int  `json:"k,omitempty"`
	Descending bool `json:"descending,omitempty"`

	Exprs []Expr `json:"exprs,omitempty"`
}

// Validate rejects malformed expressions before evaluation.
func (e *Expr) Validate() error {
	switch e.Kind {
	case KindCompare:
		if !isNumericField(e.Field) {
			return fmt.Errorf("%w: compare requires a numeric field, got %q", ErrExecutionFailed, e.Field)
		}
		switch e.Cmp {
		case OpLT, OpLE, OpGT, OpGE, OpEQ:
		default:
			return fmt.Errorf("%w: unknown comparison %q", ErrExecutionFailed, e.Cmp)
		}
	case KindContains:
		if e.Field != FieldTitle && e.Field != FieldSource {
			return fmt.Errorf("%w: contains requires a text field, got %q", ErrExecutionFailed, e.Field)
		}
		if e.Text == "" {
			return fmt.Errorf("%w: contains requires a substring", ErrExecutionFailed)
		}
	case KindAll:
		if len(e.Exprs) == 0 {
			return fmt.Errorf("%w: empty conjunction", ErrExecutionFailed)
		}
		for i := range e.Exprs {
			if err := e.Exprs[i].Validate(); err != nil {
				return err
			}
			if e.Exprs[i].Kind == KindCount || e.Exprs[i].Kind == KindMean || e.Exprs[i].Kind == KindTopK {
				return fmt.Errorf("%w: %s is not allowed inside a conjunction", ErrExecutionFailed, e.Exprs[i].Kind)
			}
		}
	case KindTopK:
		if !isNumericField(e.Field) {
			return fmt.Errorf("%w: top_k requires a numeric field, got %q", ErrExecutionFailed, e.Field)
		}
		if e.K <= 0 {
			return fmt.Errorf("%w: top_k requires k > 0", ErrExecutionFailed)
		}
	case KindCount:
	case KindMean:
		if !isNumericField(e.Field) {
			return fmt.Errorf("%w: mean requires a numeric field, got %q", ErrExecutionFailed, e.Field)
		}
	default:
		return fmt.Errorf("%w: unknown expression kind %q", ErrExecutionFailed, e.Kind)
	}
	return nil
}

// IsAggregate reports whether evaluation yields a scalar instead of rows.
func (e *Expr) IsAggregate() bool {
	return e.Kind == KindCount || e.Kind == KindMean
}

func isNumericField(f Field) bool {
	return f == FieldPrice || f == FieldRating || f == FieldReviews
}

func numericValue(row catalog.ProductRow, f Field) float64 {
	switch f {
	case FieldPrice:
		return row.Amount
	case FieldRating:
		return row.Rating
	case FieldReviews:
		return float64(row.Reviews)
	}
	return 0
}

func textValue(row catalog.ProductRow, f Field) string {
	switch f {
	case FieldTitle:
		return row.Title
	case FieldSource:
		return row.Source
	}
	return ""
}

// Result is the outcome of applying an expression: a row subset for
// predicate expressions, a scalar for aggregates.
type Result struct {
	Rows   []catalog.ProductRow
	Scalar *float64
}

// Apply interprets the expression against the rows. The returned row set
// is always a subset of the input; aggregates return a scalar instead.
func Apply(expr Expr, rows []catalog.ProductRow) (Result, error) {
	if err := expr.Validate(); err != nil {
		return Result{}, err
	}
	return apply(expr, rows), nil
}

func apply(expr Expr, rows []catalog.ProductRow) Result {
	switch expr.Kind {
	case KindCompare:
		var kept []catalog.ProductRow
		for _, row := range rows {
			if compare(numericValue(row, expr.Field), expr.Cmp, expr.Value) {
				kept = append(kept, row)
			}
		}
		return Result{Rows: kept}

	case KindContains:
		needle := strings.ToLower(expr.Text)
		var kept []catalog.ProductRow
		for _, row := range rows {
			if strings.Contains(strings.ToLower(textValue(row, expr.Field)), needle) {
				kept = append(kept, row)
			}
		}
		return Result{Rows: kept}

	case KindAll:
		kept := rows
		for _, child := range expr.Exprs {
			kept = apply(child, kept).Rows
		}
		return Result{Rows: kept}

	case KindTopK:
		sorted := make([]catalog.ProductRow, len(rows))
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := numericValue(sorted[i], expr.Field), numericValue(sorted[j], expr.Field)
			if expr.Descending {
				return a > b
			}
			return a < b
		})
		if expr.K < len(sorted) {
			sorted = sorted[:expr.K]
		}
		return Result{Rows: sorted}

	case KindCount:
		n := float64(len(rows))
		return Result{Scalar: &n}

	case KindMean:
		if len(rows) == 0 {
			zero := 0.0
			return Result{Scalar: &zero}
		}
		var sum float64
		for _, row := range rows {
			sum += numericValue(row, expr.Field)
		}
		mean := sum / float64(len(rows))
		return Result{Scalar: &mean}
	}
	return Result{}
}

func compare(a float64, op Op, b float64) bool {
	switch op {
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpEQ:
		return a == b
	}
	return false
}
