// Package catalog defines the product row model and the catalog-search
// collaborator boundary.
//
// Search is an external concern; this package only shapes responses into
// rows and assigns each row a stable identifier at creation time. Identity
// is never derived from display fields.
package catalog

import (
	"context"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

// ProductRow is one catalog result. Rows are immutable once created.
type ProductRow struct {
	// ID is assigned when the row is first shaped from a search response
	// and is the only identity carried into carts and approvals.
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Price   string  `json:"price"`
	Amount  float64 `json:"amount"`
	Rating  float64 `json:"rating"`
	Reviews int     `json:"reviews"`
	Source  string  `json:"source"`
	Link    string  `json:"link"`
	Image   string  `json:"image"`
}

// Searcher retrieves catalog rows for a keyword set. An empty result is a
// valid, non-error outcome.
type Searcher interface {
	Search(ctx context.Context, keywords []string) ([]ProductRow, error)
}

// NewRowID returns a fresh stable row identifier.
func NewRowID() string {
	return "prod_" + uuid.NewString()
}

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

// ParsePrice converts a display price such as "₹2,899" or "Rs. 1,299.50"
// to its numeric amount. It returns 0 and false when nothing numeric
// remains after stripping currency symbols and separators.
func ParsePrice(price string) (float64, bool) {
	cleaned := nonNumeric.ReplaceAllString(price, "")
	if cleaned == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || amount <= 0 {
		return 0, false
	}
	return amount, true
}
