package cart

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
)

// OrderLine is one product entry on a purchase order.
type OrderLine struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Extended  float64 `json:"extended"`
}

// VendorGroup collects the lines bought from one vendor.
type VendorGroup struct {
	Vendor   string      `json:"vendor"`
	Lines    []OrderLine `json:"lines"`
	Subtotal float64     `json:"subtotal"`
}

// PurchaseOrder is the final order document.
type PurchaseOrder struct {
	OrderNumber string        `json:"order_number"`
	Currency    string        `json:"currency"`
	Groups      []VendorGroup `json:"groups"`
	Total       float64       `json:"total"`
	CreatedAt   time.Time     `json:"created_at"`
}

// lastOrderUnix makes order numbers unique when two orders land in the
// same second.
var lastOrderUnix atomic.Int64

func nextOrderNumber(now time.Time) string {
	u := now.Unix()
	for {
		last := lastOrderUnix.Load()
		if u <= last {
			u = last + 1
		}
		if lastOrderUnix.CompareAndSwap(last, u) {
			return fmt.Sprintf("PO%d", u)
		}
	}
}

// unitPrice resolves the amount to bill for a row; ok is false when no
// usable price exists.
func unitPrice(row catalog.ProductRow) (float64, bool) {
	if row.Amount > 0 {
		return row.Amount, true
	}
	return catalog.ParsePrice(row.Price)
}

// BuildOrder assembles a purchase order from the eligible cart items,
// grouping lines by vendor in cart order. Items without a usable price
// are skipped. Returns nil when nothing is eligible.
func BuildOrder(ctx context.Context, items []Item, logger *logging.Logger) *PurchaseOrder {
	if logger == nil {
		logger = logging.NewNop()
	}

	byVendor := make(map[string]*VendorGroup)
	var vendors []string
	var total float64

	for _, item := range items {
		if !item.Eligible() {
			continue
		}
		unit, ok := unitPrice(item.Row)
		if !ok {
			logger.Warn(ctx, "skipping item with unparseable price",
				zap.String("product.id", item.Row.ID),
				zap.String("product.title", item.Row.Title),
				zap.String("price", item.Row.Price))
			continue
		}
		vendor := item.Row.Source
		if vendor == "" {
			vendor = "unknown"
		}
		group, seen := byVendor[vendor]
		if !seen {
			group = &VendorGroup{Vendor: vendor}
			byVendor[vendor] = group
			vendors = append(vendors, vendor)
		}
		extended := unit * float64(item.Quantity)
		group.Lines = append(group.Lines, OrderLine{
			ProductID: item.Row.ID,
			Title:     item.Row.Title,
			UnitPrice: unit,
			Quantity:  item.Quantity,
			Extended:  extended,
		})
		group.Subtotal += extended
		total += extended
	}

	if len(vendors) == 0 {
		return nil
	}

	groups := make([]VendorGroup, len(vendors))
	for i, vendor := range vendors {
		groups[i] = *byVendor[vendor]
	}
	return &PurchaseOrder{
		OrderNumber: nextOrderNumber(time.Now()),
		Currency:    "INR",
		Groups:      groups,
		Total:       total,
		CreatedAt:   time.Now().UTC(),
	}
}
