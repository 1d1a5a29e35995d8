// Package cart manages per-user cart items and their compliance state.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/compliance"
)

var (
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrStaleReference indicates the referenced product is not in the
	// user's cart, typically because the reference outlived the item.
	ErrStaleReference = errors.New("product is not in the cart")
	// ErrNotAwaiting rejects a resolution for an item that is not
	// waiting on approval.
	ErrNotAwaiting = errors.New("item is not awaiting approval")
)

// Status tracks an item through the compliance and approval flow.
type Status string

const (
	StatusInCart           Status = "in_cart"
	StatusRecommended      Status = "recommended"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusNonCompliant     Status = "non_compliant"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
)

// Item is one cart entry. The product row is copied by value so the
// item survives result-chain resets.
type Item struct {
	ID       string             `json:"id"`
	Row      catalog.ProductRow `json:"row"`
	Quantity int                `json:"quantity"`
	Status   Status             `json:"status"`

	// Narrative is the latest compliance ruling text, if any.
	Narrative string `json:"narrative,omitempty"`
}

// Eligible reports whether the item can enter a purchase order.
func (i *Item) Eligible() bool {
	return i.Status == StatusRecommended || i.Status == StatusApproved
}

// Store keeps carts keyed by user id.
type Store struct {
	mu    sync.Mutex
	carts map[string][]*Item
}

// NewStore creates an empty cart store.
func NewStore() *Store {
	return &Store{carts: make(map[string][]*Item)}
}

// Add puts a product in the user's cart. Adding a product already in
// the cart replaces its quantity and resets its status.
func (st *Store) Add(userID string, row catalog.ProductRow, quantity int) (Item, error) {
	if quantity <= 0 {
		return Item{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, item := range st.carts[userID] {
		if item.Row.ID == row.ID {
			item.Quantity = quantity
			item.Status = StatusInCart
			item.Narrative = ""
			return *item, nil
		}
	}
	item := &Item{ID: uuid.NewString(), Row: row, Quantity: quantity, Status: StatusInCart}
	st.carts[userID] = append(st.carts[userID], item)
	return *item, nil
}

// Remove deletes the product from the user's cart.
func (st *Store) Remove(userID, productID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	items := st.carts[userID]
	for i, item := range items {
		if item.Row.ID == productID {
			st.carts[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrStaleReference, productID)
}

// Items returns a snapshot of the user's cart in insertion order.
func (st *Store) Items(userID string) []Item {
	st.mu.Lock()
	defer st.mu.Unlock()

	items := st.carts[userID]
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = *item
	}
	return out
}

// Get returns a snapshot of one cart item by product id.
func (st *Store) Get(userID, productID string) (Item, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	item, err := st.lookup(userID, productID)
	if err != nil {
		return Item{}, err
	}
	return *item, nil
}

func (st *Store) lookup(userID, productID string) (*Item, error) {
	for _, item := range st.carts[userID] {
		if item.Row.ID == productID {
			return item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrStaleReference, productID)
}

// ApplyVerdict records a compliance ruling on the item.
func (st *Store) ApplyVerdict(userID, productID string, verdict compliance.Verdict, narrative string) (Item, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	item, err := st.lookup(userID, productID)
	if err != nil {
		return Item{}, err
	}
	switch verdict {
	case compliance.VerdictCompliant:
		item.Status = StatusRecommended
	case compliance.VerdictNeedsApproval:
		item.Status = StatusAwaitingApproval
	default:
		item.Status = StatusNonCompliant
	}
	item.Narrative = narrative
	return *item, nil
}

// Resolve settles an awaiting item with the approval decision.
func (st *Store) Resolve(userID, productID string, approved bool) (Item, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	item, err := st.lookup(userID, productID)
	if err != nil {
		return Item{}, err
	}
	if item.Status != StatusAwaitingApproval {
		return Item{}, fmt.Errorf("%w: %s is %s", ErrNotAwaiting, productID, item.Status)
	}
	if approved {
		item.Status = StatusApproved
	} else {
		item.Status = StatusRejected
	}
	return *item, nil
}

// Clear empties the user's cart.
func (st *Store) Clear(userID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.carts, userID)
}
