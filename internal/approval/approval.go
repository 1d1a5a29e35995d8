// Package approval tracks approval requests for over-limit purchases.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/buyerd/internal/cart"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
)

var (
	// ErrUnknownRequest indicates the request id is not registered.
	ErrUnknownRequest = errors.New("unknown approval request")
	// ErrAlreadyDecided rejects a second decision on the same request.
	ErrAlreadyDecided = errors.New("approval request already decided")
)

// Decision is the lifecycle state of a request.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Request is one pending or settled approval.
type Request struct {
	ID        string    `json:"id"`
	Requester string    `json:"requester"`
	Approver  string    `json:"approver"`
	ProductID string    `json:"product_id"`
	Item      cart.Item `json:"item"`
	Decision  Decision  `json:"decision"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers a request to the approver.
type Notifier interface {
	Notify(ctx context.Context, approverID string, req *Request) error
}

// Registry keeps approval requests and enforces single settlement.
type Registry struct {
	mu       sync.Mutex
	byID     map[string]*Request
	pending  map[string]string // requester+productID -> request id
	notifier Notifier
	logger   *logging.Logger
}

// NewRegistry creates a registry delivering through the notifier. A nil
// notifier records requests without delivering them.
func NewRegistry(notifier Notifier, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		byID:     make(map[string]*Request),
		pending:  make(map[string]string),
		notifier: notifier,
		logger:   logger.Named("approval"),
	}
}

func pendingKey(requester, productID string) string {
	return requester + "\x00" + productID
}

// Seek files an approval request for the item and notifies the
// approver. Seeking again while a request for the same requester and
// product is still pending re-notifies but returns the same request.
func (r *Registry) Seek(ctx context.Context, requester, approver string, item cart.Item) (*Request, error) {
	key := pendingKey(requester, item.Row.ID)

	r.mu.Lock()
	req, exists := r.lookupPendingLocked(key)
	if !exists {
		req = &Request{
			ID:        uuid.NewString(),
			Requester: requester,
			Approver:  approver,
			ProductID: item.Row.ID,
			Item:      item,
			Decision:  DecisionPending,
			CreatedAt: time.Now().UTC(),
		}
		r.byID[req.ID] = req
		r.pending[key] = req.ID
	}
	snapshot := *req
	r.mu.Unlock()

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, approver, &snapshot); err != nil {
			return nil, fmt.Errorf("notify approver: %w", err)
		}
	}
	return &snapshot, nil
}

func (r *Registry) lookupPendingLocked(key string) (*Request, bool) {
	id, ok := r.pending[key]
	if !ok {
		return nil, false
	}
	req := r.byID[id]
	if req == nil || req.Decision != DecisionPending {
		delete(r.pending, key)
		return nil, false
	}
	return req, true
}

// Decide settles the request and returns it so the caller can resolve
// the cart item. A settled request cannot be decided again.
func (r *Registry) Decide(requestID string, accept bool) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.byID[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	if req.Decision != DecisionPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, requestID, req.Decision)
	}
	if accept {
		req.Decision = DecisionAccepted
	} else {
		req.Decision = DecisionRejected
	}
	delete(r.pending, pendingKey(req.Requester, req.ProductID))

	snapshot := *req
	return &snapshot, nil
}

// Get returns a snapshot of the request by id.
func (r *Registry) Get(requestID string) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.byID[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	snapshot := *req
	return &snapshot, nil
}
