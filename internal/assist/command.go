package assist

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/cart"
	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/compliance"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
	"github.com/fyrsmithlabs/buyerd/internal/session"
)

// ErrUnknownCommand rejects a command outside the dispatch table.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a structured, non-conversational action.
type Command string

const (
	CmdAddToCart          Command = "add_to_cart"
	CmdRemoveFromCart     Command = "remove_from_cart"
	CmdShowCart           Command = "show_cart"
	CmdCheckCompliance    Command = "check_compliance"
	CmdCheckAllCompliance Command = "check_all_compliance"
	CmdSeekApproval       Command = "seek_approval"
	CmdDecide             Command = "decide"
	CmdCreateOrder        Command = "create_order"
	CmdClearSession       Command = "clear_session"
)

// CommandRequest carries a command and its payload. Unused fields stay
// zero; each handler validates what it needs.
type CommandRequest struct {
	Command   Command `json:"command"`
	ProductID string  `json:"product_id,omitempty"`
	Quantity  int     `json:"quantity,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
	Accept    *bool   `json:"accept,omitempty"`
}

type commandHandler func(ctx context.Context, userID string, req CommandRequest) (Reply, error)

func (a *Assistant) dispatchTable() map[Command]commandHandler {
	return map[Command]commandHandler{
		CmdAddToCart:          a.addToCart,
		CmdRemoveFromCart:     a.removeFromCart,
		CmdShowCart:           a.showCart,
		CmdCheckCompliance:    a.checkCompliance,
		CmdCheckAllCompliance: a.checkAllCompliance,
		CmdSeekApproval:       a.seekApproval,
		CmdDecide:             a.decide,
		CmdCreateOrder:        a.createOrder,
		CmdClearSession:       a.clearSession,
	}
}

// Execute runs one command for the user. Command failures come back as
// readable replies; the error return is reserved for invalid requests.
func (a *Assistant) Execute(ctx context.Context, userID string, req CommandRequest) (Reply, error) {
	ctx = logging.WithUserID(ctx, userID)
	handler, ok := a.dispatchTable()[req.Command]
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
	return handler(ctx, userID, req)
}

func (a *Assistant) addToCart(ctx context.Context, userID string, req CommandRequest) (Reply, error) {
	if req.Quantity <= 0 {
		return Reply{}, fmt.Errorf("%w: got %d", cart.ErrInvalidQuantity, req.Quantity)
	}
	var row catalog.ProductRow
	var found bool
	_ = a.sessions.Do(userID, func(s *session.Session) error {
		row, found = findProduct(s, req.ProductID)
		return nil
	})
	if !found {
		return Reply{}, fmt.Errorf("%w: %s", cart.ErrStaleReference, req.ProductID)
	}

	item, err := a.carts.Add(userID, row, req.Quantity)
	if err != nil {
		return Reply{}, err
	}
	a.logger.Info(ctx, "added to cart",
		zap.String("product.id", row.ID), zap.Int("quantity", req.Quantity))
	return Reply{
		Kind:    ReplyCart,
		Message: fmt.Sprintf("Added %d x %s to your cart.", item.Quantity, item.Row.Title),
		Cart:    a.carts.Items(userID),
	}, nil
}

// findProduct resolves a product id against the session's result chain,
// newest artifact first, so anything the user has been shown stays
// addressable.
func findProduct(s *session.Session, productID string) (catalog.ProductRow, bool) {
	if s.Chain == nil {
		return catalog.ProductRow{}, false
	}
	for i := len(s.Chain.Artifacts) - 1; i >= 0; i-- {
		for _, row := range s.Chain.Artifacts[i].Rows {
			if row.ID == productID {
				return row, true
			}
		}
	}
	return catalog.ProductRow{}, false
}

func (a *Assistant) removeFromCart(_ context.Context, userID string, req CommandRequest) (Reply, error) {
	if err := a.carts.Remove(userID, req.ProductID); err != nil {
		return Reply{}, err
	}
	return Reply{Kind: ReplyCart, Message: "Removed it from your cart.", Cart: a.carts.Items(userID)}, nil
}

func (a *Assistant) showCart(_ context.Context, userID string, _ CommandRequest) (Reply, error) {
	items := a.carts.Items(userID)
	if len(items) == 0 {
		return Reply{Kind: ReplyCart, Message: "Your cart is empty."}, nil
	}
	return Reply{Kind: ReplyCart, Message: fmt.Sprintf("Your cart has %d item(s).", len(items)), Cart: items}, nil
}

func (a *Assistant) checkCompliance(ctx context.Context, userID string, req CommandRequest) (Reply, error) {
	item, err := a.carts.Get(userID, req.ProductID)
	if err != nil {
		return Reply{}, err
	}
	updated := a.checkItem(ctx, userID, item)
	return Reply{
		Kind:    ReplyCart,
		Message: complianceMessage(updated),
		Cart:    a.carts.Items(userID),
	}, nil
}

// checkItem runs one compliance check and records the verdict.
func (a *Assistant) checkItem(ctx context.Context, userID string, item cart.Item) cart.Item {
	role := a.sessions.Get(userID).Role
	verdict, narrative := a.checker.Check(ctx, compliance.CheckRequest{
		Role:     role,
		Product:  item.Row.Title,
		Vendor:   item.Row.Source,
		Price:    item.Row.Amount,
		Quantity: item.Quantity,
	})
	updated, err := a.carts.ApplyVerdict(userID, item.Row.ID, verdict, narrative)
	if err != nil {
		a.logger.Warn(ctx, "verdict lost, item left the cart mid-check",
			zap.String("product.id", item.Row.ID), zap.Error(err))
		return item
	}
	a.logger.Info(ctx, "compliance verdict",
		zap.String("product.id", item.Row.ID), zap.String("verdict", string(verdict)))
	return updated
}

func complianceMessage(item cart.Item) string {
	switch item.Status {
	case cart.StatusRecommended:
		return fmt.Sprintf("%s is compliant and ready to order.", item.Row.Title)
	case cart.StatusAwaitingApproval:
		return fmt.Sprintf("%s needs approval before ordering. Use seek_approval to request it.", item.Row.Title)
	default:
		return fmt.Sprintf("%s is not compliant with the purchase policy.", item.Row.Title)
	}
}

// checkAllCompliance rules on every item still unchecked.
func (a *Assistant) checkAllCompliance(ctx context.Context, userID string, _ CommandRequest) (Reply, error) {
	checked := a.checkPending(ctx, userID)
	items := a.carts.Items(userID)
	if len(items) == 0 {
		return Reply{Kind: ReplyCart, Message: "Your cart is empty."}, nil
	}
	return Reply{
		Kind:    ReplyCart,
		Message: fmt.Sprintf("Checked %d item(s) against the purchase policy.", checked),
		Cart:    items,
	}, nil
}

func (a *Assistant) checkPending(ctx context.Context, userID string) int {
	checked := 0
	for _, item := range a.carts.Items(userID) {
		if item.Status == cart.StatusInCart {
			a.checkItem(ctx, userID, item)
			checked++
		}
	}
	return checked
}

func (a *Assistant) seekApproval(ctx context.Context, userID string, req CommandRequest) (Reply, error) {
	item, err := a.carts.Get(userID, req.ProductID)
	if err != nil {
		return Reply{}, err
	}
	if item.Status != cart.StatusAwaitingApproval {
		return Reply{Kind: ReplyError, Message: fmt.Sprintf("%s does not need approval right now (status: %s).", item.Row.Title, item.Status)}, nil
	}

	request, err := a.approvals.Seek(ctx, userID, a.approverID, item)
	if err != nil {
		a.logger.Error(ctx, "approval request delivery failed", zap.Error(err))
		return Reply{Kind: ReplyError, Message: "I could not reach the approver. The request is filed; try again to re-send it."}, nil
	}
	return Reply{
		Kind:    ReplyApproval,
		Message: fmt.Sprintf("Approval for %s requested from %s.", item.Row.Title, request.Approver),
		Request: request,
	}, nil
}

func (a *Assistant) decide(ctx context.Context, _ string, req CommandRequest) (Reply, error) {
	if req.RequestID == "" || req.Accept == nil {
		return Reply{}, errors.New("decide requires request_id and accept")
	}
	decided, err := a.approvals.Decide(req.RequestID, *req.Accept)
	if err != nil {
		return Reply{}, err
	}
	if a.metrics != nil {
		a.metrics.ObserveApproval(*req.Accept)
	}

	item, err := a.carts.Resolve(decided.Requester, decided.ProductID, *req.Accept)
	if err != nil {
		a.logger.Warn(ctx, "decision had no cart item to settle",
			zap.String("request.id", decided.ID), zap.Error(err))
		return Reply{Kind: ReplyMessage, Message: "Decision recorded, but the item is no longer awaiting approval.", Request: decided}, nil
	}

	verb := "approved"
	if !*req.Accept {
		verb = "rejected"
	}
	return Reply{
		Kind:    ReplyApproval,
		Message: fmt.Sprintf("%s %s for %s.", item.Row.Title, verb, decided.Requester),
		Request: decided,
	}, nil
}

// createOrder rules on anything unchecked, then assembles the purchase
// order from the eligible items.
func (a *Assistant) createOrder(ctx context.Context, userID string, _ CommandRequest) (Reply, error) {
	a.checkPending(ctx, userID)

	items := a.carts.Items(userID)
	po := cart.BuildOrder(ctx, items, a.logger)
	if po == nil {
		return Reply{
			Kind:    ReplyMessage,
			Message: "Nothing in your cart is cleared for ordering. Resolve compliance or approvals first.",
			Cart:    items,
		}, nil
	}
	a.logger.Info(ctx, "purchase order created",
		zap.String("order.number", po.OrderNumber), zap.Float64("order.total", po.Total))
	return Reply{
		Kind:    ReplyOrder,
		Message: fmt.Sprintf("Order %s created: %.2f %s.", po.OrderNumber, po.Total, po.Currency),
		Order:   po,
	}, nil
}

func (a *Assistant) clearSession(ctx context.Context, userID string, _ CommandRequest) (Reply, error) {
	a.sessions.Clear(userID)
	a.logger.Info(ctx, "session cleared")
	return Reply{Kind: ReplyMessage, Message: "Started fresh. Your preferences and cart are untouched."}, nil
}
