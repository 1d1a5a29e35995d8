// Package assist is the event-facing service tying the pieces together:
// onboarding, turn handling, cart commands, approvals and ordering.
package assist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/approval"
	"github.com/fyrsmithlabs/buyerd/internal/artifact"
	"github.com/fyrsmithlabs/buyerd/internal/cart"
	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/compliance"
	"github.com/fyrsmithlabs/buyerd/internal/filter"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
	"github.com/fyrsmithlabs/buyerd/internal/planner"
	"github.com/fyrsmithlabs/buyerd/internal/router"
	"github.com/fyrsmithlabs/buyerd/internal/session"
	"github.com/fyrsmithlabs/buyerd/internal/telemetry"
)

// ReplyKind tags what a reply carries.
type ReplyKind string

const (
	ReplyRows             ReplyKind = "rows"
	ReplyScalar           ReplyKind = "scalar"
	ReplyProse            ReplyKind = "prose"
	ReplyMessage          ReplyKind = "message"
	ReplyNeedsPreferences ReplyKind = "needs_preferences"
	ReplyCart             ReplyKind = "cart"
	ReplyOrder            ReplyKind = "order"
	ReplyApproval         ReplyKind = "approval"
	ReplyError            ReplyKind = "error"
)

// Reply is the assistant's answer to one event.
type Reply struct {
	Kind    ReplyKind            `json:"kind"`
	Message string               `json:"message,omitempty"`
	Rows    []catalog.ProductRow `json:"rows,omitempty"`
	Scalar  *float64             `json:"scalar,omitempty"`
	Cart    []cart.Item          `json:"cart,omitempty"`
	Order   *cart.PurchaseOrder  `json:"order,omitempty"`
	Request *approval.Request    `json:"request,omitempty"`

	// Replayed carries the answer to a query that was buffered during
	// onboarding and replayed after preferences arrived.
	Replayed *Reply `json:"replayed,omitempty"`
}

// Assistant coordinates sessions, planning, routing, the cart and
// approvals for all users.
type Assistant struct {
	sessions   *session.Store
	carts      *cart.Store
	classifier planner.Classifier
	router     *router.Router
	checker    *compliance.Checker
	approvals  *approval.Registry
	metrics    *telemetry.Metrics
	approverID string
	logger     *logging.Logger
}

// New wires the assistant. metrics may be nil.
func New(sessions *session.Store, carts *cart.Store, classifier planner.Classifier, rt *router.Router, checker *compliance.Checker, approvals *approval.Registry, metrics *telemetry.Metrics, approverID string, logger *logging.Logger) *Assistant {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Assistant{
		sessions:   sessions,
		carts:      carts,
		classifier: classifier,
		router:     rt,
		checker:    checker,
		approvals:  approvals,
		metrics:    metrics,
		approverID: approverID,
		logger:     logger.Named("assist"),
	}
}

// HandleUtterance processes one free-form message from the user. Before
// preferences are set the message is buffered and the user is asked to
// onboard; afterwards it is classified and routed. Failures come back
// as readable replies with session state unchanged.
func (a *Assistant) HandleUtterance(ctx context.Context, userID, text string) Reply {
	ctx = logging.WithUserID(ctx, userID)
	ctx = logging.WithTurnID(ctx, uuid.NewString())
	if text == "" {
		return Reply{Kind: ReplyError, Message: "Say what you are looking for and I will search for it."}
	}

	var reply Reply
	_ = a.sessions.Do(userID, func(s *session.Session) error {
		if !s.HasPreferences() {
			s.PendingQuery = text
			reply = Reply{
				Kind:    ReplyNeedsPreferences,
				Message: "Before we shop, tell me your priorities: rating_conscious, price_conscious or review_conscious. I will pick this query back up right after.",
			}
			return nil
		}
		reply = a.handleTurn(ctx, s, text)
		return nil
	})
	return reply
}

func (a *Assistant) handleTurn(ctx context.Context, s *session.Session, text string) Reply {
	plan, err := a.classifier.Classify(ctx, text, s.PreferenceStrings(), planner.Context{
		HasActiveArtifact: s.Chain.Tail() != nil,
		ActiveTopic:       chainTopic(s.Chain),
	})
	if err != nil {
		a.logger.Warn(ctx, "classification failed", zap.Error(err))
		return Reply{Kind: ReplyError, Message: "I could not make sense of that. Try naming a product, narrowing the current results, or asking why I recommended something."}
	}

	outcome, err := a.router.Route(ctx, s, plan, text)
	if err != nil {
		return a.routeFailure(ctx, err)
	}

	switch outcome.Kind {
	case router.OutcomeRows:
		return Reply{Kind: ReplyRows, Rows: outcome.Rows, Message: fmt.Sprintf("Found %d products for %q.", len(outcome.Rows), outcome.Query)}
	case router.OutcomeScalar:
		return Reply{Kind: ReplyScalar, Scalar: outcome.Scalar, Message: fmt.Sprintf("%s %.2f", outcome.Query, *outcome.Scalar)}
	case router.OutcomeProse:
		return Reply{Kind: ReplyProse, Message: outcome.Prose}
	case router.OutcomeNoResults:
		return Reply{Kind: ReplyMessage, Message: fmt.Sprintf("I found nothing for %q. Try different keywords.", outcome.Query)}
	case router.OutcomeEmptyFiltered:
		return Reply{Kind: ReplyMessage, Message: "No products match that constraint. Loosen it or start a new search."}
	}
	return Reply{Kind: ReplyError, Message: "Something went wrong handling that turn."}
}

func (a *Assistant) routeFailure(ctx context.Context, err error) Reply {
	a.logger.Warn(ctx, "routing failed", zap.Error(err))
	switch {
	case errors.Is(err, filter.ErrExecutionFailed):
		return Reply{Kind: ReplyError, Message: "I could not turn that into a filter over the current results. Try rephrasing the constraint."}
	case errors.Is(err, planner.ErrClassificationFailed):
		return Reply{Kind: ReplyError, Message: "I could not make sense of that request."}
	default:
		return Reply{Kind: ReplyError, Message: "The product search is unavailable right now. Please try again shortly."}
	}
}

// SetPreferences completes onboarding and replays the buffered query,
// if one exists.
func (a *Assistant) SetPreferences(ctx context.Context, userID string, prefs []string, role string) (Reply, error) {
	ctx = logging.WithUserID(ctx, userID)
	if err := a.sessions.SetPreferences(userID, prefs); err != nil {
		return Reply{}, err
	}
	if role != "" {
		_ = a.sessions.Do(userID, func(s *session.Session) error {
			s.Role = role
			return nil
		})
	}

	reply := Reply{Kind: ReplyMessage, Message: "Preferences saved. What are you shopping for?"}
	if pending, ok := a.sessions.TakePendingQuery(userID); ok {
		a.logger.Info(ctx, "replaying buffered query", zap.String("query", pending))
		replayed := a.HandleUtterance(ctx, userID, pending)
		reply.Replayed = &replayed
		reply.Message = fmt.Sprintf("Preferences saved. Picking your earlier query back up: %q.", pending)
	}
	return reply, nil
}

func chainTopic(c *artifact.Chain) string {
	if c == nil {
		return ""
	}
	return c.Topic
}
