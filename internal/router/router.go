// Package router executes a classified plan against session state.
//
// The router is the final arbiter of plan feasibility: a follow-up with
// no active chain is re-dispatched as a new search rather than failed.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/artifact"
	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/filter"
	"github.com/fyrsmithlabs/buyerd/internal/justify"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
	"github.com/fyrsmithlabs/buyerd/internal/planner"
	"github.com/fyrsmithlabs/buyerd/internal/session"
	"github.com/fyrsmithlabs/buyerd/internal/telemetry"
)

// OutcomeKind discriminates the Outcome union.
type OutcomeKind string

const (
	// OutcomeRows carries a result table.
	OutcomeRows OutcomeKind = "rows"
	// OutcomeScalar carries an aggregate answer.
	OutcomeScalar OutcomeKind = "scalar"
	// OutcomeProse carries a narrative answer.
	OutcomeProse OutcomeKind = "prose"
	// OutcomeNoResults means the search itself found nothing.
	OutcomeNoResults OutcomeKind = "no_results"
	// OutcomeEmptyFiltered means the filter matched no rows. The chain
	// still advanced; this is a valid terminal state.
	OutcomeEmptyFiltered OutcomeKind = "empty_filtered"
)

// Outcome is the result of routing one turn.
type Outcome struct {
	Kind   OutcomeKind
	Rows   []catalog.ProductRow
	Scalar *float64
	Prose  string

	// Query is the origin query or table question that produced this
	// outcome.
	Query string
}

// Router dispatches plans to the search, filter and justification
// collaborators. It holds no per-turn state; session mutation happens
// on the Session passed in, which the caller must hold exclusively.
type Router struct {
	searcher  catalog.Searcher
	generator filter.Generator
	justifier justify.Justifier
	cache     *artifact.QueryCache
	metrics   *telemetry.Metrics
	logger    *logging.Logger
}

// New wires the router. cache and metrics may be nil.
func New(searcher catalog.Searcher, generator filter.Generator, justifier justify.Justifier, cache *artifact.QueryCache, metrics *telemetry.Metrics, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Router{
		searcher:  searcher,
		generator: generator,
		justifier: justifier,
		cache:     cache,
		metrics:   metrics,
		logger:    logger.Named("router"),
	}
}

// Route executes the plan against the session.
func (r *Router) Route(ctx context.Context, s *session.Session, plan *planner.Plan, utterance string) (Outcome, error) {
	if r.metrics != nil {
		r.metrics.ObserveTurn(string(plan.Kind))
	}
	switch plan.Kind {
	case planner.KindJustification:
		return r.routeJustification(ctx, s, utterance)
	case planner.KindNew:
		return r.routeNew(ctx, s, plan.Topic(), plan.Keywords(), plan.TableQuery)
	case planner.KindFollowUp:
		return r.routeFollowUp(ctx, s, plan, utterance)
	}
	return Outcome{}, fmt.Errorf("%w: unroutable plan kind %q", planner.ErrClassificationFailed, plan.Kind)
}

func (r *Router) routeJustification(ctx context.Context, s *session.Session, utterance string) (Outcome, error) {
	var rows []catalog.ProductRow
	if tail := s.Chain.Tail(); tail != nil {
		rows = tail.Rows
	}
	prose, err := r.justifier.Justify(ctx, utterance, s.PreferenceStrings(), rows)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeProse, Prose: prose, Query: utterance}, nil
}

func (r *Router) routeNew(ctx context.Context, s *session.Session, topic string, keywords []string, tableQuery string) (Outcome, error) {
	origin := strings.Join(keywords, " ")
	rows, hit, err := r.lookupOrSearch(ctx, origin, keywords)
	if err != nil {
		return Outcome{}, fmt.Errorf("search %q: %w", origin, err)
	}
	if len(rows) == 0 {
		r.logger.Info(ctx, "search found nothing", zap.String("query", origin))
		return Outcome{Kind: OutcomeNoResults, Query: origin}, nil
	}

	chain, root := artifact.StartChain(topic, origin, rows)
	s.Chain = chain
	r.logger.Info(ctx, "started result chain",
		zap.String("query", origin), zap.Int("rows", len(rows)), zap.Bool("cached", hit))

	if tableQuery == "" {
		return Outcome{Kind: OutcomeRows, Rows: root.Rows, Query: origin}, nil
	}
	return r.filterTail(ctx, s, tableQuery)
}

func (r *Router) routeFollowUp(ctx context.Context, s *session.Session, plan *planner.Plan, utterance string) (Outcome, error) {
	if s.Chain.Tail() == nil {
		// Nothing to narrow; the classifier's hint was wrong. Treat the
		// turn as a fresh search.
		keywords := plan.Keywords()
		if len(keywords) == 0 {
			keywords = strings.Fields(utterance)
		}
		r.logger.Info(ctx, "follow-up without chain, re-dispatching as new",
			zap.String("utterance", utterance))
		return r.routeNew(ctx, s, strings.Join(keywords, " "), keywords, plan.TableQuery)
	}
	return r.filterTail(ctx, s, plan.TableQuery)
}

// filterTail compiles the table question, applies it to the chain tail
// and appends the result artifact.
func (r *Router) filterTail(ctx context.Context, s *session.Session, tableQuery string) (Outcome, error) {
	expr, err := r.generator.Generate(ctx, tableQuery)
	if err != nil {
		return Outcome{}, err
	}
	result, err := filter.Apply(expr, s.Chain.Tail().Rows)
	if err != nil {
		return Outcome{}, err
	}

	art, err := artifact.AppendFiltered(s.Chain, tableQuery, result.Rows, result.Scalar)
	if errors.Is(err, artifact.ErrEmptyResult) {
		return Outcome{Kind: OutcomeEmptyFiltered, Query: tableQuery}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if art.Scalar != nil {
		return Outcome{Kind: OutcomeScalar, Scalar: art.Scalar, Query: tableQuery}, nil
	}
	return Outcome{Kind: OutcomeRows, Rows: art.Rows, Query: tableQuery}, nil
}

// lookupOrSearch consults the cache before the live searcher. A hit
// skips the search entirely.
func (r *Router) lookupOrSearch(ctx context.Context, origin string, keywords []string) ([]catalog.ProductRow, bool, error) {
	if r.cache == nil {
		rows, err := r.searcher.Search(ctx, keywords)
		return rows, false, err
	}
	rows, hit, err := r.cache.GetOrFill(ctx, origin, func(ctx context.Context) ([]catalog.ProductRow, error) {
		return r.searcher.Search(ctx, keywords)
	})
	if r.metrics != nil && err == nil {
		r.metrics.ObserveCache(hit)
	}
	return rows, hit, err
}
