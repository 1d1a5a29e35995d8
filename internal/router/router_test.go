package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/buyerd/internal/artifact"
	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/filter"
	"github.com/fyrsmithlabs/buyerd/internal/planner"
	"github.com/fyrsmithlabs/buyerd/internal/session"
)

type fakeSearcher struct {
	rows  []catalog.ProductRow
	err   error
	calls int
}

func (f *fakeSearcher) Search(_ context.Context, _ []string) ([]catalog.ProductRow, error) {
	f.calls++
	return f.rows, f.err
}

type fakeGenerator struct {
	expr filter.Expr
	err  error
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (filter.Expr, error) {
	return f.expr, f.err
}

type fakeJustifier struct {
	prose    string
	err      error
	lastRows []catalog.ProductRow
}

func (f *fakeJustifier) Justify(_ context.Context, _ string, _ []string, rows []catalog.ProductRow) (string, error) {
	f.lastRows = rows
	return f.prose, f.err
}

func mice() []catalog.ProductRow {
	return []catalog.ProductRow{
		{ID: "prod_1", Title: "Logitech M185 Wireless Mouse", Amount: 899, Rating: 4.4, Reviews: 1200, Source: "amazon"},
		{ID: "prod_2", Title: "HP X200 Wireless Mouse", Amount: 649, Rating: 4.1, Reviews: 800, Source: "flipkart"},
		{ID: "prod_3", Title: "Dell WM126 Wireless Mouse", Amount: 1099, Rating: 3.9, Reviews: 300, Source: "dell"},
	}
}

func newPlan() *planner.Plan {
	return &planner.Plan{
		Kind:       planner.KindNew,
		TableQuery: "Which products have price less than 1000?",
		Steps: []planner.Step{
			{Agent: planner.AgentScraper, Args: planner.StepArgs{Keywords: []string{"wireless", "mouse"}}},
			{Agent: planner.AgentReasoner, Args: planner.StepArgs{TableQuery: "Which products have price less than 1000?"}},
		},
	}
}

func underThousand() filter.Expr {
	return filter.Expr{Kind: filter.KindCompare, Field: filter.FieldPrice, Cmp: filter.OpLT, Value: 1000}
}

func TestRoute_New(t *testing.T) {
	searcher := &fakeSearcher{rows: mice()}
	r := New(searcher, &fakeGenerator{expr: underThousand()}, &fakeJustifier{}, nil, nil, nil)
	s := &session.Session{UserID: "u1"}

	out, err := r.Route(context.Background(), s, newPlan(), "wireless mouse under 1000")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRows, out.Kind)
	assert.Len(t, out.Rows, 2)

	// Scrape root plus filtered artifact.
	require.NotNil(t, s.Chain)
	assert.Equal(t, 2, s.Chain.Len())
	assert.Equal(t, artifact.StepFilter, s.Chain.Tail().Step)
	assert.Equal(t, "wireless mouse", s.Chain.Topic)
}

func TestRoute_NewNoResults(t *testing.T) {
	r := New(&fakeSearcher{}, &fakeGenerator{}, &fakeJustifier{}, nil, nil, nil)
	s := &session.Session{UserID: "u1"}

	out, err := r.Route(context.Background(), s, newPlan(), "unobtainium")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoResults, out.Kind)
	assert.Nil(t, s.Chain)
}

func TestRoute_NewSearchError(t *testing.T) {
	r := New(&fakeSearcher{err: errors.New("upstream down")}, &fakeGenerator{}, &fakeJustifier{}, nil, nil, nil)
	s := &session.Session{UserID: "u1"}

	_, err := r.Route(context.Background(), s, newPlan(), "mouse")
	require.Error(t, err)
	assert.Nil(t, s.Chain)
}

func TestRoute_NewCacheHitSkipsSearch(t *testing.T) {
	searcher := &fakeSearcher{rows: mice()}
	cache := artifact.NewQueryCache(nil, nil)
	r := New(searcher, &fakeGenerator{expr: underThousand()}, &fakeJustifier{}, cache, nil, nil)

	s1 := &session.Session{UserID: "u1"}
	_, err := r.Route(context.Background(), s1, newPlan(), "wireless mouse")
	require.NoError(t, err)
	require.Equal(t, 1, searcher.calls)

	// A second user asking the same thing is served from cache.
	s2 := &session.Session{UserID: "u2"}
	out, err := r.Route(context.Background(), s2, newPlan(), "wireless mouse")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRows, out.Kind)
	assert.Equal(t, 1, searcher.calls)
	require.NotNil(t, s2.Chain)
	assert.Equal(t, 2, s2.Chain.Len())
}

func TestRoute_FollowUp(t *testing.T) {
	r := New(&fakeSearcher{}, &fakeGenerator{expr: filter.Expr{
		Kind: filter.KindTopK, Field: filter.FieldPrice, K: 1,
	}}, &fakeJustifier{}, nil, nil, nil)

	s := &session.Session{UserID: "u1"}
	chain, _ := artifact.StartChain("wireless mouse", "wireless mouse", mice())
	s.Chain = chain

	plan := &planner.Plan{
		Kind:       planner.KindFollowUp,
		TableQuery: "Which products have the lowest price?",
		Steps:      []planner.Step{{Agent: planner.AgentReasoner, Args: planner.StepArgs{TableQuery: "Which products have the lowest price?"}}},
	}
	out, err := r.Route(context.Background(), s, plan, "show the cheapest")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRows, out.Kind)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "prod_2", out.Rows[0].ID)
	assert.Equal(t, 2, s.Chain.Len())
}

func TestRoute_FollowUpWithoutChainBecomesNew(t *testing.T) {
	searcher := &fakeSearcher{rows: mice()}
	r := New(searcher, &fakeGenerator{expr: underThousand()}, &fakeJustifier{}, nil, nil, nil)
	s := &session.Session{UserID: "u1"}

	plan := &planner.Plan{
		Kind:       planner.KindFollowUp,
		TableQuery: "Which products have price less than 1000?",
		Steps:      []planner.Step{{Agent: planner.AgentReasoner, Args: planner.StepArgs{TableQuery: "Which products have price less than 1000?"}}},
	}
	out, err := r.Route(context.Background(), s, plan, "under 1000")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRows, out.Kind)
	assert.Equal(t, 1, searcher.calls)
	require.NotNil(t, s.Chain)
}

func TestRoute_FollowUpEmptyFilterAdvancesChain(t *testing.T) {
	r := New(&fakeSearcher{}, &fakeGenerator{expr: filter.Expr{
		Kind: filter.KindCompare, Field: filter.FieldPrice, Cmp: filter.OpLT, Value: 1,
	}}, &fakeJustifier{}, nil, nil, nil)

	s := &session.Session{UserID: "u1"}
	chain, _ := artifact.StartChain("mouse", "mouse", mice())
	s.Chain = chain

	plan := &planner.Plan{
		Kind:       planner.KindFollowUp,
		TableQuery: "Which products have price less than 1?",
		Steps:      []planner.Step{{Agent: planner.AgentReasoner}},
	}
	out, err := r.Route(context.Background(), s, plan, "under 1 rupee")
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyFiltered, out.Kind)
	assert.Equal(t, 2, s.Chain.Len())
	assert.True(t, s.Chain.Tail().Empty())
}

func TestRoute_FollowUpAggregate(t *testing.T) {
	r := New(&fakeSearcher{}, &fakeGenerator{expr: filter.Expr{
		Kind: filter.KindMean, Field: filter.FieldPrice,
	}}, &fakeJustifier{}, nil, nil, nil)

	s := &session.Session{UserID: "u1"}
	chain, _ := artifact.StartChain("mouse", "mouse", mice())
	s.Chain = chain

	plan := &planner.Plan{
		Kind:       planner.KindFollowUp,
		TableQuery: "What is the average price?",
		Steps:      []planner.Step{{Agent: planner.AgentReasoner}},
	}
	out, err := r.Route(context.Background(), s, plan, "average price?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeScalar, out.Kind)
	require.NotNil(t, out.Scalar)
	assert.InDelta(t, (899.0+649+1099)/3, *out.Scalar, 0.01)
}

func TestRoute_FollowUpFilterFailure(t *testing.T) {
	r := New(&fakeSearcher{}, &fakeGenerator{err: filter.ErrExecutionFailed}, &fakeJustifier{}, nil, nil, nil)

	s := &session.Session{UserID: "u1"}
	chain, _ := artifact.StartChain("mouse", "mouse", mice())
	s.Chain = chain

	plan := &planner.Plan{
		Kind:       planner.KindFollowUp,
		TableQuery: "Which?",
		Steps:      []planner.Step{{Agent: planner.AgentReasoner}},
	}
	_, err := r.Route(context.Background(), s, plan, "filter")
	assert.ErrorIs(t, err, filter.ErrExecutionFailed)
	// Chain untouched on failure.
	assert.Equal(t, 1, s.Chain.Len())
}

func TestRoute_Justification(t *testing.T) {
	j := &fakeJustifier{prose: "Cheapest reliable option for a price-conscious user."}
	r := New(&fakeSearcher{}, &fakeGenerator{}, j, nil, nil, nil)

	s := &session.Session{UserID: "u1", Preferences: []session.Preference{session.PrefPriceConscious}}
	chain, _ := artifact.StartChain("mouse", "mouse", mice())
	s.Chain = chain

	plan := &planner.Plan{
		Kind:  planner.KindJustification,
		Steps: []planner.Step{{Agent: planner.AgentJustifier, Args: planner.StepArgs{Query: "why these?"}}},
	}
	out, err := r.Route(context.Background(), s, plan, "why these?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProse, out.Kind)
	assert.NotEmpty(t, out.Prose)
	assert.Len(t, j.lastRows, 3)
}

func TestRoute_JustificationWithoutChain(t *testing.T) {
	j := &fakeJustifier{prose: "I rank by price for you."}
	r := New(&fakeSearcher{}, &fakeGenerator{}, j, nil, nil, nil)
	s := &session.Session{UserID: "u1"}

	plan := &planner.Plan{
		Kind:  planner.KindJustification,
		Steps: []planner.Step{{Agent: planner.AgentJustifier}},
	}
	out, err := r.Route(context.Background(), s, plan, "why?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProse, out.Kind)
	assert.Nil(t, j.lastRows)
}
