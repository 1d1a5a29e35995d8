// Package artifact tracks the tables produced by searches and filters.
//
// Every search and every filter step on top of it leaves an artifact.
// Artifacts form append-only chains per session; follow-up turns always
// operate on the tail of the active chain.
package artifact

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/buyerd/internal/catalog"
)

// ErrEmptyResult marks a filter step that matched no rows. The chain
// still advances; an empty table is a valid terminal state.
var ErrEmptyResult = errors.New("result is empty")

// ErrNoChain indicates a chain operation with no active chain.
var ErrNoChain = errors.New("no active result chain")

// StepKind records how an artifact was produced.
type StepKind string

const (
	StepScrape StepKind = "scrape"
	StepFilter StepKind = "filter"
)

// Artifact is one immutable result table.
type Artifact struct {
	ID        string               `json:"id"`
	Query     string               `json:"query"`
	Step      StepKind             `json:"step"`
	Rows      []catalog.ProductRow `json:"rows"`
	Scalar    *float64             `json:"scalar,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// Empty reports whether the artifact carries no rows and no scalar.
func (a *Artifact) Empty() bool {
	return len(a.Rows) == 0 && a.Scalar == nil
}

// Chain is an append-only sequence of artifacts rooted at a scrape.
type Chain struct {
	Topic     string      `json:"topic"`
	Artifacts []*Artifact `json:"artifacts"`
}

// Tail returns the most recent artifact, or nil for an empty chain.
func (c *Chain) Tail() *Artifact {
	if c == nil || len(c.Artifacts) == 0 {
		return nil
	}
	return c.Artifacts[len(c.Artifacts)-1]
}

// Len returns the number of artifacts in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Artifacts)
}

func newArtifact(query string, step StepKind, rows []catalog.ProductRow, scalar *float64) *Artifact {
	return &Artifact{
		ID:        uuid.NewString(),
		Query:     query,
		Step:      step,
		Rows:      rows,
		Scalar:    scalar,
		CreatedAt: time.Now().UTC(),
	}
}

// StartChain begins a new chain rooted at a scrape result. Any previous
// chain for the session is superseded by swapping the returned chain in.
func StartChain(topic, query string, rows []catalog.ProductRow) (*Chain, *Artifact) {
	root := newArtifact(query, StepScrape, rows, nil)
	return &Chain{Topic: topic, Artifacts: []*Artifact{root}}, root
}

// AppendFiltered adds a filter step to the chain. Rows must come from
// the current tail; an empty result still appends and reports
// ErrEmptyResult so callers can surface it without losing the chain.
func AppendFiltered(chain *Chain, query string, rows []catalog.ProductRow, scalar *float64) (*Artifact, error) {
	if chain == nil || len(chain.Artifacts) == 0 {
		return nil, ErrNoChain
	}
	art := newArtifact(query, StepFilter, rows, scalar)
	chain.Artifacts = append(chain.Artifacts, art)
	if art.Empty() {
		return art, ErrEmptyResult
	}
	return art, nil
}
