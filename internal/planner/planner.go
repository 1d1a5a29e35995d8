// Package planner classifies one utterance into a handling plan.
//
// The classifier is an external language-model collaborator; this package
// shapes the request, extracts the structured plan from the response, and
// validates its shape. It performs no business logic: when the oracle
// returns nothing parseable the caller gets ErrClassificationFailed, never
// a guessed plan.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrClassificationFailed indicates the oracle returned no usable plan.
var ErrClassificationFailed = errors.New("classification failed")

// Kind is the handling mode chosen for an utterance.
type Kind string

const (
	// KindNew starts a fresh search: scrape then filter.
	KindNew Kind = "new"
	// KindFollowUp narrows the active result set: filter only.
	KindFollowUp Kind = "follow_up"
	// KindJustification explains prior recommendations.
	KindJustification Kind = "justification"
)

// StepAgent names the collaborator a plan step targets.
type StepAgent string

const (
	AgentScraper   StepAgent = "scraper"
	AgentReasoner  StepAgent = "reasoner"
	AgentJustifier StepAgent = "justifier"
)

// Step is one unit of a plan's execution pipeline.
type Step struct {
	Agent StepAgent `json:"agent"`
	Args  StepArgs  `json:"args"`
}

// StepArgs carries the per-agent arguments.
type StepArgs struct {
	Keywords    []string `json:"keywords,omitempty"`
	TableQuery  string   `json:"table_query,omitempty"`
	Query       string   `json:"query,omitempty"`
	Preferences []string `json:"preferences,omitempty"`
}

// Plan is the classifier's structured decision for one utterance.
type Plan struct {
	Kind Kind `json:"query_type"`

	// TableQuery is the utterance normalized into a Which/What question
	// answerable over the tabular result set. Present on New and FollowUp.
	TableQuery string `json:"table_query,omitempty"`

	Steps []Step `json:"steps"`
}

// Validate rejects plans missing required fields for their kind.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan has no steps", ErrClassificationFailed)
	}
	switch p.Kind {
	case KindNew:
		if p.TableQuery == "" {
			return fmt.Errorf("%w: new plan missing table query", ErrClassificationFailed)
		}
		if p.Keywords() == nil {
			return fmt.Errorf("%w: new plan missing scrape keywords", ErrClassificationFailed)
		}
	case KindFollowUp:
		if p.TableQuery == "" {
			return fmt.Errorf("%w: follow-up plan missing table query", ErrClassificationFailed)
		}
	case KindJustification:
		// No further shape requirements; the query rides on the step.
	default:
		return fmt.Errorf("%w: unknown plan kind %q", ErrClassificationFailed, p.Kind)
	}
	return nil
}

// Keywords returns the scrape keywords for a New plan, nil otherwise.
func (p *Plan) Keywords() []string {
	for _, step := range p.Steps {
		if step.Agent == AgentScraper && len(step.Args.Keywords) > 0 {
			return step.Args.Keywords
		}
	}
	return nil
}

// Topic returns a human-readable topic derived from the scrape keywords.
func (p *Plan) Topic() string {
	return strings.Join(p.Keywords(), " ")
}

// Context summarizes the session state the classifier may consider. The
// hint is advisory: the execution router remains the final arbiter of
// whether a follow-up is actually executable.
type Context struct {
	HasActiveArtifact bool
	ActiveTopic       string
}

// Classifier maps one utterance to a Plan.
type Classifier interface {
	Classify(ctx context.Context, query string, preferences []string, sctx Context) (*Plan, error)
}

// decodePlan parses and shape-validates a plan payload.
func decodePlan(payload string) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}
