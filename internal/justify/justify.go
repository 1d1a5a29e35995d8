// Package justify explains why the current recommendations fit the user.
package justify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
	"github.com/fyrsmithlabs/buyerd/internal/oracle"
)

// ErrJustificationFailed indicates the oracle produced no explanation.
var ErrJustificationFailed = errors.New("justification failed")

const justifierSystemPrompt = `You are a shopping assistant explaining recommendations. Be concrete and concise: cite prices, ratings and review counts from the table, connect them to the user's stated priorities, and keep the answer under 150 words. Never invent products that are not in the table.`

const justifierPromptTemplate = `The user asked: %q

User priorities: %s

Current recommendation table:
%s

Explain why these products suit the user's priorities.`

const justifierNoResultsTemplate = `The user asked: %q

User priorities: %s

There are no current results to point at. Briefly explain, in terms of the user's priorities, how you select and rank products, and invite the user to search for something.`

// Justifier produces a narrative for a "why did you recommend this" turn.
type Justifier interface {
	Justify(ctx context.Context, query string, preferences []string, rows []catalog.ProductRow) (string, error)
}

// LLMJustifier adapts the justification oracle.
type LLMJustifier struct {
	completer oracle.Completer
	logger    *logging.Logger
}

// NewLLMJustifier creates a justifier backed by a chat oracle.
func NewLLMJustifier(completer oracle.Completer, logger *logging.Logger) *LLMJustifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLMJustifier{completer: completer, logger: logger.Named("justify")}
}

// Justify narrates the given rows against the user's priorities. With
// no rows it still answers, explaining the selection approach instead.
func (j *LLMJustifier) Justify(ctx context.Context, query string, preferences []string, rows []catalog.ProductRow) (string, error) {
	prefs := "none stated"
	if len(preferences) > 0 {
		prefs = strings.Join(preferences, ", ")
	}

	var prompt string
	if len(rows) == 0 {
		prompt = fmt.Sprintf(justifierNoResultsTemplate, query, prefs)
	} else {
		prompt = fmt.Sprintf(justifierPromptTemplate, query, prefs, renderTable(rows))
	}

	answer, err := j.completer.Complete(ctx, justifierSystemPrompt, prompt,
		oracle.WithTemperature(0.4), oracle.WithMaxTokens(512))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrJustificationFailed, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty oracle output", ErrJustificationFailed)
	}
	return answer, nil
}

// renderTable flattens rows into a compact plain-text table for the
// prompt. Long tables are truncated; the oracle does not need all rows
// to explain a recommendation.
func renderTable(rows []catalog.ProductRow) string {
	const maxRows = 10
	var b strings.Builder
	b.WriteString("title | price | rating | reviews | source\n")
	for i, row := range rows {
		if i == maxRows {
			fmt.Fprintf(&b, "... and %d more\n", len(rows)-maxRows)
			break
		}
		fmt.Fprintf(&b, "%s | %.2f | %.1f | %d | %s\n",
			row.Title, row.Amount, row.Rating, row.Reviews, row.Source)
	}
	return b.String()
}
