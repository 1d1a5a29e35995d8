package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/logging"
	"github.com/fyrsmithlabs/buyerd/internal/oracle"
)

const classifierSystemPrompt = `You are a planner for a conversational shopping assistant. You must return only valid JSON with no extra text or explanations. Analyze each query independently and determine its type based on content and context.`

const classifierPromptTemplate = `Classify the user query into exactly one of three types and produce an execution plan.

TYPES:
1. "justification" - the user asks why something was recommended (indicators: why, justify, explain, reason, rationale, what makes, convince me, pros and cons).
2. "new" - the user names a product to search for (contains a product noun: laptops, chairs, wireless mouse, MacBook, watches).
3. "follow_up" - the user narrows previously shown results (indicators: referential pronouns such as these/those/them/it, bare constraints such as "under 25000" or "above 4 stars", superlatives without a product noun such as "the cheapest", action verbs without a product noun such as filter/sort/pick/show).

A bare constraint or superlative is a follow_up only when previous results exist; with no previous results treat it as new.

For new and follow_up queries also convert the request into a table question: a single "Which products ..." or "What is ..." question answerable over columns title, price, rating, reviews, source. Examples:
- "laptops under 50000" -> "Which products have price less than 50000?"
- "show the cheapest" -> "Which products have the lowest price?"
- "most reliable ones" -> "Which products have more than 200 reviews and rating more than 4 stars?"
- "from amazon only" -> "Which products are from the source amazon?"
- "how many cost over 100000" -> "What is the count of products with price more than 100000?"
Interpret price shorthand: 1k=1000, 50k=50000, 1 lakh=100000, 1 crore=10000000; strip currency markers.

Given:
- User query: %q
- User preferences: %v
- Session context: %s

Return only one of the following JSON shapes.

For justification:
{"query_type":"justification","steps":[{"agent":"justifier","args":{"query":"<original query>","preferences":["..."]}}]}

For new:
{"query_type":"new","table_query":"<table question>","steps":[{"agent":"scraper","args":{"keywords":["<product nouns>"]}},{"agent":"reasoner","args":{"table_query":"<table question>"}}]}

For follow_up:
{"query_type":"follow_up","table_query":"<table question>","steps":[{"agent":"reasoner","args":{"table_query":"<table question>"}}]}`

// LLMClassifier adapts the planning oracle to the Classifier interface.
type LLMClassifier struct {
	completer oracle.Completer
	logger    *logging.Logger
}

// NewLLMClassifier creates a classifier backed by a chat oracle.
func NewLLMClassifier(completer oracle.Completer, logger *logging.Logger) *LLMClassifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLMClassifier{completer: completer, logger: logger.Named("planner")}
}

// Classify maps one utterance to a Plan. Any unparseable oracle output
// surfaces as ErrClassificationFailed.
func (c *LLMClassifier) Classify(ctx context.Context, query string, preferences []string, sctx Context) (*Plan, error) {
	hint := "no previous results"
	if sctx.HasActiveArtifact {
		hint = fmt.Sprintf("previous results available from a %q search", sctx.ActiveTopic)
	}

	prompt := fmt.Sprintf(classifierPromptTemplate, query, preferences, hint)

	raw, err := c.completer.Complete(ctx, classifierSystemPrompt, prompt,
		oracle.WithTemperature(0.1), oracle.WithMaxTokens(512))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}

	payload, ok := oracle.ExtractJSON(raw)
	if !ok {
		c.logger.Warn(ctx, "no JSON in classifier output", zap.String("raw", raw))
		return nil, fmt.Errorf("%w: no JSON object in oracle output", ErrClassificationFailed)
	}

	plan, err := decodePlan(payload)
	if err != nil {
		return nil, err
	}

	c.logger.Debug(ctx, "utterance classified",
		zap.String("kind", string(plan.Kind)),
		zap.String("table_query", plan.TableQuery),
	)
	return plan, nil
}
