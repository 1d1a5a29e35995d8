package filter

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/logging"
	"github.com/fyrsmithlabs/buyerd/internal/oracle"
)

const generatorSystemPrompt = `You are a query compiler for a product table. You must return only valid JSON with no extra text or explanations.`

const generatorPromptTemplate = `Compile the table question below into one JSON expression over a product table with columns: price, rating, reviews, title, source.

Expression kinds:
- {"kind":"compare","field":"price","cmp":"lt","value":2000} keeps rows where the numeric field satisfies the comparison. cmp is one of lt, le, gt, ge, eq. Numeric fields: price, rating, reviews.
- {"kind":"contains","field":"title","text":"mouse"} keeps rows whose text field contains the substring. Text fields: title, source.
- {"kind":"all","exprs":[...]} keeps rows satisfying every child expression.
- {"kind":"top_k","field":"price","k":1,"descending":false} keeps the k rows with the smallest field value. Set descending true for the largest.
- {"kind":"count"} answers "how many" questions with a number.
- {"kind":"mean","field":"price"} answers "average" questions with a number.

Examples:
- "Which products have price less than 2000?" -> {"kind":"compare","field":"price","cmp":"lt","value":2000}
- "Which products have the lowest price?" -> {"kind":"top_k","field":"price","k":1,"descending":false}
- "Which products have rating more than 4 and price less than 50000?" -> {"kind":"all","exprs":[{"kind":"compare","field":"rating","cmp":"gt","value":4},{"kind":"compare","field":"price","cmp":"lt","value":50000}]}
- "What is the average price?" -> {"kind":"mean","field":"price"}

Question: %s

Return only the JSON expression.`

// Generator compiles a table question into an expression.
type Generator interface {
	Generate(ctx context.Context, tableQuery string) (Expr, error)
}

// LLMGenerator adapts the filter oracle to the Generator interface.
type LLMGenerator struct {
	completer oracle.Completer
	logger    *logging.Logger
}

// NewLLMGenerator creates a generator backed by a chat oracle.
func NewLLMGenerator(completer oracle.Completer, logger *logging.Logger) *LLMGenerator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLMGenerator{completer: completer, logger: logger.Named("filter")}
}

// Generate compiles a table question. Output that is not a valid
// expression is rejected with ErrExecutionFailed; it is never executed.
func (g *LLMGenerator) Generate(ctx context.Context, tableQuery string) (Expr, error) {
	prompt := fmt.Sprintf(generatorPromptTemplate, tableQuery)
	raw, err := g.completer.Complete(ctx, generatorSystemPrompt, prompt,
		oracle.WithTemperature(0.0), oracle.WithMaxTokens(512))
	if err != nil {
		return Expr{}, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	payload, ok := oracle.ExtractJSON(raw)
	if !ok {
		g.logger.Warn(ctx, "filter oracle returned no JSON", zap.String("raw", raw))
		return Expr{}, fmt.Errorf("%w: no JSON object in oracle output", ErrExecutionFailed)
	}

	var expr Expr
	if err := json.Unmarshal([]byte(payload), &expr); err != nil {
		return Expr{}, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	if err := expr.Validate(); err != nil {
		return Expr{}, err
	}

	g.logger.Debug(ctx, "compiled table query",
		zap.String("table_query", tableQuery),
		zap.String("kind", string(expr.Kind)))
	return expr, nil
}
