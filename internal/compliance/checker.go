package compliance

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/logging"
	"github.com/fyrsmithlabs/buyerd/internal/oracle"
)

// Verdict is the three-way outcome of a policy check.
type Verdict string

const (
	VerdictCompliant     Verdict = "compliant"
	VerdictNeedsApproval Verdict = "needs_approval"
	VerdictNonCompliant  Verdict = "non_compliant"
)

// roleLimits maps a normalized role to its spend limit. Checks above
// the limit need approval rather than failing outright.
var roleLimits = map[string]float64{
	"junior staff": 25000,
	"senior staff": 50000,
	"manager":      100000,
	"director":     500000,
}

const defaultRoleLimit = 25000

// RoleLimit returns the spend limit for a role. Unknown roles get the
// most restrictive limit.
func RoleLimit(role string) float64 {
	norm := strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(role, "_", " "))), " ")
	if limit, ok := roleLimits[norm]; ok {
		return limit
	}
	return defaultRoleLimit
}

var verdictPattern = regexp.MustCompile(`(?i)compliance\s+status\s*:\s*(compliant|needs\s+approval|non[- ]?compliant)`)

// ParseVerdict extracts the verdict token from the oracle's narrative.
// Anything unrecognizable is treated as non-compliant.
func ParseVerdict(narrative string) Verdict {
	m := verdictPattern.FindStringSubmatch(narrative)
	if m == nil {
		return VerdictNonCompliant
	}
	token := strings.Join(strings.Fields(strings.ToLower(m[1])), " ")
	switch token {
	case "compliant":
		return VerdictCompliant
	case "needs approval":
		return VerdictNeedsApproval
	}
	return VerdictNonCompliant
}

// CheckRequest describes one purchase to rule on.
type CheckRequest struct {
	Role     string
	Product  string
	Vendor   string
	Price    float64
	Quantity int
}

// Total is the extended amount the policy evaluates.
func (r CheckRequest) Total() float64 {
	qty := r.Quantity
	if qty < 1 {
		qty = 1
	}
	return r.Price * float64(qty)
}

const checkerSystemPrompt = `You are a procurement compliance officer. Rule on the purchase strictly from the policy excerpts provided. Your answer must contain a line of the exact form "Compliance Status: Compliant", "Compliance Status: Needs Approval" or "Compliance Status: Non-Compliant", followed by a short reason.`

const checkerPromptTemplate = `Policy excerpts:
%s

Purchase under review:
- requester role: %s
- product: %s
- vendor: %s
- unit price: %.2f
- quantity: %d
- total: %.2f

Rule on this purchase.`

// Checker rules on purchases using the policy index and verdict oracle.
type Checker struct {
	index     *PolicyIndex
	completer oracle.Completer
	topK      int
	logger    *logging.Logger
}

// NewChecker wires the index and oracle together. topK bounds how many
// policy passages each check retrieves.
func NewChecker(index *PolicyIndex, completer oracle.Completer, topK int, logger *logging.Logger) *Checker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Checker{index: index, completer: completer, topK: topK, logger: logger.Named("compliance")}
}

// Check returns the verdict and the oracle's narrative. Oracle or index
// failure falls back to the deterministic role-limit rule; the check
// itself never fails.
func (c *Checker) Check(ctx context.Context, req CheckRequest) (Verdict, string) {
	narrative, err := c.oracleNarrative(ctx, req)
	if err != nil {
		c.logger.Warn(ctx, "verdict oracle unavailable, using role limits",
			zap.String("role", req.Role), zap.Error(err))
		return c.ruleVerdict(req)
	}
	return ParseVerdict(narrative), narrative
}

func (c *Checker) oracleNarrative(ctx context.Context, req CheckRequest) (string, error) {
	query := fmt.Sprintf("purchase rules for a %s buying %s from %s at total %.2f",
		req.Role, req.Product, req.Vendor, req.Total())
	passages, err := c.index.Retrieve(ctx, query, c.topK)
	if err != nil {
		return "", err
	}
	excerpts := "(no policy passages found)"
	if len(passages) > 0 {
		excerpts = strings.Join(passages, "\n---\n")
	}

	prompt := fmt.Sprintf(checkerPromptTemplate,
		excerpts, req.Role, req.Product, req.Vendor, req.Price, req.Quantity, req.Total())
	return c.completer.Complete(ctx, checkerSystemPrompt, prompt,
		oracle.WithTemperature(0.0), oracle.WithMaxTokens(512))
}

// ruleVerdict applies the role spend limits directly.
func (c *Checker) ruleVerdict(req CheckRequest) (Verdict, string) {
	limit := RoleLimit(req.Role)
	if req.Total() <= limit {
		return VerdictCompliant, fmt.Sprintf(
			"Compliance Status: Compliant\nTotal %.2f is within the %.0f limit for role %s.",
			req.Total(), limit, req.Role)
	}
	return VerdictNeedsApproval, fmt.Sprintf(
		"Compliance Status: Needs Approval\nTotal %.2f exceeds the %.0f limit for role %s.",
		req.Total(), limit, req.Role)
}
