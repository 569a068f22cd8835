package cache

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// RequestContext is the small set of request facts the eligibility
// predicate may inspect — generalized from the teacher's
// smart_routing.RequestContext (internal/smart_routing/evaluator.go), cut
// down to exactly what a cache-eligibility decision needs.
type RequestContext struct {
	Model              string
	ToolCount          int
	SystemBytes        int
	HasEphemeralMarker bool
	Streaming          bool
}

// EligibilityPredicate evaluates whether a request is cache-eligible
// (§4.5). The default predicate accepts a non-streaming request that
// carries an ephemeral cache_control marker; RequestContext has no
// per-request caller opt-in field, so a request without a marker is not
// eligible under the default. An operator may supply a different
// expr-lang expression (config's
// cache_eligibility_expr) to generalize the rule, the same way the
// teacher's SmartRouting rules are operator-authored predicates over a
// request context — but expressed as one expression instead of a nested
// {position, operation, value} triple list.
type EligibilityPredicate struct {
	program *vm.Program
}

const defaultEligibilityExpr = `!Streaming && HasEphemeralMarker`

// NewEligibilityPredicate compiles exprSrc (or the default rule when
// empty) against RequestContext.
func NewEligibilityPredicate(exprSrc string) (*EligibilityPredicate, error) {
	if exprSrc == "" {
		exprSrc = defaultEligibilityExpr
	}
	program, err := expr.Compile(exprSrc, expr.Env(RequestContext{}), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &EligibilityPredicate{program: program}, nil
}

// Eligible evaluates the predicate. Evaluation errors are treated as
// "not eligible" (cache errors are non-fatal and degrade to a miss, per
// §7's propagation policy).
func (p *EligibilityPredicate) Eligible(rc RequestContext) bool {
	out, err := expr.Run(p.program, rc)
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}
