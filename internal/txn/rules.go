package txn

import (
	"context"
	"fmt"
	"strings"

	"designcore/pkg/domain"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock rolls the request back.
	SeverityBlock Severity = "block"
	// SeverityWarn reports the violation but keeps the commit.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Rule+": "+v.Message)
		}
	}
	return "request blocked by rules: " + strings.Join(msgs, "; ")
}

// Rule defines an evaluation executed after a request commits.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, doc *domain.Document, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewPositiveScaleRule())
	engine.Register(NewAssociationIntegrityRule())
	return engine
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule { return append([]Rule(nil), e.rules...) }

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, doc *domain.Document, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, doc, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

type positiveScaleRule struct{}

// NewPositiveScaleRule blocks requests leaving a transformable entity with a
// zero or negative scale component.
func NewPositiveScaleRule() Rule { return positiveScaleRule{} }

func (positiveScaleRule) Name() string { return "positive_scale" }

func (r positiveScaleRule) Evaluate(_ context.Context, _ *domain.Document, changes []Change) (Result, error) {
	var res Result
	for _, ch := range changes {
		if ch.Action == ActionDelete || ch.Action == ActionRecycle {
			continue
		}
		t, ok := ch.Entity.(domain.Transformable)
		if !ok {
			continue
		}
		s := t.Transform().Scale
		if s.X <= 0 || s.Y <= 0 || s.Z <= 0 {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("scale %v must be positive", s),
				EntityID: ch.Entity.ID(),
			})
		}
	}
	return res, nil
}

type associationIntegrityRule struct{}

// NewAssociationIntegrityRule warns when a request leaves an association that
// owns or targets a changed entity invalid.
func NewAssociationIntegrityRule() Rule { return associationIntegrityRule{} }

func (associationIntegrityRule) Name() string { return "association_integrity" }

func (r associationIntegrityRule) Evaluate(_ context.Context, doc *domain.Document, changes []Change) (Result, error) {
	if doc == nil {
		return Result{}, nil
	}
	touched := make(map[string]bool, len(changes))
	for _, ch := range changes {
		if ch.Entity != nil {
			touched[ch.Entity.ID()] = true
		}
	}
	var res Result
	for _, a := range doc.Associations().Invalid() {
		if !touched[a.EntityID()] && !targetsAny(a, touched) {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     r.Name(),
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("association %s (%s) is invalid", a.ID(), a.TypeTag()),
			EntityID: a.EntityID(),
		})
	}
	return res, nil
}

func targetsAny(a *domain.Association, ids map[string]bool) bool {
	for _, t := range a.Targets() {
		if ids[t.ID()] {
			return true
		}
	}
	for _, id := range a.Unresolved() {
		if ids[id] {
			return true
		}
	}
	return false
}
