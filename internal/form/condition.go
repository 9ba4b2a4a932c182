package form

import (
	"context"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// OutcomeKind is the result class of one condition.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeNoDisplay fails the field without showing a warning, e.g. while
	// a postcode is still being typed.
	OutcomeNoDisplay
	OutcomeWarning
)

// Outcome is the result of a condition. Reason is set for both failure kinds.
type Outcome struct {
	Kind   OutcomeKind
	Reason domain.Warning
}

// Success passes the condition.
func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

// NoDisplay fails the condition silently.
func NoDisplay(reason domain.Warning) Outcome {
	return Outcome{Kind: OutcomeNoDisplay, Reason: reason}
}

// Warn fails the condition and shows reason.
func Warn(reason domain.Warning) Outcome {
	return Outcome{Kind: OutcomeWarning, Reason: reason}
}

// OK reports whether the condition passed.
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

// Shown is the warning displayed for this outcome.
func (o Outcome) Shown() domain.Warning {
	if o.Kind == OutcomeWarning {
		return o.Reason
	}
	return domain.WarnNone
}

// Condition is one step of a field's validation chain. Conditions run in
// order and each is awaited before the next starts. Side effects on the
// session must go through the attempt so that superseded attempts are
// discarded.
type Condition interface {
	Check(ctx context.Context, at *Attempt, value string) Outcome
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(ctx context.Context, at *Attempt, value string) Outcome

func (f ConditionFunc) Check(ctx context.Context, at *Attempt, value string) Outcome {
	return f(ctx, at, value)
}

// Rule is the validation recipe of a field.
type Rule struct {
	// Normalize always runs on non-empty input.
	Normalize func(string) string
	// Transform runs only when the edit asks for it (a committed change
	// rather than a keystroke).
	Transform func(string) string
	// OnEdit runs under the session lock whenever a new attempt starts,
	// including when the field is cleared.
	OnEdit     func(s *Session)
	Conditions []Condition
}

// rangeCondition rejects numbers outside r and anything that is not a number.
func rangeCondition(r domain.Range) Condition {
	return ConditionFunc(func(_ context.Context, _ *Attempt, value string) Outcome {
		v := domain.ParseValue(value)
		if v.IsStr || !r.Contains(v.Num) {
			return Warn(domain.WarnRange)
		}
		return Success()
	})
}

func numericRule(r domain.Range) Rule {
	return Rule{
		Transform:  r.ClampText,
		Conditions: []Condition{rangeCondition(r)},
	}
}

// buildRules assembles the rule table of a session.
func buildRules() [domain.NumFields]Rule {
	var rules [domain.NumFields]Rule
	for _, f := range domain.AllFields() {
		if r, ok := domain.RangeOf(f); ok {
			rules[f] = numericRule(r)
		}
	}
	rules[domain.FieldPostcode] = Rule{
		Normalize: domain.NormalizePostcode,
		OnEdit:    (*Session).resetResolutionLocked,
		Conditions: []Condition{
			ConditionFunc(checkPostcodeFormat),
			ConditionFunc(geocodePrimary),
			ConditionFunc(resolveDirectory),
			ConditionFunc(unlockManualFallback),
		},
	}
	rules[domain.FieldNeighbourPostcode] = Rule{
		Normalize: domain.NormalizePostcode,
		OnEdit:    (*Session).resetNeighbourLocked,
		Conditions: []Condition{
			ConditionFunc(checkPostcodeFormat),
			ConditionFunc(geocodeNeighbour),
			ConditionFunc(resolveNeighbourDirectory),
			ConditionFunc(unlockNeighbourFallback),
		},
	}
	return rules
}
