package evaluator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"market-resolver/internal/fetcher"
)

// Outcome is the ternary evaluation result plus the explicit "could not determine" state.
type Outcome string

const (
	ConditionTrue  Outcome = "condition_true"
	ConditionFalse Outcome = "condition_false"
	Tie            Outcome = "tie"
	Unresolved     Outcome = "unresolved"
)

// Field selects one price of a record.
type Field string

const (
	FieldOpen  Field = "open"
	FieldHigh  Field = "high"
	FieldLow   Field = "low"
	FieldClose Field = "close"
)

// Op compares a record field against a bound.
type Op string

const (
	OpGTE Op = "gte"
	OpLTE Op = "lte"
	OpEQ  Op = "eq"
	OpGT  Op = "gt"
	OpLT  Op = "lt"
)

// Mode selects how a window of records is judged.
type Mode string

const (
	ModeAnyInRange  Mode = "any_in_range"
	ModeSinglePoint Mode = "single_point"
)

// ThresholdSpec describes a threshold question over a window.
type ThresholdSpec struct {
	Field Field
	Op    Op
	Bound decimal.Decimal
	Mode  Mode
}

// Validate checks that every enum holds a known value.
func (s ThresholdSpec) Validate() error {
	switch s.Field {
	case FieldOpen, FieldHigh, FieldLow, FieldClose:
	default:
		return fmt.Errorf("unknown field %q", s.Field)
	}
	switch s.Op {
	case OpGTE, OpLTE, OpEQ, OpGT, OpLT:
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	switch s.Mode {
	case ModeAnyInRange, ModeSinglePoint:
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	return nil
}

func (s ThresholdSpec) String() string {
	return fmt.Sprintf("%s %s %s (%s)", s.Field, s.Op, s.Bound, s.Mode)
}

// ParseSpec normalises user input into a validated ThresholdSpec.
func ParseSpec(field, op, bound, mode string) (ThresholdSpec, error) {
	b, err := decimal.NewFromString(strings.TrimSpace(bound))
	if err != nil {
		return ThresholdSpec{}, fmt.Errorf("parse bound %q: %w", bound, err)
	}
	spec := ThresholdSpec{
		Field: Field(normalise(field)),
		Op:    Op(normalise(op)),
		Bound: b,
		Mode:  Mode(normalise(mode)),
	}
	if spec.Mode == "" {
		spec.Mode = ModeAnyInRange
	}
	return spec, spec.Validate()
}

func normalise(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

// Evaluate judges records against spec. It never looks at fetch errors:
// callers only evaluate complete record sets.
func Evaluate(records []fetcher.Record, spec ThresholdSpec) Outcome {
	switch spec.Mode {
	case ModeSinglePoint:
		v, ok := SinglePoint(records, spec.Field)
		if !ok {
			return Unresolved
		}
		return boolOutcome(satisfies(v, spec.Op, spec.Bound))
	default:
		for _, rec := range records {
			if satisfies(Value(rec, spec.Field), spec.Op, spec.Bound) {
				return ConditionTrue
			}
		}
		return ConditionFalse
	}
}

// SinglePoint returns field of the only record, or false when there is not exactly one.
func SinglePoint(records []fetcher.Record, field Field) (decimal.Decimal, bool) {
	if len(records) != 1 {
		return decimal.Decimal{}, false
	}
	return Value(records[0], field), true
}

// Compare answers "did the value rise from first to second".
func Compare(first, second decimal.Decimal) Outcome {
	switch second.Cmp(first) {
	case 1:
		return ConditionTrue
	case -1:
		return ConditionFalse
	default:
		return Tie
	}
}

// Margin is the winner comparator: positive means the subject won.
func Margin(diff int64) Outcome {
	switch {
	case diff > 0:
		return ConditionTrue
	case diff < 0:
		return ConditionFalse
	default:
		return Tie
	}
}

// Value reads one field of a record.
func Value(rec fetcher.Record, field Field) decimal.Decimal {
	switch field {
	case FieldOpen:
		return rec.Open
	case FieldHigh:
		return rec.High
	case FieldLow:
		return rec.Low
	default:
		return rec.Close
	}
}

func satisfies(v decimal.Decimal, op Op, bound decimal.Decimal) bool {
	switch op {
	case OpGTE:
		return v.GreaterThanOrEqual(bound)
	case OpLTE:
		return v.LessThanOrEqual(bound)
	case OpGT:
		return v.GreaterThan(bound)
	case OpLT:
		return v.LessThan(bound)
	default:
		return v.Equal(bound)
	}
}

func boolOutcome(ok bool) Outcome {
	if ok {
		return ConditionTrue
	}
	return ConditionFalse
}
