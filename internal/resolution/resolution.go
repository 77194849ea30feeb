package resolution

import (
	"fmt"
	"strings"

	"market-resolver/internal/evaluator"
)

// Code is the canonical answer handed to the market, e.g. "p2".
type Code string

// Vocabulary maps each outcome to the caller's code.
type Vocabulary struct {
	False      Code
	True       Code
	Tie        Code
	Unresolved Code
}

// DefaultVocabulary is the p1..p4 convention: p1 no, p2 yes, p3 50-50, p4 cannot determine.
var DefaultVocabulary = Vocabulary{False: "p1", True: "p2", Tie: "p3", Unresolved: "p4"}

// Validate requires four non-empty, distinct codes.
func (v Vocabulary) Validate() error {
	seen := make(map[Code]string, 4)
	for _, entry := range []struct {
		name string
		code Code
	}{
		{"false", v.False},
		{"true", v.True},
		{"tie", v.Tie},
		{"unresolved", v.Unresolved},
	} {
		if strings.TrimSpace(string(entry.code)) == "" {
			return fmt.Errorf("code for %s must not be empty", entry.name)
		}
		if other, dup := seen[entry.code]; dup {
			return fmt.Errorf("code %q used for both %s and %s", entry.code, other, entry.name)
		}
		seen[entry.code] = entry.name
	}
	return nil
}

// Mapper turns evaluation results into codes.
type Mapper struct {
	vocab Vocabulary
}

// NewMapper validates vocab and returns a mapper.
func NewMapper(vocab Vocabulary) (*Mapper, error) {
	if err := vocab.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{vocab: vocab}, nil
}

// Resolve fails closed: any fetch failure yields the unresolved code.
func (m *Mapper) Resolve(outcome evaluator.Outcome, failure error) Code {
	if failure != nil {
		return m.vocab.Unresolved
	}
	switch outcome {
	case evaluator.ConditionTrue:
		return m.vocab.True
	case evaluator.ConditionFalse:
		return m.vocab.False
	case evaluator.Tie:
		return m.vocab.Tie
	default:
		return m.vocab.Unresolved
	}
}

// IsUnresolved reports whether code is the cannot-determine code.
func (m *Mapper) IsUnresolved(code Code) bool {
	return code == m.vocab.Unresolved
}

// Vocabulary returns the configured codes.
func (m *Mapper) Vocabulary() Vocabulary {
	return m.vocab
}
