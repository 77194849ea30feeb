package resolution

import (
	"errors"
	"testing"

	"market-resolver/internal/evaluator"
	"market-resolver/internal/upstream"
)

func TestResolveMapsOutcomes(t *testing.T) {
	m, err := NewMapper(DefaultVocabulary)
	if err != nil {
		t.Fatalf("默认编码应合法: %v", err)
	}
	cases := map[evaluator.Outcome]Code{
		evaluator.ConditionFalse: "p1",
		evaluator.ConditionTrue:  "p2",
		evaluator.Tie:            "p3",
		evaluator.Unresolved:     "p4",
	}
	for outcome, want := range cases {
		if got := m.Resolve(outcome, nil); got != want {
			t.Fatalf("%s 应映射为 %s, 实际 %s", outcome, want, got)
		}
	}
}

func TestResolveFailsClosed(t *testing.T) {
	m, _ := NewMapper(DefaultVocabulary)
	failure := &upstream.Failure{Kind: upstream.KindExhausted, Err: errors.New("boom")}
	for _, outcome := range []evaluator.Outcome{evaluator.ConditionTrue, evaluator.ConditionFalse, evaluator.Tie} {
		if got := m.Resolve(outcome, failure); got != "p4" {
			t.Fatalf("存在拉取失败时 %s 必须映射为 p4, 实际 %s", outcome, got)
		}
	}
	if !m.IsUnresolved(m.Resolve(evaluator.ConditionFalse, failure)) {
		t.Fatalf("IsUnresolved 判断错误")
	}
}

func TestTieAndUnresolvedAreDistinct(t *testing.T) {
	m, _ := NewMapper(DefaultVocabulary)
	tie := m.Resolve(evaluator.Tie, nil)
	if tie == m.Resolve(evaluator.ConditionTrue, nil) || tie == m.Resolve(evaluator.Unresolved, nil) {
		t.Fatalf("tie 编码必须区别于 true 和 unresolved")
	}
}

func TestVocabularyValidation(t *testing.T) {
	if _, err := NewMapper(Vocabulary{False: "NO", True: "YES", Tie: "50-50", Unresolved: "50-50"}); err == nil {
		t.Fatalf("重复编码应报错")
	}
	if _, err := NewMapper(Vocabulary{False: "NO", True: "YES", Tie: "", Unresolved: "UNKNOWN"}); err == nil {
		t.Fatalf("空编码应报错")
	}
	m, err := NewMapper(Vocabulary{False: "NO", True: "YES", Tie: "50-50", Unresolved: "UNKNOWN"})
	if err != nil {
		t.Fatalf("自定义编码应合法: %v", err)
	}
	if m.Resolve(evaluator.ConditionTrue, nil) != "YES" {
		t.Fatalf("自定义编码映射错误")
	}
}
