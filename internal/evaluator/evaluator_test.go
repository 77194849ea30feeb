package evaluator

import (
	"testing"

	"github.com/shopspring/decimal"

	"market-resolver/internal/fetcher"
)

func candles(n int, low string) []fetcher.Record {
	out := make([]fetcher.Record, n)
	for i := range out {
		open := int64(i) * 60000
		out[i] = fetcher.Record{
			OpenTime:  open,
			CloseTime: open + 59999,
			Open:      decimal.RequireFromString("2.10"),
			High:      decimal.RequireFromString("2.20"),
			Low:       decimal.RequireFromString(low),
			Close:     decimal.RequireFromString("2.15"),
		}
	}
	return out
}

func dipSpec(bound string) ThresholdSpec {
	return ThresholdSpec{Field: FieldLow, Op: OpLTE, Bound: decimal.RequireFromString(bound), Mode: ModeAnyInRange}
}

func TestEvaluateDipFound(t *testing.T) {
	records := candles(3000, "2.00")
	records[1500].Low = decimal.RequireFromString("1.85")
	if got := Evaluate(records, dipSpec("1.90")); got != ConditionTrue {
		t.Fatalf("存在低于 1.90 的记录应返回 true, 实际 %s", got)
	}
}

func TestEvaluateDipNotFound(t *testing.T) {
	if got := Evaluate(candles(3000, "2.00"), dipSpec("1.90")); got != ConditionFalse {
		t.Fatalf("没有满足条件的记录应返回 false, 实际 %s", got)
	}
}

func TestEvaluateEmptyRangeIsFalse(t *testing.T) {
	if got := Evaluate(nil, dipSpec("1.90")); got != ConditionFalse {
		t.Fatalf("空记录在 any_in_range 下应返回 false, 实际 %s", got)
	}
}

func TestEvaluateSinglePoint(t *testing.T) {
	spec := ThresholdSpec{Field: FieldClose, Op: OpGTE, Bound: decimal.RequireFromString("2.15"), Mode: ModeSinglePoint}
	if got := Evaluate(candles(1, "2.00"), spec); got != ConditionTrue {
		t.Fatalf("close 2.15 >= 2.15 应返回 true, 实际 %s", got)
	}
	spec.Op = OpGT
	if got := Evaluate(candles(1, "2.00"), spec); got != ConditionFalse {
		t.Fatalf("close 2.15 > 2.15 应返回 false, 实际 %s", got)
	}
	if got := Evaluate(nil, spec); got != Unresolved {
		t.Fatalf("单点查询无记录应返回 unresolved, 实际 %s", got)
	}
	if got := Evaluate(candles(2, "2.00"), spec); got != Unresolved {
		t.Fatalf("单点查询多条记录应返回 unresolved, 实际 %s", got)
	}
}

func TestCompareTwoSinglePoints(t *testing.T) {
	day1 := candles(1, "2.00")
	day2 := candles(1, "2.00")
	day2[0].Close = decimal.RequireFromString("2.30")

	first, ok := SinglePoint(day1, FieldClose)
	if !ok {
		t.Fatalf("第一天应有单点值")
	}
	second, ok := SinglePoint(day2, FieldClose)
	if !ok {
		t.Fatalf("第二天应有单点值")
	}
	if got := Compare(first, second); got != ConditionTrue {
		t.Fatalf("收盘价上涨应返回 true, 实际 %s", got)
	}
	if got := Compare(second, first); got != ConditionFalse {
		t.Fatalf("收盘价下跌应返回 false, 实际 %s", got)
	}
	if got := Compare(first, decimal.RequireFromString("2.150")); got != Tie {
		t.Fatalf("相同收盘价应返回 tie, 实际 %s", got)
	}
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec(" LOW ", "lte", "1.90", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Field != FieldLow || spec.Mode != ModeAnyInRange {
		t.Fatalf("解析结果错误: %s", spec)
	}
	if _, err := ParseSpec("volume", "lte", "1", ""); err == nil {
		t.Fatalf("未知字段应报错")
	}
	if _, err := ParseSpec("low", "between", "1", ""); err == nil {
		t.Fatalf("未知比较符应报错")
	}
	if _, err := ParseSpec("low", "lte", "abc", ""); err == nil {
		t.Fatalf("非法阈值应报错")
	}
}

func TestWinner(t *testing.T) {
	score := func(v int64) *int64 { return &v }
	final := fetcher.Game{Status: "Final", HomeTeam: "BOS", AwayTeam: "NYK", HomeScore: score(112), AwayScore: score(104)}

	cases := []struct {
		name  string
		games []fetcher.Game
		team  string
		want  Outcome
	}{
		{"home win", []fetcher.Game{final}, "BOS", ConditionTrue},
		{"away loss", []fetcher.Game{final}, "NYK", ConditionFalse},
		{"overtime tie score", []fetcher.Game{{Status: "F/OT", HomeTeam: "BOS", AwayTeam: "NYK", HomeScore: score(100), AwayScore: score(100)}}, "BOS", Tie},
		{"canceled", []fetcher.Game{{Status: "Canceled", HomeTeam: "BOS", AwayTeam: "NYK"}}, "BOS", Tie},
		{"in progress", []fetcher.Game{{Status: "InProgress", HomeTeam: "BOS", AwayTeam: "NYK", HomeScore: score(50), AwayScore: score(40)}}, "BOS", Unresolved},
		{"missing", nil, "BOS", Unresolved},
		{"doubleheader", []fetcher.Game{final, final}, "BOS", Unresolved},
		{"final without score", []fetcher.Game{{Status: "Final", HomeTeam: "BOS", AwayTeam: "NYK"}}, "BOS", Unresolved},
	}
	for _, c := range cases {
		opponent := "NYK"
		if c.team == "NYK" {
			opponent = "BOS"
		}
		if got := Winner(c.games, c.team, opponent); got != c.want {
			t.Fatalf("%s: 期望 %s, 实际 %s", c.name, c.want, got)
		}
	}
}
