package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-resolver/internal/timewindow"
	"market-resolver/internal/upstream"
)

const minuteMs = int64(time.Minute / time.Millisecond)

// fakeKlines serves one-minute candles for every open time in [startTime, endTime],
// capped at limit, with low overridden for the open times in lows.
type fakeKlines struct {
	calls int32
	lows  map[int64]string
}

func (f *fakeKlines) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.calls, 1)
	q := r.URL.Query()
	start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
	end, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	rows := make([]string, 0, limit)
	for open := start; open <= end && len(rows) < limit; open += minuteMs {
		low := "2.00"
		if v, ok := f.lows[open]; ok {
			low = v
		}
		rows = append(rows, fmt.Sprintf(`[%d,"2.10","2.20","%s","2.15","100.5",%d,"0",1,"0","0","0"]`, open, low, open+minuteMs-1))
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
}

func newCandles(maxPages int) *Candles {
	client := upstream.NewClient(upstream.Options{}, zerolog.Nop(), upstream.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	return NewCandles(CandleOptions{MaxPages: maxPages}, upstream.NewFallback(client, zerolog.Nop()), zerolog.Nop())
}

func mustEndpoints(t *testing.T, urls ...string) upstream.EndpointSet {
	t.Helper()
	eps := make([]upstream.Endpoint, 0, len(urls))
	for _, u := range urls {
		eps = append(eps, upstream.Endpoint{URL: u})
	}
	set, err := upstream.NewEndpointSet(eps...)
	if err != nil {
		t.Fatalf("构建 endpoint 失败: %v", err)
	}
	return set
}

func threePageWindow(t *testing.T) timewindow.Window {
	t.Helper()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w, err := timewindow.FromUTC(start, start.Add(3000*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return w
}

func TestCandlesFetchPaginatesWholeWindow(t *testing.T) {
	window := threePageWindow(t)
	fake := &fakeKlines{lows: map[int64]string{window.StartMs + 1500*minuteMs: "1.85"}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	records, err := newCandles(0).Fetch(context.Background(), FetchRequest{
		InstrumentID: "XRPUSDT",
		Interval:     Interval1m,
		Window:       window,
		PageSize:     1000,
	}, mustEndpoints(t, srv.URL+"/api/v3"))
	if err != nil {
		t.Fatalf("分页拉取失败: %v", err)
	}
	if len(records) != 3000 {
		t.Fatalf("期望 3000 条记录, 实际 %d", len(records))
	}
	if calls := atomic.LoadInt32(&fake.calls); calls != 3 {
		t.Fatalf("期望 3 次分页请求, 实际 %d", calls)
	}
	for i := 1; i < len(records); i++ {
		if records[i].CloseTime <= records[i-1].CloseTime {
			t.Fatalf("close_time 必须严格递增: %d <= %d", records[i].CloseTime, records[i-1].CloseTime)
		}
		if records[i].OpenTime != records[i-1].CloseTime+1 {
			t.Fatalf("记录之间不应有缺口: index %d", i)
		}
	}
	if last := records[len(records)-1]; last.CloseTime >= window.EndMs {
		t.Fatalf("最后一条 close_time %d 不应超过窗口结束 %d", last.CloseTime, window.EndMs)
	}
	if records[1500].Low.String() != "1.85" {
		t.Fatalf("第二页的低点应被保留, 实际 %s", records[1500].Low)
	}
}

func TestCandlesFetchIsIdempotent(t *testing.T) {
	window := threePageWindow(t)
	srv := httptest.NewServer(&fakeKlines{})
	defer srv.Close()

	req := FetchRequest{InstrumentID: "BTCUSDT", Interval: Interval1m, Window: window, PageSize: 1000}
	eps := mustEndpoints(t, srv.URL)
	first, err := newCandles(0).Fetch(context.Background(), req, eps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := newCandles(0).Fetch(context.Background(), req, eps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("两次拉取长度不同: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].OpenTime != second[i].OpenTime || !first[i].Close.Equal(second[i].Close) {
			t.Fatalf("第 %d 条记录不一致", i)
		}
	}
}

func TestCandlesFetchStopsOnShortPage(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	window, _ := timewindow.FromUTC(start, start.Add(10*time.Minute))
	fake := &fakeKlines{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	records, err := newCandles(0).Fetch(context.Background(), FetchRequest{
		InstrumentID: "BTCUSDT", Interval: Interval1m, Window: window, PageSize: 500,
	}, mustEndpoints(t, srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the fake includes the candle opening at endTime; it must be dropped
	if len(records) != 10 {
		t.Fatalf("期望 10 条记录, 实际 %d", len(records))
	}
	if atomic.LoadInt32(&fake.calls) != 1 {
		t.Fatalf("短页应结束分页")
	}
}

func TestCandlesFetchNotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	records, err := newCandles(0).Fetch(context.Background(), FetchRequest{
		InstrumentID: "BTCUSDT", Interval: Interval1m, Window: threePageWindow(t), PageSize: 1000,
	}, mustEndpoints(t, srv.URL))
	if err != nil {
		t.Fatalf("404 不应视为错误: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("期望空结果, 实际 %d", len(records))
	}
}

func TestCandlesFetchPageLimit(t *testing.T) {
	srv := httptest.NewServer(&fakeKlines{})
	defer srv.Close()

	records, err := newCandles(2).Fetch(context.Background(), FetchRequest{
		InstrumentID: "BTCUSDT", Interval: Interval1m, Window: threePageWindow(t), PageSize: 1000,
	}, mustEndpoints(t, srv.URL))
	if upstream.KindOf(err) != upstream.KindPageLimit {
		t.Fatalf("超过页数上限应返回 page_limit_exceeded, 实际 %v", err)
	}
	if records != nil {
		t.Fatalf("失败时不应返回部分结果")
	}
}

func TestCandlesFetchDiscardsPartialOnFailure(t *testing.T) {
	var calls int32
	inner := &fakeKlines{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 2 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	records, err := newCandles(0).Fetch(context.Background(), FetchRequest{
		InstrumentID: "BTCUSDT", Interval: Interval1m, Window: threePageWindow(t), PageSize: 1000,
	}, mustEndpoints(t, srv.URL))
	if upstream.KindOf(err) != upstream.KindAuth {
		t.Fatalf("第二页鉴权失败应向上传播, 实际 %v", err)
	}
	if records != nil {
		t.Fatalf("失败时不应返回部分结果, 实际 %d 条", len(records))
	}
}

func TestCandlesFetchRejectsStuckCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// always the same stale candle, ignoring startTime
		_, _ = w.Write([]byte(`[[1000,"1","1","1","1","1",1999]]`))
	}))
	defer srv.Close()

	start := time.UnixMilli(5000).UTC()
	window, _ := timewindow.FromUTC(start, start.Add(time.Hour))
	_, err := newCandles(0).Fetch(context.Background(), FetchRequest{
		InstrumentID: "BTCUSDT", Interval: Interval1m, Window: window, PageSize: 1,
	}, mustEndpoints(t, srv.URL))
	if upstream.KindOf(err) != upstream.KindData {
		t.Fatalf("游标不前进应返回 data_error, 实际 %v", err)
	}
}

func TestCandlesFetchMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	_, err := newCandles(0).Fetch(context.Background(), FetchRequest{
		InstrumentID: "BTCUSDT", Interval: Interval1m, Window: threePageWindow(t), PageSize: 1000,
	}, mustEndpoints(t, srv.URL))
	if upstream.KindOf(err) != upstream.KindData {
		t.Fatalf("非数组响应应返回 data_error, 实际 %v", err)
	}
}

func TestCandlesFetchPanicsOnOversizedPage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("page_size 超过上限应 panic")
		}
	}()
	_, _ = newCandles(0).Fetch(context.Background(), FetchRequest{
		InstrumentID: "BTCUSDT", Interval: Interval1m, Window: threePageWindow(t), PageSize: MaxPageSize + 1,
	}, nil)
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("1h")
	if err != nil || iv.Duration() != time.Hour {
		t.Fatalf("解析 1h 失败: %v", err)
	}
	if _, err := ParseInterval("7m"); err == nil {
		t.Fatalf("不支持的周期应报错")
	}
}
