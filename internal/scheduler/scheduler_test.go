package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunStopsWhenDone(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond, Immediate: true}, zerolog.Nop())
	calls := 0
	err := s.Run(context.Background(), func(ctx context.Context, bucket time.Time) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("完成后应返回 nil, 实际 %v", err)
	}
	if calls != 3 {
		t.Fatalf("期望执行 3 次, 实际 %d", calls)
	}
}

func TestRunHonoursMaxRuns(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond, Immediate: true, MaxRuns: 2}, zerolog.Nop())
	calls := 0
	err := s.Run(context.Background(), func(ctx context.Context, bucket time.Time) (bool, error) {
		calls++
		return false, errors.New("still unresolved")
	})
	if !errors.Is(err, ErrMaxRuns) {
		t.Fatalf("超过次数上限应返回 ErrMaxRuns, 实际 %v", err)
	}
	if calls != 2 {
		t.Fatalf("期望执行 2 次, 实际 %d", calls)
	}
}

func TestRunCancelled(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx, func(ctx context.Context, bucket time.Time) (bool, error) {
		t.Errorf("取消后不应执行 tick")
		return true, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回 context.Canceled, 实际 %v", err)
	}
}

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2025, 1, 1, 12, 3, 10, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2025, 1, 1, 12, 5, 0, 0, time.UTC)) {
		t.Fatalf("对齐时间错误: %s", got)
	}
	if got := s.bucketStart(time.Date(2025, 1, 1, 12, 5, 0, 1, time.UTC)); !got.Equal(time.Date(2025, 1, 1, 12, 5, 0, 0, time.UTC)) {
		t.Fatalf("bucket 起点错误: %s", got)
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("interval 为 0 应 panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
