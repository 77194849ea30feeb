package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

func sampleNotification() Notification {
	start := time.Date(2025, 1, 2, 17, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	return Notification{
		RunID:       "2f1c7d8e-0000-4000-8000-000000000001",
		MarketID:    "0xabc",
		Profile:     "threshold",
		Subject:     "BTCUSDT close gte 100000 (single_point)",
		Outcome:     "condition_true",
		Code:        "p2",
		WindowStart: &start,
		WindowEnd:   &end,
		ResolvedAt:  end,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Errorf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "recommendation: p2") {
		t.Fatalf("消息应包含推荐编码: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierPublishesEvent(t *testing.T) {
	w := &fakeWriter{}
	notifier := newKafkaNotifier(w, "market-resolutions", testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("Kafka Notify 应成功: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("期望 1 条消息, 实际 %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "0xabc" {
		t.Fatalf("消息 key 应为市场 id, 实际 %s", msg.Key)
	}
	var event map[string]any
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		t.Fatalf("事件应为 json: %v", err)
	}
	if event["code"] != "p2" || event["outcome"] != "condition_true" {
		t.Fatalf("事件内容错误: %v", event)
	}
}

func TestKafkaNotifierRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaNotifier(nil, "topic", 0, testLogger()); err == nil {
		t.Fatalf("缺少 brokers 应报错")
	}
	if _, err := NewKafkaNotifier([]string{"localhost:9092"}, "", 0, testLogger()); err == nil {
		t.Fatalf("缺少 topic 应报错")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &fakeWriter{}
	failing := &fakeWriter{err: errors.New("broker down")}
	multi := Multi{newKafkaNotifier(failing, "t", testLogger()), newKafkaNotifier(ok, "t", testLogger())}
	err := multi.Notify(context.Background(), sampleNotification())
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("应返回失败推送器的错误, 实际 %v", err)
	}
	if len(ok.msgs) != 1 {
		t.Fatalf("一个推送器失败不应影响其他推送器")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
