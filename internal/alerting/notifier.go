package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification 封装一次结算结果。
type Notification struct {
	RunID       string     `json:"run_id"`
	MarketID    string     `json:"market_id,omitempty"`
	Profile     string     `json:"profile"`
	Subject     string     `json:"subject"`
	Outcome     string     `json:"outcome"`
	Code        string     `json:"code"`
	FailureKind string     `json:"failure_kind,omitempty"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	ResolvedAt  time.Time  `json:"resolved_at"`
	Channels    []string   `json:"-"`
}

// Notifier 定义结果推送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Multi 依次调用多个推送器, 汇总错误。
type Multi []Notifier

// Notify fans out to every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 推送器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Str("code", note.Code).
		Msg("结算结果已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Market Resolution]\n")
	if note.MarketID != "" {
		builder.WriteString(fmt.Sprintf("Market: %s\n", note.MarketID))
	}
	builder.WriteString(fmt.Sprintf("Question: %s (%s)\n", note.Subject, note.Profile))
	if note.WindowStart != nil && note.WindowEnd != nil {
		builder.WriteString(fmt.Sprintf("Window: %s - %s UTC\n",
			note.WindowStart.UTC().Format(time.RFC3339), note.WindowEnd.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(fmt.Sprintf("Outcome: %s\n", note.Outcome))
	builder.WriteString(fmt.Sprintf("recommendation: %s\n", note.Code))
	if note.FailureKind != "" {
		builder.WriteString(fmt.Sprintf("Failure: %s\n", note.FailureKind))
	}
	builder.WriteString(fmt.Sprintf("Run: %s", note.RunID))
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = Multi(nil)
)
