package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"market-resolver/internal/alerting"
	"market-resolver/internal/evaluator"
	"market-resolver/internal/resolution"
	"market-resolver/internal/service"
)

// SimulateAlert 构造一条模拟结算结果并通过已配置的通道推送, 用于验证告警链路。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	outcome, err := parseOutcome(opts.Outcome)
	if err != nil {
		return err
	}
	mapper, err := resolution.NewMapper(a.Config.Vocabulary())
	if err != nil {
		return err
	}

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	if closeNotifier != nil {
		defer closeNotifier()
	}
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	marketID, err := service.NormalizeMarketID(opts.MarketID)
	if err != nil {
		return err
	}
	subject := opts.Subject
	if subject == "" {
		subject = "simulated resolution"
	}

	note := alerting.Notification{
		RunID:      uuid.NewString(),
		MarketID:   marketID,
		Profile:    "simulated",
		Subject:    subject,
		Outcome:    string(outcome),
		Code:       string(mapper.Resolve(outcome, nil)),
		ResolvedAt: time.Now().UTC(),
		Channels:   a.Config.Alerting.Channels,
	}
	if err := notifier.Notify(ctx, note); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "sent %s (%s)\n", note.Code, note.RunID)
	return nil
}

func parseOutcome(v string) (evaluator.Outcome, error) {
	outcome := evaluator.Outcome(strings.ToLower(strings.TrimSpace(v)))
	switch outcome {
	case "":
		return evaluator.ConditionTrue, nil
	case evaluator.ConditionTrue, evaluator.ConditionFalse, evaluator.Tie, evaluator.Unresolved:
		return outcome, nil
	default:
		return "", fmt.Errorf("unknown outcome %q", v)
	}
}
