package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-resolver/internal/alerting"
	"market-resolver/internal/config"
	"market-resolver/internal/fetcher"
	"market-resolver/internal/resolution"
	"market-resolver/internal/scheduler"
	"market-resolver/internal/service"
	"market-resolver/internal/storage"
	"market-resolver/internal/upstream"
	"market-resolver/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives the recommendation line and tables.
	Out io.Writer

	clientHooks []upstream.Option
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) resolverOptions() (service.Options, error) {
	candles, err := a.Config.CandleEndpoints()
	if err != nil {
		return service.Options{}, fmt.Errorf("candles endpoints: %w", err)
	}
	games, err := a.Config.GameEndpoints()
	if err != nil {
		return service.Options{}, fmt.Errorf("games endpoints: %w", err)
	}

	var channels []string
	if a.Config.Alerting.Enabled {
		channels = a.Config.Alerting.Channels
	}

	return service.Options{
		Client:      a.Config.ClientOptions(version.UserAgent()),
		ClientHooks: a.clientHooks,
		Candles: fetcher.CandleOptions{
			Path:     a.Config.Candles.Path,
			MaxPages: a.Config.Candles.MaxPages,
		},
		PageSize:        a.Config.Candles.PageSize,
		CandleEndpoints: candles,
		GameEndpoints:   games,
		DefaultSport:    a.Config.Games.Sport,
		Channels:        channels,
	}, nil
}

// newResolver wires the resolver with whatever outer layers are configured.
// A store or notifier that cannot be built is logged and skipped: the code must still be produced.
func (a *App) newResolver(ctx context.Context) (*service.Resolver, func(), error) {
	opts, err := a.resolverOptions()
	if err != nil {
		return nil, nil, err
	}
	mapper, err := resolution.NewMapper(a.Config.Vocabulary())
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var store storage.ResolutionStore
	st, closeStore, err := a.openStore(ctx)
	switch {
	case err != nil:
		a.Logger.Warn().Err(err).Msg("resolution store unavailable; audit disabled")
	case st == nil:
		a.Logger.Debug().Msg("database.dsn not configured; audit disabled")
	default:
		store = st
		closers = append(closers, closeStore)
	}

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("notifier unavailable; alerting disabled")
	} else if closeNotifier != nil {
		closers = append(closers, closeNotifier)
	}

	return service.New(opts, mapper, store, notifier, a.Logger), cleanup, nil
}

// newFallback builds a standalone fetch path for commands that bypass the resolver.
func (a *App) newFallback() *upstream.Fallback {
	client := upstream.NewClient(a.Config.ClientOptions(version.UserAgent()), a.Logger, a.clientHooks...)
	return upstream.NewFallback(client, a.Logger)
}

func (a *App) newNotifier() (alerting.Notifier, func(), error) {
	if !a.Config.Alerting.Enabled {
		return nil, nil, nil
	}

	var notifiers alerting.Multi
	var closer func()
	for _, channel := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(channel)) {
		case "telegram":
			cfg := a.Config.Alerting.Telegram
			if !cfg.Enabled {
				continue
			}
			notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
		case "kafka":
			cfg := a.Config.Alerting.Kafka
			if !cfg.Enabled {
				continue
			}
			kn, err := alerting.NewKafkaNotifier(cfg.Brokers, cfg.Topic, cfg.WriteTimeout, a.Logger)
			if err != nil {
				return nil, nil, err
			}
			notifiers = append(notifiers, kn)
			closer = func() {
				if err := kn.Close(); err != nil {
					a.Logger.Warn().Err(err).Msg("close kafka writer")
				}
			}
		default:
			a.Logger.Warn().Str("channel", channel).Msg("unknown alert channel ignored")
		}
	}

	if len(notifiers) == 0 {
		return nil, closer, nil
	}
	return notifiers, closer, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database, a.Config.App.Name)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newScheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    true,
		MaxRuns:      a.Config.Scheduler.MaxRuns,
	}, a.Logger)
}

// WindowOptions describe a time window the way a market question states it.
type WindowOptions struct {
	Date     string
	EndDate  string
	Clock    string
	Timezone string
	// Width applies to Clock windows; zero means one candle interval.
	Width time.Duration
	From  *time.Time
	To    *time.Time
}

// ThresholdOptions configure the threshold command.
type ThresholdOptions struct {
	MarketID      string
	Symbol        string
	Interval      string
	Window        WindowOptions
	Field         string
	Op            string
	Bound         string
	Mode          string
	UntilResolved bool
}

// CompareOptions configure the compare command.
type CompareOptions struct {
	MarketID      string
	Symbol        string
	Interval      string
	Field         string
	First         WindowOptions
	Second        WindowOptions
	UntilResolved bool
}

// GameOptions configure the game command.
type GameOptions struct {
	MarketID      string
	Sport         string
	Date          string
	Team          string
	Opponent      string
	UntilResolved bool
}

// ExportOptions hold parameters for exporting candle evidence.
type ExportOptions struct {
	Symbol    string
	Interval  string
	Window    WindowOptions
	Field     string
	Bound     string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit    int
	MarketID string
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	MarketID string
	Outcome  string
	Subject  string
}
