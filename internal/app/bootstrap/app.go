package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	httpx "github.com/ShannaChang/serverless-demo-for-aiops/internal/http"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/notify"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/alarm"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/fault"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/items"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/telemetry"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/ws"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/config"
	pkgtelemetry "github.com/ShannaChang/serverless-demo-for-aiops/pkg/telemetry"
)

// Mode selects which parts of the service are assembled.
type Mode int

const (
	// ModeServer runs the HTTP router with an in-process alarm evaluator.
	ModeServer Mode = iota
	// ModeLambda serves API Gateway events and ships samples to TELEMETRY_URL when set.
	ModeLambda
)

// App is the assembled item service.
type App struct {
	Config    config.APIConfig
	Service   *items.Service
	Handler   *httpx.ItemHandler
	Router    *httpx.Router
	Evaluator *alarm.Evaluator
	Hub       *ws.Hub

	log      *slog.Logger
	stores   *Stores
	redis    *redis.Client
	notifier *notify.Multi
	feeds    []*telemetry.Feed
	wg       sync.WaitGroup
}

// Build opens stores and wires every component for mode. Metrics are registered on reg.
func Build(ctx context.Context, cfg config.APIConfig, mode Mode, reg prometheus.Registerer, log *slog.Logger) (*App, error) {
	app := &App{Config: cfg, log: log}
	app.redis = NewRedis(ctx, cfg, log)

	stores, err := OpenStores(ctx, cfg, app.redis, log)
	if err != nil {
		app.closeRedis()
		return nil, fmt.Errorf("open stores: %w", err)
	}
	app.stores = stores

	recorder := telemetry.NewRecorder(reg)
	if mode == ModeServer {
		if err := app.buildAlarms(cfg, recorder, reg); err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	if url := strings.TrimSpace(cfg.TelemetryURL); url != "" {
		emitter, err := pkgtelemetry.NewEmitter(url, cfg.TelemetryToken, cfg.ServiceName, nil)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("configure telemetry emitter: %w", err)
		}
		feed := telemetry.NewFeed(telemetry.NewRemoteSink(emitter, log), cfg.MetricFeedSize, log, reg)
		app.feeds = append(app.feeds, feed)
		recorder.AddSink(feed)
		log.Info("shipping metric samples", "url", url)
	}

	policy := fault.PolicyFromSettings(fault.Settings{
		InjectLatency:             cfg.Faults.InjectLatency,
		LatencyAmountMS:           cfg.Faults.LatencyAmountMS,
		InjectWrongIDs:            cfg.Faults.InjectWrongIDs,
		WrongIDProbabilityPct:     cfg.Faults.WrongIDProbabilityPct,
		SimulateThrottling:        cfg.Faults.SimulateThrottling,
		SimulateStoreAccessDenied: cfg.Faults.SimulateStoreAccessDenied,
	})
	log.Info("fault policy loaded",
		"inject_latency", policy.InjectLatency(),
		"latency_ms", policy.LatencyAmount().Milliseconds(),
		"inject_wrong_ids", policy.InjectWrongIDs(),
		"wrong_id_probability", policy.WrongIDProbabilityPct(),
		"simulate_throttling", policy.SimulateThrottling(),
		"simulate_store_access_denied", policy.SimulateStoreAccessDenied(),
	)
	injector := fault.NewInjector(policy, fault.NewRandomSource(time.Now().UnixNano()), log)

	svc, err := items.New(stores.Items, stores.Blobs, injector, recorder, log)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("create item service: %w", err)
	}
	app.Service = svc
	app.Handler = httpx.NewItemHandler(svc, cfg.ListReservedConcurrency, log)

	if mode == ModeServer {
		opts := httpx.Options{
			Hub:         app.Hub,
			Ingest:      recorder,
			IngestToken: cfg.TelemetryToken,
			Health:      stores.Health,
			Registerer:  reg,
		}
		if app.Evaluator != nil {
			opts.Alarms = app.Evaluator
		}
		app.Router = httpx.NewRouter(log, app.Handler, opts)
	}
	return app, nil
}

func (a *App) buildAlarms(cfg config.APIConfig, recorder *telemetry.Recorder, reg prometheus.Registerer) error {
	defs := alarm.DefaultDefinitions()
	if path := strings.TrimSpace(cfg.AlarmConfigPath); path != "" {
		loaded, err := alarm.LoadDefinitions(path)
		if err != nil {
			return fmt.Errorf("load alarm definitions: %w", err)
		}
		defs = loaded
	}

	a.Hub = ws.NewHub()
	channels := []notify.Channel{notify.NewLog(a.log), notify.NewHub(a.Hub)}
	if url := strings.TrimSpace(cfg.AlarmWebhookURL); url != "" {
		channels = append(channels, notify.NewWebhook(url, nil))
	}
	if a.redis != nil && cfg.AlarmRedisChannel != "" {
		channels = append(channels, notify.NewRedis(a.redis, cfg.AlarmRedisChannel))
	}
	a.notifier = notify.NewMulti(a.log, channels...)

	evaluator, err := alarm.New(defs, a.notifier, a.log, alarm.Options{
		Period:         cfg.AlarmPeriod,
		Grace:          cfg.AlarmGrace,
		NotifyRecovery: cfg.AlarmNotifyRecovery,
		Registerer:     reg,
	})
	if err != nil {
		return fmt.Errorf("create alarm evaluator: %w", err)
	}
	a.Evaluator = evaluator
	feed := telemetry.NewFeed(evaluator, cfg.MetricFeedSize, a.log, reg)
	a.feeds = append(a.feeds, feed)
	recorder.AddSink(feed)
	a.log.Info("alarm evaluator ready", "alarms", len(defs), "period", evaluator.Period(), "channels", a.notifier.Channels())
	return nil
}

// Start launches the background loops. They stop when ctx is cancelled; Close waits for them.
func (a *App) Start(ctx context.Context) {
	for _, feed := range a.feeds {
		a.wg.Add(1)
		go func(f *telemetry.Feed) {
			defer a.wg.Done()
			f.Run(ctx)
		}(feed)
	}
	if a.Evaluator != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Evaluator.Run(ctx)
		}()
	}
}

// Close waits for background loops and releases stores and connections.
func (a *App) Close() error {
	a.wg.Wait()
	if a.notifier != nil {
		a.notifier.Wait()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	var errs []error
	if a.stores != nil {
		errs = append(errs, a.stores.Close())
	}
	errs = append(errs, a.closeRedis())
	return errors.Join(errs...)
}

func (a *App) closeRedis() error {
	if a.redis == nil {
		return nil
	}
	err := a.redis.Close()
	a.redis = nil
	return err
}
