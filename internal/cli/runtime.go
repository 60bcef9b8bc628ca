package cli

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kingrea/jaegis/internal/agents"
	"github.com/kingrea/jaegis/internal/config"
	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/eventbridge"
	"github.com/kingrea/jaegis/internal/logbook"
	"github.com/kingrea/jaegis/internal/logging"
	"github.com/kingrea/jaegis/internal/metrics"
	"github.com/kingrea/jaegis/internal/orchestrator"
	"github.com/kingrea/jaegis/internal/workspace"
)

// runtime holds everything one `jaegis run` needs and tears it down again.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	book     *logbook.Logbook
	bus      *eventbridge.Bus
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	server   *eventbridge.Server
	ws       workspace.Workspace

	executor *orchestrator.Executor
	stopLog  func()
}

// newRuntime prepares config, logging, the event bus and metrics for dir.
// A missing workspace is not an error here; the executor reports it.
func newRuntime(dir string, stderr io.Writer) (*runtime, error) {
	rt := &runtime{}
	ws, wsErr := workspace.Open(dir)
	if wsErr == nil {
		rt.ws = ws
		dir = ws.Root()
		if err := config.InitDir(dir); err != nil {
			return nil, err
		}
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	rt.cfg = cfg

	if rt.ws != nil {
		logger, err := logging.New(dir, cfg.LogLevel())
		if err != nil {
			return nil, err
		}
		rt.logger = logger
		book, err := logbook.New(cfg.ProgressLogPath())
		if err != nil {
			_ = logger.Close()
			return nil, err
		}
		rt.book = book
	} else {
		rt.logger = logging.NewWriter(stderr, "warn")
		rt.logger.Warn("workspace unavailable", "dir", dir, "error", wsErr)
	}

	rt.bus = eventbridge.NewBus(eventbridge.BusWithLogger(rt.logger))
	rt.stopLog = rt.logEvents()
	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(collectors.NewGoCollector())
	rt.metrics = metrics.New(rt.registry)
	return rt, nil
}

// logEvents mirrors every bus event into the structured log.
func (rt *runtime) logEvents() func() {
	sub := rt.bus.Subscribe(eventbridge.Wildcard)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub.Events {
			rt.logger.Info("event", "name", evt.Name, "id", evt.ID, "session", evt.SessionID)
		}
	}()
	return func() {
		sub.Close()
		<-done
	}
}

// buildExecutor assembles the executor around display and prompter.
func (rt *runtime) buildExecutor(display orchestrator.Display, prompter orchestrator.Prompter) *orchestrator.Executor {
	cfg := rt.cfg
	displays := orchestrator.MultiDisplay{display}
	if rt.book != nil {
		displays = append(displays, orchestrator.NewLogbookDisplay(rt.book))
	}
	collector := diagnostics.NewCollector(
		diagnostics.FileSource{Path: cfg.DiagnosticsPath()},
		diagnostics.WithIncludeWarnings(cfg.Project.Diagnostics.IncludeWarnings),
		diagnostics.WithLogger(rt.logger),
	)
	opts := []orchestrator.Option{
		orchestrator.WithEmitter(rt.bus),
		orchestrator.WithDisplay(displays),
		orchestrator.WithPrompter(prompter),
		orchestrator.WithPreferences(cfg),
		orchestrator.WithCollector(collector),
		orchestrator.WithDefaultWorker(orchestrator.DelayWorker{Delay: cfg.PhaseDelay()}),
		orchestrator.WithMetrics(rt.metrics),
		orchestrator.WithLogger(rt.logger),
		orchestrator.WithDefaultAgents(agents.FromStrings(cfg.DefaultAgents())),
		orchestrator.WithMaxChainDepth(cfg.MaxChainDepth()),
	}
	if rt.ws != nil {
		opts = append(opts,
			orchestrator.WithWorkspace(rt.ws),
			orchestrator.WithStore(orchestrator.NewStore(cfg.SessionStatePath())),
		)
	}
	rt.executor = orchestrator.NewExecutor(opts...)
	return rt.executor
}

// startServer serves /health, /progress and /metrics when monitoring is on.
func (rt *runtime) startServer(ctx context.Context) error {
	settings := eventbridge.SettingsFromConfig(rt.cfg)
	rt.server = eventbridge.NewServer(settings,
		eventbridge.WithGatherer(rt.registry),
		eventbridge.WithLogger(rt.logger),
		eventbridge.WithSnapshot(func() (any, bool) {
			if rt.executor == nil {
				return nil, false
			}
			session, ok := rt.executor.Latest()
			return session, ok
		}),
	)
	if err := rt.server.Start(ctx); err != nil {
		if errors.Is(err, eventbridge.ErrServerDisabled) {
			return nil
		}
		return err
	}
	rt.logger.Info("status server listening", "url", rt.server.BaseURL())
	return nil
}

func (rt *runtime) Close() {
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = rt.server.Shutdown(ctx)
		cancel()
	}
	if rt.bus != nil {
		rt.bus.Close()
	}
	if rt.stopLog != nil {
		rt.stopLog()
	}
	if rt.logger != nil {
		_ = rt.logger.Close()
	}
}
