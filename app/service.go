// Package app wires the configuration into a running dispatch server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfms/agvd/config"
	"github.com/openfms/agvd/core/health"
	coremetrics "github.com/openfms/agvd/core/metrics"
	"github.com/openfms/agvd/core/model"
	"github.com/openfms/agvd/core/monitoring"
	"github.com/openfms/agvd/core/pathlock"
	"github.com/openfms/agvd/core/planner"
	"github.com/openfms/agvd/core/task"
	"github.com/openfms/agvd/core/transport"
	"github.com/openfms/agvd/infra/logger"
	"github.com/openfms/agvd/infra/metrics"
	infmon "github.com/openfms/agvd/infra/monitoring"
	"github.com/openfms/agvd/infra/mqtt"
	"github.com/openfms/agvd/infra/scheduler"
	"github.com/openfms/agvd/infra/storage"
	"github.com/openfms/agvd/internal/eventbus"
)

// Store is the persistence surface the service needs. Satisfied by both
// the SQLite-backed store and the in-memory store.
type Store interface {
	task.TaskStore
	task.AgvStore
	task.RouteStore
	task.ProgressLogStore
	task.ExceptionLogStore
	health.AgvLister
	health.TaskFinder
	health.JobLogStore
	SaveLock(l model.PathLock) error
	LoadGraph(ctx context.Context, mapID uuid.UUID) ([]model.Node, []model.Edge, []model.Station, error)
	SeedGraph(ctx context.Context, nodes []model.Node, edges []model.Edge, stations []model.Station) error
	SaveAgvRoster(ctx context.Context, agvs []model.Agv) error
}

// Service orchestrates the dispatch server: storage, planner, locks,
// task manager, transport, health sweep and metrics.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	store    Store
	planner  *planner.Planner
	locks    pathlock.Strategy
	manager  *task.Manager
	monitor  *health.Monitor
	router   *transport.Router
	client   *mqtt.Client
	sched    *scheduler.Scheduler
	recorder *metrics.Recorder
	bus      *task.Bus
	sink     coremetrics.Sink
	mon      monitoring.Monitor
}

// New builds a Service from the configuration. Everything that can fail
// fails here; Run only starts goroutines.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := infmon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	if cfg.Map.SeedFile != "" {
		nodes, edges, stations, err := storage.LoadMapFile(cfg.Map.SeedFile)
		if err != nil {
			return nil, err
		}
		if err := store.SeedGraph(ctx, nodes, edges, stations); err != nil {
			return nil, err
		}
		logg.Infof("seeded map: %d nodes, %d edges, %d stations", len(nodes), len(edges), len(stations))
	}

	mapID, err := uuid.Parse(cfg.Map.ID)
	if err != nil {
		return nil, fmt.Errorf("map id: %w", err)
	}
	nodes, edges, stations, err := store.LoadGraph(ctx, mapID)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("map %s has no nodes", mapID)
	}
	pln := planner.New(nodes, edges, stations, logger.New("planner"))

	if len(cfg.Fleet.Agvs) > 0 {
		roster := make([]model.Agv, 0, len(cfg.Fleet.Agvs))
		for _, a := range cfg.Fleet.Agvs {
			roster = append(roster, model.Agv{ID: uuid.New(), Code: a.Code, Name: a.Name})
		}
		if err := store.SaveAgvRoster(ctx, roster); err != nil {
			return nil, err
		}
	}

	locks, err := pathlock.NewStrategy(cfg.PathLock, pathlock.Deps{
		Store: store,
		Edges: pln.ChannelEdge,
		TaskStatus: func(taskID uuid.UUID) (model.TaskStatus, bool) {
			t, err := store.GetTask(context.Background(), taskID)
			if err != nil || t == nil {
				return 0, false
			}
			return t.Status, true
		},
		Log: logger.New("pathlock"),
	})
	if err != nil {
		return nil, err
	}

	client, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	bus := eventbus.NewTyped[task.TaskEvent]()
	manager := task.NewManager(task.Deps{
		Tasks:        store,
		Agvs:         store,
		Routes:       store,
		ProgressLogs: store,
		Exceptions:   store,
		Planner:      pln,
		Locks:        locks,
		Publisher:    client,
		Bus:          bus,
		Log:          logger.New("task-manager"),
	})

	monitor := health.NewMonitor(cfg.Health, health.Deps{
		Agvs:      store,
		Tasks:     store,
		Canceller: manager,
		Locks:     locks,
		JobLogs:   store,
		Monitor:   mon,
		Log:       logger.New("health"),
	})

	sink := buildSink(cfg.Metrics)
	recorder := metrics.NewRecorder(bus, sink, func(ctx context.Context) (int, int, error) {
		agvs, err := store.ListConnectedAgvs(ctx)
		if err != nil {
			return 0, 0, err
		}
		return len(agvs), len(locks.GetActiveChannels()), nil
	}, logger.New("metrics"))

	svc := &Service{
		cfg:      cfg,
		log:      logg,
		store:    store,
		planner:  pln,
		locks:    locks,
		manager:  manager,
		monitor:  monitor,
		client:   client,
		sched:    scheduler.New(logger.New("scheduler")),
		recorder: recorder,
		bus:      bus,
		sink:     sink,
		mon:      mon,
	}
	svc.router = transport.NewRouter(svc.handlers(), logger.New("router"))
	return svc, nil
}

func openStore(cfg storage.Config) (Store, error) {
	if cfg.Driver == storage.DriverMemory {
		return storage.NewMemoryStore(), nil
	}
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	return storage.NewStore(db), nil
}

func buildSink(cfg config.MetricsConfig) coremetrics.Sink {
	var sinks []coremetrics.Sink
	if cfg.PrometheusAddr != "" {
		sink, err := metrics.NewPromSink()
		if err != nil {
			logger.New("metrics").Errorf("prom sink: %v", err)
		} else {
			sinks = append(sinks, sink)
		}
	}
	if cfg.Influx.URL != "" {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}
	case 1:
		return sinks[0]
	default:
		return metrics.NewMultiSink(sinks...)
	}
}

// Manager exposes the task lifecycle API.
func (s *Service) Manager() *task.Manager { return s.manager }

// Planner exposes the route planner.
func (s *Service) Planner() *planner.Planner { return s.planner }

// Run starts the transport, the metrics pipeline and the health sweep,
// then blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.client.Subscribe(transport.ServerSubscriptions(), s.router.Route); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.recorder.Start(ctx)

	if _, err := s.sched.AddJob(s.cfg.Scheduler.SweepSchedule, health.JobName, s.runSweep); err != nil {
		return err
	}
	s.sched.Start()

	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	s.log.Infof("dispatch server running")
	<-ctx.Done()
	return nil
}

func (s *Service) runSweep() {
	report, err := s.monitor.Sweep(context.Background())
	if rec, ok := s.sink.(coremetrics.SweepRecorder); ok {
		ev := coremetrics.SweepEvent{
			StaleAgvs:      report.StaleAgvs,
			CancelledTasks: report.CancelledTasks,
			ReapedLocks:    report.ReapedLocks,
			Duration:       report.Duration,
			Failed:         err != nil,
			Time:           time.Now(),
		}
		if recErr := rec.RecordSweep(ev); recErr != nil {
			s.log.Warnf("record sweep: %v", recErr)
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.sched.Stop()
	s.client.Disconnect()
	s.bus.Close()
	s.mon.Flush(2 * time.Second)
	return nil
}
