package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/checkpoint"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/config"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/escrow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/event"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/ledger"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/lock"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/observability"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/registry"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/server"
)

// localScriptAddress is used when no script address is configured.
const localScriptAddress = "addr_test1escrow"

// app is everything a command needs, wired from Settings.
type app struct {
	settings  config.Settings
	logger    *slog.Logger
	workflows *registry.Workflows
	engine    *escrow.Engine
	ledger    *ledger.Memory
	runner    *escrow.Runner
	events    *event.LocalBus
	metrics   *prometheus.Registry
	closers   []func() error
}

func newApp(s config.Settings, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		settings: s,
		logger:   logger,
		metrics:  prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	recorder, err := observability.NewPrometheusRecorder(a.metrics)
	if err != nil {
		return nil, err
	}

	a.workflows = registry.NewWorkflows(
		escrowflow.WithLogger(logger),
		escrowflow.WithMetrics(recorder),
	)
	for _, path := range s.Escrow.Workflows {
		if _, _, err := a.addWorkflow(path); err != nil {
			return nil, err
		}
	}

	policy, err := escrow.PolicyByName(s.Escrow.PricePolicy, s.Escrow.Price)
	if err != nil {
		return nil, err
	}
	address := s.Network.ScriptAddress
	if address == "" {
		address = localScriptAddress
	}
	a.engine = escrow.New(
		escrow.WithWorkflows(a.workflows),
		escrow.WithScriptAddress(address),
		escrow.WithProceedAmount(s.Escrow.ProceedAmount),
		escrow.WithPricePolicy(policy),
		escrow.WithLogger(logger),
		escrow.WithMetrics(recorder),
	)

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	retry, err := s.Retry.RetryConfig()
	if err != nil {
		return nil, err
	}

	a.events = event.NewBus(event.DefaultBusConfig)
	a.closers = append(a.closers, a.events.Close)
	a.events.SubscribeAll(event.HandlerFunc(a.logEvent))

	a.ledger = ledger.NewMemory(address)
	a.runner = escrow.NewRunner(a.engine, a.ledger, a.ledger, a.ledger,
		escrow.WithJournal(store),
		escrow.WithEvents(a.events),
		escrow.WithLocker(a.locker(), s.Redis.LockTTL),
		escrow.WithRetry(retry),
		escrow.WithSpanManager(observability.NewSpanManager()),
	)
	return a, nil
}

func (a *app) logEvent(_ context.Context, evt event.Event) error {
	a.logger.Info("escrow event",
		slog.String("type", evt.Type),
		slog.String("escrow_id", evt.EscrowID),
		slog.String("tx_hash", evt.TxHash),
		slog.String("status", evt.Status),
	)
	return nil
}

func (a *app) addWorkflow(path string) (datum.ProcessHash, *escrowflow.TaskGraph, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return datum.ProcessHash{}, nil, err
	}
	hash, tg, err := a.workflows.Add(doc)
	if err != nil {
		return hash, nil, fmt.Errorf("%s: %w", path, err)
	}
	a.logger.Info("workflow registered",
		slog.String("path", path),
		slog.String("process_hash", hash.String()),
		slog.Int("tasks", tg.Len()),
	)
	return hash, tg, nil
}

func (a *app) openStore() (checkpoint.Store, error) {
	switch a.settings.Store.Driver {
	case "sqlite":
		store, err := checkpoint.NewSQLiteStore(a.settings.Store.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		store := checkpoint.NewMemoryStore()
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
}

func (a *app) locker() lock.Locker {
	if a.settings.Redis.Addr == "" {
		return lock.NewMemoryLocker()
	}
	client := backend.NewClient(&backend.Options{Addr: a.settings.Redis.Addr})
	a.closers = append(a.closers, client.Close)
	return lock.NewRedisLocker(client, a.settings.Redis.Prefix)
}

func (a *app) server() (*server.Server, error) {
	return server.New(a.workflows, a.engine,
		server.WithRunner(a.runner),
		server.WithLogger(a.logger),
		server.WithRegistry(a.metrics),
	)
}

// Close releases the event bus, the journal and the Redis client.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
