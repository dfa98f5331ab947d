package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/vehicle-broker/core/events"
	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/store"
	"github.com/kilianp07/vehicle-broker/core/transport"
	"github.com/kilianp07/vehicle-broker/internal/eventbus"
)

// Broker owns the ingestion pipeline of one process: the Router feeding the
// Aggregator and the CommandLog, and the QueryService reading their output.
type Broker struct {
	cfg      Config
	agg      *Aggregator
	commands *CommandLog
	router   *Router
	query    *QueryService
	log      logger.Logger

	mu      sync.Mutex
	running bool
	stopped bool
}

// New validates cfg and wires the broker components over st and tr. bus may
// be nil when nobody consumes broker events.
func New(cfg Config, st store.KeyValueStore, tr transport.Transport, bus *eventbus.Bus[events.Event], log logger.Logger) (*Broker, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("broker config: %w", err)
	}
	if st == nil || tr == nil {
		return nil, fmt.Errorf("broker: store and transport are required")
	}
	agg := NewAggregator(st, cfg, log)
	cl := NewCommandLog(st, cfg, log)
	return &Broker{
		cfg:      cfg,
		agg:      agg,
		commands: cl,
		router:   NewRouter(tr, agg, cl, cfg, bus, log),
		query:    NewQueryService(st, cl, tr, cfg, log),
		log:      log,
	}, nil
}

// Start subscribes the router. A stopped broker cannot be restarted.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("broker already running")
	}
	if b.stopped {
		return fmt.Errorf("broker already stopped")
	}
	if err := b.router.Start(ctx); err != nil {
		return err
	}
	b.running = true
	b.log.Infow("broker started", map[string]any{
		"workers":          b.cfg.Workers,
		"history_capacity": b.cfg.HistoryCapacity,
		"snapshot_ttl_s":   b.cfg.SnapshotTTLSeconds,
	})
	return nil
}

// Stop unsubscribes and drains in-flight messages.
func (b *Broker) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return ErrNotRunning
	}
	b.router.Stop()
	b.running = false
	b.stopped = true
	b.log.Infof("broker stopped")
	return nil
}

func (b *Broker) Config() Config          { return b.cfg }
func (b *Broker) Aggregator() *Aggregator { return b.agg }
func (b *Broker) CommandLog() *CommandLog { return b.commands }
func (b *Broker) Router() *Router         { return b.router }
func (b *Broker) Query() *QueryService    { return b.query }
