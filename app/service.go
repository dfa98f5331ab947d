package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/vehicle-broker/api/vehicles"
	"github.com/kilianp07/vehicle-broker/app/plugins"
	"github.com/kilianp07/vehicle-broker/config"
	"github.com/kilianp07/vehicle-broker/core/broker"
	"github.com/kilianp07/vehicle-broker/core/events"
	coremetrics "github.com/kilianp07/vehicle-broker/core/metrics"
	coremon "github.com/kilianp07/vehicle-broker/core/monitoring"
	"github.com/kilianp07/vehicle-broker/core/store"
	"github.com/kilianp07/vehicle-broker/core/transport"
	"github.com/kilianp07/vehicle-broker/infra/logger"
	"github.com/kilianp07/vehicle-broker/infra/metrics"
	inframon "github.com/kilianp07/vehicle-broker/infra/monitoring"
	"github.com/kilianp07/vehicle-broker/internal/eventbus"
	"github.com/kilianp07/vehicle-broker/uplink"
)

const shutdownTimeout = 5 * time.Second

// Service wires the broker to its store, transport, metrics sinks and HTTP
// API.
type Service struct {
	Broker    *broker.Broker
	Store     store.KeyValueStore
	Transport transport.Transport

	cfg    *config.Config
	env    *plugins.Env
	bus    *eventbus.Bus[events.Event]
	sink   coremetrics.MetricsSink
	uplink *uplink.Communicator
	log    logger.Logger

	mu     sync.Mutex
	addr   net.Addr
	closed bool
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	env := plugins.NewEnv(cfg, logger.New("backend"))
	st, err := plugins.NewStore(env)
	if err != nil {
		_ = env.Close()
		return nil, fmt.Errorf("store: %w", err)
	}
	tr, err := plugins.NewTransport(env)
	if err != nil {
		_ = st.Close()
		_ = env.Close()
		return nil, fmt.Errorf("transport: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = tr.Close()
		_ = st.Close()
		_ = env.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	bus := eventbus.New[events.Event]()
	b, err := broker.New(cfg.Broker, st, tr, bus, logger.New("broker"))
	if err != nil {
		_ = tr.Close()
		_ = st.Close()
		_ = env.Close()
		return nil, err
	}

	svc := &Service{
		Broker:    b,
		Store:     st,
		Transport: tr,
		cfg:       cfg,
		env:       env,
		bus:       bus,
		sink:      sink,
		log:       logg,
	}
	if cfg.Uplink.Enabled {
		svc.uplink = uplink.NewCommunicator(cfg.Uplink, uplink.NewClient(cfg.Uplink), b.Query(), logger.New("uplink"))
	}
	return svc, nil
}

// Handler returns the HTTP API, including /metrics, wrapped in CORS.
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	vehicles.NewHandler(s.Broker.Query(), s.Broker.Aggregator(), s.Broker.CommandLog().Capacity(), logger.New("api")).Register(r)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// Addr returns the address the HTTP server listens on once Run has started
// it.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Broker.Start(ctx); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	collectorDone := metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("metrics"))

	g, ctx := errgroup.WithContext(ctx)
	if !s.cfg.HTTP.Disabled {
		ln, err := net.Listen("tcp", s.cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.cfg.HTTP.Addr, err)
		}
		s.mu.Lock()
		s.addr = ln.Addr()
		s.mu.Unlock()
		srv := &http.Server{
			Handler:      s.Handler(),
			ReadTimeout:  s.cfg.HTTP.ReadTimeout(),
			WriteTimeout: s.cfg.HTTP.WriteTimeout(),
		}
		g.Go(func() error {
			s.log.Infof("HTTP API listening on %s", ln.Addr())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if s.uplink != nil {
		g.Go(func() error {
			if err := s.uplink.Run(ctx); err != nil {
				s.log.Errorf("uplink stopped: %v", err)
				coremon.CaptureException(err, map[string]string{"module": "uplink"})
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	err := g.Wait()
	<-collectorDone
	return err
}

// Close stops the broker and releases the store, transport and sinks.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.Broker.Stop(); err != nil && !errors.Is(err, broker.ErrNotRunning) {
		errs = append(errs, err)
	}
	s.bus.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if err := s.Transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.env.Close(); err != nil {
		errs = append(errs, err)
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
