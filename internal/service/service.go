// Package service wires storage, ingestion, the evaluator, and the HTTP
// API into one runnable dashboard backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"centinela/internal/alertstore"
	"centinela/internal/config"
	"centinela/internal/engine"
	"centinela/internal/handlers"
	"centinela/internal/kafka"
	"centinela/internal/logger"
	"centinela/internal/metrics"
	"centinela/internal/middleware"
	"centinela/internal/models"
	"centinela/internal/storage"
)

// Service is the high-level coordinator for ingesting events, evaluating
// rules, and serving the dashboard API.
type Service struct {
	cfg        *config.Config
	db         *storage.DB
	store      *alertstore.Store
	consumer   *kafka.Consumer
	httpServer *http.Server

	// trigger carries "data changed" signals from the consumer to the
	// evaluation loop; capacity 1, extra signals coalesce.
	trigger chan struct{}

	// evalMu serializes evaluation passes
	evalMu sync.Mutex
	now    func() time.Time
	wg     sync.WaitGroup
}

// New constructs a Service and opens its database.
func New(cfg *config.Config) (*Service, error) {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &Service{
		cfg:     cfg,
		db:      db,
		store:   alertstore.New(db),
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}, nil
}

// Run starts the consumer, the evaluation loop, and the HTTP server, then
// blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	log := logger.WithComponent("service")
	log.Info().Msg("service starting")

	if err := s.seedThresholds(ctx); err != nil {
		return err
	}

	if len(s.cfg.Kafka.Brokers) > 0 {
		consumer, err := kafka.NewConsumer(kafka.Config{
			Brokers: s.cfg.Kafka.Brokers,
			Topic:   s.cfg.Kafka.Topic,
			GroupID: s.cfg.Kafka.GroupID,
			Applier: s.db,
			Notify:  s.trigger,
		})
		if err != nil {
			return fmt.Errorf("init consumer: %w", err)
		}
		s.consumer = consumer

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("consumer exited")
			}
		}()
		log.Info().
			Strs("brokers", s.cfg.Kafka.Brokers).
			Str("topic", s.cfg.Kafka.Topic).
			Msg("kafka consumer started")
	} else {
		log.Info().Msg("kafka ingestion disabled")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.evaluationLoop(ctx)
	}()

	s.initHTTPServer()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", s.cfg.HTTPAddr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	return s.shutdown()
}

// seedThresholds stores the defaults when nothing is configured yet, so
// the first evaluation never runs against an absent configuration.
func (s *Service) seedThresholds(ctx context.Context) error {
	log := logger.WithComponent("service")
	_, err := s.db.Thresholds(ctx)
	if errors.Is(err, storage.ErrNoThresholds) {
		if err := s.db.PutThresholds(ctx, models.DefaultThresholds()); err != nil {
			return fmt.Errorf("seed thresholds: %w", err)
		}
		log.Info().Msg("seeded default thresholds")
		return nil
	}
	return err
}

// evaluationLoop runs a pass after each data-change signal (debounced so
// a burst of events causes one pass) and on a fixed interval, because the
// stale-sale and monthly-goal rules move with the clock even when the data
// does not.
func (s *Service) evaluationLoop(ctx context.Context) {
	log := logger.WithComponent("service")
	ticker := time.NewTicker(s.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.trigger:
			// Debounce: let the burst settle, absorbing further signals
			timer := time.NewTimer(s.cfg.EvalDebounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			select {
			case <-s.trigger:
			default:
			}
			if _, err := s.RunEvaluation(ctx, "event"); err != nil {
				log.Error().Err(err).Msg("evaluation after data change failed")
			}

		case <-ticker.C:
			if _, err := s.RunEvaluation(ctx, "interval"); err != nil {
				log.Error().Err(err).Msg("periodic evaluation failed")
			}
		}
	}
}

// RunEvaluation performs one full pass: fresh thresholds, fresh snapshot,
// current active keys, evaluate, submit. It returns how many alerts were
// created. A persistence failure aborts only this pass.
func (s *Service) RunEvaluation(ctx context.Context, trigger string) (int, error) {
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	log := logger.WithComponent("service")
	start := s.now()

	thresholds, err := s.db.Thresholds(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNoThresholds) {
			return 0, fmt.Errorf("load thresholds: %w", err)
		}
		thresholds = models.DefaultThresholds()
	}

	snap, err := s.db.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}

	activeKeys, err := s.store.ActiveKeys(ctx)
	if err != nil {
		return 0, err
	}

	candidates := engine.Evaluate(snap, thresholds, activeKeys, s.now())
	created, err := s.store.Submit(ctx, candidates)
	if err != nil {
		return len(created), err
	}

	metrics.EvaluationsTotal.WithLabelValues(trigger).Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Str("trigger", trigger).
		Int("products", len(snap.Products)).
		Int("candidates", len(candidates)).
		Int("created", len(created)).
		Dur("duration", time.Since(start)).
		Msg("evaluation pass completed")
	return len(created), nil
}

// initHTTPServer builds the dashboard API server.
func (s *Service) initHTTPServer() {
	mux := http.NewServeMux()

	api := handlers.New(s.store, s.db, s)
	api.Register(mux)

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr: s.cfg.HTTPAddr,
		Handler: middleware.Chain(
			mux,
			middleware.Recovery,
			middleware.Logging,
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown performs graceful shutdown
func (s *Service) shutdown() error {
	log := logger.WithComponent("service")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if s.consumer != nil {
		log.Info().Msg("closing kafka consumer")
		if err := s.consumer.Close(); err != nil {
			log.Error().Err(err).Msg("consumer close error")
		}
	}

	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Msg("storage close error")
	}

	log.Info().Msg("service stopped gracefully")
	return nil
}

// healthHandler handles health check requests
func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, s.now().Format(time.RFC3339))
}

// statsHandler returns current ingestion statistics
func (s *Service) statsHandler(w http.ResponseWriter, r *http.Request) {
	var stats kafka.Stats
	if s.consumer != nil {
		stats = s.consumer.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"consumer":{"applied":%d,"rejected":%d,"failed":%d}}`,
		stats.Applied, stats.Rejected, stats.Failed)
}
