package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/ci-runner/metrics"
)

// Config holds the listen addresses of the HTTP endpoints
type Config struct {
	HealthzAddr string
	MetricsAddr string
}

// Service runs the healthz and metrics servers while a pipeline runs
type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	config Config
	log    log.Logger
	wg     sync.WaitGroup
}

func New(config Config, logger log.Logger) *Service {
	return &Service{
		Healthz: NewHealthzServer(logger),
		Metrics: NewMetricsServer(),
		config:  config,
		log:     logger,
	}
}

// Start binds both servers and serves them in the background
func (s *Service) Start() error {
	s.log.Info("service starting")

	if err := s.Healthz.Listen(s.config.HealthzAddr); err != nil {
		metrics.RecordErrorDetails("healthz_listen", err)
		return fmt.Errorf("failed to start healthz server on %s: %w", s.config.HealthzAddr, err)
	}
	if err := s.Metrics.Listen(s.config.MetricsAddr); err != nil {
		metrics.RecordErrorDetails("metrics_listen", err)
		_ = s.Healthz.Shutdown(context.Background())
		return fmt.Errorf("failed to start metrics server on %s: %w", s.config.MetricsAddr, err)
	}

	s.serve("healthz", s.Healthz.Serve, s.Healthz.Addr())
	s.serve("metrics", s.Metrics.Serve, s.Metrics.Addr())

	s.log.Info("service started")
	return nil
}

func (s *Service) serve(name string, serve func() error, addr string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("starting "+name+" server", "addr", addr)
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error running "+name+" server", "err", err)
			metrics.RecordErrorDetails(name+"_serve", err)
		}
	}()
}

// Shutdown stops both servers and waits for them to return
func (s *Service) Shutdown(ctx context.Context) {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown(ctx)
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown(ctx)
	s.log.Info("metrics stopped")

	s.wg.Wait()
	s.log.Info("service stopped")
}
