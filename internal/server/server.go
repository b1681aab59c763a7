// Package server wires the registry together: storage backend, access
// control, event bus, service and HTTP surface, plus the optional
// metrics listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	httpregistry "github.com/artipie/stevedore/internal/adapters/in/http/registry"
	"github.com/artipie/stevedore/internal/adapters/out/access"
	"github.com/artipie/stevedore/internal/adapters/out/store"
	"github.com/artipie/stevedore/internal/boundaries/out"
	"github.com/artipie/stevedore/internal/config"
	"github.com/artipie/stevedore/internal/events"
	"github.com/artipie/stevedore/internal/middleware"
	"github.com/artipie/stevedore/internal/usecase/registry"
)

const shutdownTimeout = 15 * time.Second

// Server holds the assembled application.
type Server struct {
	cfg      *config.Config
	registry *http.Server
	metrics  *http.Server
	eventBus *events.InMemoryEventBus
	closers  []func() error
}

// New assembles the server from configuration. The store backend, the
// authenticator and the policy are all chosen here; nothing downstream
// knows which implementation it received.
func New(cfg *config.Config) (*Server, error) {
	srv := &Server{cfg: cfg}

	contentStore, err := srv.buildStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	srv.eventBus = events.NewInMemoryEventBus(100)
	if err := srv.eventBus.Subscribe(events.NewAuditHandler()); err != nil {
		return nil, fmt.Errorf("failed to subscribe audit handler: %w", err)
	}

	svc := registry.NewService(contentStore, srv.eventBus)

	var authn out.Authenticator = access.Anonymous{}
	var authz out.Policy = access.AllowAll{}
	if cfg.Auth.Enabled {
		authn = access.NewBasicAuth(cfg.Auth.Users)
		authz = access.NewStaticPolicy(cfg.Auth.Users)
	}

	handler := httpregistry.NewHandler(svc, authn, authz, cfg.Auth.Realm)
	chain := middleware.Chain(
		middleware.PanicRecovery,
		middleware.RequestLogger,
		middleware.Metrics,
	)

	srv.registry = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           chain(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv.metrics = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return srv, nil
}

func (s *Server) buildStore() (out.ContentStore, error) {
	switch s.cfg.Server.Store {
	case "memory":
		return store.NewMemoryStore(), nil
	case "starskey":
		db, err := store.NewStarskeyStore(s.cfg.Server.DataDir)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		return db, nil
	case "filesystem":
		return store.NewFilesystemStore(s.cfg.Server.DataDir)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", s.cfg.Server.Store)
	}
}

// Run serves until ctx is cancelled, then shuts both listeners down
// gracefully and drains the event bus.
func (s *Server) Run(ctx context.Context) error {
	if err := s.eventBus.Start(); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", s.registry.Addr).
			Str("store", s.cfg.Server.Store).
			Bool("auth", s.cfg.Auth.Enabled).
			Msg("Registry server listening")
		if err := s.registry.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.metrics != nil {
		g.Go(func() error {
			log.Info().Str("addr", s.metrics.Addr).Msg("Metrics server listening")
			if err := s.metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return nil
	})

	err := g.Wait()

	if busErr := s.eventBus.Stop(); busErr != nil {
		log.Error().Err(busErr).Msg("Failed to stop event bus")
	}
	for _, closeFn := range s.closers {
		if closeErr := closeFn(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close store")
		}
	}
	return err
}

func (s *Server) shutdown() {
	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.registry.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Registry server shutdown failed")
	}
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
}
