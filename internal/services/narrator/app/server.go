// Package server hosts the narrator process: it opens storage, applies seed
// data, wires per-room coordinators, serves turns over gRPC and reports
// liveness over gRPC health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/storyroom/internal/platform/timeouts"
	"github.com/louisbranch/storyroom/internal/services/narrator/api/grpc/turns"
	"github.com/louisbranch/storyroom/internal/services/narrator/llm"
	"github.com/louisbranch/storyroom/internal/services/narrator/seed"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage/sqlite"
)

// ServiceName is the health service name reported alongside the overall
// status.
const ServiceName = "storyroom.narrator"

// Config holds server configuration.
type Config struct {
	Addr     string
	DBPath   string
	SeedPath string
	LLM      llm.OpenAIConfig
	// Client overrides the OpenAI client built from LLM.
	Client             llm.Client
	SystemPrompt       string
	StoreCheckInterval time.Duration
	Logger             *slog.Logger
}

// Server hosts the narrator service.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *sqlite.Store
	runtime    *Runtime
	interval   time.Duration
	closeOnce  sync.Once
}

// New creates a configured narrator server.
func New(ctx context.Context, cfg Config) (*Server, error) {
	client := cfg.Client
	if client == nil {
		openaiClient, err := llm.NewOpenAIClient(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("build llm client: %w", err)
		}
		client = openaiClient
	}

	dbPath := cfg.DBPath
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "narrator.db")
	}
	store, err := openNarratorStore(dbPath)
	if err != nil {
		return nil, err
	}

	var seeded []string
	if path := strings.TrimSpace(cfg.SeedPath); path != "" {
		f, err := seed.Load(path)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if err := seed.Apply(ctx, store, f); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply seed: %w", err)
		}
		for _, room := range f.Rooms {
			seeded = append(seeded, room.ID)
		}
	}

	runtime, err := NewRuntime(RuntimeConfig{
		Store:        store,
		LLM:          client,
		SystemPrompt: cfg.SystemPrompt,
		Logger:       cfg.Logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	for _, roomID := range seeded {
		if _, err := runtime.Room(ctx, roomID); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("warm room %s: %w", roomID, err)
		}
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	turns.Register(grpcServer, turns.NewService(runtime))
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(turns.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	interval := cfg.StoreCheckInterval
	if interval <= 0 {
		interval = timeouts.StoreCheck
	}
	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		runtime:    runtime,
		interval:   interval,
	}, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Runtime returns the room runtime.
func (s *Server) Runtime() *Runtime {
	return s.runtime
}

// Run creates and serves a narrator server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the server and blocks until it stops or context ends.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("narrator server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go s.watchStore(watchCtx)

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// watchStore flips the narrator health status while the store is unreachable.
func (s *Server) watchStore(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkStore(ctx)
		}
	}
}

func (s *Server) checkStore(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.store.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("narrator store ping: %v", err)
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus(turns.ServiceName, status)
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}

	s.closeOnce.Do(func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		if s.grpcServer != nil {
			s.grpcServer.Stop()
		}
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				log.Printf("close narrator listener: %v", err)
			}
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				log.Printf("close narrator store: %v", err)
			}
		}
	})
}

func openNarratorStore(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open narrator sqlite store: %w", err)
	}
	return store, nil
}
