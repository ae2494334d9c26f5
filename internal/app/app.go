// Package app wires the hrload components together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"google.golang.org/grpc"

	grpcapi "github.com/hrload/hrload/internal/api/grpc"
	httpapi "github.com/hrload/hrload/internal/api/http"
	"github.com/hrload/hrload/internal/auth"
	"github.com/hrload/hrload/internal/backup"
	"github.com/hrload/hrload/internal/config"
	"github.com/hrload/hrload/internal/loader"
	"github.com/hrload/hrload/internal/schema"
	"github.com/hrload/hrload/internal/server"
	"github.com/hrload/hrload/internal/storage"
	"github.com/hrload/hrload/internal/store"
)

// App owns the store handle and the servers built on it.
type App struct {
	cfg *config.Config

	store    *store.Store
	objects  storage.ObjectStorage
	backups  *backup.Service
	loader   *loader.Loader
	authn    *auth.Authenticator
	shutdown *server.ShutdownManager

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener

	errCh chan error

	mu      sync.Mutex
	running bool
}

// New validates the configuration and prepares the data directories.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg, errCh: make(chan error, 2)}, nil
}

// OpenStore opens the SQLite store described by cfg.
func OpenStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Store.Path, schema.DefaultRegistry(), store.Options{
		BusyTimeout:  cfg.Store.BusyTimeout,
		MaxOpenConns: cfg.Store.MaxOpenConns,
		ForeignKeys:  cfg.Store.ForeignKeys,
	})
}

// OpenStorage creates the snapshot object storage described by cfg.
func OpenStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case config.StorageLocal:
		return storage.NewLocalStorage(cfg.Storage.Path)
	case config.StorageS3:
		s3Cfg := storage.DefaultS3Config()
		if cfg.Storage.S3.Region != "" {
			s3Cfg.Region = cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.Storage.S3.UsePathStyle
		return storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// NewBackupService builds the backup service on an opened store and storage.
func NewBackupService(cfg *config.Config, st *store.Store, objects storage.ObjectStorage) *backup.Service {
	return backup.NewService(st.Registry(), st, objects, backup.Config{
		Prefix:    cfg.Storage.Prefix,
		Extension: cfg.Storage.Extension,
	})
}

// Start opens the store and storage and starts the configured listeners.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	if err := a.initResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize resources: %w", err)
	}
	if err := a.startHTTP(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	a.running = true
	log.Printf("app: hrload started")
	return nil
}

func (a *App) initResources(ctx context.Context) error {
	var err error

	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		ShutdownTimeout: a.cfg.ShutdownTimeout,
	})

	a.store, err = OpenStore(a.cfg)
	if err != nil {
		return err
	}
	a.shutdown.RegisterCloser("store", a.store)
	log.Printf("app: store opened: %s", a.store.Path())

	a.objects, err = OpenStorage(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("app: storage initialized: type=%s", a.cfg.Storage.Type)
	if a.cfg.Storage.Type == config.StorageS3 {
		log.Printf("app: s3 bucket=%s region=%s endpoint=%s",
			a.cfg.Storage.S3.Bucket, a.cfg.Storage.S3.Region, a.cfg.Storage.S3.Endpoint)
	}

	a.authn, err = auth.New(auth.Config{
		Username: a.cfg.Auth.Username,
		Password: a.cfg.Auth.Password,
		Secret:   a.cfg.Auth.Secret,
		TokenTTL: a.cfg.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}

	a.backups = NewBackupService(a.cfg, a.store, a.objects)
	a.loader = loader.New(a.store.Registry(), a.store, a.store)
	return nil
}

func (a *App) startHTTP() error {
	handler := httpapi.NewHandler(httpapi.Config{
		Loader:      a.loader,
		Backups:     a.backups,
		Metrics:     a.store,
		Auth:        a.authn,
		Health:      a.store,
		MetricsYear: a.cfg.Metrics.Year,
	})

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler.Routes(server.ShutdownMiddleware(a.shutdown)),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.httpListener = lis
	a.forward(a.shutdown.ServeHTTP("http", a.httpServer, lis))
	return nil
}

func (a *App) startGRPC() error {
	a.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
		server.UnaryShutdownInterceptor(a.shutdown),
		grpcapi.AuthInterceptor(a.authn),
	))
	grpcapi.RegisterLoaderServer(a.grpcServer, grpcapi.NewServer(a.loader, a.backups))

	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	a.grpcListener = lis
	a.forward(a.shutdown.ServeGRPC("grpc", a.grpcServer, lis))
	return nil
}

// forward relays serve errors onto the app's error channel.
func (a *App) forward(errCh <-chan error) {
	go func() {
		for err := range errCh {
			a.errCh <- err
		}
	}()
}

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Errors reports listener failures after Start.
func (a *App) Errors() <-chan error {
	return a.errCh
}

// Wait blocks until a termination signal arrives or ctx is done, then shuts
// down.
func (a *App) Wait(ctx context.Context) error {
	return a.shutdown.WaitForSignal(ctx)
}

// Stop drains requests, stops the listeners and closes the store.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false

	log.Printf("app: initiating graceful shutdown")
	err := a.shutdown.Shutdown(ctx, "stop requested")
	log.Printf("app: hrload stopped")
	return err
}

// cleanup releases what a failed Start already acquired.
func (a *App) cleanup() {
	if a.httpServer != nil {
		a.httpServer.Close()
	}
	if a.grpcServer != nil {
		a.grpcServer.Stop()
	}
	if a.store != nil {
		a.store.Close()
	}
}
