package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/carebridge/portal-access/internal/adapters/cache"
	grpcadapter "github.com/carebridge/portal-access/internal/adapters/grpc"
	httpadapter "github.com/carebridge/portal-access/internal/adapters/http"
	"github.com/carebridge/portal-access/internal/adapters/postgres"
	"github.com/carebridge/portal-access/internal/adapters/security"
	"github.com/carebridge/portal-access/internal/application"
	"github.com/carebridge/portal-access/internal/domain"
	"github.com/carebridge/portal-access/internal/ports"
	"github.com/carebridge/portal-access/internal/session"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	monitor    *session.Monitor
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping portal access service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init redis client: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repos := postgres.NewRepositories(pool)
	tokenSigner, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err != nil {
		if !cfg.AllowEphemeralJWT {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init jwt signer: %w", err)
		}
		logger.Warn("using ephemeral JWT keys for local/dev runtime")
		tokenSigner, err = security.NewEphemeralJWTSigner(cfg.JWTKeyID)
		if err != nil {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
		}
	}

	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	registry := session.NewRegistry(nil)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			TokenTTL:             cfg.TokenTTL,
			SessionTTL:           cfg.SessionTTL,
			SessionAbsoluteTTL:   cfg.SessionAbsoluteTTL,
			FailedLoginThreshold: cfg.FailedThreshold,
			LockoutDuration:      cfg.LockoutDuration,
		},
		Users:       repos.Users,
		Sessions:    repos.Sessions,
		Lockouts:    cacheadapter.NewRedisLockoutStore(redisClient),
		Revocations: cacheadapter.NewRedisSessionRevocationStore(redisClient),
		Hasher:      hasher,
		TokenSigner: tokenSigner,
		Registry:    registry,
	})

	if err := ensureBootstrapAdmin(ctx, logger, cfg, repos.Users, hasher); err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("seed bootstrap admin: %w", err)
	}

	monitor := session.NewMonitor(logger, registry, serviceExtender{svc}, session.MonitorConfig{
		Interval:         cfg.MonitorInterval,
		WarningThreshold: cfg.WarningThreshold,
		ActivityWindow:   cfg.ActivityWindow,
	})

	handler := httpadapter.NewHandler(svc)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewAccessInternalServer(svc, httpadapter.RequirementFor))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		monitor:    monitor,
		cleanupFn: func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

// RunAPI serves HTTP and gRPC plus the session timeout monitor until a
// shutdown signal or server failure.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("session monitor started", "interval", r.cfg.MonitorInterval.String())
		_ = r.monitor.Run(monitorCtx)
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	cancelMonitor()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// ensureBootstrapAdmin seeds the first administrator account when
// configured and absent, so a fresh deployment is reachable.
func ensureBootstrapAdmin(ctx context.Context, logger *slog.Logger, cfg Config, users ports.UserRepository, hasher ports.PasswordHasher) error {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}
	if _, err := users.GetByEmail(ctx, cfg.BootstrapAdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	hash, err := hasher.Hash(cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}
	_, err = users.Create(ctx, ports.CreateUserParams{
		Email:        cfg.BootstrapAdminEmail,
		PasswordHash: hash,
		FirstName:    "Portal",
		LastName:     "Administrator",
		Role:         domain.RoleAdmin,
		CreatedAtUTC: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return err
	}
	logger.Info("bootstrap admin ensured", "email", cfg.BootstrapAdminEmail)
	return nil
}

// serviceExtender adapts application.Service's ExtendSession method to
// the session.Extender interface expected by the monitor.
type serviceExtender struct {
	svc *application.Service
}

func (e serviceExtender) Extend(ctx context.Context, sessionID uuid.UUID) (time.Time, error) {
	return e.svc.ExtendSession(ctx, sessionID)
}
