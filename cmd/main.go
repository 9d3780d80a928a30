package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/caching"
	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/config"
	"github.com/Mateo9804/gastoclaro/internal/handlers"
	"github.com/Mateo9804/gastoclaro/internal/jobs/background"
	"github.com/Mateo9804/gastoclaro/internal/logger"
	"github.com/Mateo9804/gastoclaro/internal/metrics"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
	"github.com/Mateo9804/gastoclaro/internal/services"
	"github.com/Mateo9804/gastoclaro/pkg/database"
)

// Version is set at build time with -ldflags.
var Version = "dev"

const serviceName = "gastoclaro"

var rootCmd = &cobra.Command{
	Use:          serviceName,
	Short:        "GastoClaro - multi-tenant expense receipt management",
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		pool, err := database.NewPool(cmd.Context(), cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		return database.Migrate(cmd.Context(), pool, log)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the platform super admin account if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()

		pool, err := database.NewPool(cmd.Context(), cfg.DatabaseURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		return seedSuperAdmin(cmd.Context(), repositories.NewUserRepo(pool), cfg, log)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: serviceName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func seedSuperAdmin(ctx context.Context, userRepo repositories.UserRepository, cfg *config.Config, log *zap.Logger) error {
	if cfg.SuperAdminPassword == "" {
		return errors.New("SUPER_ADMIN_PASSWORD is required to seed the super admin")
	}
	_, err := userRepo.GetByEmail(ctx, cfg.SuperAdminEmail)
	if err == nil {
		log.Info("super admin already exists", zap.String("email", cfg.SuperAdminEmail))
		return nil
	}
	if !apperrors.IsNotFound(err) {
		return err
	}

	hash, err := services.HashPassword(cfg.SuperAdminPassword, 0)
	if err != nil {
		return err
	}
	if err := userRepo.Create(ctx, &models.User{
		ID:           uuid.New(),
		Name:         "Super Admin",
		Email:        cfg.SuperAdminEmail,
		PasswordHash: hash,
		Role:         models.RoleSuperAdmin,
	}); err != nil {
		return err
	}
	log.Info("super admin created", zap.String("email", cfg.SuperAdminEmail))
	return nil
}

func runServer(ctx context.Context) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, log); err != nil {
		return err
	}

	storage, err := services.NewMinioStorage(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket, log)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to prepare bucket %s: %w", cfg.MinioBucket, err)
	}

	cacheSvc := caching.NewRedisCacheService(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(serviceName, reg)

	clock := clockwork.NewRealClock()
	loc := cfg.Location()

	// Repositories
	tenantRepo := repositories.NewTenantRepo(pool)
	userRepo := repositories.NewUserRepo(pool)
	receiptRepo := repositories.NewReceiptRepo(pool)
	commentRepo := repositories.NewCommentRepo(pool)
	auditLogsRepo := repositories.NewAuditLogsRepo(pool)

	// Services
	validator := common.NewRequestValidator()
	entitlements := services.NewEntitlementService(receiptRepo, userRepo, clock, loc)
	auditSvc := services.NewAuditLogsService(auditLogsRepo)
	authSvc := services.NewAuthService(userRepo, tenantRepo, cacheSvc, clock, log, services.AuthServiceConfig{
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.JWTTTL,
	})
	leadSvc := services.NewLeadService(cacheSvc, log)
	receiptSvc := services.NewReceiptService(receiptRepo, tenantRepo, entitlements, auditSvc, storage, cacheSvc, m, clock, log, services.ReceiptServiceConfig{
		DefaultCurrency: cfg.DefaultCurrency,
		UploadLockTTL:   cfg.UploadLockTTL,
		Location:        loc,
	})
	commentSvc := services.NewCommentService(commentRepo, receiptRepo)
	exportSvc := services.NewExportService(receiptRepo, tenantRepo, entitlements, clock, loc, log)
	subscriptionSvc := services.NewSubscriptionService(tenantRepo, userRepo, entitlements, m, clock, log)
	teamSvc := services.NewTeamService(tenantRepo, userRepo, entitlements, storage, validator, clock, log, services.TeamServiceConfig{
		EmailDomain:     cfg.PlatformEmailDomain,
		DefaultCurrency: cfg.DefaultCurrency,
	})

	scheduler, err := background.NewJobScheduler(subscriptionSvc, clock, cfg.ExpirySweepInterval, log)
	if err != nil {
		return fmt.Errorf("failed to create job scheduler: %w", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Warn("job scheduler stop failed", zap.Error(err))
		}
	}()

	e := newServer(serverDeps{
		version:       Version,
		logger:        log,
		metrics:       m,
		validator:     validator,
		authService:   authSvc,
		auth:          handlers.NewAuthHandlers(authSvc, leadSvc),
		receipts:      handlers.NewReceiptHandlers(receiptSvc, loc),
		comments:      handlers.NewCommentHandlers(commentSvc),
		exports:       handlers.NewExportHandlers(exportSvc, loc),
		subscriptions: handlers.NewSubscriptionHandlers(subscriptionSvc),
		team:          handlers.NewTeamHandlers(teamSvc),
		health: handlers.NewHealthHandlers(Version, map[string]handlers.Pinger{
			"database": pool,
			"redis":    cacheSvc,
			"storage":  storage,
		}),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", addr), zap.String("version", Version))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
