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

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnshop/internal/billing"
	"vpnshop/internal/bootstrap"
	"vpnshop/internal/bot"
	"vpnshop/internal/config"
	cronpkg "vpnshop/internal/cron"
	"vpnshop/internal/handler/api"
	"vpnshop/internal/metrics"
	"vpnshop/internal/middleware"
	"vpnshop/internal/models"
	"vpnshop/internal/panel"
	"vpnshop/internal/payment"
	"vpnshop/internal/pkg/telegram"
	"vpnshop/internal/repository"
	"vpnshop/internal/router"
)

// ledger is what both ledger backends provide.
type ledger interface {
	billing.Ledger
	FindAll(ctx context.Context) ([]models.PaymentRecord, error)
	FindByUserID(ctx context.Context, userID int64) ([]models.PaymentRecord, error)
}

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--migrate-db") {
		if err := runMigrate(cfg, logger); err != nil {
			logger.Fatal("Database migration failed", zap.Error(err))
		}
		logger.Info("Database migration completed")
		return
	}

	if cfg.Bot.Token == "" {
		logger.Fatal("TELEGRAM_TOKEN is required")
	}
	metrics.MustRegister()

	// --- Storage ---
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		logger.Fatal("Failed to create data directory", zap.String("dir", cfg.Storage.DataDir), zap.Error(err))
	}
	payments, err := openLedger(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open payment ledger", zap.Error(err))
	}
	settings := repository.NewSettingRepository(cfg.Storage.DataDir)
	users := repository.NewUserRepository(cfg.Storage.DataDir)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	catalog, err := billing.NewCatalog(startCtx, repository.NewPlanRepository(cfg.Storage.DataDir), payments)
	if err != nil {
		logger.Fatal("Failed to load plans", zap.Error(err))
	}

	// --- Gateway & provisioner ---
	gateway := payment.NewCryptomusGateway(cfg.Payment.BaseURL, layeredCredentials(settings, cfg.Payment))
	provisioner, err := panel.PanelFactory(panel.Settings{
		Mode:    cfg.Provisioner.Mode,
		Python:  cfg.Provisioner.Python,
		CLIPath: cfg.Provisioner.CLIPath,
		APIURL:  cfg.Provisioner.APIURL,
		APIKey:  cfg.Provisioner.APIKey,
		SubURL:  cfg.Provisioner.SubURL,
	})
	if err != nil {
		logger.Fatal("Failed to create provisioner", zap.Error(err))
	}
	logger.Info("Payment backends ready",
		zap.String("gateway", gateway.Name()),
		zap.String("provisioner", provisioner.PanelType()),
	)

	// --- Reconciler ---
	reconciler := billing.NewReconciler(gateway, payments, catalog, provisioner, settings, billing.Config{
		PollInterval:    cfg.Payment.PollInterval,
		MaxPollDuration: cfg.Payment.PollMaxDuration,
		ErrorRetries:    cfg.Payment.PollErrorRetries,
		IPVersion:       cfg.Provisioner.IPVersion,
	}, logger)

	// --- Bot ---
	teleBot, err := bot.New(cfg, bot.Deps{
		Payments: reconciler,
		Plans:    catalog,
		Ledger:   payments,
		Panel:    provisioner,
		Settings: settings,
		Users:    users,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}
	reconciler.SetNotifier(teleBot)

	if err := reconciler.Start(startCtx); err != nil {
		logger.Fatal("Failed to resume pending payments", zap.Error(err))
	}

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Webhook update log (Redis with in-memory fallback) ---
	updates, err := middleware.OpenUpdateLog(startCtx, cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB, 10*time.Minute)
	if err != nil {
		logger.Warn("Redis unavailable for webhook dedup, using in-memory fallback", zap.Error(err))
	}

	// --- Routes ---
	router.Setup(e, router.Handlers{
		Payments: api.NewPaymentHandler(payments, reconciler, logger),
		Plans:    api.NewPlanHandler(catalog),
		Webhook:  teleBot.WebhookHandler(),
	}, logger, cfg.API.Key, updates)

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg.Bot.AdminIDs, reconciler, payments, telegram.NewBotAPI(cfg.Bot.Token), logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting vpnshop server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", zap.Error(err))
		}
	}()

	go teleBot.Start()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop taking updates first so no new payments start.
	teleBot.Stop()

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Pending payments stay pending and resume on the next start.
	reconciler.Close()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openLedger(cfg *config.Config, logger *zap.Logger) (ledger, error) {
	switch cfg.Storage.LedgerBackend {
	case "", "json":
		logger.Info("Using JSON payment ledger", zap.String("dir", cfg.Storage.DataDir))
		return repository.NewPaymentRepository(cfg.Storage.DataDir), nil
	case "mysql":
		db, err := config.NewDatabase(&cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if err := bootstrap.MigrateLedger(db); err != nil {
			return nil, err
		}
		logger.Info("Using MySQL payment ledger", zap.String("db", cfg.Database.Name))
		return repository.NewGormPaymentRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported LEDGER_BACKEND %q", cfg.Storage.LedgerBackend)
	}
}

// layeredCredentials prefers credentials saved from the admin menu and falls
// back to the environment per field.
func layeredCredentials(settings *repository.SettingRepository, env config.PaymentConfig) payment.CredentialsFunc {
	return func(ctx context.Context) (payment.Credentials, error) {
		stored, err := settings.PaymentCredentials(ctx)
		if err != nil {
			return payment.Credentials{}, err
		}
		creds := payment.Credentials{MerchantID: env.MerchantID, APIKey: env.APIKey}
		if stored.MerchantID != "" {
			creds.MerchantID = stored.MerchantID
		}
		if stored.APIKey != "" {
			creds.APIKey = stored.APIKey
		}
		return creds, nil
	}
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runMigrate(cfg *config.Config, logger *zap.Logger) error {
	db, err := config.NewDatabase(&cfg.Database, logger)
	if err != nil {
		return err
	}
	return bootstrap.MigrateLedger(db)
}
