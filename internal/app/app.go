package app

import (
	"context"
	"fmt"
	"time"

	"marketplace/config"
	"marketplace/internal/cache"
	"marketplace/internal/database"
	"marketplace/internal/repository"
	"marketplace/internal/service"
	"marketplace/internal/ws"
	"marketplace/pkg/payment"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the long-lived dependencies shared by the server and the reconciler.
type App struct {
	Config    *config.Config
	Log       *zap.Logger
	DB        *gorm.DB
	Cache     *cache.Cache // nil without REDIS_ADDR
	Providers *payment.Registry
	Hub       *ws.Hub

	Users         *repository.UserRepository
	Notifications *repository.NotificationRepository
	Audit         *repository.AuditLogRepository
	Admin         *repository.AdminRepository

	Transactions *service.TransactionService
	Notifier     *service.NotificationService
	Settings     *service.ProviderSettings
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{Config: cfg, Log: log, DB: db, Hub: ws.NewHub()}

	var tokens payment.TokenCache = payment.NewMemoryTokenCache()
	if cfg.Redis.Addr != "" {
		a.Cache = cache.NewCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := a.Cache.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warn("redis unreachable; provider tokens and rate limits degrade", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		tokens = a.Cache
	}

	a.Providers, err = NewRegistry(cfg, tokens, log)
	if err != nil {
		return nil, err
	}

	a.Users = repository.NewUserRepository(db)
	a.Notifications = repository.NewNotificationRepository(db)
	a.Audit = repository.NewAuditLogRepository(db)
	a.Admin = repository.NewAdminRepository(db)

	a.Settings = service.NewProviderSettings(repository.NewSettingRepository(db), a.Providers, log)
	if err := a.Settings.Apply(ctx); err != nil {
		return nil, fmt.Errorf("provider settings: %w", err)
	}

	fcm := service.NewFCMService(ctx, cfg.Firebase.CredentialsFile, log)
	if fcm != nil {
		log.Info("push notifications enabled")
	} else {
		log.Info("push notifications disabled", zap.Bool("credentials_set", cfg.Firebase.CredentialsFile != ""))
	}
	var pusher service.Pusher
	if fcm != nil {
		pusher = fcm
	}
	a.Notifier = service.NewNotificationService(a.Notifications, a.Users, a.Hub, pusher, log)

	a.Transactions = service.NewTransactionService(
		repository.NewTxManager(db),
		repository.NewWalletRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewEarningRepository(db),
		a.Users,
		a.Providers,
		a.Notifier,
		log,
		service.TransactionConfig{
			ProviderTimeout: cfg.Payment.Timeout,
			PublicURL:       cfg.Server.PublicURL,
			ReturnURL:       cfg.Payment.ReturnURL,
		},
	)
	return a, nil
}

func (a *App) Close() {
	a.Hub.Shutdown()
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Log.Warn("close redis", zap.Error(err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
