package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "github.com/andyyen817/ATMWater-BACKEND--sub000/libs/db"
	libredis "github.com/andyyen817/ATMWater-BACKEND--sub000/libs/redis"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/config"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/devlink"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/gateway"
	httpserver "github.com/andyyen817/ATMWater-BACKEND--sub000/internal/http"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/http/handlers"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/http/middleware"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/ids"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/ingest"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/metrics"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/notify"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/platform"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/pricing"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/profitshare"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/qr"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/repository"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/settlement"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/status"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/sweeper"
)

// App wires all dependencies of the vending core.
type App struct {
	httpServer      *httpserver.Server
	db              *sql.DB
	redis           *goredis.Client
	manager         *devlink.Manager
	sweep           *sweeper.Worker
	settler         *settlement.Service
	orders          *repository.OrderRepository
	dispenseTimeout time.Duration
	logger          *zap.Logger
}

// New builds the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN, libdb.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	set := metrics.New(registry)

	accountRepo := repository.NewAccountRepository(sqlDB)
	deviceRepo := repository.NewDeviceRepository(sqlDB)
	orderRepo := repository.NewOrderRepository(sqlDB)
	refundRepo := repository.NewRefundRepository(sqlDB)
	dispenseStore := repository.NewDispenseStore(sqlDB)
	settlementStore := repository.NewSettlementStore(sqlDB)
	shareStore := repository.NewShareStore(sqlDB)

	statusStore := status.NewStore(redisClient, cfg.Device.InstanceID, 2*cfg.HeartbeatTimeout())
	notifier := notify.NewNotifier(redisClient, logger)
	priceResolver := pricing.NewResolver(sqlDB)

	orderNos, err := ids.NewGenerator(cfg.Device.SnowflakeNode)
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, err
	}

	shareEngine := profitshare.NewEngine(shareStore, deviceRepo, cfg.Dispense.HQAccountID, logger)
	settler := settlement.NewService(settlementStore, shareEngine, notifier, set, logger)

	manager := devlink.NewManager(cfg.HeartbeatTimeout(), statusStore, logger)
	session := devlink.NewSession(deviceRepo, manager, logger)
	wsServer := devlink.NewServer(manager, session, cfg.WriteTimeout(), logger)

	gw := gateway.NewService(
		manager, statusStore, dispenseStore, deviceRepo, orderRepo,
		priceResolver, settler, notifier, orderNos,
		cfg.DispenseTimeout(), set, logger,
	)

	ing := ingest.NewService(
		cfg.Vendor.AppKey, settler, orderRepo, deviceRepo,
		shareEngine, set, logger,
	)

	vendorClient := platform.NewClient(cfg.Vendor.BaseURL, cfg.Vendor.AppKey, logger)
	sweep := sweeper.NewWorker(refundRepo, orderRepo, shareEngine, vendorClient, sweeper.Config{
		Interval:   cfg.Sweeper.Interval,
		MaxRetries: cfg.Sweeper.MaxRetries,
		StaleAfter: cfg.Sweeper.StaleAfter,
	}, set, logger)

	codec := qr.NewCodec(cfg.Auth.QRSecret, cfg.Auth.QRMaxAge)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Dispense: handlers.NewDispenseHandler(gw, codec, logger),
		Status:   handlers.NewStatusHandlers(manager, statusStore, orderRepo, logger),
		Notify:   handlers.NewNotifyHandler(ing, logger),
		Accounts: handlers.NewAccountHandlers(accountRepo, logger),
		DeviceWS: wsServer.HandleWS,
		Registry: registry,
	}, middleware.AuthMiddleware(cfg.Auth.JWTSecret))

	return &App{
		httpServer:      httpserver.NewServer(cfg.HTTPAddress(), router, logger),
		db:              sqlDB,
		redis:           redisClient,
		manager:         manager,
		sweep:           sweep,
		settler:         settler,
		orders:          orderRepo,
		dispenseTimeout: cfg.DispenseTimeout(),
		logger:          logger,
	}, nil
}

// Run starts the watchdog, the refund sweeper and the HTTP server, and
// blocks until the context ends or the server fails. Safety timers for
// orders that were live across the restart are re-armed first.
func (a *App) Run(ctx context.Context) error {
	if err := a.settler.RearmTimeouts(ctx, a.orders, a.dispenseTimeout); err != nil {
		a.logger.Warn("re-arming safety timers failed", zap.Error(err))
	}
	go a.manager.RunWatchdog(ctx)
	go a.sweep.RunForever(ctx)
	return a.httpServer.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
