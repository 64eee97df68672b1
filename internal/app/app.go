// Package app 提供调度监控服务的应用入口
//
// 启动流程: 数据库 → Redis → Kafka → 告警存储与规则 → 轮询器 → HTTP。
// Redis/Kafka/PostgreSQL 都是可选依赖，未启用时服务在进程内降级运行。
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fieldpulse/dispatch-monitor/internal/alerts"
	"github.com/fieldpulse/dispatch-monitor/internal/cache"
	"github.com/fieldpulse/dispatch-monitor/internal/client"
	"github.com/fieldpulse/dispatch-monitor/internal/config"
	"github.com/fieldpulse/dispatch-monitor/internal/handler"
	"github.com/fieldpulse/dispatch-monitor/internal/kafka"
	"github.com/fieldpulse/dispatch-monitor/internal/persist"
	"github.com/fieldpulse/dispatch-monitor/internal/poller"
	"github.com/fieldpulse/dispatch-monitor/internal/repository"
	"github.com/fieldpulse/dispatch-monitor/internal/router"
	"github.com/fieldpulse/dispatch-monitor/internal/rules"
	"github.com/fieldpulse/dispatch-monitor/pkg/logger"
)

// App 调度监控应用
type App struct {
	cfg *config.Config

	db          *gorm.DB
	redisClient redis.UniversalClient
	producer    *kafka.AlertProducer
	gateway     *persist.Gateway

	store  *alerts.Store
	poller *poller.Poller

	httpServer *http.Server
}

// New 创建应用实例
func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Run 启动应用
func (a *App) Run() error {
	if err := a.initDB(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	if err := a.initRedis(); err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}

	if err := a.initKafka(); err != nil {
		logger.Warn("failed to init kafka, running without downstream notification",
			zap.Error(err))
	}

	a.initMonitor()

	if err := a.poller.Start(); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	a.startHTTP()
	return nil
}

// Shutdown 优雅关闭
//
// 关闭顺序: 轮询器 → HTTP → Kafka → 持久化队列 → 数据库 → Redis。
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down dispatch monitor...")

	if a.poller != nil {
		a.poller.Stop()
	}

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Warn("close kafka producer failed", zap.Error(err))
		}
	}

	if a.gateway != nil {
		a.gateway.Close()
	}

	if a.db != nil {
		sqlDB, _ := a.db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}

	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}

	logger.Info("dispatch monitor stopped")
	return nil
}

// initDB 初始化数据库
func (a *App) initDB() error {
	if !a.cfg.Postgres.Enabled {
		logger.Info("postgres disabled, history persistence off")
		return nil
	}

	pg := a.cfg.Postgres
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(pg.MaxConnections)
	sqlDB.SetMaxIdleConns(pg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	a.db = db
	logger.Info("database migrated")
	return nil
}

// initRedis 初始化 Redis
func (a *App) initRedis() error {
	if !a.cfg.Redis.Enabled {
		logger.Info("redis disabled, using in-memory dedup cache")
		return nil
	}

	rc := a.cfg.Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", rc.Host, rc.Port),
		Password: rc.Password,
		DB:       rc.DB,
		PoolSize: rc.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	a.redisClient = redisClient
	logger.Info("redis connected",
		zap.String("addr", fmt.Sprintf("%s:%d", rc.Host, rc.Port)))
	return nil
}

// initKafka 初始化 Kafka 生产者
func (a *App) initKafka() error {
	if !a.cfg.Kafka.Enabled || len(a.cfg.Kafka.Brokers) == 0 {
		logger.Info("kafka disabled, downstream notification off")
		return nil
	}

	producer, err := kafka.NewAlertProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.ClientID, a.cfg.Kafka.Topic)
	if err != nil {
		return err
	}

	a.producer = producer
	logger.Info("kafka producer ready",
		zap.Strings("brokers", a.cfg.Kafka.Brokers),
		zap.String("topic", a.cfg.Kafka.Topic))
	return nil
}

// initMonitor 组装缓存、规则、告警存储与轮询器
func (a *App) initMonitor() {
	mon := a.cfg.Monitor

	var dedup cache.DedupCache
	if a.redisClient != nil {
		dedup = cache.NewRedisDedupCache(a.redisClient, mon.DedupWindow())
	} else {
		dedup = cache.NewMemoryDedupCache(mon.DedupWindow())
	}
	a.store = alerts.NewStore(dedup, mon.HistoryLimit)

	engine := rules.NewEngine()
	engine.Register(rules.NewMissingAssignmentRule(mon.GetHighValueThreshold()))
	engine.Register(rules.NewStalledStartRule(mon.StartGrace()))
	engine.Register(rules.NewOverdueCompletionRule(mon.MaxJobDuration()))
	engine.Register(rules.NewStatusRegressionRule())
	engine.Register(rules.NewTelemetryGapRule(mon.TelemetryStale()))

	var sink persist.Sink = persist.NopSink{}
	if a.db != nil {
		a.gateway = persist.NewGateway(
			repository.NewSnapshotRepository(a.db),
			repository.NewAlertRepository(a.db),
			repository.NewMetricRepository(a.db),
		)
		sink = a.gateway
	}

	var telemetry client.TelemetrySource
	if a.cfg.Upstream.TelemetryBaseURL != "" {
		telemetry = client.NewTelemetryClient(
			a.cfg.Upstream.TelemetryBaseURL,
			a.cfg.Upstream.APIToken,
			a.cfg.Upstream.FetchTimeout(),
		)
	}

	var notifier kafka.AlertNotifier
	if a.producer != nil {
		notifier = a.producer
	}

	a.poller = poller.New(poller.Options{
		Source: client.NewDispatchClient(
			a.cfg.Upstream.DispatchBaseURL,
			a.cfg.Upstream.APIToken,
			a.cfg.Upstream.FetchTimeout(),
		),
		Telemetry: telemetry,
		Cache:     cache.NewSnapshotCache(mon.CacheCapacity, mon.CacheTTL()),
		Engine:    engine,
		Store:     a.store,
		Sink:      sink,
		Notifier:  notifier,
		Interval:  mon.PollInterval(),
	})
}

// startHTTP 启动 HTTP 服务
func (a *App) startHTTP() {
	if a.cfg.Service.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	router.SetupRouter(engine, &router.Handlers{
		Alert:   handler.NewAlertHandler(a.store),
		Monitor: handler.NewMonitorHandler(a.poller, a.store),
		Health:  handler.NewHealthHandler(a.db, a.poller),
	})

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler: engine,
	}

	go func() {
		logger.Info("http server listening",
			zap.Int("port", a.cfg.Service.HTTPPort))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()
}
