package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"autoposter/internal/api"
	"autoposter/internal/autopost/coordinator"
	"autoposter/internal/autopost/repository"
	"autoposter/internal/autopost/schedule"
	"autoposter/internal/autopost/service"
	"autoposter/internal/config"
	"autoposter/internal/linkedin"
	"autoposter/internal/logger"
	"autoposter/internal/mongo"
	"autoposter/internal/notify"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	cfg *config.Config

	MongoDB     *mongo.Client
	Redis       *redis.Client // 未配置 REDIS_ADDR 时为 nil
	LinkedIn    *linkedin.Client
	Coordinator *coordinator.Coordinator
	API         *api.Server

	posts repository.PostRepository
	users repository.UserRepository
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会清理已初始化的服务并返回错误
func New(cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	db := mongoClient.Database()
	app.posts = repository.NewMongoPostRepository(db)
	app.users = repository.NewMongoUserRepository(db, cfg.UsersCollection)

	var opts []coordinator.Option
	if cfg.Redis.Enabled() {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := app.Redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			_ = app.Close(context.Background())
			return nil, fmt.Errorf("init Redis failed: %w", err)
		}
		opts = append(opts, coordinator.WithLease(coordinator.NewRedisLease(app.Redis, coordinator.DefaultLeaseKey, cfg.Redis.LeaseTTL)))
		logger.L().Infof("Redis run lease enabled (%s, ttl=%s)", cfg.Redis.Addr, cfg.Redis.LeaseTTL)
	}

	if cfg.Telegram.Enabled() {
		notifier, err := notify.NewFromConfig(cfg.Telegram)
		if err != nil {
			_ = app.Close(context.Background())
			return nil, fmt.Errorf("init Telegram notifier failed: %w", err)
		}
		opts = append(opts, coordinator.WithNotifier(notifier))
		logger.L().Info("Telegram run notifications enabled")
	}

	app.LinkedIn = linkedin.NewClient(cfg.LinkedIn)

	// 接口变量保持 nil，未开启在线校验时不会调用 LinkedIn
	var verifier service.TokenVerifier
	if cfg.Schedule.LiveTokenCheck {
		verifier = app.LinkedIn
	}

	window := schedule.NewWindow(schedule.Zone{Offset: cfg.Schedule.ReferenceOffset}, cfg.Schedule.DueBuffer)
	scanner := service.NewScanner(app.posts, window, time.Now)
	validator := service.NewCredentialValidator(cfg.Schedule.TokenExpiryMargin, verifier, time.Now)
	lifecycle := service.NewLifecycle(app.posts, cfg.Schedule.MaxRetries, time.Now)
	processor := service.NewProcessor(app.users, validator, app.LinkedIn, lifecycle)

	app.Coordinator = coordinator.New(coordinator.Config{
		Collections: cfg.PostCollections,
		MinInterval: cfg.Trigger.MinInterval,
	}, scanner, processor, opts...)

	app.API = api.New(cfg.Trigger, app.Coordinator, app.MongoDB)

	return app, nil
}

// EnsureIndexes 创建帖子与用户集合索引，失败只记录警告
func (a *App) EnsureIndexes(ctx context.Context) {
	if err := a.posts.EnsureIndexes(ctx, a.cfg.PostCollections); err != nil {
		logger.L().Warnf("Failed to ensure post indexes: %v", err)
	}
	if err := a.users.EnsureIndexes(ctx); err != nil {
		logger.L().Warnf("Failed to ensure user indexes: %v", err)
	}
}

// RunOnce 直接执行一次运行（同样受运行保护约束）
func (a *App) RunOnce(ctx context.Context) (*coordinator.Summary, error) {
	return a.Coordinator.Run(ctx, coordinator.TriggerCLI)
}

// Serve 启动 HTTP 触发端点与进程内定时器，阻塞直到 ctx 取消
func (a *App) Serve(ctx context.Context) error {
	a.EnsureIndexes(ctx)

	var ticker *cron.Cron
	if a.cfg.Trigger.CronSpec != "" {
		ticker = cron.New()
		_, err := ticker.AddFunc(a.cfg.Trigger.CronSpec, func() {
			if _, err := a.Coordinator.Run(context.Background(), coordinator.TriggerTicker); err != nil {
				logger.L().Errorf("Scheduled auto-post run failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid RUN_SCHEDULE %q: %w", a.cfg.Trigger.CronSpec, err)
		}
		ticker.Start()
		logger.L().Infof("In-process ticker started (%s)", a.cfg.Trigger.CronSpec)
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Infof("HTTP server listening on %s", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.L().Info("Shutting down...")
	case serveErr = <-errCh:
		if serveErr != nil {
			serveErr = fmt.Errorf("HTTP server failed: %w", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Warnf("HTTP server shutdown: %v", err)
	}
	if ticker != nil {
		// 等待正在执行的运行结束
		select {
		case <-ticker.Stop().Done():
		case <-shutdownCtx.Done():
			logger.L().Warn("Timed out waiting for in-flight run to finish")
		}
	}
	return serveErr
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Redis failed: %w", err))
		}
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close MongoDB failed: %w", err))
		}
	}
	return errors.Join(errs...)
}
