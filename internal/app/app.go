package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"recall_edu_backend/internal/cache"
	"recall_edu_backend/internal/config"
	"recall_edu_backend/internal/controller"
	"recall_edu_backend/internal/repository"
	"recall_edu_backend/internal/service"
	"recall_edu_backend/internal/util"
	"recall_edu_backend/pkg/configwatcher"
	"recall_edu_backend/pkg/database"
	"recall_edu_backend/pkg/logger"
	"recall_edu_backend/pkg/monitoring"
	"recall_edu_backend/pkg/security"
	"recall_edu_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tempAudioMaxAge = time.Hour

type App struct {
	Config          *config.Config
	ConfigFile      string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	cron            *cron.Cron
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user               *repository.UserRepository
	personalAssignment *repository.PersonalAssignmentRepository
	question           *repository.QuestionRepository
	answer             *repository.AnswerRepository
}

type services struct {
	auth               *service.AuthService
	storage            *service.StorageService
	ai                 *service.AIService
	extractor          *service.HTTPFeatureExtractor
	scorer             *service.HTTPScorer
	evaluator          *service.AIEvaluator
	resolver           *service.FollowUpResolver
	submission         *service.SubmissionService
	personalAssignment *service.PersonalAssignmentService
}

type controllers struct {
	auth               *controller.AuthController
	submission         *controller.SubmissionController
	personalAssignment *controller.PersonalAssignmentController
	health             *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:               repository.NewUserRepository(db),
		personalAssignment: repository.NewPersonalAssignmentRepository(db),
		question:           repository.NewQuestionRepository(db),
		answer:             repository.NewAnswerRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	nextCache := cache.NewNextQuestionCache(rdb, cache.DefaultNextQuestionTTL)

	s.auth = service.NewAuthService(repos.user, &cfg.JWT)
	s.storage = service.NewStorageService(&cfg.Storage)
	s.ai = service.NewAIService(cfg.AI)
	s.extractor = service.NewHTTPFeatureExtractor(cfg)
	s.scorer = service.NewHTTPScorer(&cfg.Scoring)
	s.evaluator = service.NewAIEvaluator(s.ai, cfg.AI.EvaluateTimeout)
	s.resolver = service.NewFollowUpResolver(repos.question, repos.answer, service.NewAIGenerator(s.ai), cfg.AI.Timeout)

	s.submission = service.NewSubmissionService(
		db,
		service.NewRosterService(repos.user),
		repos.question,
		repos.answer,
		repos.personalAssignment,
		s.extractor,
		s.scorer,
		s.evaluator,
		s.resolver,
		s.storage,
		nextCache,
		cfg.Scoring.HighThreshold,
	)

	s.personalAssignment = service.NewPersonalAssignmentService(
		db,
		repos.personalAssignment,
		repos.question,
		repos.answer,
		s.resolver,
		nextCache,
	)

	return s
}

func (a *App) initControllers(s *services, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:               controller.NewAuthController(s.auth),
		submission:         controller.NewSubmissionController(s.submission, cfg.Storage.TempPath, cfg.Scoring.MaxUploadMB),
		personalAssignment: controller.NewPersonalAssignmentController(s.personalAssignment),
		health:             controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute, security.ByClientIP))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// 评分阈值和外部调用超时支持热更新，其余配置需重启生效
func (a *App) registerConfigCallbacks(s *services) {
	a.RegisterConfigCallback(func(cfg *config.Config) {
		s.submission.SetHighThreshold(cfg.Scoring.HighThreshold)
		s.extractor.SetTimeout(cfg.Scoring.ExtractTimeout)
		s.scorer.SetTimeout(cfg.Scoring.ScoreTimeout)
		s.evaluator.SetTimeout(cfg.AI.EvaluateTimeout)
		s.resolver.SetTimeout(cfg.AI.Timeout)
		logger.Log.Info("Scoring config applied",
			zap.Float64("highThreshold", cfg.Scoring.HighThreshold),
			zap.Duration("extractTimeout", cfg.Scoring.ExtractTimeout),
			zap.Duration("scoreTimeout", cfg.Scoring.ScoreTimeout),
			zap.Duration("evaluateTimeout", cfg.AI.EvaluateTimeout),
			zap.Duration("aiTimeout", cfg.AI.Timeout))
	})
}

func (a *App) watchConfig(ctx context.Context) {
	if a.ConfigFile == "" {
		return
	}
	go func() {
		err := configwatcher.WatchConfig(ctx, a.ConfigFile, func(cfg *config.Config) {
			for _, callback := range a.configCallbacks {
				callback(cfg)
			}
		})
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

func (a *App) startBackgroundTasks(s *services) {
	a.cron = cron.New()

	// 清理异常中断后残留的临时录音
	a.cron.AddFunc("@every 10m", func() {
		removed := sweepTempAudio(a.Config.Storage.TempPath, tempAudioMaxAge, time.Now())
		if removed > 0 {
			logger.Log.Info("Temp audio swept", zap.Int("removed", removed))
		}
	})

	a.cron.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.personalAssignment.RefreshStatusGauge(ctx); err != nil {
			logger.Log.Error("refresh assignment gauge error", zap.Error(err))
		}
	})

	a.cron.Start()
}

// sweepTempAudio 删除 dir 下修改时间早于 now-maxAge 的录音文件，返回删除数量
func sweepTempAudio(dir string, maxAge time.Duration, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if !util.HasAllowedExtension(entry.Name(), util.AllowedAudioExtensions) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed
}

func NewApp(cfg *config.Config, configFile string) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// release 模式默认不自动迁移，需要 -migrate 显式开启
	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config:     cfg,
		ConfigFile: configFile,
		DB:         db,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, cfg, db, rdb)
	app.registerConfigCallbacks(services)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = cfg.Scoring.MaxUploadMB << 20
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	a.watchConfig(watchCtx)

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	log.Println("Server exiting")
}
