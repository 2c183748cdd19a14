package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	agentctx "github.com/moguldesignsjordan/mogul-ai-agent/agent/context"
	"github.com/moguldesignsjordan/mogul-ai-agent/agent/guardrails"
	"github.com/moguldesignsjordan/mogul-ai-agent/agent/orchestrator"
	"github.com/moguldesignsjordan/mogul-ai-agent/api/handlers"
	"github.com/moguldesignsjordan/mogul-ai-agent/config"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/auth"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/cache"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/database"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/metrics"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/migration"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/pool"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/server"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/store"
	"github.com/moguldesignsjordan/mogul-ai-agent/internal/telemetry"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/circuitbreaker"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/providers"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/providers/openai"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/retry"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/speech"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/tokenizer"
	"github.com/moguldesignsjordan/mogul-ai-agent/llm/tools"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组装所有组件并管理 HTTP 服务的生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector

	store store.Store
	cache *cache.Manager
	tasks *pool.GoroutinePool

	llmBreaker    circuitbreaker.CircuitBreaker
	speechBreaker circuitbreaker.CircuitBreaker
	orchestrator  *orchestrator.Orchestrator

	health *handlers.HealthHandler
	chat   *handlers.ChatHandler
	ws     *handlers.WSHandler
	speech *handlers.SpeechHandler
	sms    *handlers.SMSHandler

	httpManager *server.Manager

	// 后台 goroutine（限流清理、滥用检测清理、连接池统计）
	bgCancel context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化依赖并启动 HTTP 服务（非阻塞）
func (s *Server) Start() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	tp, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = tp

	s.collector = metrics.NewCollector("mogul_agent", prometheus.DefaultRegisterer, s.logger)

	if err := s.initStore(bgCtx); err != nil {
		s.logger.Warn("persistence disabled", zap.Error(err))
	}
	s.initCache()
	s.tasks = pool.NewGoroutinePool(pool.DefaultConfig(), s.logger)

	if err := s.initOrchestrator(bgCtx); err != nil {
		return fmt.Errorf("failed to init orchestrator: %w", err)
	}
	s.initHandlers()

	if err := s.startHTTPServer(bgCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("mogul agent started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.String("environment", s.cfg.Environment),
		zap.String("model", s.cfg.LLM.Model),
		zap.Bool("guardrails", s.cfg.Guardrails.Enabled),
		zap.Bool("require_auth", s.cfg.Auth.RequireAuth),
		zap.Bool("telemetry", s.telemetry.Enabled()),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStore 打开 CRM 存储。Mongo 优先；否则走 GORM，连接串与迁移共用
func (s *Server) initStore(ctx context.Context) error {
	dbCfg := s.cfg.Database
	if !dbCfg.Enabled() {
		s.logger.Info("database not configured, tools run without persistence")
		return nil
	}

	if dbCfg.IsMongo() {
		ms, err := store.NewMongoStore(store.MongoConfig{
			URI:                    dbCfg.MongoURI,
			Database:               dbCfg.MongoDatabase,
			ServerSelectionTimeout: dbCfg.MongoTimeout,
		}, s.logger)
		if err != nil {
			return err
		}
		idxCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := ms.EnsureIndexes(idxCtx); err != nil {
			s.logger.Warn("failed to ensure mongo indexes", zap.Error(err))
		}
		s.store = store.Instrument(ms, s.collector)
		return nil
	}

	_, dsn, err := migration.DatabaseURL(dbCfg)
	if err != nil {
		return err
	}
	db, err := database.Open(dbCfg.Driver, dsn, s.cfg.Debug, s.logger)
	if err != nil {
		return err
	}
	pm, err := database.NewPoolManager(db, database.PoolConfig{
		MaxOpenConns:        dbCfg.MaxOpenConns,
		MaxIdleConns:        dbCfg.MaxIdleConns,
		ConnMaxLifetime:     dbCfg.ConnMaxLifetime,
		ConnMaxIdleTime:     dbCfg.ConnMaxIdleTime,
		HealthCheckInterval: dbCfg.HealthCheckInterval,
	}, s.logger)
	if err != nil {
		return err
	}

	gs := store.NewGormStore(pm, s.logger)
	if dbCfg.AutoMigrate {
		if err := gs.AutoMigrate(ctx); err != nil {
			s.logger.Error("database auto-migrate failed", zap.Error(err))
		}
	}
	s.store = store.Instrument(gs, s.collector)
	go s.reportPoolStats(ctx, gs.Name(), pm)
	return nil
}

// reportPoolStats 定期把连接池状态写入指标
func (s *Server) reportPoolStats(ctx context.Context, name string, pm *database.PoolManager) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := pm.Stats()
			s.collector.RecordDBConnections(name, st.OpenConnections, st.Idle)
		}
	}
}

// initCache Redis 仅在配置了地址时启用，连接失败不影响启动
func (s *Server) initCache() {
	rc := s.cfg.Redis
	if rc.Addr == "" {
		return
	}
	m, err := cache.NewManager(cache.Config{
		Addr:                rc.Addr,
		Password:            rc.Password,
		DB:                  rc.DB,
		TLS:                 rc.TLS,
		KeyPrefix:           rc.KeyPrefix,
		DefaultTTL:          rc.LookupTTL,
		PoolSize:            rc.PoolSize,
		MinIdleConns:        rc.MinIdleConns,
		HealthCheckInterval: rc.HealthCheckInterval,
	}, s.logger, cache.WithObserver(s.collector))
	if err != nil {
		s.logger.Warn("redis unavailable, lookup cache disabled", zap.Error(err))
		return
	}
	s.cache = m
}

// newBreaker 创建熔断器，状态变化写入指标
func (s *Server) newBreaker(name string, bc config.BreakerConfig) circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:             name,
		FailureThreshold: bc.FailureThreshold,
		RecoveryTimeout:  bc.RecoveryTimeout,
		HalfOpenMaxCalls: bc.HalfOpenMaxCalls,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			s.collector.RecordBreakerTransition(name, from.String(), to.String())
		},
	}, s.logger)
}

// initOrchestrator 组装上游模型、护栏、上下文窗口与工具
func (s *Server) initOrchestrator(ctx context.Context) error {
	lc := s.cfg.LLM

	base := openai.NewOpenAIProvider(providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  lc.APIKey,
			BaseURL: lc.BaseURL,
			Model:   lc.Model,
			Timeout: lc.Timeout,
		},
		Organization: lc.Organization,
	}, s.logger)
	if lc.APIKey == "" {
		s.logger.Warn("llm api key not configured, chat requests will fail")
	}

	rc := s.cfg.Resilience
	s.llmBreaker = s.newBreaker(base.Name(), rc.LLMBreaker)
	provider := llm.NewResilientProvider(base, s.llmBreaker, &llm.ResilientProviderConfig{
		RetryPolicy: &retry.RetryPolicy{
			MaxAttempts: rc.Retry.MaxAttempts,
			BaseDelay:   rc.Retry.BaseDelay,
			MaxDelay:    rc.Retry.MaxDelay,
			Multiplier:  rc.Retry.Multiplier,
			Jitter:      rc.Retry.Jitter,
			OnRetry: func(attempt int, err error, delay time.Duration) {
				s.collector.RecordRetry("llm_chat")
			},
		},
		CallTimeout: lc.Timeout,
	}, s.logger)

	// 上下文窗口：精确计数使用 tiktoken，失败时退回估算
	kind := tokenizer.KindEstimator
	if lc.ExactTokens {
		kind = tokenizer.KindTiktoken
	}
	tok, err := tokenizer.New(kind, lc.Model)
	if err != nil {
		s.logger.Warn("tokenizer unavailable, using estimator", zap.Error(err))
		tok = tokenizer.NewEstimatorTokenizer()
	}
	window := agentctx.NewWindowManager(tokenizer.NewCounter(tok, s.logger), s.logger)

	// 护栏
	gc := s.cfg.Guardrails
	injection, err := guardrails.NewInjectionDetector(nil)
	if err != nil {
		return fmt.Errorf("injection detector: %w", err)
	}
	abuse := guardrails.NewAbuseDetector(guardrails.AbuseConfig{
		DuplicateThreshold: gc.DuplicateThreshold,
		InjectionThreshold: gc.InjectionThreshold,
		Window:             gc.AbuseWindow,
	}, s.logger)
	go abuse.Run(ctx)
	guard := guardrails.NewGuard(injection, guardrails.NewContentSafety(), abuse, gc.MaxInputLength, s.logger)

	// 工具
	deps := tools.Dependencies{
		Store:    s.store,
		CacheTTL: s.cfg.Redis.LookupTTL,
		Booking:  tools.BookingConfig{URL: s.cfg.Booking.URL, Label: s.cfg.Booking.Label},
		Timezone: s.cfg.Booking.Timezone,
	}
	if s.cache != nil {
		deps.Cache = s.cache
	}
	registry, err := tools.NewBuiltinRegistry(deps, s.logger)
	if err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}
	schemas := registry.List()
	validator, err := guardrails.NewToolValidator(guardrails.DefaultToolConstraints(), schemas)
	if err != nil {
		return fmt.Errorf("tool validator: %w", err)
	}
	executor := tools.NewDefaultExecutor(registry, s.logger,
		tools.WithValidator(validator),
		tools.WithObserver(s.collector.RecordToolExecution),
	)

	s.orchestrator = orchestrator.New(provider, orchestrator.Config{
		Model:             lc.Model,
		MaxContextTokens:  lc.MaxContextTokens,
		EnableGuardrails:  gc.Enabled,
		Temperature:       float32(lc.Temperature),
		MaxResponseTokens: lc.MaxResponseTokens,
	}, s.logger,
		orchestrator.WithGuard(guard),
		orchestrator.WithTools(schemas, executor),
		orchestrator.WithWindow(window),
		orchestrator.WithRecorder(s.collector),
		orchestrator.WithTracer(s.telemetry.Tracer("mogul-agent/orchestrator")),
	)
	return nil
}

// initSpeech ElevenLabs 为主 TTS（受熔断器保护），Google 兼做兜底 TTS 与 STT
func (s *Server) initSpeech() (handlers.Synthesizer, speech.STTProvider) {
	sc := s.cfg.Speech

	var google *speech.GoogleProvider
	if sc.GoogleEnabled {
		google = speech.NewGoogleProvider(speech.GoogleConfig{
			CredentialsFile: sc.GoogleCredentialsFile,
			LanguageCode:    sc.LanguageCode,
			Timeout:         sc.Timeout,
		}, s.logger)
	}

	var primary speech.TTSProvider
	if sc.ElevenLabsAPIKey != "" {
		primary = speech.NewElevenLabsProvider(speech.ElevenLabsConfig{
			APIKey:  sc.ElevenLabsAPIKey,
			BaseURL: sc.ElevenLabsBaseURL,
			Model:   sc.ElevenLabsModel,
			VoiceID: sc.ElevenLabsVoiceID,
			Timeout: sc.Timeout,
		}, s.logger)
		s.speechBreaker = s.newBreaker(primary.Name(), s.cfg.Resilience.SpeechBreaker)
	}

	var fallback speech.TTSProvider
	var stt speech.STTProvider
	if google != nil {
		fallback = google
		stt = google
	}
	if primary == nil && fallback == nil {
		s.logger.Warn("no tts provider configured, /v1/tts disabled")
		return nil, stt
	}

	observe := func(provider string, err error, d time.Duration) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.collector.RecordSpeech("tts", provider, status, d)
	}
	return speech.NewFallbackSynthesizer(primary, s.speechBreaker, fallback, observe, s.logger), stt
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.health = handlers.NewHealthHandler(handlers.HealthInfo{
		Environment:        s.cfg.Environment,
		Model:              s.orchestrator.Model(),
		ProviderConfigured: s.cfg.LLM.APIKey != "",
		GuardrailsEnabled:  s.orchestrator.GuardrailsEnabled(),
		Version:            Version,
	}, s.logger)
	s.health.RegisterBreaker("openai", s.llmBreaker)

	var logs handlers.ChatLogger
	if s.store != nil {
		logs = store.NewAsyncChatLogs(s.store, s.tasks, s.logger)
		s.health.RegisterCheck(handlers.NewPingCheck("database", s.store.Ping))
	}
	if s.cache != nil {
		s.health.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	s.chat = handlers.NewChatHandler(s.orchestrator, logs, s.cfg.Debug, s.logger)
	s.ws = handlers.NewWSHandler(s.chat, s.cfg.Server.CORSOrigins, s.logger)
	s.sms = handlers.NewSMSHandler(s.orchestrator, s.logger)

	tts, stt := s.initSpeech()
	s.health.RegisterBreaker("elevenlabs", s.speechBreaker)
	s.speech = handlers.NewSpeechHandler(tts, stt, s.cfg.Speech.LanguageCode, s.collector, s.cfg.Debug, s.logger)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.health.HandleHealthz)
	mux.HandleFunc("/version", s.health.HandleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc("/config", handlers.ConfigHandler(s.cfg.Booking.URL, s.cfg.Booking.BrandColor))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/chat", s.chat.HandleChat)
	mux.HandleFunc("/v1/chat/ws", s.ws.HandleWS)
	mux.HandleFunc("/v1/tts", s.speech.HandleTTS)
	mux.HandleFunc("/v1/stt", s.speech.HandleSTT)
	mux.HandleFunc("/twilio/sms", s.sms.HandleSMS)

	mux.HandleFunc("/favicon.ico", handlers.FaviconHandler)
	if ui := handlers.UIHandler(s.cfg.Server.UIDir); ui != nil {
		mux.Handle("/ui/", ui)
	} else {
		s.logger.Info("ui directory not found, static files disabled", zap.String("dir", s.cfg.Server.UIDir))
	}
	mux.HandleFunc("/", handlers.RootHandler)
	return mux
}

// handler 路由外包一层中间件链，顺序即执行顺序
func (s *Server) handler(ctx context.Context) http.Handler {
	sessions := auth.NewSessionIssuer(s.cfg.Auth.SessionSecret, s.cfg.Auth.SessionTTL, s.cfg.Auth.Issuer)
	return Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSOrigins),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		Auth(auth.NewAuthenticator(sessions), s.cfg.Auth.RequireAuth, s.logger),
		RateLimiter(ctx, s.cfg.Server.RateLimit, s.logger),
	)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	sc := s.cfg.Server
	s.httpManager = server.NewManager(s.handler(ctx), server.Config{
		Addr:            fmt.Sprintf(":%d", sc.HTTPPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)
	return s.httpManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		if err := s.httpManager.WaitForShutdown(); err != nil {
			s.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}
	s.Shutdown()
}

// Shutdown 依次关闭 HTTP、后台任务、存储、缓存与遥测
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.httpManager != nil && s.httpManager.IsRunning() {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.bgCancel != nil {
		s.bgCancel()
	}

	// 先排空聊天记录写入，再关闭存储
	if s.tasks != nil {
		if err := s.tasks.Close(ctx); err != nil {
			s.logger.Warn("background tasks not drained", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store close error", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("cache close error", zap.Error(err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("graceful shutdown completed")
}
