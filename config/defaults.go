// =============================================================================
// 📦 Mogul Agent 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server:      DefaultServerConfig(),
		LLM:         DefaultLLMConfig(),
		Guardrails:  DefaultGuardrailsConfig(),
		Resilience:  DefaultResilienceConfig(),
		Speech:      DefaultSpeechConfig(),
		Database:    DefaultDatabaseConfig(),
		Redis:       DefaultRedisConfig(),
		Auth:        DefaultAuthConfig(),
		Booking:     DefaultBookingConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8000,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		CORSOrigins:     []string{"http://localhost:3000"},
		UIDir:           "ui",
		RateLimit: RateLimitConfig{
			Enabled:          true,
			ChatPerMinute:    30,
			STTPerMinute:     20,
			TTSPerMinute:     20,
			DefaultPerMinute: 100,
		},
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:          "openai",
		Model:             "gpt-4o-mini",
		Temperature:       0.7,
		MaxResponseTokens: 1024,
		MaxContextTokens:  50000,
		Timeout:           60 * time.Second,
	}
}

// DefaultGuardrailsConfig 返回默认护栏配置
func DefaultGuardrailsConfig() GuardrailsConfig {
	return GuardrailsConfig{
		Enabled:            true,
		MaxInputLength:     32000,
		DuplicateThreshold: 3,
		InjectionThreshold: 3,
		AbuseWindow:        60 * time.Second,
	}
}

// DefaultResilienceConfig 上游 LLM (5, 60s, 2)，语音 (3, 30s, 1)
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
		},
		LLMBreaker:    BreakerConfig{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, HalfOpenMaxCalls: 2},
		SpeechBreaker: BreakerConfig{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, HalfOpenMaxCalls: 1},
	}
}

// DefaultSpeechConfig 返回默认语音配置
func DefaultSpeechConfig() SpeechConfig {
	return SpeechConfig{
		ElevenLabsVoiceID: "yM93hbw8Qtvdma2wCnJG",
		ElevenLabsModel:   "eleven_multilingual_v2",
		ElevenLabsBaseURL: "https://api.elevenlabs.io",
		GoogleEnabled:     true,
		LanguageCode:      "en-US",
		Timeout:           30 * time.Second,
	}
}

// DefaultDatabaseConfig 默认使用本地 sqlite 文件
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:              "sqlite",
		Name:                "mogul.db",
		SSLMode:             "disable",
		MaxOpenConns:        10,
		MaxIdleConns:        2,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: time.Minute,
		AutoMigrate:         true,
		MongoDatabase:       "mogul",
		MongoTimeout:        5 * time.Second,
	}
}

// DefaultRedisConfig Addr 为空，缓存默认关闭
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		PoolSize:            10,
		MinIdleConns:        2,
		KeyPrefix:           "mogul:",
		LookupTTL:           5 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		SessionTTL: 7 * 24 * time.Hour,
		Issuer:     "mogul-ai-agent",
	}
}

// DefaultBookingConfig 返回默认预约配置
func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		URL:        "https://cal.com/jordan-c-cmbf7z/30min?overlayCalendar=true",
		Label:      "Book a 30-minute call",
		BrandColor: "#111827",
		Timezone:   "America/New_York",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "mogul-ai-agent",
		SampleRate:   0.1,
	}
}
