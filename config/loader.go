// =============================================================================
// 📦 Mogul Agent 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 旧版环境变量 → MOGUL_ 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // booking.timezone 校验不依赖系统时区库

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "MOGUL"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 服务的完整配置，启动时读取一次
type Config struct {
	// Environment development / production
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	// Debug 打开后错误响应带 detail
	Debug bool `yaml:"debug" env:"DEBUG"`

	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	LLM        LLMConfig        `yaml:"llm" env:"LLM"`
	Guardrails GuardrailsConfig `yaml:"guardrails" env:"GUARDRAILS"`
	Resilience ResilienceConfig `yaml:"resilience" env:"RESILIENCE"`
	Speech     SpeechConfig     `yaml:"speech" env:"SPEECH"`
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Redis      RedisConfig      `yaml:"redis" env:"REDIS"`
	Auth       AuthConfig       `yaml:"auth" env:"AUTH"`
	Booking    BookingConfig    `yaml:"booking" env:"BOOKING"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 允许跨域的来源，逗号分隔
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
	// 静态页面目录，不存在时不挂载 /ui/
	UIDir     string          `yaml:"ui_dir" env:"UI_DIR"`
	RateLimit RateLimitConfig `yaml:"rate_limit" env:"RATE_LIMIT"`
}

// RateLimitConfig 按路径的每分钟请求上限
type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled" env:"ENABLED"`
	ChatPerMinute    int  `yaml:"chat_per_minute" env:"CHAT_PER_MINUTE"`
	STTPerMinute     int  `yaml:"stt_per_minute" env:"STT_PER_MINUTE"`
	TTSPerMinute     int  `yaml:"tts_per_minute" env:"TTS_PER_MINUTE"`
	DefaultPerMinute int  `yaml:"default_per_minute" env:"DEFAULT_PER_MINUTE"`
}

// LLMConfig 上游模型配置
type LLMConfig struct {
	Provider          string        `yaml:"provider" env:"PROVIDER"`
	APIKey            string        `yaml:"api_key" env:"API_KEY"`
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	Organization      string        `yaml:"organization" env:"ORGANIZATION"`
	Model             string        `yaml:"model" env:"MODEL"`
	Temperature       float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxResponseTokens int           `yaml:"max_response_tokens" env:"MAX_RESPONSE_TOKENS"`
	MaxContextTokens  int           `yaml:"max_context_tokens" env:"MAX_CONTEXT_TOKENS"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// ExactTokens 使用 tiktoken 精确计数，否则用启发式估算
	ExactTokens bool `yaml:"exact_tokens" env:"EXACT_TOKENS"`
}

// GuardrailsConfig 护栏与滥用检测
type GuardrailsConfig struct {
	Enabled            bool          `yaml:"enabled" env:"ENABLED"`
	MaxInputLength     int           `yaml:"max_input_length" env:"MAX_INPUT_LENGTH"`
	DuplicateThreshold int           `yaml:"duplicate_threshold" env:"DUPLICATE_THRESHOLD"`
	InjectionThreshold int           `yaml:"injection_threshold" env:"INJECTION_THRESHOLD"`
	AbuseWindow        time.Duration `yaml:"abuse_window" env:"ABUSE_WINDOW"`
}

// ResilienceConfig 重试与熔断参数
type ResilienceConfig struct {
	Retry         RetryConfig   `yaml:"retry" env:"RETRY"`
	LLMBreaker    BreakerConfig `yaml:"llm_breaker" env:"LLM_BREAKER"`
	SpeechBreaker BreakerConfig `yaml:"speech_breaker" env:"SPEECH_BREAKER"`
}

// RetryConfig 指数退避重试
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier  float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter      bool          `yaml:"jitter" env:"JITTER"`
}

// BreakerConfig 熔断器
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" env:"RECOVERY_TIMEOUT"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls" env:"HALF_OPEN_MAX_CALLS"`
}

// SpeechConfig 语音合成与识别
type SpeechConfig struct {
	ElevenLabsAPIKey  string `yaml:"elevenlabs_api_key" env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string `yaml:"elevenlabs_voice_id" env:"ELEVENLABS_VOICE_ID"`
	ElevenLabsModel   string `yaml:"elevenlabs_model" env:"ELEVENLABS_MODEL"`
	ElevenLabsBaseURL string `yaml:"elevenlabs_base_url" env:"ELEVENLABS_BASE_URL"`
	// Google TTS 兜底与 STT；凭证文件为空时使用 ADC
	GoogleEnabled         bool          `yaml:"google_enabled" env:"GOOGLE_ENABLED"`
	GoogleCredentialsFile string        `yaml:"google_credentials_file" env:"GOOGLE_CREDENTIALS_FILE"`
	LanguageCode          string        `yaml:"language_code" env:"LANGUAGE_CODE"`
	Timeout               time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DatabaseConfig 存储配置。Driver 为 sqlite/postgres/mysql/mongo，为空表示不启用存储。
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	DSN      string `yaml:"dsn" env:"DSN"` // 显式连接串，优先于下面的字段
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Name     string `yaml:"name" env:"NAME"` // sqlite 时为文件路径
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns        int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns        int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
	// AutoMigrate serve 启动时执行 up 迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`

	MongoURI      string        `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase string        `yaml:"mongo_database" env:"MONGO_DATABASE"`
	MongoTimeout  time.Duration `yaml:"mongo_timeout" env:"MONGO_TIMEOUT"`
}

// Enabled 是否配置了存储
func (d DatabaseConfig) Enabled() bool { return d.Driver != "" }

// IsMongo 是否使用文档库
func (d DatabaseConfig) IsMongo() bool { return strings.EqualFold(d.Driver, "mongo") || strings.EqualFold(d.Driver, "mongodb") }

// RedisConfig 客户查询缓存。Addr 为空表示不启用。
type RedisConfig struct {
	Addr                string        `yaml:"addr" env:"ADDR"`
	Password            string        `yaml:"password" env:"PASSWORD"`
	DB                  int           `yaml:"db" env:"DB"`
	TLS                 bool          `yaml:"tls" env:"TLS"`
	PoolSize            int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns        int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix           string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	LookupTTL           time.Duration `yaml:"lookup_ttl" env:"LOOKUP_TTL"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// AuthConfig 会话与 API Key 认证
type AuthConfig struct {
	RequireAuth   bool          `yaml:"require_auth" env:"REQUIRE_AUTH"`
	SessionSecret string        `yaml:"session_secret" env:"SESSION_SECRET"`
	SessionTTL    time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
	Issuer        string        `yaml:"issuer" env:"ISSUER"`
}

// BookingConfig 预约链接与业务时区
type BookingConfig struct {
	URL        string `yaml:"url" env:"URL"`
	Label      string `yaml:"label" env:"LABEL"`
	BrandColor string `yaml:"brand_color" env:"BRAND_COLOR"`
	Timezone   string `yaml:"timezone" env:"TIMEZONE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	Insecure     bool    `yaml:"insecure" env:"INSECURE"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// legacyEnv 不带前缀的旧版变量到字段路径的映射
var legacyEnv = []struct {
	key  string
	path string
}{
	{"ENVIRONMENT", "Environment"},
	{"DEBUG", "Debug"},
	{"PORT", "Server.HTTPPort"},
	{"CORS_ORIGINS", "Server.CORSOrigins"},
	{"OPENAI_API_KEY", "LLM.APIKey"},
	{"OPENAI_MODEL", "LLM.Model"},
	{"MAX_CONTEXT_TOKENS", "LLM.MaxContextTokens"},
	{"ENABLE_GUARDRAILS", "Guardrails.Enabled"},
	{"ELEVENLABS_API_KEY", "Speech.ElevenLabsAPIKey"},
	{"ELEVENLABS_VOICE_ID", "Speech.ElevenLabsVoiceID"},
	{"GOOGLE_APPLICATION_CREDENTIALS", "Speech.GoogleCredentialsFile"},
	{"SESSION_SECRET", "Auth.SessionSecret"},
	{"REQUIRE_AUTH", "Auth.RequireAuth"},
	{"CALCOM_EVENT_LINK", "Booking.URL"},
	{"CALCOM_BRAND_COLOR", "Booking.BrandColor"},
	{"DEFAULT_TZ", "Booking.Timezone"},
	{"LOG_LEVEL", "Log.Level"},
}

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	legacy     bool
	lookup     func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		legacy:    true,
		lookup:    os.LookupEnv,
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLegacyEnv 是否读取不带前缀的旧版变量（默认读取）
func (l *Loader) WithLegacyEnv(enabled bool) *Loader {
	l.legacy = enabled
	return l
}

// WithLookup 替换环境变量来源（测试用）
func (l *Loader) WithLookup(fn func(string) (string, bool)) *Loader {
	l.lookup = fn
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if l.legacy {
		if err := l.loadLegacyEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to load legacy env: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadLegacyEnv(cfg *Config) error {
	root := reflect.ValueOf(cfg).Elem()
	for _, e := range legacyEnv {
		value, ok := l.lookup(e.key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		field := root
		for _, name := range strings.Split(e.path, ".") {
			if field = field.FieldByName(name); !field.IsValid() {
				break
			}
		}
		if !field.IsValid() {
			return fmt.Errorf("unknown config field %s", e.path)
		}
		if err := setFieldValue(field, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("failed to set %s: %w", e.key, err)
		}
	}
	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookup(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

// setFieldValue 按字段类型解析字符串
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(strings.ToLower(value))
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool { return strings.EqualFold(c.Environment, "production") }

// Validate 检查配置，一次返回全部问题
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		add("server.http_port must be between 1 and 65535")
	}
	if c.LLM.Model == "" {
		add("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxContextTokens <= 0 {
		add("llm.max_context_tokens must be positive")
	}
	if c.Guardrails.MaxInputLength <= 0 {
		add("guardrails.max_input_length must be positive")
	}
	if c.Resilience.Retry.MaxAttempts < 1 {
		add("resilience.retry.max_attempts must be at least 1")
	}
	if c.Resilience.Retry.Multiplier < 1 {
		add("resilience.retry.multiplier must be at least 1")
	}
	for name, b := range map[string]BreakerConfig{"llm_breaker": c.Resilience.LLMBreaker, "speech_breaker": c.Resilience.SpeechBreaker} {
		if b.FailureThreshold <= 0 || b.RecoveryTimeout <= 0 || b.HalfOpenMaxCalls <= 0 {
			add("resilience.%s values must be positive", name)
		}
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite", "postgres", "postgresql", "mysql":
	case "mongo", "mongodb":
		if c.Database.MongoURI == "" {
			add("database.mongo_uri is required for the mongo driver")
		}
	default:
		add("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Auth.RequireAuth && c.Auth.SessionSecret == "" {
		add("auth.session_secret is required when auth.require_auth is on")
	}
	if c.Booking.Timezone != "" {
		if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
			add("booking.timezone %q: %v", c.Booking.Timezone, err)
		}
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		add("log.format must be json or console")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		add("telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}
