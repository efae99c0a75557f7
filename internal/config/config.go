package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Elastic     ElasticConfig
	AI          AIConfig
	Cost        CostConfig
	Evaluation  EvaluationConfig
	Persistence PersistenceConfig
	Telemetry   TelemetryConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
	LogLevel    string
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
	JWTSecret    string
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ElasticConfig Elasticsearch配置，仅在 persistence.sink=elasticsearch 时使用
type ElasticConfig struct {
	Host        string
	Username    string
	Password    string
	IndexPrefix string
}

// AIConfig 模型供应商配置
type AIConfig struct {
	OpenAI    ProviderConfig
	DeepSeek  ProviderConfig
	Ollama    ProviderConfig
	LiteLLM   ProviderConfig
	Gemini    ProviderConfig
	Anthropic ProviderConfig
}

// ProviderConfig 单个供应商配置
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// Enabled 是否配置了可用的凭证或地址
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != "" || p.BaseURL != ""
}

// CostConfig 成本计算配置
type CostConfig struct {
	Enabled   bool
	Default   RateConfig
	Providers map[string]ProviderPricing
	Rounding  RoundingConfig
}

// RateConfig 每千 token 的单价（美元）
type RateConfig struct {
	InputCostPer1KTokens  float64 `mapstructure:"input_cost_per_1k_tokens"`
	OutputCostPer1KTokens float64 `mapstructure:"output_cost_per_1k_tokens"`
}

// ProviderPricing 供应商定价
type ProviderPricing struct {
	PricingSource string                `mapstructure:"pricing_source"` // static, estimated
	Models        map[string]RateConfig `mapstructure:"models"`
	Defaults      *RateConfig           `mapstructure:"defaults"`
}

// RoundingConfig 金额舍入配置
type RoundingConfig struct {
	Enabled   bool
	Precision int
}

// EvaluationConfig 评估配置
type EvaluationConfig struct {
	Judges     JudgesConfig
	Thresholds ThresholdConfig
	QueueName  string
}

// JudgesConfig 评委配置
type JudgesConfig struct {
	Primary     JudgeConfig
	Secondary   []JudgeConfig
	Concurrency int
}

// JudgeConfig 单个评委配置
type JudgeConfig struct {
	Provider string
	Model    string
	Params   map[string]any
}

// ThresholdConfig 评分阈值
type ThresholdConfig struct {
	RegressionPercentage float64 `mapstructure:"regression_percentage"`
	HallucinationMax     float64 `mapstructure:"hallucination_max"`
	DisagreementDelta    float64 `mapstructure:"disagreement_delta"`
}

// PersistenceConfig 请求日志持久化配置
type PersistenceConfig struct {
	Enabled        bool
	QueueName      string
	BufferSize     int
	Sink           string // postgres, elasticsearch
	OnPersistError string `mapstructure:"on_persistence_error"` // log_only, ignore
}

// TelemetryConfig 指标与追踪配置
type TelemetryConfig struct {
	MetricsEnabled bool
	Namespace      string
	TracingEnabled bool
	ServiceName    string
}

// Load 加载配置
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 环境变量
	v.SetEnvPrefix("LLM_GOV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "llm-governance")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.logLevel", "info")

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "llm_governance")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Elastic
	v.SetDefault("elastic.host", "http://localhost:9200")
	v.SetDefault("elastic.indexPrefix", "llm_governance")

	// AI
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-3.5-turbo")
	v.SetDefault("ai.deepseek.model", "deepseek-chat")
	v.SetDefault("ai.ollama.model", "llama3")
	v.SetDefault("ai.litellm.model", "gpt-3.5-turbo")
	v.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	v.SetDefault("ai.anthropic.model", "claude-3-5-haiku-latest")

	// Cost
	v.SetDefault("cost.enabled", true)
	v.SetDefault("cost.default.input_cost_per_1k_tokens", 0.0015)
	v.SetDefault("cost.default.output_cost_per_1k_tokens", 0.002)
	v.SetDefault("cost.rounding.enabled", true)
	v.SetDefault("cost.rounding.precision", 6)

	// Evaluation
	v.SetDefault("evaluation.queueName", "evaluation-jobs")
	v.SetDefault("evaluation.judges.primary.provider", "openai")
	v.SetDefault("evaluation.judges.primary.model", "gpt-4")
	v.SetDefault("evaluation.judges.primary.params", map[string]any{"temperature": 0})
	v.SetDefault("evaluation.judges.concurrency", 2)
	v.SetDefault("evaluation.thresholds.regression_percentage", 5)
	v.SetDefault("evaluation.thresholds.hallucination_max", 2)
	v.SetDefault("evaluation.thresholds.disagreement_delta", 1.0)

	// Persistence
	v.SetDefault("persistence.enabled", true)
	v.SetDefault("persistence.queueName", "request-logs")
	v.SetDefault("persistence.bufferSize", 1024)
	v.SetDefault("persistence.sink", "postgres")
	v.SetDefault("persistence.on_persistence_error", "log_only")

	// Telemetry
	v.SetDefault("telemetry.metricsEnabled", true)
	v.SetDefault("telemetry.namespace", "llm_governance")
	v.SetDefault("telemetry.tracingEnabled", false)
	v.SetDefault("telemetry.serviceName", "llm-governance-api")
}
