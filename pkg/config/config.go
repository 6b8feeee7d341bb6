package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 项目配置结构体
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Search        SearchConfig        `yaml:"search"`
	Hallucination HallucinationConfig `yaml:"hallucination"`
	Cache         CacheConfig         `yaml:"cache"`
	Log           LogConfig           `yaml:"log"`
	DB            DBConfig            `yaml:"db"`
	Server        ServerConfig        `yaml:"server"`
	UserPersona   string              `yaml:"user_persona"`
}

// LLMConfig LLM 相关配置（可选，用于解读核查结果）
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	RPM     int    `yaml:"rpm"`
}

// SearchConfig 搜索相关配置
type SearchConfig struct {
	Exa    ExaConfig    `yaml:"exa"`
	Tavily TavilyConfig `yaml:"tavily"`
	Dual   DualConfig   `yaml:"dual"`
}

// ExaConfig Exa.ai 配置
type ExaConfig struct {
	APIKey     string `yaml:"api_key"`
	Timeout    int    `yaml:"timeout"`     // 单次请求超时（秒）
	MaxRetries int    `yaml:"max_retries"` // 重试次数
	RateCalls  int    `yaml:"rate_calls"`  // 限流窗口内的调用数
	RatePeriod int    `yaml:"rate_period"` // 限流窗口（秒）
}

// TavilyConfig Tavily 配置
type TavilyConfig struct {
	APIKey     string `yaml:"api_key"`
	Timeout    int    `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// DualConfig 双引擎编排配置
type DualConfig struct {
	Timeout     int    `yaml:"timeout"`      // 双引擎共享超时（秒）
	MaxResults  int    `yaml:"max_results"`  // 聚合结果上限
	Strategy    string `yaml:"strategy"`     // parallel / sequential / intelligent
	RequireBoth bool   `yaml:"require_both"` // 要求两个提供商都成功
}

// HallucinationConfig 幻觉检测配置
type HallucinationConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Threshold     float64 `yaml:"threshold"`
	EnrichContent bool    `yaml:"enrich_content"` // 证据正文过短时抓取原文补全
}

// CacheConfig 搜索缓存配置
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	MaxSize int  `yaml:"max_size"`
	TTL     int  `yaml:"ttl"` // 秒
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DBConfig 数据库相关配置（可选，用于核查历史落库）
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Timeout int    `yaml:"timeout"` // 秒
}

// LoadConfig 从指定路径加载配置，环境变量中的密钥优先于文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv 环境变量覆盖文件中的密钥与连接串
func (c *Config) applyEnv() {
	if v := os.Getenv("EXA_API_KEY"); v != "" {
		c.Search.Exa.APIKey = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		c.Search.Tavily.APIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
}

// applyDefaults 填充未配置项的默认值
func (c *Config) applyDefaults() {
	if c.Search.Exa.Timeout <= 0 {
		c.Search.Exa.Timeout = 30
	}
	if c.Search.Exa.MaxRetries <= 0 {
		c.Search.Exa.MaxRetries = 3
	}
	if c.Search.Exa.RateCalls <= 0 {
		c.Search.Exa.RateCalls = 100
	}
	if c.Search.Exa.RatePeriod <= 0 {
		c.Search.Exa.RatePeriod = 60
	}
	if c.Search.Tavily.Timeout <= 0 {
		c.Search.Tavily.Timeout = 30
	}
	if c.Search.Tavily.MaxRetries <= 0 {
		c.Search.Tavily.MaxRetries = 3
	}
	if c.Search.Dual.Timeout <= 0 {
		c.Search.Dual.Timeout = 10
	}
	if c.Search.Dual.MaxResults <= 0 {
		c.Search.Dual.MaxResults = 10
	}
	if c.Search.Dual.Strategy == "" {
		c.Search.Dual.Strategy = "intelligent"
	}
	if c.Hallucination.Threshold <= 0 {
		c.Hallucination.Threshold = 0.7
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 3600
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ExaTimeout Exa 请求超时
func (c *Config) ExaTimeout() time.Duration {
	return time.Duration(c.Search.Exa.Timeout) * time.Second
}

// TavilyTimeout Tavily 请求超时
func (c *Config) TavilyTimeout() time.Duration {
	return time.Duration(c.Search.Tavily.Timeout) * time.Second
}

// DualTimeout 双引擎共享超时
func (c *Config) DualTimeout() time.Duration {
	return time.Duration(c.Search.Dual.Timeout) * time.Second
}

// CacheTTL 缓存过期时间
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}
