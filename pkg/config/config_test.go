package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
llm:
  base_url: "https://api.example.com/v1"
  api_key: "file-llm-key"
  model: "test-model"
search:
  exa:
    api_key: "file-exa-key"
    timeout: 15
  tavily:
    api_key: "file-tavily-key"
  dual:
    strategy: "parallel"
hallucination:
  enabled: true
cache:
  enabled: true
log:
  level: "debug"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Search.Exa.APIKey != "file-exa-key" {
		t.Errorf("Exa.APIKey = %s", cfg.Search.Exa.APIKey)
	}
	if cfg.Search.Exa.Timeout != 15 {
		t.Errorf("Exa.Timeout = %d, want 15", cfg.Search.Exa.Timeout)
	}
	if cfg.Search.Dual.Strategy != "parallel" {
		t.Errorf("Dual.Strategy = %s", cfg.Search.Dual.Strategy)
	}
	if !cfg.Hallucination.Enabled {
		t.Error("Hallucination.Enabled = false")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Search.Exa.MaxRetries != 3 {
		t.Errorf("Exa.MaxRetries = %d, want default 3", cfg.Search.Exa.MaxRetries)
	}
	if cfg.Search.Exa.RateCalls != 100 || cfg.Search.Exa.RatePeriod != 60 {
		t.Errorf("限流默认值 = %d/%d, want 100/60", cfg.Search.Exa.RateCalls, cfg.Search.Exa.RatePeriod)
	}
	if cfg.Search.Dual.Timeout != 10 || cfg.Search.Dual.MaxResults != 10 {
		t.Errorf("Dual 默认值 = %d/%d, want 10/10", cfg.Search.Dual.Timeout, cfg.Search.Dual.MaxResults)
	}
	if cfg.Hallucination.Threshold != 0.7 {
		t.Errorf("Threshold = %v, want default 0.7", cfg.Hallucination.Threshold)
	}
	if cfg.Cache.MaxSize != 1000 || cfg.Cache.TTL != 3600 {
		t.Errorf("Cache 默认值 = %d/%d, want 1000/3600", cfg.Cache.MaxSize, cfg.Cache.TTL)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %s, want :8000", cfg.Server.Addr)
	}
	if cfg.DualTimeout() != 10*time.Second {
		t.Errorf("DualTimeout() = %v, want 10s", cfg.DualTimeout())
	}
	if cfg.CacheTTL() != time.Hour {
		t.Errorf("CacheTTL() = %v, want 1h", cfg.CacheTTL())
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("EXA_API_KEY", "env-exa-key")
	t.Setenv("TAVILY_API_KEY", "env-tavily-key")
	t.Setenv("LLM_API_KEY", "env-llm-key")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Search.Exa.APIKey != "env-exa-key" {
		t.Errorf("Exa.APIKey = %s, 环境变量应覆盖文件", cfg.Search.Exa.APIKey)
	}
	if cfg.Search.Tavily.APIKey != "env-tavily-key" {
		t.Errorf("Tavily.APIKey = %s", cfg.Search.Tavily.APIKey)
	}
	if cfg.LLM.APIKey != "env-llm-key" {
		t.Errorf("LLM.APIKey = %s", cfg.LLM.APIKey)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("LoadConfig() error = nil, want file error")
	}
}
