// Package config loads the service configuration once at start-up. The
// resulting struct is passed explicitly to every component that needs it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	LLM struct {
		BaseURL  string        `yaml:"base_url"`
		Model    string        `yaml:"model"`
		APIKey   string        `yaml:"api_key"`
		Timeout  time.Duration `yaml:"timeout"`
		Chat     Sampling      `yaml:"chat"`
		Analysis Sampling      `yaml:"analysis"`
	} `yaml:"llm"`
	Chain struct {
		RPCURL     string        `yaml:"rpc_url"`
		Timeout    time.Duration `yaml:"timeout"`
		MaxHolders int           `yaml:"max_holders"`
	} `yaml:"chain"`
	Gate struct {
		FreeLimit         int  `yaml:"free_limit"`
		HistoryLimit      int  `yaml:"history_limit"`
		SerializeSessions bool `yaml:"serialize_sessions"`
	} `yaml:"gate"`
	Persona struct {
		Name               string `yaml:"name"`
		Bilingual          bool   `yaml:"bilingual"`
		DesignatedContract string `yaml:"designated_contract"`
		DesignatedStance   string `yaml:"designated_stance"`
	} `yaml:"persona"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	LogLevel string `yaml:"log_level"`
}

type Sampling struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Default returns a configuration that runs against a local
// OpenAI-compatible endpoint and the public mainnet RPC.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8100"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Database.Path = "mintchat.db"
	cfg.LLM.BaseURL = "http://localhost:11434/v1/"
	cfg.LLM.Model = "llama3.1:8b"
	cfg.LLM.Timeout = 45 * time.Second
	cfg.LLM.Chat = Sampling{Temperature: 0.8, MaxTokens: 600}
	cfg.LLM.Analysis = Sampling{Temperature: 0.4, MaxTokens: 900}
	cfg.Chain.RPCURL = "https://api.mainnet-beta.solana.com"
	cfg.Chain.Timeout = 10 * time.Second
	cfg.Chain.MaxHolders = 5
	cfg.Gate.FreeLimit = 4
	cfg.Gate.HistoryLimit = 8
	cfg.Persona.Name = "Minty"
	cfg.RateLimit.RPS = 5
	cfg.RateLimit.Burst = 10
	cfg.LogLevel = "info"
	return cfg
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"OPENAI_API_KEY":     &c.LLM.APIKey,
		"MINTCHAT_LLM_URL":   &c.LLM.BaseURL,
		"MINTCHAT_RPC_URL":   &c.Chain.RPCURL,
		"MINTCHAT_DB_PATH":   &c.Database.Path,
		"MINTCHAT_ADDR":      &c.Server.Addr,
		"MINTCHAT_LOG_LEVEL": &c.LogLevel,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm.base_url is required"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.Chain.RPCURL == "" {
		errs = append(errs, errors.New("chain.rpc_url is required"))
	}
	if c.Chain.Timeout <= 0 {
		errs = append(errs, errors.New("chain.timeout must be positive"))
	}
	if c.Chain.MaxHolders <= 0 {
		errs = append(errs, errors.New("chain.max_holders must be positive"))
	}
	if c.Gate.FreeLimit < 0 {
		errs = append(errs, errors.New("gate.free_limit must not be negative"))
	}
	if c.Gate.HistoryLimit <= 0 {
		errs = append(errs, errors.New("gate.history_limit must be positive"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	return errors.Join(errs...)
}
