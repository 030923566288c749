package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Payments PaymentsConfig
	Redis    RedisConfig
	Token    TokenConfig
	Session  SessionConfig
	Server   ServerConfig
}

type PaymentsConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type TokenConfig struct {
	SigningSecret    string `mapstructure:"signing_secret"`
	ProjectID        string `mapstructure:"project_id"`
	TTLSec           int64  `mapstructure:"ttl_sec"`
	BudgetAIUnits    int64  `mapstructure:"budget_ai_units"`
	BudgetComputeSec int64  `mapstructure:"budget_compute_sec"`
	BudgetWindow     string `mapstructure:"budget_window"`
}

type SessionConfig struct {
	TTLSec int64 `mapstructure:"ttl_sec"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	// .env file is optional (local development convenience).
	_ = godotenv.Load()

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("token.ttl_sec", 604800)
	v.SetDefault("token.budget_ai_units", 1000000)
	v.SetDefault("token.budget_compute_sec", 3600)
	v.SetDefault("token.budget_window", "lifetime")
	v.SetDefault("session.ttl_sec", 86400)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"payments.api_url":          "PAYMENTS_API_URL",
		"payments.api_key":          "PAYMENTS_API_KEY",
		"redis.addr":                "REDIS_ADDR",
		"redis.password":            "REDIS_PASSWORD",
		"token.signing_secret":      "SIGNING_SECRET",
		"token.project_id":          "PROJECT_ID",
		"token.ttl_sec":             "TOKEN_TTL_SEC",
		"token.budget_ai_units":     "BUDGET_AI_UNITS",
		"token.budget_compute_sec":  "BUDGET_COMPUTE_SEC",
		"token.budget_window":       "BUDGET_WINDOW",
		"session.ttl_sec":           "SESSION_TTL_SEC",
		"server.port":               "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Payments.APIURL, "PAYMENTS_API_URL"},
		{c.Payments.APIKey, "PAYMENTS_API_KEY"},
		{c.Token.SigningSecret, "SIGNING_SECRET"},
		{c.Token.ProjectID, "PROJECT_ID"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Token.TTLSec <= 0 {
		return fmt.Errorf("TOKEN_TTL_SEC must be positive")
	}
	if w := c.Token.BudgetWindow; w != "lifetime" && w != "day" {
		return fmt.Errorf("BUDGET_WINDOW must be \"lifetime\" or \"day\", got %q", w)
	}
	return nil
}
