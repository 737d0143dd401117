// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, metrics address, and logging level.
type App struct {
	Name        string
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Stream describes the upstream push service the ingester connects to.
type Stream struct {
	BaseURL          string            `yaml:"base_url"`
	Path             string            `yaml:"path"`
	Query            map[string]string `yaml:"query"`
	SubscribeEvent   string            `yaml:"subscribe_event"`
	SubscribePayload any               `yaml:"subscribe_payload"`
	PingIntervalSecs int               `yaml:"ping_interval_secs"`
	IdleTimeoutSecs  int               `yaml:"idle_timeout_secs"`
	ReconnectBaseMs  int               `yaml:"reconnect_base_ms"`
	ReconnectCapMs   int               `yaml:"reconnect_cap_ms"`
}

// Push configures the downstream endpoint that receives derived signals.
type Push struct {
	URL         string
	APIKey      string `yaml:"api_key"`
	MaxAttempts int    `yaml:"max_attempts"`
	BackoffMs   int    `yaml:"backoff_ms"`
}

// Telegram configures the optional chat mirror for produced signals.
type Telegram struct {
	Enabled     bool
	Token       string
	ChatID      int64 `yaml:"chat_id"`
	Label       string
	APIEndpoint string `yaml:"api_endpoint"`
}

// Heartbeat configures the liveness reporter.
type Heartbeat struct {
	URL          string
	IntervalSecs int `yaml:"interval_secs"`
}

// History configures startup backfill from the round-history endpoint.
type History struct {
	URL     string
	OnStart bool `yaml:"on_start"`
}

// Dedup bounds the duplicate guard.
type Dedup struct {
	Capacity int
	TTLSecs  int `yaml:"ttl_secs"`
}

// Strategy specifies the size boundary and the confidence policy.
type Strategy struct {
	BigThreshold int `yaml:"big_threshold"`
	Confidence   string
}

// Parser tunes which payload fields the interpreter searches.
type Parser struct {
	IssueFields  []string `yaml:"issue_fields"`
	NumberFields []string `yaml:"number_fields"`
	WrapperKeys  []string `yaml:"wrapper_keys"`
	RawNumbers   bool     `yaml:"raw_numbers"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Stream    Stream    `yaml:"stream"`
	Push      Push      `yaml:"push"`
	Telegram  Telegram  `yaml:"telegram"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
	History   History   `yaml:"history"`
	Dedup     Dedup     `yaml:"dedup"`
	Strategy  Strategy  `yaml:"strategy"`
	Parser    Parser    `yaml:"parser"`
}

// Load reads a YAML file from disk, hydrates a Config struct, and applies
// environment overrides on top.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	applyEnv(&config)
	return &config, nil
}

// applyEnv lets deploy environments override secrets and endpoints without
// editing the YAML file. Environment values win over file values.
func applyEnv(config *Config) {
	if v := os.Getenv("WEB_PUSH_URL"); v != "" {
		config.Push.URL = v
	}
	if v := os.Getenv("WEB_API_KEY"); v != "" {
		config.Push.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("BIG_THRESHOLD"); v != "" {
		if threshold, err := strconv.Atoi(v); err == nil {
			config.Strategy.BigThreshold = threshold
		}
	}
}

// ResolvePath picks the config file to load: CONFIG_PATH when set, then
// config.yaml when present, then the shipped config.example.yaml.
func ResolvePath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return "config.example.yaml"
}
