package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultBaseURL is the publication page for activated aggregated flexibility
// and shared electricity.
const DefaultBaseURL = "https://okte.sk/sk/edc/zverejnovanie-udajov/aktivovana-agregovana-flexibilita-a-zdielanie-elektriny/"

// Config holds scraper, storage and server configuration. Values come from
// an optional YAML file, then EDC_* environment variables.
type Config struct {
	BaseURL          string        `yaml:"base_url" env:"EDC_BASE_URL" env-default:"https://okte.sk/sk/edc/zverejnovanie-udajov/aktivovana-agregovana-flexibilita-a-zdielanie-elektriny/"`
	Timeout          time.Duration `yaml:"timeout" env:"EDC_TIMEOUT" env-default:"30s"`
	UserAgent        string        `yaml:"user_agent" env:"EDC_USER_AGENT" env-default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36"`
	AcceptLanguage   string        `yaml:"accept_language" env:"EDC_ACCEPT_LANGUAGE" env-default:"sk-SK,sk;q=0.9,en;q=0.8"`
	FormDateField    string        `yaml:"form_date_field" env:"EDC_FORM_DATE_FIELD" env-default:"date"`
	FormActionField  string        `yaml:"form_action_field" env:"EDC_FORM_ACTION_FIELD" env-default:"action"`
	FormActionValue  string        `yaml:"form_action_value" env:"EDC_FORM_ACTION_VALUE" env-default:"show"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt" env:"EDC_RESPECT_ROBOTS_TXT" env-default:"false"`

	DatabasePath string `yaml:"database_path" env:"EDC_DATABASE_PATH" env-default:"edc_data.db"`
	OutputFile   string `yaml:"output_file" env:"EDC_OUTPUT_FILE" env-default:"output/edc_data.csv"`
	OutputFormat string `yaml:"output_format" env:"EDC_OUTPUT_FORMAT" env-default:"csv"` // csv, json, dual or sqlite

	PipelineBufferSize int           `yaml:"pipeline_buffer_size" env:"EDC_PIPELINE_BUFFER_SIZE" env-default:"512"`
	BatchSize          int           `yaml:"batch_size" env:"EDC_BATCH_SIZE" env-default:"96"`
	FlushInterval      time.Duration `yaml:"flush_interval" env:"EDC_FLUSH_INTERVAL" env-default:"5s"`
	DedupeMaxSize      int           `yaml:"dedupe_max_size" env:"EDC_DEDUPE_MAX_SIZE" env-default:"100000"`
	Workers            int           `yaml:"workers" env:"EDC_WORKERS" env-default:"1"`

	ListenAddr  string `yaml:"listen_addr" env:"EDC_LISTEN_ADDR" env-default:":8080"`
	MetricsAddr string `yaml:"metrics_addr" env:"EDC_METRICS_ADDR"`
	Verbose     bool   `yaml:"verbose" env:"EDC_VERBOSE" env-default:"false"`
}

// DefaultConfig returns defaults matching the env-default tags.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            DefaultBaseURL,
		Timeout:            30 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		AcceptLanguage:     "sk-SK,sk;q=0.9,en;q=0.8",
		FormDateField:      "date",
		FormActionField:    "action",
		FormActionValue:    "show",
		RespectRobotsTxt:   false,
		DatabasePath:       "edc_data.db",
		OutputFile:         "output/edc_data.csv",
		OutputFormat:       "csv",
		PipelineBufferSize: 512,
		BatchSize:          96,
		FlushInterval:      5 * time.Second,
		DedupeMaxSize:      100000,
		Workers:            1,
		ListenAddr:         ":8080",
		Verbose:            false,
	}
}

// Load reads path when it is non-empty, otherwise the environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.FormDateField == "" {
		return fmt.Errorf("form date field cannot be empty")
	}
	if c.FormActionField == "" || c.FormActionValue == "" {
		return fmt.Errorf("form action field and value cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("flush interval cannot be negative")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.OutputFormat == "sqlite" {
		if c.DatabasePath == "" {
			return fmt.Errorf("database path cannot be empty")
		}
	} else if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}

	return nil
}
