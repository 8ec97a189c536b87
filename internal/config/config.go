// Package config loads runtime configuration from a YAML file with
// environment overrides. Secrets (API keys, Redis credentials) come from
// the environment only, optionally seeded by a local .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings like "15m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full runtime configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Planner  PlannerConfig  `yaml:"planner"`
	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	EventBus EventBusConfig `yaml:"eventBus"`
}

// ModelConfig selects the model and its sampling defaults.
type ModelConfig struct {
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
	// UseFlow routes model calls through a named Genkit flow so they show
	// up as traced flows in the developer UI.
	UseFlow bool `yaml:"useFlow"`
	// APIKey is environment-only, never read from YAML.
	APIKey string `yaml:"-"`
}

// PlannerConfig bounds plan generation.
type PlannerConfig struct {
	MaxSteps    int    `yaml:"maxSteps"`
	EnableCache bool   `yaml:"enableCache"`
	UseFallback bool   `yaml:"useFallback"`
	PromptName  string `yaml:"promptName"`
}

// CacheConfig selects the plan cache backend.
type CacheConfig struct {
	// Backend is "memory", "file", or "redis".
	Backend   string   `yaml:"backend"`
	TTL       Duration `yaml:"ttl"`
	FilePath  string   `yaml:"filePath"`
	RedisAddr string   `yaml:"redisAddr"`
	// RedisPassword is environment-only.
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redisDB"`
}

// StorageConfig locates the action log database.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

// EventBusConfig sizes the channel event bus.
type EventBusConfig struct {
	Enabled     bool `yaml:"enabled"`
	BufferSize  int  `yaml:"bufferSize"`
	WorkerCount int  `yaml:"workerCount"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:        "googleai/gemini-2.0-flash",
			Temperature: 0,
			MaxTokens:   1024,
		},
		Planner: PlannerConfig{
			MaxSteps:    6,
			EnableCache: true,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     Duration(15 * time.Minute),
		},
		Storage: StorageConfig{
			SQLitePath: "actionloop.db",
		},
		EventBus: EventBusConfig{
			Enabled:     true,
			BufferSize:  100,
			WorkerCount: 5,
		},
	}
}

// Load reads the YAML file at path, then applies environment overrides.
// A missing file falls back to defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	// Local development reads a .env file when one exists.
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found, relying on system environment variables.")
		}
	}

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Printf("Config file %s not found, using defaults with environment overrides", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("PLANNER_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Planner.MaxSteps = n
		}
	}
}

func (c *Config) validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("model.name must be set")
	}
	if c.Planner.MaxSteps <= 0 {
		return fmt.Errorf("planner.maxSteps must be positive, got %d", c.Planner.MaxSteps)
	}
	switch c.Cache.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory, file, or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.backend is redis but no redis address is configured")
	}
	if c.Cache.Backend == "file" && c.Cache.FilePath == "" {
		return fmt.Errorf("cache.backend is file but no file path is configured")
	}
	return nil
}
