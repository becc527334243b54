package config

// #region imports
import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// #endregion

// #region errors

// ErrConfig marks invalid budgets or policy parameters. Such errors are fatal
// for the request and are raised before any model call.
var ErrConfig = errors.New("invalid configuration")

// #endregion

// #region types

// Controller holds the decision thresholds.
type Controller struct {
	SmallThreshold    int     `yaml:"small_threshold" json:"small_threshold"`
	ExpertThreshold   int     `yaml:"expert_threshold" json:"expert_threshold"`
	CascadeEscalation float64 `yaml:"cascade_escalation" json:"cascade_escalation"`
	ExpertPassStep    int     `yaml:"expert_pass_step" json:"expert_pass_step"`
	MaxPasses         int     `yaml:"max_passes" json:"max_passes"`
	TightLatencyMs    int     `yaml:"tight_latency_ms" json:"tight_latency_ms"`
	MinSamples        int     `yaml:"min_samples" json:"min_samples"`
}

// Policy holds the recommendation weights.
type Policy struct {
	MinSamples   int     `yaml:"min_samples" json:"min_samples"`
	SuccessFloor float64 `yaml:"success_floor" json:"success_floor"`
	WTokens      float64 `yaml:"w_tokens" json:"w_tokens"`
	WLatency     float64 `yaml:"w_latency" json:"w_latency"`
}

// Reasoner holds retry and per-pass limits.
type Reasoner struct {
	RetryBudget    int           `yaml:"retry_budget"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	MinPassTimeout time.Duration `yaml:"min_pass_timeout"`
	MinPassTokens  int           `yaml:"min_pass_tokens"`
}

// Cache selects the durable canvas store.
type Cache struct {
	Backend      string        `yaml:"backend"` // "memory" | "sqlite" | "redis"
	RedisURL     string        `yaml:"redis_url"`
	BuildRetries int           `yaml:"build_retries"`
	BuildBackoff time.Duration `yaml:"build_backoff"`
}

// Transport selects and tunes the model provider.
type Transport struct {
	Provider   string  `yaml:"provider"` // "scripted" | "openai" | "rpc"
	SmallModel string  `yaml:"small_model"`
	LargeModel string  `yaml:"large_model"`
	APIKey     string  `yaml:"api_key"`
	BaseURL    string  `yaml:"base_url"`
	RPCAddr    string  `yaml:"rpc_addr"`
	RatePerSec float64 `yaml:"rate_per_sec"` // 0 = unlimited
	Burst      int     `yaml:"burst"`
}

// Pipeline tunes batch runs.
type Pipeline struct {
	Concurrency int    `yaml:"concurrency"`
	OutputDir   string `yaml:"output_dir"`
	// Applied to queries that carry no budget of their own.
	DefaultTokenBudget int `yaml:"default_token_budget"`
	DefaultLatencyMs   int `yaml:"default_latency_ms"`
	// Characters of raw document fed to the single-call baseline run.
	// 0 disables the baseline.
	BaselineChars int `yaml:"baseline_chars"`
}

// API holds HTTP server settings.
type API struct {
	Addr string `yaml:"addr"`
}

// Config is the full process configuration.
type Config struct {
	Controller Controller `yaml:"controller"`
	Policy     Policy     `yaml:"policy"`
	Reasoner   Reasoner   `yaml:"reasoner"`
	Cache      Cache      `yaml:"cache"`
	Transport  Transport  `yaml:"transport"`
	Pipeline   Pipeline   `yaml:"pipeline"`
	API        API        `yaml:"api"`
	Database   string     `yaml:"database"`
	LogFile    string     `yaml:"log_file"`
}

// #endregion types

// #region defaults

// DefaultController returns the stock decision thresholds.
func DefaultController() Controller {
	return Controller{
		SmallThreshold:    2000,
		ExpertThreshold:   4000,
		CascadeEscalation: 0.6,
		ExpertPassStep:    4000,
		MaxPasses:         3,
		TightLatencyMs:    1500,
		MinSamples:        3,
	}
}

// DefaultPolicy returns the stock recommendation weights.
func DefaultPolicy() Policy {
	return Policy{
		MinSamples:   3,
		SuccessFloor: 0.9,
		WTokens:      1.0,
		WLatency:     0.1,
	}
}

// DefaultReasoner returns the stock retry and pass limits.
func DefaultReasoner() Reasoner {
	return Reasoner{
		RetryBudget:    2,
		BackoffBase:    100 * time.Millisecond,
		MinPassTimeout: 250 * time.Millisecond,
		MinPassTokens:  64,
	}
}

// Default returns a complete configuration with every section filled.
func Default() Config {
	return Config{
		Controller: DefaultController(),
		Policy:     DefaultPolicy(),
		Reasoner:   DefaultReasoner(),
		Cache: Cache{
			Backend:      "sqlite",
			BuildRetries: 2,
			BuildBackoff: 100 * time.Millisecond,
		},
		Transport: Transport{
			Provider:   "scripted",
			SmallModel: "gpt-4o-mini",
			LargeModel: "gpt-4o",
		},
		Pipeline: Pipeline{
			Concurrency:        4,
			OutputDir:          "results",
			DefaultTokenBudget: 4000,
			DefaultLatencyMs:   60000,
			BaselineChars:      12000,
		},
		API:      API{Addr: ":8080"},
		Database: "brain.db",
	}
}

// #endregion defaults

// #region load

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then environment overrides. A .env file in the working
// directory is loaded first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Printf("[CONFIG] loaded .env")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv reads BRAIN_* and OPENAI_* overrides.
func applyEnv(cfg *Config) {
	envInt("BRAIN_SMALL_THRESHOLD", &cfg.Controller.SmallThreshold)
	envInt("BRAIN_EXPERT_THRESHOLD", &cfg.Controller.ExpertThreshold)
	envInt("BRAIN_MAX_PASSES", &cfg.Controller.MaxPasses)
	envInt("BRAIN_TIGHT_LATENCY_MS", &cfg.Controller.TightLatencyMs)
	envFloat("BRAIN_CASCADE_ESCALATION", &cfg.Controller.CascadeEscalation)
	envInt("BRAIN_RETRY_BUDGET", &cfg.Reasoner.RetryBudget)
	envInt("BRAIN_CONCURRENCY", &cfg.Pipeline.Concurrency)
	envInt("BRAIN_BASELINE_CHARS", &cfg.Pipeline.BaselineChars)
	envFloat("BRAIN_RATE_PER_SEC", &cfg.Transport.RatePerSec)

	envString("BRAIN_DATABASE", &cfg.Database)
	envString("BRAIN_LOG_FILE", &cfg.LogFile)
	envString("BRAIN_CACHE_BACKEND", &cfg.Cache.Backend)
	envString("BRAIN_REDIS_URL", &cfg.Cache.RedisURL)
	envString("BRAIN_PROVIDER", &cfg.Transport.Provider)
	envString("BRAIN_RPC_ADDR", &cfg.Transport.RPCAddr)
	envString("BRAIN_SMALL_MODEL", &cfg.Transport.SmallModel)
	envString("BRAIN_LARGE_MODEL", &cfg.Transport.LargeModel)
	envString("BRAIN_API_ADDR", &cfg.API.Addr)
	envString("BRAIN_OUTPUT_DIR", &cfg.Pipeline.OutputDir)
	envString("OPENAI_API_KEY", &cfg.Transport.APIKey)
	envString("OPENAI_BASE_URL", &cfg.Transport.BaseURL)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// #endregion load
