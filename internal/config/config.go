package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jengzang/records-cluster-go/internal/hotspot"
)

// ScanDefaults are applied to scan requests that omit a parameter.
type ScanDefaults struct {
	Strategy    string                    `yaml:"strategy"`
	Kind        string                    `yaml:"kind"`
	Threshold   float64                   `yaml:"threshold"`
	BesagNewell hotspot.BesagNewellParams `yaml:"besag_newell"`
	GAM         hotspot.GAMParams         `yaml:"gam"`
	Raster      hotspot.RasterParams      `yaml:"raster"`
}

// Config 应用配置
type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	JWTSecret string `yaml:"jwt_secret"`

	// ScanWorkers bounds concurrent GAM radii per run.
	ScanWorkers int `yaml:"scan_workers"`
	// RateLimit is requests per second per client; RateBurst the bucket size.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	// ResultTTL is how long finished run results stay cached.
	ResultTTL time.Duration `yaml:"result_ttl"`

	Scan ScanDefaults `yaml:"scan"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:        ":8080",
		DBPath:      "./data/clusters/clusters.db",
		JWTSecret:   "your-secret-key-change-in-production",
		ScanWorkers: runtime.NumCPU(),
		RateLimit:   10,
		RateBurst:   20,
		ResultTTL:   10 * time.Minute,
		Scan: ScanDefaults{
			Strategy:    hotspot.StrategyGAM,
			Kind:        hotspot.Poisson.String(),
			Threshold:   hotspot.DefaultThreshold,
			BesagNewell: hotspot.BesagNewellParams{Neighbours: hotspot.DefaultNeighbours},
			GAM:         hotspot.GAMParams{OverlapRatio: hotspot.DefaultOverlapRatio},
		},
	}
}

// Load 加载配置: defaults, then the YAML file named by CONFIG_FILE, then
// environment variables. A broken config file is logged and skipped.
func Load() *Config {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			log.Printf("[Config] ignoring %s: %v", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg
}

// LoadFile overlays the YAML file at path onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		c.Port = port
	}
	if dbPath := getenv("DB_PATH"); dbPath != "" {
		c.DBPath = dbPath
	}
	if secret := getenv("JWT_SECRET"); secret != "" {
		c.JWTSecret = secret
	}
	if v := getenv("SCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ScanWorkers = n
		} else {
			log.Printf("[Config] invalid SCAN_WORKERS %q", v)
		}
	}
	if v := getenv("RATE_LIMIT"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
			c.RateLimit = r
		} else {
			log.Printf("[Config] invalid RATE_LIMIT %q", v)
		}
	}
}
