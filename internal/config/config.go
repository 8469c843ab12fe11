// Package config loads service configuration from an optional YAML file, an
// optional .env file, and environment variables. Environment wins over file,
// file wins over defaults.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings.
type Config struct {
	HTTPPort        string
	DataDir         string
	DBPath          string
	AuditLogPath    string
	TripsFile       string
	ZoneLookupFile  string
	ZoneGeoJSONFile string
	SampleSize      int64
	BatchSize       int
	WorkerCount     int
	JobQueueSize    int
	JobTimeoutSec   int
	EnableWatcher   bool
	WebhookURL      string
	StrictConfig    bool
}

type fileConfig struct {
	HTTPPort        string `yaml:"http_port"`
	DataDir         string `yaml:"data_dir"`
	DBPath          string `yaml:"db_path"`
	AuditLogPath    string `yaml:"audit_log_path"`
	TripsFile       string `yaml:"trips_file"`
	ZoneLookupFile  string `yaml:"zone_lookup_file"`
	ZoneGeoJSONFile string `yaml:"zone_geojson_file"`
	SampleSize      *int64 `yaml:"sample_size"`
	BatchSize       *int   `yaml:"batch_size"`
	WorkerCount     *int   `yaml:"worker_count"`
	JobQueueSize    *int   `yaml:"job_queue_size"`
	WebhookURL      string `yaml:"webhook_url"`
}

const (
	defaultPort          = ":8000"
	defaultDataDir       = "data"
	defaultDBFile        = "taxi_data.db"
	defaultAuditLogFile  = "cleaning_log.txt"
	defaultTripsFile     = "yellow_tripdata_2019-01.csv"
	defaultZoneFile      = "taxi_zone_lookup.csv"
	defaultGeoJSONFile   = "taxi_zones.geojson"
	defaultSampleSize    = 100000
	defaultBatchSize     = 10000
	minBatchSize         = 100
	maxBatchSize         = 500000
	defaultWorkerCount   = 2
	maxWorkerCount       = 16
	minQueueSize         = 1
	defaultQueueSize     = 32
	maxQueueSize         = 256
	defaultJobTimeoutSec = 600
)

// Load reads configuration and applies sane defaults. A missing config file
// is only an error under STRICT_CONFIG.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		SampleSize:    defaultSampleSize,
		BatchSize:     defaultBatchSize,
		WorkerCount:   defaultWorkerCount,
		JobQueueSize:  defaultQueueSize,
		JobTimeoutSec: defaultJobTimeoutSec,
		EnableWatcher: parseBoolEnvDefault("ENABLE_WATCHER", true),
		WebhookURL:    os.Getenv("WEBHOOK_URL"),
		StrictConfig:  parseBoolEnv("STRICT_CONFIG"),
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
	}

	cfg.DataDir = firstNonEmpty(os.Getenv("DATA_DIR"), fileCfg.DataDir, defaultDataDir)
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	} else if fileCfg.DBPath != "" {
		cfg.DBPath = fileCfg.DBPath
	} else {
		cfg.DBPath = filepath.Join(cfg.DataDir, defaultDBFile)
	}
	cfg.AuditLogPath = firstNonEmpty(os.Getenv("AUDIT_LOG_PATH"), fileCfg.AuditLogPath,
		filepath.Join(cfg.DataDir, defaultAuditLogFile))
	cfg.TripsFile = firstNonEmpty(os.Getenv("TRIPS_FILE"), fileCfg.TripsFile,
		filepath.Join(cfg.DataDir, defaultTripsFile))
	cfg.ZoneLookupFile = firstNonEmpty(os.Getenv("ZONE_LOOKUP_FILE"), fileCfg.ZoneLookupFile,
		filepath.Join(cfg.DataDir, defaultZoneFile))
	cfg.ZoneGeoJSONFile = firstNonEmpty(os.Getenv("ZONE_GEOJSON_FILE"), fileCfg.ZoneGeoJSONFile,
		filepath.Join(cfg.DataDir, defaultGeoJSONFile))

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), os.Getenv("PORT"), fileCfg.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	if fileCfg.WebhookURL != "" && cfg.WebhookURL == "" {
		cfg.WebhookURL = fileCfg.WebhookURL
	}

	if fileCfg.SampleSize != nil && *fileCfg.SampleSize > 0 {
		cfg.SampleSize = *fileCfg.SampleSize
	}
	if v := os.Getenv("SAMPLE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			if cfg.StrictConfig {
				return cfg, fmt.Errorf("invalid SAMPLE_SIZE=%q", v)
			}
			log.Printf("invalid SAMPLE_SIZE=%q, using %d", v, cfg.SampleSize)
		} else {
			cfg.SampleSize = n
		}
	}

	if fileCfg.BatchSize != nil && *fileCfg.BatchSize > 0 {
		cfg.BatchSize = *fileCfg.BatchSize
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			if cfg.StrictConfig {
				return cfg, fmt.Errorf("invalid BATCH_SIZE=%q", v)
			}
			log.Printf("invalid BATCH_SIZE=%q, using %d", v, cfg.BatchSize)
		} else {
			cfg.BatchSize = n
		}
	}
	cfg.BatchSize = clampInt(cfg.BatchSize, minBatchSize, maxBatchSize)

	if fileCfg.WorkerCount != nil && *fileCfg.WorkerCount > 0 {
		cfg.WorkerCount = *fileCfg.WorkerCount
	}
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("invalid WORKER_COUNT=%q, using default %d", v, defaultWorkerCount)
			n = defaultWorkerCount
		}
		cfg.WorkerCount = n
	}
	cfg.WorkerCount = clampInt(cfg.WorkerCount, 1, maxWorkerCount)

	if fileCfg.JobQueueSize != nil && *fileCfg.JobQueueSize > 0 {
		cfg.JobQueueSize = *fileCfg.JobQueueSize
	}
	if v := os.Getenv("JOB_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid JOB_QUEUE_SIZE=%q, using default %d", v, defaultQueueSize)
			n = defaultQueueSize
		}
		cfg.JobQueueSize = n
	}
	cfg.JobQueueSize = clampInt(cfg.JobQueueSize, minQueueSize, maxQueueSize)
	if cfg.JobQueueSize < cfg.WorkerCount {
		log.Printf("JOB_QUEUE_SIZE raised to worker count %d (was %d)", cfg.WorkerCount, cfg.JobQueueSize)
		cfg.JobQueueSize = cfg.WorkerCount
	}

	if v := os.Getenv("JOB_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid JOB_TIMEOUT_SEC: %w", err)
		}
		if n <= 0 {
			return cfg, errors.New("JOB_TIMEOUT_SEC must be positive")
		}
		cfg.JobTimeoutSec = n
	}

	if v := strings.TrimSpace(os.Getenv("ENABLE_WATCHER")); v != "" {
		cfg.EnableWatcher = parseBoolEnv("ENABLE_WATCHER")
	}

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Printf("config validation failed: %v (continuing)", err)
	}

	log.Printf("config: data_dir=%s db=%s sample_size=%d batch_size=%d workers=%d",
		cfg.DataDir, cfg.DBPath, cfg.SampleSize, cfg.BatchSize, cfg.WorkerCount)
	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("DATA_DIR is required")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH is required")
	}
	if strings.TrimSpace(cfg.HTTPPort) == "" {
		return errors.New("HTTP_PORT is required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return defaultVal
	}
	return parseBoolEnv(key)
}
