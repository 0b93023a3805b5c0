// Package config loads service configuration from locus.yaml, LOCUS_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/locus-lens/locus/internal/detectors"
)

// EnvPrefix is prepended to every environment override, e.g. LOCUS_INDEX_HOST.
const EnvPrefix = "LOCUS"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Inference  InferenceConfig  `mapstructure:"inference"`
	Index      IndexConfig      `mapstructure:"index"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Isolation  IsolationConfig  `mapstructure:"isolation"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
}

// InferenceConfig locates the model server
type InferenceConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IndexConfig struct {
	Backend    string        `mapstructure:"backend"` // qdrant or memory
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	APIKey     string        `mapstructure:"api_key"`
	UseTLS     bool          `mapstructure:"use_tls"`
	Collection string        `mapstructure:"collection"`
	Dimension  int           `mapstructure:"dimension"`
	Limit      int           `mapstructure:"limit"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// CacheConfig controls the detection result cache
type CacheConfig struct {
	Backend  string        `mapstructure:"backend"` // none, memory or redis
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type DetectionConfig struct {
	Detectors         []detectors.Settings `mapstructure:"detectors"`
	IoUThreshold      float64              `mapstructure:"iou_threshold"`
	FallbackThreshold float64              `mapstructure:"fallback_threshold"`
}

type ClassifierConfig struct {
	Labels     []string `mapstructure:"labels"`
	LogitScale float64  `mapstructure:"logit_scale"`
}

type IsolationConfig struct {
	Remover           string  `mapstructure:"remover"` // remote or colorkey
	MaxSide           int     `mapstructure:"max_side"`
	CategoryThreshold float64 `mapstructure:"category_threshold"`
	Tolerance         float64 `mapstructure:"tolerance"`
	Feather           float64 `mapstructure:"feather"`
}

// IngestConfig drives catalog ingestion and the demo fetcher
type IngestConfig struct {
	ImageDir      string  `mapstructure:"image_dir"`
	Manifest      string  `mapstructure:"manifest"`
	MallDirectory string  `mapstructure:"mall_directory"`
	Mall          string  `mapstructure:"mall"`
	DefaultLevel  string  `mapstructure:"default_level"`
	DemoList      string  `mapstructure:"demo_list"`
	Provider      string  `mapstructure:"provider"` // empty, ollama, openai or gemini
	Model         string  `mapstructure:"model"`
	Temperature   float64 `mapstructure:"temperature"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.max_upload_size", 20<<20)

	v.SetDefault("inference.url", "http://localhost:9000")
	v.SetDefault("inference.timeout", 60*time.Second)

	v.SetDefault("index.backend", "qdrant")
	v.SetDefault("index.host", "localhost")
	v.SetDefault("index.port", 6334)
	v.SetDefault("index.api_key", "")
	v.SetDefault("index.use_tls", false)
	v.SetDefault("index.collection", "locus_items")
	v.SetDefault("index.dimension", 512)
	v.SetDefault("index.limit", 25)
	v.SetDefault("index.timeout", 30*time.Second)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("detection.detectors", []map[string]any{
		{"kind": "clothing"},
		{"kind": "accessory"},
	})
	v.SetDefault("detection.iou_threshold", 0.40)
	v.SetDefault("detection.fallback_threshold", 0.35)

	v.SetDefault("classifier.labels", []string{
		"dress", "pants", "jeans", "shirt", "t-shirt",
		"jacket", "coat", "shoes", "sneakers", "bag",
		"handbag", "skirt", "shorts", "hat", "glasses", "watch",
	})
	v.SetDefault("classifier.logit_scale", 100.0)

	v.SetDefault("isolation.remover", "remote")
	v.SetDefault("isolation.max_side", 512)
	v.SetDefault("isolation.category_threshold", 0.45)
	v.SetDefault("isolation.tolerance", 0.12)
	v.SetDefault("isolation.feather", 1.5)

	v.SetDefault("ingest.image_dir", "demo_images")
	v.SetDefault("ingest.manifest", "")
	v.SetDefault("ingest.mall_directory", "mall.yaml")
	v.SetDefault("ingest.mall", "ABC Achrafieh")
	v.SetDefault("ingest.default_level", "L1")
	v.SetDefault("ingest.demo_list", "demo_images.yaml")
	v.SetDefault("ingest.provider", "")
	v.SetDefault("ingest.model", "")
	v.SetDefault("ingest.temperature", 0.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration into a Config. configFile may be empty, in which
// case locus.yaml is looked up in the working directory and is optional.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("locus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("unknown index backend: %s", c.Index.Backend)
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}
	switch c.Isolation.Remover {
	case "remote", "colorkey":
	default:
		return fmt.Errorf("unknown background remover: %s", c.Isolation.Remover)
	}
	switch c.Ingest.Provider {
	case "", "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unknown ingest provider: %s", c.Ingest.Provider)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Log.Format)
	}
	if c.Index.Dimension <= 0 {
		return fmt.Errorf("index dimension must be positive")
	}
	if len(c.Classifier.Labels) == 0 {
		return fmt.Errorf("classifier needs at least one label")
	}
	if len(c.Detection.Detectors) == 0 {
		return fmt.Errorf("no detectors configured")
	}
	return nil
}
