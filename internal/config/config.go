package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "DISCERNER"

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Vision    VisionConfig    `mapstructure:"vision"`
	Retention RetentionConfig `mapstructure:"retention"`
	Fusion    FusionConfig    `mapstructure:"fusion"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int64    `mapstructure:"max_upload_mb"`
}

type DatabaseConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// Enabled reports whether analyses are persisted.
func (d DatabaseConfig) Enabled() bool {
	return d.DSN != ""
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type VisionConfig struct {
	Classifier         string        `mapstructure:"classifier"`
	TextExtractor      string        `mapstructure:"text_extractor"`
	GCPCredentialsFile string        `mapstructure:"gcp_credentials_file"`
	Languages          []string      `mapstructure:"languages"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type RetentionConfig struct {
	Days     int           `mapstructure:"days"`
	Interval time.Duration `mapstructure:"interval"`
}

type FusionConfig struct {
	Patterns []PatternConfig `mapstructure:"patterns"`
}

// PatternConfig overrides one vehicle pattern. When any pattern is
// configured the built-in table is replaced as a whole.
type PatternConfig struct {
	Name               string   `mapstructure:"name"`
	VisualRequirements []string `mapstructure:"visual_requirements"`
	TextPatterns       []string `mapstructure:"text_patterns"`
	ConfidenceBase     float64  `mapstructure:"confidence_base"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.max_upload_mb", 10)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("vision.classifier", "mock")
	v.SetDefault("vision.text_extractor", "mock")
	v.SetDefault("vision.gcp_credentials_file", "")
	v.SetDefault("vision.languages", []string{"eng"})
	v.SetDefault("vision.timeout", 30*time.Second)
	v.SetDefault("retention.days", 30)
	v.SetDefault("retention.interval", 24*time.Hour)
}

// Load reads configuration from path (optional) and DISCERNER_* environment
// variables, e.g. DISCERNER_DATABASE_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Vision.Classifier {
	case "mock", "gcp":
	default:
		return fmt.Errorf("unknown vision.classifier %q", c.Vision.Classifier)
	}
	switch c.Vision.TextExtractor {
	case "mock", "gcp", "tesseract":
	default:
		return fmt.Errorf("unknown vision.text_extractor %q", c.Vision.TextExtractor)
	}
	if (c.Vision.Classifier == "gcp" || c.Vision.TextExtractor == "gcp") && c.Vision.GCPCredentialsFile == "" {
		return errors.New("vision.gcp_credentials_file is required for the gcp provider")
	}
	if c.HTTP.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	if c.Retention.Days < 0 {
		return errors.New("retention.days must not be negative")
	}
	return nil
}
