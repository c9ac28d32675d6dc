package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Import     ImportConfig     `mapstructure:"import"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Log        LogConfig        `mapstructure:"log"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RulesConfig points at the active rule set, the pending set and the backup directory.
type RulesConfig struct {
	Path        string `mapstructure:"path"`
	PendingPath string `mapstructure:"pending_path"`
	BackupDir   string `mapstructure:"backup_dir"`
}

// ImportConfig controls the ingestion run.
type ImportConfig struct {
	Strict        bool   `mapstructure:"strict"`
	ReferenceYear int    `mapstructure:"reference_year"`
	MaxAgeYears   int    `mapstructure:"max_age_years"`
	FutureDays    int    `mapstructure:"future_days"`
	ManifestDir   string `mapstructure:"manifest_dir"`
}

// ClassifierConfig holds the statistical fallback settings.
type ClassifierConfig struct {
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	MinExamples     int     `mapstructure:"min_examples"`
}

// OCRConfig holds the recognition fallback settings.
type OCRConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Languages  []string `mapstructure:"languages"`
	DPI        float64  `mapstructure:"dpi"`
	HeaderCrop bool     `mapstructure:"header_crop"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func dataDir() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "ledgerkit")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(dataDir(), "ledgerkit.db"))
	v.SetDefault("rules.path", filepath.Join(dataDir(), "rules.yml"))
	v.SetDefault("rules.pending_path", filepath.Join(dataDir(), "rules.pending.yml"))
	v.SetDefault("rules.backup_dir", filepath.Join(dataDir(), "backups"))
	v.SetDefault("import.strict", false)
	v.SetDefault("import.reference_year", 0)
	v.SetDefault("import.max_age_years", 10)
	v.SetDefault("import.future_days", 45)
	v.SetDefault("import.manifest_dir", "")
	v.SetDefault("classifier.confidence_floor", 0.70)
	v.SetDefault("classifier.min_examples", 5)
	v.SetDefault("ocr.enabled", true)
	v.SetDefault("ocr.languages", []string{"spa", "eng"})
	v.SetDefault("ocr.dpi", 216.0)
	v.SetDefault("ocr.header_crop", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration from file and env. Env var overrides use prefix LEDGERKIT_.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEDGERKIT_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledgerkit"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERKIT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicitly named file must exist; the default location is optional
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks ranges and required paths, returning every problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if strings.TrimSpace(c.Rules.Path) == "" {
		errs = append(errs, errors.New("rules.path is required"))
	}
	if strings.TrimSpace(c.Rules.PendingPath) == "" {
		errs = append(errs, errors.New("rules.pending_path is required"))
	}
	if strings.TrimSpace(c.Rules.BackupDir) == "" {
		errs = append(errs, errors.New("rules.backup_dir is required"))
	}
	if c.Classifier.ConfidenceFloor < 0 || c.Classifier.ConfidenceFloor > 1 {
		errs = append(errs, fmt.Errorf("classifier.confidence_floor must be within [0,1], got %v", c.Classifier.ConfidenceFloor))
	}
	if c.Classifier.MinExamples < 0 {
		errs = append(errs, fmt.Errorf("classifier.min_examples must not be negative, got %d", c.Classifier.MinExamples))
	}
	if c.Import.MaxAgeYears < 1 {
		errs = append(errs, fmt.Errorf("import.max_age_years must be at least 1, got %d", c.Import.MaxAgeYears))
	}
	if c.Import.FutureDays < 0 {
		errs = append(errs, fmt.Errorf("import.future_days must not be negative, got %d", c.Import.FutureDays))
	}
	if c.Import.ReferenceYear != 0 && (c.Import.ReferenceYear < 1900 || c.Import.ReferenceYear > 9999) {
		errs = append(errs, fmt.Errorf("import.reference_year out of range: %d", c.Import.ReferenceYear))
	}
	if c.OCR.Enabled {
		if len(c.OCR.Languages) == 0 {
			errs = append(errs, errors.New("ocr.languages must not be empty when ocr is enabled"))
		}
		if c.OCR.DPI <= 0 {
			errs = append(errs, fmt.Errorf("ocr.dpi must be positive, got %v", c.OCR.DPI))
		}
	}
	return errors.Join(errs...)
}
