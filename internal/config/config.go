package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// PublishConfig selects where downloaded lpp-sources are mirrored.
type PublishConfig struct {
	Provider         string `mapstructure:"provider"`
	Path             string `mapstructure:"path"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	Prefix           string `mapstructure:"prefix"`
	Endpoint         string `mapstructure:"endpoint"`
	CredentialsFile  string `mapstructure:"credentials_file"`
	AccountID        string `mapstructure:"account_id"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
	Concurrency      int    `mapstructure:"concurrency"`
}

type Config struct {
	SumaPath                string   `mapstructure:"suma_path"`
	RootDir                 string   `mapstructure:"root_dir"`
	CacheFile               string   `mapstructure:"cache_file"`
	Families                []string `mapstructure:"families"`
	MaxFailures             int      `mapstructure:"max_failures"`
	MiningConcurrency       int      `mapstructure:"mining_concurrency"`
	ProgressIntervalSeconds int      `mapstructure:"progress_interval_seconds"`
	MinFreeDiskGB           float64  `mapstructure:"min_free_disk_gb"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	AuditFile       string `mapstructure:"audit_file"`
	AuditMaxSizeMB  int    `mapstructure:"audit_max_size_mb"`
	AuditMaxBackups int    `mapstructure:"audit_max_backups"`

	Publish PublishConfig `mapstructure:"publish"`
}

func Default() *Config {
	return &Config{
		SumaPath:                "/usr/sbin/suma",
		RootDir:                 "aixautomation/suma",
		CacheFile:               "aixautomation/suma/sp_per_tl.yml",
		Families:                []string{"6.1", "7.1", "7.2"},
		MaxFailures:             3,
		MiningConcurrency:       1,
		ProgressIntervalSeconds: 1,
		LogLevel:                "info",
		LogFormat:               "text",
		LogMaxSizeMB:            50,
		LogMaxBackups:           3,
		AuditMaxSizeMB:          50,
		AuditMaxBackups:         3,
		Publish: PublishConfig{
			Provider:    "none",
			Concurrency: 4,
		},
	}
}

// Load reads the config file (explicit path, or suma.yaml in the default
// locations), then SUMA_* environment variables, optionally seeded from a
// .env file in the working directory. A missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("suma")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SUMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindEnv registers every key so AutomaticEnv also applies to Unmarshal,
// which only sees keys viper already knows about.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"suma_path", "root_dir", "cache_file", "families", "max_failures",
		"mining_concurrency", "progress_interval_seconds", "min_free_disk_gb",
		"log_level", "log_format", "log_file", "log_max_size_mb", "log_max_backups",
		"audit_file", "audit_max_size_mb", "audit_max_backups",
		"publish.provider", "publish.path", "publish.bucket", "publish.region",
		"publish.prefix", "publish.endpoint", "publish.credentials_file",
		"publish.account_id", "publish.account_key", "publish.connection_string",
		"publish.container", "publish.concurrency",
	} {
		_ = v.BindEnv(key)
	}
}

func configDir() string {
	if dir := os.Getenv("SUMA_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "/etc/suma-sync"
}
