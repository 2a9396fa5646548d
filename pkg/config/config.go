package config

import (
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Config holds all read-only settings. Values come from defaults, then the
// YAML config file (if it exists), then SOPDS_* environment variables.
type Config struct {
	LibraryPath string `koanf:"library_path" default:"./books"`
	CoverPath   string `koanf:"cover_path" default:"./covers"`

	DatabaseFilePath          string        `koanf:"database_file_path" default:"./sopds.db"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`

	ServerHost string `koanf:"server_host"`
	ServerPort int    `koanf:"server_port" default:"8081"`

	// Formats lists the file extensions (without dot) indexed by the scanner.
	Formats        []string `koanf:"formats" default:"[\"fb2\",\"epub\",\"mobi\"]"`
	ScanZips       bool     `koanf:"scan_zips" default:"true"`
	RescanZips     bool     `koanf:"rescan_zips"`
	ExtractCovers  bool     `koanf:"extract_covers" default:"true"`
	FindDuplicates bool     `koanf:"find_duplicates" default:"true"`
	ShowDuplicates bool     `koanf:"show_duplicates"`

	// MaxItems is the feed page size. SplitAuthors and SplitTitles are the
	// bucket-splitting thresholds for the alphabetical indexes; 0 disables
	// bucketing entirely.
	MaxItems     int `koanf:"max_items" default:"50"`
	SplitAuthors int `koanf:"split_authors" default:"300"`
	SplitTitles  int `koanf:"split_titles" default:"300"`

	StateFilePath string `koanf:"state_file_path" default:"./sopds-state.json"`
}

const envPrefix = "SOPDS_"

// New loads the configuration. An empty path skips the config file and uses
// defaults plus environment variables only.
func New(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "failed to load config file %s", path)
			}
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	return cfg, nil
}

// FormatSet returns the configured formats as a lookup set of lowercased
// extensions.
func (cfg *Config) FormatSet() map[string]bool {
	set := make(map[string]bool, len(cfg.Formats))
	for _, f := range cfg.Formats {
		set[strings.ToLower(strings.TrimPrefix(f, "."))] = true
	}
	return set
}
