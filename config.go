package marley

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// DefaultTheme is used when the configuration names no theme.
const DefaultTheme = "default"

// Config is the blog configuration, read from config.yml.
type Config struct {
	Blog struct {
		Title  string `yaml:"title"`
		Name   string `yaml:"name"`
		Author string `yaml:"author"`
		URL    string `yaml:"url"`
	} `yaml:"blog"`
	DataDirectory   string `yaml:"data_directory" validate:"required"`
	Theme           string `yaml:"theme"`
	ThemesDirectory string `yaml:"themes_directory"`
	// Memcached is a comma separated server list; empty keeps the cache in memory.
	Memcached string `yaml:"memcached"`
	// CacheEntries bounds the in-memory cache.
	CacheEntries int    `yaml:"cache_entries" validate:"gte=0"`
	TZ           string `yaml:"tz"`
	Akismet      struct {
		Key string `yaml:"key"`
		URL string `yaml:"url"`
	} `yaml:"akismet"`
	Listen       string `yaml:"listen" validate:"required"`
	PostsPerPage int    `yaml:"posts_per_page" validate:"gte=0"`
	PopularLimit int    `yaml:"popular_limit" validate:"gte=0"`
	Related      struct {
		Limit   int    `yaml:"limit" validate:"gte=0"`
		Field   string `yaml:"field"`
		Stemmer string `yaml:"stemmer" validate:"omitempty,oneof=porter porter2 snowball"`
	} `yaml:"related"`
	Finders  []string `yaml:"finders"`
	LogLevel string   `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Revision string   `yaml:"revision"`
}

// DefaultConfig returns the configuration used for anything config.yml leaves out.
func DefaultConfig() *Config {
	cfg := &Config{
		DataDirectory: "data",
		Theme:         DefaultTheme,
		TZ:            "UTC",
		Listen:        ":4567",
		PostsPerPage:  15,
		PopularLimit:  DefaultPopularLimit,
		Finders:       []string{"screencasts"},
		LogLevel:      "info",
		CacheEntries:  DefaultMemoryEntries,
	}
	cfg.Blog.Title = "Marley"
	cfg.Blog.Name = "Marley"
	cfg.Related.Limit = DefaultRelatedLimit
	cfg.Related.Field = DefaultRelatedField
	cfg.Related.Stemmer = "porter"
	return cfg
}

// LoadConfig reads path over the defaults, then applies environment
// overrides. A missing file is not an error; the empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, errors.Wrapf(err, "decode config %s", path)
			}
			// relative data and theme directories are resolved from the config file
			base := filepath.Dir(path)
			cfg.DataDirectory = resolve(base, cfg.DataDirectory)
			cfg.ThemesDirectory = resolve(base, cfg.ThemesDirectory)
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	for env, dst := range map[string]*string{
		"MARLEY_DATA_DIR":  &cfg.DataDirectory,
		"MARLEY_LISTEN":    &cfg.Listen,
		"MARLEY_MEMCACHED": &cfg.Memcached,
		"MARLEY_LOG_LEVEL": &cfg.LogLevel,
		"MARLEY_THEME":     &cfg.Theme,
		"AKISMET_KEY":      &cfg.Akismet.Key,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Related.Stemmer = strings.ToLower(cfg.Related.Stemmer)
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Location is the time zone of publish stamps in directory names.
func (c *Config) Location() (*time.Location, error) {
	if c.TZ == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TZ)
	return loc, errors.Wrapf(err, "time zone %q", c.TZ)
}

// ThemeDirectory is the directory of the configured theme, empty when there
// is no themes directory.
func (c *Config) ThemeDirectory() string {
	if c.ThemesDirectory == "" {
		return ""
	}
	theme := c.Theme
	if theme == "" {
		theme = DefaultTheme
	}
	return filepath.Join(c.ThemesDirectory, theme)
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
