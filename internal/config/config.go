// Package config loads flick settings from a TOML file and FLICK_ environment
// variables on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/metcalfc/flick/internal/reader"
)

// Config holds all application configuration
type Config struct {
	Reading ReadingConfig `mapstructure:"reading"`
	Library LibraryConfig `mapstructure:"library"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ReadingConfig holds playback settings
type ReadingConfig struct {
	WPM          int `mapstructure:"wpm"`
	MinWPM       int `mapstructure:"min_wpm"`
	MaxWPM       int `mapstructure:"max_wpm"`
	WordsPerPage int `mapstructure:"words_per_page"`
	// SaveEvery is the number of displayed tokens between progress saves
	// while playing. Zero saves only on pause, finish and close.
	SaveEvery int `mapstructure:"save_every"`
}

// LibraryConfig holds storage locations
type LibraryConfig struct {
	DBPath    string `mapstructure:"db_path"`
	CachePath string `mapstructure:"cache_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

const (
	defaultWPM       = 300
	defaultSaveEvery = 100
)

// Default returns the default configuration
func Default() *Config {
	state := StateDir()
	return &Config{
		Reading: ReadingConfig{
			WPM:          defaultWPM,
			MinWPM:       reader.DefaultMinWPM,
			MaxWPM:       reader.DefaultMaxWPM,
			WordsPerPage: reader.DefaultWordsPerPage,
			SaveEvery:    defaultSaveEvery,
		},
		Library: LibraryConfig{
			DBPath:    filepath.Join(state, "library.db"),
			CachePath: filepath.Join(state, "books.cache"),
		},
		Logging: LoggingConfig{
			File:  filepath.Join(state, "flick.log"),
			Level: "INFO",
		},
	}
}

// StateDir returns XDG_STATE_HOME/flick or ~/.local/state/flick
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "flick")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "flick")
}

// Dir returns XDG_CONFIG_HOME/flick or ~/.config/flick
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "flick")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "flick")
}

// Load reads configuration from path, or from config.toml in Dir when path
// is empty. A missing default file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(ExpandHome(path))
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix("FLICK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// the file does not mention it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("reading.wpm", cfg.Reading.WPM)
	v.SetDefault("reading.min_wpm", cfg.Reading.MinWPM)
	v.SetDefault("reading.max_wpm", cfg.Reading.MaxWPM)
	v.SetDefault("reading.words_per_page", cfg.Reading.WordsPerPage)
	v.SetDefault("reading.save_every", cfg.Reading.SaveEvery)
	v.SetDefault("library.db_path", cfg.Library.DBPath)
	v.SetDefault("library.cache_path", cfg.Library.CachePath)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

func (c *Config) normalize() {
	def := Default()

	r := &c.Reading
	if r.MinWPM <= 0 {
		r.MinWPM = def.Reading.MinWPM
	}
	if r.MaxWPM <= 0 {
		r.MaxWPM = def.Reading.MaxWPM
	}
	if r.MaxWPM < r.MinWPM {
		r.MinWPM, r.MaxWPM = r.MaxWPM, r.MinWPM
	}
	if r.WPM <= 0 {
		r.WPM = def.Reading.WPM
	}
	r.WPM = min(max(r.WPM, r.MinWPM), r.MaxWPM)
	if r.WordsPerPage <= 0 {
		r.WordsPerPage = def.Reading.WordsPerPage
	}
	if r.SaveEvery < 0 {
		r.SaveEvery = 0
	}

	if c.Library.DBPath == "" {
		c.Library.DBPath = def.Library.DBPath
	}
	c.Library.DBPath = ExpandHome(c.Library.DBPath)
	c.Library.CachePath = ExpandHome(c.Library.CachePath)

	if c.Logging.File == "" {
		c.Logging.File = def.Logging.File
	}
	c.Logging.File = ExpandHome(c.Logging.File)
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

// ExpandHome replaces a leading "~" or "~/" with the home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
