// Package config loads moodboard settings from defaults, an optional YAML
// file, a .env file, MOODBOARD_* environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/manash/moodboard/internal/history"
	"github.com/manash/moodboard/internal/provider/gradio"
	"github.com/manash/moodboard/pkg/models"
)

const EnvPrefix = "MOODBOARD"

// Secret wraps a sensitive string so it never reaches logs or encoded output.
type Secret string

func (s Secret) String() string { return "[REDACTED]" }

func (s Secret) GoString() string { return "[REDACTED]" }

func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

type Backend struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           Secret        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	GenerateTemplate string        `mapstructure:"generate_template"`
	EditTemplate     string        `mapstructure:"edit_template"`
}

type AutoPlay struct {
	Interval time.Duration `mapstructure:"interval"`
}

type Server struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type UI struct {
	MacShortcuts bool `mapstructure:"mac_shortcuts"`
}

type Config struct {
	Backend   Backend  `mapstructure:"backend"`
	Model     string   `mapstructure:"model"`
	Reasoning bool     `mapstructure:"reasoning"`
	Verbose   bool     `mapstructure:"verbose"`
	AutoPlay  AutoPlay `mapstructure:"autoplay"`
	Server    Server   `mapstructure:"server"`
	Log       Log      `mapstructure:"log"`
	UI        UI       `mapstructure:"ui"`
}

func Default() Config {
	return Config{
		Backend: Backend{
			BaseURL: gradio.DefaultBaseURL,
			Timeout: 120 * time.Second,
		},
		Model:     models.DefaultRegistry().Default(),
		Reasoning: true,
		AutoPlay:  AutoPlay{Interval: history.DefaultAutoPlayInterval},
		Server: Server{
			Addr:        "127.0.0.1:8080",
			CORSOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		},
		// An empty format lets each command pick: text for terminals, JSON for serve.
		Log: Log{Level: "info"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/moodboard/config.yaml, falling back to
// the user config directory.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
	}
	return filepath.Join(dir, "moodboard", "config.yaml"), nil
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":      "backend.base_url",
	"api-key":       "backend.api_key",
	"timeout":       "backend.timeout",
	"model":         "model",
	"reasoning":     "reasoning",
	"verbose":       "verbose",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"addr":          "server.addr",
	"interval":      "autoplay.interval",
	"mac-shortcuts": "ui.mac_shortcuts",
}

// Load resolves configuration. A missing file is not an error, but an explicit
// path that cannot be read is. Flags that were set on the command line win over
// every other source.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	// .env is optional.
	_ = godotenv.Load()

	def := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("backend.base_url", def.Backend.BaseURL)
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", def.Backend.Timeout)
	v.SetDefault("backend.generate_template", "")
	v.SetDefault("backend.edit_template", "")
	v.SetDefault("model", def.Model)
	v.SetDefault("reasoning", def.Reasoning)
	v.SetDefault("verbose", false)
	v.SetDefault("autoplay.interval", def.AutoPlay.Interval)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.cors_origins", def.Server.CORSOrigins)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("ui.mac_shortcuts", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case !explicit && errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("backend.base_url %q must be an absolute URL", c.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got %q", u.Scheme)
	}
	if err := models.DefaultRegistry().Validate(c.Model); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %s", c.Backend.Timeout)
	}
	if c.AutoPlay.Interval <= 0 {
		return fmt.Errorf("autoplay.interval must be positive, got %s", c.AutoPlay.Interval)
	}
	return nil
}
