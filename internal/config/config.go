// Package config loads settings from an optional YAML file and the
// environment. Variables from the original deployment (GOLOGIN_TOKEN,
// API_URL, DB_*) are honoured next to the SWEEPER_ prefixed ones.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/polzovatel/outlook-sweeper/internal/outlook"
)

const EnvPrefix = "SWEEPER"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	GoLogin  GoLoginConfig  `mapstructure:"gologin"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Outlook  OutlookConfig  `mapstructure:"outlook"`
	Run      RunConfig      `mapstructure:"run"`
	Paths    PathsConfig    `mapstructure:"paths"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// URL is the connection string: DSN when set, otherwise one assembled from
// the individual fields. Empty means no database is configured.
func (d DatabaseConfig) URL() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Host == "" || d.Name == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

type GoLoginConfig struct {
	Token         string        `mapstructure:"token"`
	APIURL        string        `mapstructure:"api_url"`
	LocalURL      string        `mapstructure:"local_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	StartInterval time.Duration `mapstructure:"start_interval"`
}

type BrowserConfig struct {
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	TypingDelay    time.Duration `mapstructure:"typing_delay"`
	Locale         string        `mapstructure:"locale"`
}

type OutlookConfig struct {
	URL             string        `mapstructure:"url"`
	TargetDomains   []string      `mapstructure:"target_domains"`
	LoginAttempts   int           `mapstructure:"login_attempts"`
	LoginRetryDelay time.Duration `mapstructure:"login_retry_delay"`
	MaxScrolls      int           `mapstructure:"max_scrolls"`
	ArchiveRounds   int           `mapstructure:"archive_rounds"`
	JitterMin       time.Duration `mapstructure:"jitter_min"`
	JitterMax       time.Duration `mapstructure:"jitter_max"`
}

type RunConfig struct {
	Flow          string        `mapstructure:"flow"`
	Input         string        `mapstructure:"input"`
	Concurrency   int           `mapstructure:"concurrency"`
	MaxAlternates int           `mapstructure:"max_alternates"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Seed          uint64        `mapstructure:"seed"`
}

type PathsConfig struct {
	InputDir    string `mapstructure:"input_dir"`
	Ledger      string `mapstructure:"ledger"`
	NewAccounts string `mapstructure:"new_accounts"`
	Results     string `mapstructure:"results"`
	Failures    string `mapstructure:"failures"`
	Screenshots string `mapstructure:"screenshots"`
	Reports     string `mapstructure:"reports"`
}

// legacyEnv maps config keys to the variable names used by existing .env
// files.
var legacyEnv = map[string]string{
	"gologin.token":     "GOLOGIN_TOKEN",
	"gologin.api_url":   "API_URL",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.name":     "DB_NAME",
	"database.user":     "DB_USER",
	"database.password": "DB_PASS",
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 14)
	v.SetDefault("log.compress", true)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("gologin.token", "")
	v.SetDefault("gologin.api_url", "https://api.gologin.com/browser")
	v.SetDefault("gologin.local_url", "http://127.0.0.1:36912")
	v.SetDefault("gologin.timeout", "60s")
	v.SetDefault("gologin.start_interval", "2s")

	v.SetDefault("browser.nav_timeout", "40s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.connect_timeout", "30s")
	v.SetDefault("browser.typing_delay", "100ms")
	v.SetDefault("browser.locale", "en-US")

	v.SetDefault("outlook.url", outlook.DefaultURL)
	v.SetDefault("outlook.target_domains", []string{"franco"})
	v.SetDefault("outlook.login_attempts", 3)
	v.SetDefault("outlook.login_retry_delay", "5s")
	v.SetDefault("outlook.max_scrolls", 5)
	v.SetDefault("outlook.archive_rounds", 20)
	v.SetDefault("outlook.jitter_min", "500ms")
	v.SetDefault("outlook.jitter_max", "2s")

	v.SetDefault("run.flow", string(outlook.FlowJunk))
	v.SetDefault("run.input", "")
	v.SetDefault("run.concurrency", 3)
	v.SetDefault("run.max_alternates", 2)
	v.SetDefault("run.retry_delay", "5s")
	v.SetDefault("run.seed", 0)

	v.SetDefault("paths.input_dir", "emails")
	v.SetDefault("paths.ledger", "emails/profiles.csv")
	v.SetDefault("paths.new_accounts", "emails/emails_to_profiles.csv")
	v.SetDefault("paths.results", "results.csv")
	v.SetDefault("paths.failures", "failed_accounts.log")
	v.SetDefault("paths.screenshots", "screenshots")
	v.SetDefault("paths.reports", "logs")
}

// Loader owns the viper instance so commands can bind their flags to it
// before loading.
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, legacy)
	}
	return &Loader{v: v}
}

func (l *Loader) Viper() *viper.Viper { return l.v }

// Load reads path, or ./sweeper.yaml when path is empty and the file
// exists, then applies the environment and validates the result.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.AddConfigPath(".")
		l.v.SetConfigName("sweeper")
		l.v.SetConfigType("yaml")
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := outlook.ParseFlow(c.Run.Flow); err != nil {
		return err
	}
	if c.Run.Concurrency <= 0 {
		return errors.New("run.concurrency must be a positive integer")
	}
	if c.Run.MaxAlternates < 0 {
		return errors.New("run.max_alternates must not be negative")
	}
	if c.Outlook.JitterMax < c.Outlook.JitterMin {
		return errors.New("outlook.jitter_max must not be below outlook.jitter_min")
	}
	return nil
}

// Flow is the validated run flow.
func (c *Config) Flow() outlook.Flow {
	f, _ := outlook.ParseFlow(c.Run.Flow)
	return f
}

// InputFile is the target list for the configured flow.
func (c *Config) InputFile() string {
	if c.Run.Input != "" {
		return c.Run.Input
	}
	return c.Flow().InputFile(c.Paths.InputDir)
}

// RequireToken fails when no GoLogin token is configured.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.GoLogin.Token) == "" {
		return errors.New("GOLOGIN_TOKEN is not set")
	}
	return nil
}
