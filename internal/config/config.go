// Package config loads the bot configuration from YAML, a .env file and the
// process environment, in that order of precedence (last wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings of the swablu bot.
type Config struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Assets    AssetsConfig    `yaml:"assets"`
	Render    RenderConfig    `yaml:"render"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
}

// DiscordConfig holds chat gateway settings.
type DiscordConfig struct {
	Token string `yaml:"token" validate:"required"`

	// ChannelFloorGenerator is the only channel the floor bot listens to.
	ChannelFloorGenerator uint64 `yaml:"channel_floor_generator" validate:"required"`

	// WritesEnabled gates every outgoing write. With writes off the bot
	// connects but stays silent.
	WritesEnabled bool `yaml:"writes_enabled"`

	APIBaseURL string `yaml:"api_base_url" validate:"required,url"`
	GatewayURL string `yaml:"gateway_url" validate:"required,url"`
}

// AssetsConfig points at the extracted ROM assets.
type AssetsConfig struct {
	TilesetPath string `yaml:"tileset_path" validate:"required"`
}

// RenderConfig holds render worker settings.
type RenderConfig struct {
	Workers int           `yaml:"workers" validate:"min=1,max=64"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// RateLimitConfig limits render requests per author. Rate uses the
// "<limit>-<period>" notation, e.g. "5-M" for five per minute.
type RateLimitConfig struct {
	Rate string `yaml:"rate" validate:"required"`
}

// DatabaseConfig selects and configures the relational store.
type DatabaseConfig struct {
	Driver     string         `yaml:"driver" validate:"oneof=sqlite postgres"`
	SQLitePath string         `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=0,max=65535"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultConfig returns a Config with working defaults for everything but
// the secrets.
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			APIBaseURL: "https://discord.com/api/v10",
			GatewayURL: "wss://gateway.discord.gg/?v=10&encoding=json",
		},
		Assets: AssetsConfig{
			TilesetPath: "assets",
		},
		Render: RenderConfig{
			Workers: 2,
			Timeout: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Rate: "5-M",
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "data/swablu.db",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				SSLMode:         "disable",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
	}
}

// Load reads the YAML file at path (a missing file means defaults), then the
// .env file in the working directory, then the environment, and validates
// the result.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	// A missing .env is fine; the variables may come from the environment.
	_ = godotenv.Load()

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var validate = validator.New()

// Validate checks the struct tags and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(fields, ", "))
}

func (c *Config) applyEnv() {
	c.Discord.Token = getEnv("DISCORD_BOT_USER_TOKEN", c.Discord.Token)
	c.Discord.ChannelFloorGenerator = getUintEnv("DISCORD_CHANNEL_FLOOR_GENERATOR_BOT", c.Discord.ChannelFloorGenerator)
	c.Discord.WritesEnabled = getBoolEnv("ENABLE_DISCORD_WRITES", c.Discord.WritesEnabled)
	c.Discord.APIBaseURL = getEnv("DISCORD_API_BASE_URL", c.Discord.APIBaseURL)
	c.Discord.GatewayURL = getEnv("DISCORD_GATEWAY_URL", c.Discord.GatewayURL)

	c.Assets.TilesetPath = getEnv("EOS_DUNGEONS_TILESET_PATH", c.Assets.TilesetPath)

	c.Render.Workers = getIntEnv("RENDER_WORKERS", c.Render.Workers)
	c.Render.Timeout = getDurationEnv("RENDER_TIMEOUT", c.Render.Timeout)
	c.RateLimit.Rate = getEnv("RENDER_RATE_LIMIT", c.RateLimit.Rate)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.SQLitePath = getEnv("DB_SQLITE_PATH", c.Database.SQLitePath)
	pg := &c.Database.Postgres
	pg.Host = getEnv("DB_HOST", pg.Host)
	pg.Port = getIntEnv("DB_PORT", pg.Port)
	pg.User = getEnv("DB_USER", pg.User)
	pg.Password = getEnv("DB_PASSWORD", pg.Password)
	pg.Database = getEnv("DB_NAME", pg.Database)
	pg.SSLMode = getEnv("DB_SSLMODE", pg.SSLMode)
	pg.MaxOpenConns = getIntEnv("DB_MAX_OPEN_CONNS", pg.MaxOpenConns)
	pg.MaxIdleConns = getIntEnv("DB_MAX_IDLE_CONNS", pg.MaxIdleConns)
	pg.ConnMaxLifetime = getDurationEnv("DB_CONN_MAX_LIFETIME", pg.ConnMaxLifetime)
}

// Helpers for environment variable access. Unparseable values keep the
// current setting.

func getEnv(key, current string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return current
}

func getIntEnv(key string, current int) int {
	v := os.Getenv(key)
	if v == "" {
		return current
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return current
	}
	return n
}

func getUintEnv(key string, current uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return current
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return current
	}
	return n
}

// getBoolEnv accepts "0"/"1" as the original deployment scripts use, plus
// anything strconv.ParseBool understands.
func getBoolEnv(key string, current bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return current
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return current
	}
	return b
}

func getDurationEnv(key string, current time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return current
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return current
	}
	return d
}
