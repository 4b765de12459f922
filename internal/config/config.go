// Package config loads bot settings from the environment, reading a .env
// file first when one exists.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken   string   `env:"DISCORD_TOKEN,required,notEmpty"`
	OwnerIDs       []string `env:"OWNER_IDS" envSeparator:","`
	GuildBlacklist []string `env:"GUILD_BLACKLIST" envSeparator:","`
	StoragePath    string   `env:"STORAGE_PATH" envDefault:"datastore.json"`

	CommandsDir    string   `env:"COMMANDS_DIR" envDefault:"modules/commands"`
	InhibitorsDir  string   `env:"INHIBITORS_DIR" envDefault:"modules/inhibitors"`
	ModulePatterns []string `env:"MODULE_PATTERNS" envSeparator:"," envDefault:"**/*.yaml,**/*.yml,**/*.toml,**/*.json"`
	AutoCategorize bool     `env:"AUTO_CATEGORIZE" envDefault:"true"`
	WatchModules   bool     `env:"WATCH_MODULES" envDefault:"false"`

	BlockClient     bool          `env:"BLOCK_CLIENT" envDefault:"true"`
	BlockBots       bool          `env:"BLOCK_BOTS" envDefault:"true"`
	SkipBuiltInPost bool          `env:"SKIP_BUILTIN_POST_INHIBITORS" envDefault:"false"`
	ExecTimeout     time.Duration `env:"EXEC_TIMEOUT" envDefault:"0s"`
	DefaultCooldown time.Duration `env:"DEFAULT_COOLDOWN" envDefault:"0s"`
	SyncCommands    bool          `env:"SYNC_COMMANDS" envDefault:"true"`
	SyncGuildID     string        `env:"SYNC_GUILD_ID"`

	// User ids exempt from permission checks and cooldowns of commands that
	// set no rule of their own.
	IgnorePermissions []string `env:"IGNORE_PERMISSIONS" envSeparator:","`
	IgnoreCooldown    []string `env:"IGNORE_COOLDOWN" envSeparator:","`

	// StatusAddr enables the HTTP status page, e.g. ":8787".
	StatusAddr string `env:"STATUS_ADDR"`

	Log  Log  `envPrefix:"LOG_"`
	OTel OTel `envPrefix:"OTEL_"`
}

type Log struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"3"`
	Pretty     bool   `env:"PRETTY" envDefault:"true"`
}

type OTel struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	Endpoint    string `env:"ENDPOINT"`
	Insecure    bool   `env:"INSECURE" envDefault:"false"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"modkit"`
}

// Load reads the given .env files (".env" when none are named) and parses
// the environment. A missing .env file is reported through dotenvMissing
// but is not an error.
func Load(files ...string) (cfg *Config, dotenvMissing bool, err error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("load .env: %w", err)
		}
		dotenvMissing = true
	}

	cfg, err = Parse()
	return cfg, dotenvMissing, err
}

// Parse reads Config from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// ParseOffline is Parse without the token requirement, for tools that never
// connect to Discord.
func ParseOffline() (*Config, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	if environ["DISCORD_TOKEN"] == "" {
		environ["DISCORD_TOKEN"] = "offline"
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}
