// /internal/config/config.go
package config

import (
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime knobs. Values come from the environment,
// optionally seeded from a .env file in the working directory.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`

	// Persona identity. Character file is looked up at
	// {DataRoot}/character/{BotRole}.md.
	BotRole  string `env:"BOT_ROLE" envDefault:"muse"`
	DataRoot string `env:"DATA_ROOT" envDefault:"data"`

	// Guild settings + approvals live in the datastore file.
	StoragePath string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	// When set, chat memory is kept in Redis instead of JSON files.
	RedisAddr string `env:"REDIS_ADDR"`

	// AI engine, e.g. "pollinations", "g4f:gpt-oss-120b",
	// "g4f:groq/qwen/qwen3-32b", "pollinations-text".
	AIProvider        string   `env:"AI_PROVIDER" envDefault:"pollinations"`
	AIFallbackOrder   []string `env:"AI_FALLBACK_ORDER" envSeparator:"," envDefault:"g4f:gpt-oss-120b,pollinations-text"`
	AIFallbackEnabled bool     `env:"AI_FALLBACK_ENABLED" envDefault:"true"`
	AITemperature     float64  `env:"AI_TEMPERATURE" envDefault:"1.0"`
	AIMaxTokens       int      `env:"AI_MAX_TOKENS" envDefault:"800"`

	// Presence simulation.
	ActiveHourStart int `env:"ACTIVE_HOUR_START" envDefault:"9"`
	ActiveHourEnd   int `env:"ACTIVE_HOUR_END" envDefault:"23"`
	HourlyCap       int `env:"HOURLY_MESSAGE_CAP" envDefault:"60"`
	GuildHourlyCap  int `env:"GUILD_HOURLY_MESSAGE_CAP" envDefault:"30"`

	// Message batching window in milliseconds.
	BatchWindowMS int `env:"BATCH_WINDOW_MS" envDefault:"3000"`

	// Facts are distilled after this many exchanged turns per identity.
	ExtractBatchSize int `env:"EXTRACT_BATCH_SIZE" envDefault:"10"`

	// Probabilistic "didn't notice your DM" behavior.
	NaturalIgnore bool `env:"NATURAL_IGNORE" envDefault:"false"`

	DashboardAddr string `env:"DASHBOARD_ADDR" envDefault:":8471"`

	LogPath  string `env:"LOG_PATH" envDefault:""`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

// New parses configuration from the environment.
func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}
