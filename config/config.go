package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "STORYWEAVE_"

// Config holds all configuration for the application
type Config struct {
	// Story content configuration
	Stories StoriesConfig `json:"stories"`

	// Database configuration
	Database DatabaseConfig `json:"database"`

	// Game configuration
	Game GameConfig `json:"game"`

	// Server configuration
	Server ServerConfig `json:"server"`
}

// StoriesConfig holds story content configuration
type StoriesConfig struct {
	// Directory of story JSON files
	Dir string `json:"dir" env:"STORIES_DIR"`

	// Language used when the client does not ask for one
	DefaultLanguage string `json:"default_language" env:"STORIES_DEFAULT_LANGUAGE"`

	// Language tried after the requested one
	FallbackLanguage string `json:"fallback_language" env:"STORIES_FALLBACK_LANGUAGE"`

	// Load every story at startup instead of on first use
	Preload bool `json:"preload" env:"STORIES_PRELOAD"`
}

// DatabaseConfig holds database specific configuration
type DatabaseConfig struct {
	// Player store driver (file, sqlite3)
	Driver string `json:"driver" env:"DATABASE_DRIVER"`

	// Database connection string for sqlite3
	DSN string `json:"dsn" env:"DATABASE_DSN"`

	// Directory for the file driver
	Dir string `json:"dir" env:"DATABASE_DIR"`
}

// GameConfig holds game specific configuration
type GameConfig struct {
	// Attributes every new player starts with
	DefaultAttributes map[string]int `json:"default_attributes" env:"GAME_DEFAULT_ATTRIBUTES"`

	// Upper bound on chain reaction resolution passes
	MaxChainPasses int `json:"max_chain_passes" env:"GAME_MAX_CHAIN_PASSES"`

	// Where world state lives (player, shared)
	WorldStateScope string `json:"world_state_scope" env:"GAME_WORLD_STATE_SCOPE"`

	// Skill check RNG seed, 0 picks one from the clock
	RNGSeed int64 `json:"rng_seed" env:"GAME_RNG_SEED"`
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	// Server port
	Port string `json:"port" env:"PORT"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" env:"LOG_LEVEL"`

	// Per-subscriber event buffer
	EventBuffer int `json:"event_buffer" env:"EVENT_BUFFER"`

	// Request timeout in seconds
	RequestTimeout int `json:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Stories: StoriesConfig{
			Dir:              "./stories",
			DefaultLanguage:  "en",
			FallbackLanguage: "en",
			Preload:          true,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "./data/storyweave.db",
			Dir:    "./data/players",
		},
		Game: GameConfig{
			DefaultAttributes: map[string]int{},
			MaxChainPasses:    8,
			WorldStateScope:   "player",
			RNGSeed:           0,
		},
		Server: ServerConfig{
			Port:           "8080",
			LogLevel:       "info",
			EventBuffer:    64,
			RequestTimeout: 60,
		},
	}
}

// Load reads the config file, then a .env file if present, then applies
// STORYWEAVE_* environment overrides
func Load(path string) (Config, error) {
	config, err := LoadConfig(path)
	if err != nil {
		return config, err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("load .env: %w", err)
	}
	if err := ApplyEnv(&config); err != nil {
		return config, err
	}
	return config, nil
}

// ApplyEnv overrides fields whose environment variable is set
func ApplyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks values the application cannot start without
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "file", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Game.WorldStateScope {
	case "player", "shared":
	default:
		return fmt.Errorf("unsupported world state scope %q", c.Game.WorldStateScope)
	}
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	return nil
}

// LoadConfig loads configuration from a file
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return config, err
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Create default config file
		if err := SaveConfig(config, path); err != nil {
			return config, err
		}
		return config, nil
	}

	// Read config file
	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Create or truncate file
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Write config to file
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(config)
}
