// Package config loads server settings from defaults, an optional file and
// PLANETFALL_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "PLANETFALL"

type ServerConfig struct {
	Addr              string  `mapstructure:"addr"`
	TCPAddr           string  `mapstructure:"tcpAddr"`
	PublicURL         string  `mapstructure:"publicUrl"`
	MaxConnsPerIP     int     `mapstructure:"maxConnsPerIp"`
	MaxConns          int     `mapstructure:"maxConns"`
	SendBuffer        int     `mapstructure:"sendBuffer"`
	MessagesPerSecond float64 `mapstructure:"messagesPerSecond"`
	MessageBurst      int     `mapstructure:"messageBurst"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	TokenTTL         time.Duration `mapstructure:"tokenTtl"`
	BcryptCost       int           `mapstructure:"bcryptCost"`
	MaxLoginAttempts int           `mapstructure:"maxLoginAttempts"`
	LoginWindow      time.Duration `mapstructure:"loginWindow"`
}

type SimConfig struct {
	TickRate int `mapstructure:"tickRate"`
	// RespawnDelay is how long a destroyed player ship stays out of play
	RespawnDelay time.Duration `mapstructure:"respawnDelay"`
}

type GameConfig struct {
	Capacity   int     `mapstructure:"capacity"`
	GalaxySeed uint64  `mapstructure:"galaxySeed"`
	SpaceSize  float64 `mapstructure:"spaceSize"`
}

type AIConfig struct {
	Patrols      int           `mapstructure:"patrols"`
	RespawnDelay time.Duration `mapstructure:"respawnDelay"`
	Guardians    bool          `mapstructure:"guardians"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Config is the full server configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Sim      SimConfig      `mapstructure:"sim"`
	Game     GameConfig     `mapstructure:"game"`
	AI       AIConfig       `mapstructure:"ai"`
	Log      LogConfig      `mapstructure:"log"`
}

func setDefaults() {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.tcpAddr", ":9000")
	viper.SetDefault("server.publicUrl", "")
	viper.SetDefault("server.maxConnsPerIp", 5)
	viper.SetDefault("server.maxConns", 1000)
	viper.SetDefault("server.sendBuffer", 256)
	viper.SetDefault("server.messagesPerSecond", 50)
	viper.SetDefault("server.messageBurst", 100)

	viper.SetDefault("database.path", "planetfall.db")

	viper.SetDefault("auth.tokenTtl", "168h")
	viper.SetDefault("auth.bcryptCost", 12)
	viper.SetDefault("auth.maxLoginAttempts", 10)
	viper.SetDefault("auth.loginWindow", "60s")

	viper.SetDefault("sim.tickRate", 60)
	viper.SetDefault("sim.respawnDelay", "3s")

	viper.SetDefault("game.capacity", 16)
	viper.SetDefault("game.galaxySeed", 1)
	viper.SetDefault("game.spaceSize", 40000)

	viper.SetDefault("ai.patrols", 2)
	viper.SetDefault("ai.respawnDelay", "30s")
	viper.SetDefault("ai.guardians", true)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c Config) Validate() error {
	if c.Sim.TickRate <= 0 || c.Sim.TickRate > 1000 {
		return fmt.Errorf("sim.tickRate must be in 1..1000, got %d", c.Sim.TickRate)
	}
	if c.Game.Capacity <= 0 {
		return fmt.Errorf("game.capacity must be positive, got %d", c.Game.Capacity)
	}
	if c.Game.SpaceSize <= 0 {
		return fmt.Errorf("game.spaceSize must be positive, got %v", c.Game.SpaceSize)
	}
	if c.Server.SendBuffer <= 0 {
		return fmt.Errorf("server.sendBuffer must be positive, got %d", c.Server.SendBuffer)
	}
	if c.AI.Patrols < 0 {
		return fmt.Errorf("ai.patrols must not be negative, got %d", c.AI.Patrols)
	}
	return nil
}
