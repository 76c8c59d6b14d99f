package engine

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stayswap/engine/engine/database"
	"github.com/stayswap/engine/engine/services"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log      LogConfig             `toml:"log"`
	DB       database.DBConfig     `toml:"db"`
	Cache    CacheConfig           `toml:"cache"`
	Matching MatchingConfig        `toml:"matching"`
	Auction  AuctionConfig         `toml:"auction"`
	Redis    *services.RedisConfig `toml:"redis"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	AddSource bool       `toml:"add_source"`
}

type CacheConfig struct {
	TTLMinutes int `toml:"ttl_minutes"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type MatchingConfig struct {
	MaxCycleDepth int `toml:"max_cycle_depth"`
}

type AuctionConfig struct {
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

func (c AuctionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
