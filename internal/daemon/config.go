// Package daemon manages the Rise engine lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all engine configuration.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	API     APIConfig     `toml:"api"`
	Limits  LimitsConfig  `toml:"limits"`
	Batch   BatchConfig   `toml:"batch"`
	Streak  StreakConfig  `toml:"streak"`
}

// StorageConfig controls the data directory and retention.
type StorageConfig struct {
	Dir             string `toml:"dir"`
	RetentionMonths int    `toml:"retention_months"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	Metrics     bool     `toml:"metrics"`
}

// LimitsConfig controls the anti-abuse policy.
type LimitsConfig struct {
	DailyXPCap            int     `toml:"daily_xp_cap"`
	MaxSourceShare        float64 `toml:"max_source_share"`
	JournalBaseXP         int     `toml:"journal_base_xp"`
	JournalFullPositions  int     `toml:"journal_full_positions"`
	JournalBonusXP        int     `toml:"journal_bonus_xp"`
	JournalBonusPositions int     `toml:"journal_bonus_positions"`
}

// BatchConfig controls event and persistence coalescing.
type BatchConfig struct {
	WindowMS int `toml:"window_ms"`
	MaxSize  int `toml:"max_size"`
}

// StreakConfig controls the debt/freeze machinery.
type StreakConfig struct {
	AdsPerMissedDay int `toml:"ads_per_missed_day"`
	RepairRetries   int `toml:"repair_retries"`
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	home := riseHome()
	return Config{
		Storage: StorageConfig{
			Dir:             home,
			RetentionMonths: 24,
		},
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        7643,
			CORSOrigins: []string{"*"},
			Metrics:     true,
		},
		Limits: LimitsConfig{
			DailyXPCap:            500,
			MaxSourceShare:        0.8,
			JournalBaseXP:         20,
			JournalFullPositions:  3,
			JournalBonusXP:        8,
			JournalBonusPositions: 10,
		},
		Batch: BatchConfig{
			WindowMS: 250,
			MaxSize:  50,
		},
		Streak: StreakConfig{
			AdsPerMissedDay: 1,
			RepairRetries:   1,
			CacheTTLSeconds: 30,
		},
	}
}

// Window returns the batch window as a duration.
func (b BatchConfig) Window() time.Duration {
	return time.Duration(b.WindowMS) * time.Millisecond
}

// LoadConfig reads config from $RISE_HOME/config.toml, falling back to
// defaults when no file exists.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(riseHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to $RISE_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(riseHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// riseHome returns the Rise data directory.
func riseHome() string {
	if env := os.Getenv("RISE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rise")
}

// RiseHome is exported for use by other packages.
func RiseHome() string {
	return riseHome()
}
