package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord        DiscordConfig        `yaml:"discord"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Economy        EconomyConfig        `yaml:"economy"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "sqlx" or "memory"
	// MaxTxRetries bounds retries of serialization and deadlock failures.
	MaxTxRetries int `yaml:"max_tx_retries"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds the event flag source settings. An empty Addr disables
// Redis and the static flags are used instead.
type RedisConfig struct {
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	FlagsKey        string        `yaml:"flags_key"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
	// Identity overrides the POD_NAME/hostname identity of this replica.
	Identity string `yaml:"identity"`
}

// EconomyConfig holds the game economy settings.
type EconomyConfig struct {
	GradeTable    string            `yaml:"grade_table"`
	StartingCoins int64             `yaml:"starting_coins"`
	DrawCost      int64             `yaml:"draw_cost"`
	DrawCooldown  time.Duration     `yaml:"draw_cooldown"`
	Inventory     InventoryConfig   `yaml:"inventory"`
	Auction       AuctionConfig     `yaml:"auction"`
	Enhancement   EnhancementConfig `yaml:"enhancement"`
	Saver         SaverConfig       `yaml:"saver"`
	Shop          ShopConfig        `yaml:"shop"`
	// StaticFlags are used when Redis is not configured.
	StaticFlags StaticFlagsConfig `yaml:"static_flags"`
}

// InventoryConfig holds inventory capacity and expansion settings.
type InventoryConfig struct {
	InitialCapacity int     `yaml:"initial_capacity"`
	ExpansionStep   int     `yaml:"expansion_step"`
	BaseCost        int64   `yaml:"base_cost"`
	Growth          float64 `yaml:"growth"`
	MaxCapacity     int     `yaml:"max_capacity"`
}

// AuctionConfig holds auction house settings.
type AuctionConfig struct {
	FeeRate       float64       `yaml:"fee_rate"`
	Duration      time.Duration `yaml:"duration"`
	MaxListings   int           `yaml:"max_listings"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	BrowseLimit   int           `yaml:"browse_limit"`
}

// EnhancementLevel is one explicit rung of the enhancement ladder.
type EnhancementLevel struct {
	SuccessChance float64 `yaml:"success_chance"`
	Cost          int64   `yaml:"cost"`
	DestroyOnFail bool    `yaml:"destroy_on_fail"`
}

// EnhancementConfig holds the enhancement ladder. When Levels is empty the
// ladder is generated from the remaining fields.
type EnhancementConfig struct {
	Levels           []EnhancementLevel `yaml:"levels"`
	MaxLevel         int                `yaml:"max_level"`
	BaseCost         int64              `yaml:"base_cost"`
	CostGrowth       float64            `yaml:"cost_growth"`
	BaseChance       float64            `yaml:"base_chance"`
	ChanceDecay      float64            `yaml:"chance_decay"`
	MinChance        float64            `yaml:"min_chance"`
	DestroyFromLevel int                `yaml:"destroy_from_level"` // 0 disables destruction
	PerLevelBonus    float64            `yaml:"per_level_bonus"`
}

// SaverConfig holds the asynchronous player save settings.
type SaverConfig struct {
	Workers     int           `yaml:"workers"`
	MaxRetries  int           `yaml:"max_retries"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	QueueSize   int           `yaml:"queue_size"`
}

// ShopOffer is one effect pack sold for coins.
type ShopOffer struct {
	Effect string `yaml:"effect"`
	Uses   int    `yaml:"uses"`
	Price  int64  `yaml:"price"`
}

// ShopConfig prices effect packs and permanent luck levels. Level n+1 of
// permanent luck costs floor(luck_base_cost × luck_growth^n).
type ShopConfig struct {
	Offers       []ShopOffer `yaml:"offers"`
	LuckBaseCost int64       `yaml:"luck_base_cost"`
	LuckGrowth   float64     `yaml:"luck_growth"`
}

// StaticFlagsConfig mirrors the Redis flag hash for deployments without Redis.
type StaticFlagsConfig struct {
	Live           bool                 `yaml:"live"`
	LuckMultiplier float64              `yaml:"luck_multiplier"`
	Events         map[string]time.Time `yaml:"events"`
}

// Default returns the configuration used before a file is applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			SSLMode:      "disable",
			Driver:       "sqlx",
			MaxTxRetries: 5,
		},
		Redis: RedisConfig{
			FlagsKey:        "gacha:flags",
			RefreshInterval: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "gachabot",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "gachabot-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Economy: EconomyConfig{
			GradeTable:    "configs/grades.yaml",
			StartingCoins: 500,
			DrawCost:      0,
			DrawCooldown:  2 * time.Second,
			Inventory: InventoryConfig{
				InitialCapacity: 50,
				ExpansionStep:   10,
				BaseCost:        1000,
				Growth:          1.5,
				MaxCapacity:     200,
			},
			Auction: AuctionConfig{
				FeeRate:       0.05,
				Duration:      72 * time.Hour,
				MaxListings:   10,
				SweepInterval: time.Minute,
				BrowseLimit:   25,
			},
			Enhancement: EnhancementConfig{
				MaxLevel:         10,
				BaseCost:         50,
				CostGrowth:       1.6,
				BaseChance:       95,
				ChanceDecay:      8,
				MinChance:        10,
				DestroyFromLevel: 7,
				PerLevelBonus:    0.1,
			},
			Saver: SaverConfig{
				Workers:     4,
				MaxRetries:  5,
				BaseBackoff: 200 * time.Millisecond,
				MaxBackoff:  10 * time.Second,
				QueueSize:   1024,
			},
			Shop: ShopConfig{
				Offers: []ShopOffer{
					{Effect: "speedBoost", Uses: 5, Price: 100},
					{Effect: "coinBoost", Uses: 5, Price: 250},
					{Effect: "luckBoost", Uses: 5, Price: 300},
					{Effect: "guaranteeRare", Uses: 1, Price: 500},
					{Effect: "guaranteeEpic", Uses: 1, Price: 2000},
					{Effect: "ultimateBoost", Uses: 1, Price: 5000},
				},
				LuckBaseCost: 1000,
				LuckGrowth:   2,
			},
			StaticFlags: StaticFlagsConfig{LuckMultiplier: 1},
		},
	}
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlx", "memory":
		// valid
	default:
		errs = append(errs, fmt.Sprintf("unsupported database driver %q: must be \"sqlx\" or \"memory\"", c.Database.Driver))
	}

	e := c.Economy
	if e.GradeTable == "" {
		errs = append(errs, "economy.grade_table is required")
	}
	if e.StartingCoins < 0 || e.DrawCost < 0 {
		errs = append(errs, "economy coin amounts must not be negative")
	}

	inv := e.Inventory
	if inv.InitialCapacity <= 0 || inv.MaxCapacity < inv.InitialCapacity {
		errs = append(errs, "economy.inventory: need 0 < initial_capacity <= max_capacity")
	}
	if inv.ExpansionStep <= 0 || inv.BaseCost < 0 || inv.Growth < 1 {
		errs = append(errs, "economy.inventory: expansion_step > 0, base_cost >= 0 and growth >= 1 required")
	}

	a := e.Auction
	if a.FeeRate < 0 || a.FeeRate >= 1 {
		errs = append(errs, "economy.auction.fee_rate must be in [0,1)")
	}
	if a.Duration <= 0 || a.MaxListings <= 0 || a.SweepInterval <= 0 || a.BrowseLimit <= 0 {
		errs = append(errs, "economy.auction: duration, max_listings, sweep_interval and browse_limit must be positive")
	}

	en := e.Enhancement
	if len(en.Levels) == 0 {
		if en.MaxLevel <= 0 || en.BaseCost < 0 || en.CostGrowth < 1 {
			errs = append(errs, "economy.enhancement: max_level > 0, base_cost >= 0 and cost_growth >= 1 required")
		}
		if en.BaseChance <= 0 || en.BaseChance > 100 || en.MinChance < 0 || en.MinChance > en.BaseChance {
			errs = append(errs, "economy.enhancement: need 0 <= min_chance <= base_chance <= 100")
		}
	}
	for i, l := range en.Levels {
		if l.SuccessChance < 0 || l.SuccessChance > 100 || l.Cost < 0 {
			errs = append(errs, fmt.Sprintf("economy.enhancement.levels[%d]: chance in [0,100] and cost >= 0 required", i))
		}
	}
	if en.PerLevelBonus < 0 {
		errs = append(errs, "economy.enhancement.per_level_bonus must not be negative")
	}

	s := e.Saver
	if s.Workers <= 0 || s.MaxRetries < 0 || s.QueueSize <= 0 || s.BaseBackoff <= 0 || s.MaxBackoff < s.BaseBackoff {
		errs = append(errs, "economy.saver: workers and queue_size must be positive, 0 < base_backoff <= max_backoff")
	}

	sh := e.Shop
	for i, o := range sh.Offers {
		if o.Effect == "" || o.Uses <= 0 || o.Price <= 0 {
			errs = append(errs, fmt.Sprintf("economy.shop.offers[%d]: effect, uses > 0 and price > 0 required", i))
		}
	}
	if sh.LuckBaseCost <= 0 || sh.LuckGrowth < 1 {
		errs = append(errs, "economy.shop: luck_base_cost > 0 and luck_growth >= 1 required")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
