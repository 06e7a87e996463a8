package config

import (
	"time"

	"github.com/spf13/viper"
)

// Version is the build version, set with -ldflags "-X .../config.Version=...".
var Version = "dev"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Security  SecurityConfig  `mapstructure:"security"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql | memory
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type TelemetryConfig struct {
	BattleModesPath string `mapstructure:"battle_modes_path"`
	SummaryDir      string `mapstructure:"summary_dir"`
	// ExportDir overrides the platform data directory for exports.
	ExportDir          string        `mapstructure:"export_dir"`
	ExportPrefix       string        `mapstructure:"export_prefix"`
	DateFolders        bool          `mapstructure:"date_folders"`
	AutoExport         bool          `mapstructure:"auto_export"`
	AutoExportInterval time.Duration `mapstructure:"auto_export_interval"`
}

type BroadcastConfig struct {
	Channel string `mapstructure:"channel"`
	// Suppress lists packet types that are never broadcast.
	Suppress      []string `mapstructure:"suppress"`
	SubscriberBuf int      `mapstructure:"subscriber_buf"`
}

type SecurityConfig struct {
	// IngestSecret enables HS256 token auth on the ingest endpoints.
	IngestSecret   string  `mapstructure:"ingest_secret"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// AllowedIPs restricts ingest to these addresses or CIDRs. Empty allows all.
	AllowedIPs []string `mapstructure:"allowed_ips"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 1305)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/battles.db")
	v.SetDefault("database.mysql_max_open", 20)
	v.SetDefault("database.mysql_max_idle", 5)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("telemetry.battle_modes_path", "battle_modes.json")
	v.SetDefault("telemetry.summary_dir", "battle_summaries")
	v.SetDefault("telemetry.export_prefix", "battlerecorder_battledata")
	v.SetDefault("telemetry.date_folders", true)
	v.SetDefault("telemetry.auto_export", false)
	v.SetDefault("telemetry.auto_export_interval", "5s")
	v.SetDefault("broadcast.channel", "battle")
	v.SetDefault("broadcast.subscriber_buf", 256)
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
}
