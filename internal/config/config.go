package config

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Bot      BotConfig
	API      APIConfig
	Backend  BackendConfig
	Trial    TrialConfig
	Janitor  JanitorConfig
	Reseller ResellerTerms
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type BotConfig struct {
	Token   string
	AdminID int64
}

type APIConfig struct {
	Key string
}

type BackendConfig struct {
	Timeout  time.Duration
	Insecure bool
}

type TrialConfig struct {
	Enabled  bool
	ServerID uint
	Hours    int
}

type JanitorConfig struct {
	PurgeSpec    string
	BackfillSpec string
	Grace        time.Duration
}

// ResellerTerms are the thresholds a user must meet, on top of registration,
// to count as a reseller.
type ResellerTerms struct {
	MinAccounts    int
	MinTopupAmount int64
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("BACKEND_TIMEOUT", "30s")
	viper.SetDefault("BACKEND_INSECURE", false)
	viper.SetDefault("TRIAL_ENABLED", true)
	viper.SetDefault("TRIAL_SERVER_ID", 0)
	viper.SetDefault("TRIAL_HOURS", 24)
	// Expiry purge every 6 hours, back-fill once a day off-peak.
	viper.SetDefault("JANITOR_PURGE_SPEC", "0 0 */6 * * *")
	viper.SetDefault("JANITOR_BACKFILL_SPEC", "0 30 4 * * *")
	viper.SetDefault("JANITOR_GRACE", "72h")
	viper.SetDefault("RESELLER_MIN_ACCOUNTS", 3)
	viper.SetDefault("RESELLER_MIN_TOPUP", 50000)

	backendTimeout, err := time.ParseDuration(viper.GetString("BACKEND_TIMEOUT"))
	if err != nil {
		backendTimeout = 30 * time.Second
	}
	grace, err := time.ParseDuration(viper.GetString("JANITOR_GRACE"))
	if err != nil {
		grace = 72 * time.Hour
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Bot: BotConfig{
			Token:   viper.GetString("BOT_TOKEN"),
			AdminID: viper.GetInt64("BOT_ADMIN_ID"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
		Backend: BackendConfig{
			Timeout:  backendTimeout,
			Insecure: viper.GetBool("BACKEND_INSECURE"),
		},
		Trial: TrialConfig{
			Enabled:  viper.GetBool("TRIAL_ENABLED"),
			ServerID: uint(viper.GetInt("TRIAL_SERVER_ID")),
			Hours:    viper.GetInt("TRIAL_HOURS"),
		},
		Janitor: JanitorConfig{
			PurgeSpec:    viper.GetString("JANITOR_PURGE_SPEC"),
			BackfillSpec: viper.GetString("JANITOR_BACKFILL_SPEC"),
			Grace:        grace,
		},
		Reseller: ResellerTerms{
			MinAccounts:    viper.GetInt("RESELLER_MIN_ACCOUNTS"),
			MinTopupAmount: viper.GetInt64("RESELLER_MIN_TOPUP"),
		},
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Bot.Token == "" {
		log.Println("WARNING: BOT_TOKEN is not set")
	}

	return cfg, nil
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}

// Store holds the current configuration snapshot. Snapshots are immutable;
// Reload swaps in a freshly loaded one atomically so concurrent readers never
// observe a half-updated config.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore loads the initial snapshot.
func NewStore() (*Store, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	s := &Store{}
	s.current.Store(cfg)
	return s, nil
}

// NewStoreWith wraps an already-built config (used by tests).
func NewStoreWith(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Snapshot returns the current immutable config.
func (s *Store) Snapshot() *Config {
	return s.current.Load()
}

// Reload re-reads configuration and swaps the snapshot.
func (s *Store) Reload() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	return cfg, nil
}
