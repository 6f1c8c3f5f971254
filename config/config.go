package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultLeadTimeDays = 3
	defaultMaxRetries   = 3
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Reservation ReservationConfig `yaml:"reservation"`
	Auth        AuthConfig        `yaml:"auth"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
	Provision   ProvisionConfig   `yaml:"provision"`
	Redis       RedisConfig       `yaml:"redis"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ReservationConfig holds the admission rules shared by every reservation.
type ReservationConfig struct {
	MaxApplicants int    `yaml:"max_applicants"`
	LeadTimeDays  int    `yaml:"lead_time_days"`
	Timezone      string `yaml:"timezone"`
	TxTimeoutMS   int    `yaml:"tx_timeout_ms"`
	LockTimeoutMS int    `yaml:"lock_timeout_ms"`
	MaxRetries    int    `yaml:"max_retries"`

	TxTimeout   time.Duration `yaml:"-"`
	LockTimeout time.Duration `yaml:"-"`
}

// Location resolves the configured exam timezone.
func (r ReservationConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	JWTAlgorithm     string `yaml:"jwt_algorithm"`
	AccessTTLMinutes int    `yaml:"access_ttl_minutes"`
	RefreshTTLDays   int    `yaml:"refresh_ttl_days"`
	BcryptCost       int    `yaml:"bcrypt_cost"`

	// AdminEmails sign up with the ADMIN role; everyone else is a USER.
	AdminEmails []string `yaml:"admin_emails"`
}

// ProvisionConfig controls the background slot provisioner.
type ProvisionConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
	DaysAhead       int           `yaml:"days_ahead"`
	Open            string        `yaml:"open"`  // "HH:MM"
	Close           string        `yaml:"close"` // "HH:MM"
	SlotMinutes     int           `yaml:"slot_minutes"`
}

// RedisConfig points the stats recorder at Redis. An empty Addr keeps stats in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Keys where zero is a meaningful setting are seeded before decoding, so
	// only an absent key falls back to the default.
	cfg := Config{
		Reservation: ReservationConfig{
			LeadTimeDays: defaultLeadTimeDays,
			MaxRetries:   defaultMaxRetries,
		},
	}
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if _, err := cfg.Reservation.Location(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Reservation.MaxApplicants <= 0 {
		cfg.Reservation.MaxApplicants = 50000
	}
	if cfg.Reservation.LeadTimeDays < 0 {
		log.Printf("reservation.lead_time_days %d is negative; defaulting to %d", cfg.Reservation.LeadTimeDays, defaultLeadTimeDays)
		cfg.Reservation.LeadTimeDays = defaultLeadTimeDays
	}
	if cfg.Reservation.Timezone == "" {
		cfg.Reservation.Timezone = "UTC"
	}
	if cfg.Reservation.TxTimeoutMS <= 0 {
		cfg.Reservation.TxTimeoutMS = 5000
	}
	cfg.Reservation.TxTimeout = time.Duration(cfg.Reservation.TxTimeoutMS) * time.Millisecond
	if cfg.Reservation.LockTimeoutMS <= 0 {
		cfg.Reservation.LockTimeoutMS = 2000
	}
	cfg.Reservation.LockTimeout = time.Duration(cfg.Reservation.LockTimeoutMS) * time.Millisecond
	if cfg.Reservation.MaxRetries < 0 {
		log.Printf("reservation.max_retries %d is negative; defaulting to %d", cfg.Reservation.MaxRetries, defaultMaxRetries)
		cfg.Reservation.MaxRetries = defaultMaxRetries
	}

	if cfg.Auth.JWTAlgorithm == "" {
		cfg.Auth.JWTAlgorithm = "HS256"
	}
	if cfg.Auth.AccessTTLMinutes <= 0 {
		cfg.Auth.AccessTTLMinutes = 60
	}
	if cfg.Auth.RefreshTTLDays <= 0 {
		cfg.Auth.RefreshTTLDays = 7
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Provision.IntervalSeconds <= 0 {
		cfg.Provision.IntervalSeconds = 3600
	}
	cfg.Provision.Interval = time.Duration(cfg.Provision.IntervalSeconds) * time.Second
	if cfg.Provision.DaysAhead <= 0 {
		cfg.Provision.DaysAhead = 30
	}
	if cfg.Provision.Open == "" {
		cfg.Provision.Open = "09:00"
	}
	if cfg.Provision.Close == "" {
		cfg.Provision.Close = "18:00"
	}
	if cfg.Provision.SlotMinutes <= 0 {
		cfg.Provision.SlotMinutes = 30
	}

	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "reservation:stats"
	}
}
