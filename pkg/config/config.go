package config

import (
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type App struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
	Env  string `yaml:"env"`
}

type Server struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type Security struct {
	JWTAccessSecret  string `yaml:"jwt_access_secret"`
	JWTRefreshSecret string `yaml:"jwt_refresh_secret"`
	AccessTTLMinute  int    `yaml:"access_ttl_minutes"`
	RefreshTTLMinute int    `yaml:"refresh_ttl_minutes"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Redis struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type RabbitMQ struct {
	URL string `yaml:"url"`
}

type Logging struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

type Booking struct {
	AutoCancelMinutes         int `yaml:"auto_cancel_minutes"`
	PageDefaultLimit          int `yaml:"page_default_limit"`
	PageMaxLimit              int `yaml:"page_max_limit"`
	ExpirationMinutes         int `yaml:"expiration_minutes"`
	MaxSeatsPerBooking        int `yaml:"max_seats_per_booking"`
	BookingsPerUserPerMinute  int `yaml:"bookings_per_user_per_minute"`
	CancellationWindowHours   int `yaml:"cancellation_window_hours"`
}

// Reservation holds the fast-store contention-arbitration settings: soft
// reservation and distributed-lock TTLs, and circuit-breaker thresholds.
type Reservation struct {
	SeatLockTTLSeconds     int `yaml:"seat_lock_ttl_seconds"`
	DistributedLockTTLSeconds int `yaml:"distributed_lock_ttl_seconds"`
	AdvisoryLockTimeoutSeconds int `yaml:"advisory_lock_timeout_seconds"`
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold"`
	CircuitRecoverySeconds  int `yaml:"circuit_recovery_seconds"`
	CircuitHalfOpenMaxCalls int `yaml:"circuit_half_open_max_calls"`
	RateLimitPublicPerMin   int `yaml:"rate_limit_public_per_min"`
	RateLimitAuthPerMin     int `yaml:"rate_limit_auth_per_min"`
}

// DBPool holds durable-store connection pool sizing.
type DBPool struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type Observability struct {
	MetricsUpdateSeconds int `yaml:"metrics_update_seconds"`
}

type Config struct {
	App           App           `yaml:"app"`
	Server        Server        `yaml:"server"`
	Security      Security      `yaml:"security"`
	Postgres      Postgres      `yaml:"postgres"`
	Redis         Redis         `yaml:"redis"`
	RabbitMQ      RabbitMQ      `yaml:"rabbitmq"`
	Logging       Logging       `yaml:"logging"`
	Booking       Booking       `yaml:"booking"`
	Reservation   Reservation   `yaml:"reservation"`
	DBPool        DBPool        `yaml:"db_pool"`
	Observability Observability `yaml:"observability"`
}

// Load reads config file and sets defaults
func Load(path string) *Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read config: %v", err)
	}

	// Expand environment variables
	expanded := expandEnvVars(string(raw))

	var c Config
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		log.Fatalf("yaml unmarshal: %v", err)
	}

	// Apply default values for any missing configuration
	c.SetDefaults()

	// Validate configuration
	if err := c.Validate(); err != nil {
		log.Fatalf("configuration validation: %v", err)
	}

	return &c
}

// SetDefaults applies default values to configuration
func (c *Config) SetDefaults() {
	// Server defaults
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = DefaultMetricsAddr
	}

	// Security defaults
	if c.Security.AccessTTLMinute == 0 {
		c.Security.AccessTTLMinute = DefaultAccessTTLMinutes
	}
	if c.Security.RefreshTTLMinute == 0 {
		c.Security.RefreshTTLMinute = DefaultRefreshTTLMinutes
	}

	// Logging defaults
	if c.Logging.Dir == "" {
		c.Logging.Dir = DefaultLogDir
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = DefaultLogRetentionDays
	}

	// Booking defaults
	if c.Booking.AutoCancelMinutes == 0 {
		c.Booking.AutoCancelMinutes = DefaultAutoCancelMinutes
	}
	if c.Booking.PageDefaultLimit == 0 {
		c.Booking.PageDefaultLimit = DefaultPageSize
	}
	if c.Booking.PageMaxLimit == 0 {
		c.Booking.PageMaxLimit = DefaultMaxPageSize
	}

	// Booking/reservation defaults
	if c.Booking.ExpirationMinutes == 0 {
		c.Booking.ExpirationMinutes = DefaultBookingExpirationMinutes
	}
	if c.Booking.MaxSeatsPerBooking == 0 {
		c.Booking.MaxSeatsPerBooking = DefaultMaxSeatsPerBooking
	}
	if c.Booking.BookingsPerUserPerMinute == 0 {
		c.Booking.BookingsPerUserPerMinute = DefaultBookingsPerUserPerMinute
	}
	if c.Booking.CancellationWindowHours == 0 {
		c.Booking.CancellationWindowHours = DefaultCancellationWindowHours
	}
	if c.Reservation.SeatLockTTLSeconds == 0 {
		c.Reservation.SeatLockTTLSeconds = DefaultSeatLockTTLSeconds
	}
	if c.Reservation.DistributedLockTTLSeconds == 0 {
		c.Reservation.DistributedLockTTLSeconds = DefaultDistributedLockTTLSeconds
	}
	if c.Reservation.AdvisoryLockTimeoutSeconds == 0 {
		c.Reservation.AdvisoryLockTimeoutSeconds = DefaultAdvisoryLockTimeoutSeconds
	}
	if c.Reservation.CircuitFailureThreshold == 0 {
		c.Reservation.CircuitFailureThreshold = DefaultCircuitFailureThreshold
	}
	if c.Reservation.CircuitRecoverySeconds == 0 {
		c.Reservation.CircuitRecoverySeconds = DefaultCircuitRecoverySeconds
	}
	if c.Reservation.CircuitHalfOpenMaxCalls == 0 {
		c.Reservation.CircuitHalfOpenMaxCalls = DefaultCircuitHalfOpenMaxCalls
	}
	if c.Reservation.RateLimitPublicPerMin == 0 {
		c.Reservation.RateLimitPublicPerMin = DefaultRateLimitPublicPerMin
	}
	if c.Reservation.RateLimitAuthPerMin == 0 {
		c.Reservation.RateLimitAuthPerMin = DefaultRateLimitAuthPerMin
	}
	if c.DBPool.MaxOpenConns == 0 {
		c.DBPool.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.DBPool.MaxIdleConns == 0 {
		c.DBPool.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.DBPool.ConnMaxLifetime == 0 {
		c.DBPool.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.DBPool.ConnMaxIdleTime == 0 {
		c.DBPool.ConnMaxIdleTime = DefaultConnMaxIdleTime
	}

	// Observability defaults
	if c.Observability.MetricsUpdateSeconds == 0 {
		c.Observability.MetricsUpdateSeconds = DefaultMetricsUpdateSeconds
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:-default}
func expandEnvVars(text string) string {
	// Pattern to match ${VAR} or ${VAR:-default}
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	
	return re.ReplaceAllStringFunc(text, func(match string) string {
		// Remove ${ and }
		varExpr := match[2 : len(match)-1]
		
		// Check if it has a default value (VAR:-default)
		if strings.Contains(varExpr, ":-") {
			parts := strings.SplitN(varExpr, ":-", 2)
			varName := parts[0]
			defaultValue := parts[1]
			
			if value := os.Getenv(varName); value != "" {
				return value
			}
			return defaultValue
		}
		
		// No default value, just return env var or empty string
		return os.Getenv(varExpr)
	})
}
