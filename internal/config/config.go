package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Security   SecurityConfig
	Protection ProtectionConfig
	Email      EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port                   string
	Env                    string
	LogLevel               string
	AllowedOrigins         []string
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	IdleTimeout            time.Duration
	// TrustProxyHeaders honors X-Forwarded-For and X-Real-IP. TrustedProxies,
	// when set, limits that to the listed peers; when empty every peer is trusted.
	TrustProxyHeaders      bool
	TrustedProxies         []*net.IPNet
	// LoginRequestsPerMinute caps calls to the login protection endpoints per client IP
	LoginRequestsPerMinute int
}

type SecurityConfig struct {
	StoreTimeout          time.Duration
	BcryptCost            int
	AllowQueryCredentials bool

	// Rejected credential responses are held until floor (+ up to jitter) has elapsed
	RejectionFloor  time.Duration
	RejectionJitter time.Duration
}

// ProtectionConfig holds the default brute force settings used when the
// protection_settings table has no row for a key.
type ProtectionConfig struct {
	MaxLoginAttempts       int
	LockoutDuration        time.Duration
	ResetTime              time.Duration
	EnableIPDenylist       bool
	EnableIPSafelist       bool
	EnableUsernameDenylist bool
	EnableUsernameSafelist bool
	ShowRemainingAttempts  bool
	LockoutMessage         string
	NotifyAdminLockout     bool
}

type EmailConfig struct {
	Enabled      bool
	AWSRegion    string
	FromAddress  string
	AdminAddress string
}

const (
	minBcryptCost = 4
	maxBcryptCost = 31

	DefaultLockoutMessage = "Too many failed login attempts. Please try again in {minutes} minutes."
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	trustedProxies, err := parseCIDRs(getEnv("TRUSTED_PROXIES", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "isotone"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:                   getEnv("PORT", "8080"),
			Env:                    env,
			LogLevel:               getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:         parseAllowedOrigins(env),
			ReadTimeout:            getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:           getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:            getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustProxyHeaders:      getEnvAsBool("TRUST_PROXY_HEADERS", true),
			TrustedProxies:         trustedProxies,
			LoginRequestsPerMinute: getEnvAsInt("LOGIN_REQUESTS_PER_MINUTE", 30),
		},
		Security: SecurityConfig{
			StoreTimeout:          getEnvAsDuration("STORE_TIMEOUT", 2*time.Second),
			BcryptCost:            getEnvAsInt("BCRYPT_COST", 12),
			AllowQueryCredentials: getEnvAsBool("ALLOW_QUERY_CREDENTIALS", true),
			RejectionFloor:        getEnvAsDuration("CREDENTIAL_REJECTION_FLOOR", 250*time.Millisecond),
			RejectionJitter:       getEnvAsDuration("CREDENTIAL_REJECTION_JITTER", 50*time.Millisecond),
		},
		Protection: ProtectionConfig{
			MaxLoginAttempts:       getEnvAsInt("PROTECTION_MAX_LOGIN_ATTEMPTS", 5),
			LockoutDuration:        getEnvAsSeconds("PROTECTION_LOCKOUT_DURATION", 900*time.Second),
			ResetTime:              getEnvAsSeconds("PROTECTION_RESET_TIME", 900*time.Second),
			EnableIPDenylist:       getEnvAsBool("PROTECTION_ENABLE_IP_DENYLIST", true),
			EnableIPSafelist:       getEnvAsBool("PROTECTION_ENABLE_IP_SAFELIST", true),
			EnableUsernameDenylist: getEnvAsBool("PROTECTION_ENABLE_USERNAME_DENYLIST", true),
			EnableUsernameSafelist: getEnvAsBool("PROTECTION_ENABLE_USERNAME_SAFELIST", true),
			ShowRemainingAttempts:  getEnvAsBool("PROTECTION_SHOW_REMAINING_ATTEMPTS", true),
			LockoutMessage:         getEnv("PROTECTION_LOCKOUT_MESSAGE", DefaultLockoutMessage),
			NotifyAdminLockout:     getEnvAsBool("PROTECTION_NOTIFY_ADMIN_LOCKOUT", false),
		},
		Email: EmailConfig{
			Enabled:      getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", ""),
			AdminAddress: getEnv("EMAIL_ADMIN_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Security.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive (got %s)", c.Security.StoreTimeout)
	}

	if c.Security.RejectionFloor < 0 || c.Security.RejectionJitter < 0 {
		return fmt.Errorf("CREDENTIAL_REJECTION_FLOOR and CREDENTIAL_REJECTION_JITTER must not be negative")
	}

	if c.Security.BcryptCost < minBcryptCost || c.Security.BcryptCost > maxBcryptCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d (got %d)",
			minBcryptCost, maxBcryptCost, c.Security.BcryptCost)
	}

	if c.Protection.MaxLoginAttempts < 1 {
		return fmt.Errorf("PROTECTION_MAX_LOGIN_ATTEMPTS must be at least 1 (got %d)", c.Protection.MaxLoginAttempts)
	}

	if c.Protection.ResetTime <= 0 || c.Protection.LockoutDuration <= 0 {
		return fmt.Errorf("PROTECTION_RESET_TIME and PROTECTION_LOCKOUT_DURATION must be positive")
	}

	if c.Email.Enabled && (c.Email.FromAddress == "" || c.Email.AdminAddress == "") {
		return fmt.Errorf("EMAIL_FROM_ADDRESS and EMAIL_ADMIN_ADDRESS are required when EMAIL_ENABLED is set")
	}

	return nil
}

// Warnings lists settings that load fine but are unsafe for the environment
func (c *Config) Warnings() []string {
	var warnings []string

	if c.Server.Env == "production" && c.Server.TrustProxyHeaders && len(c.Server.TrustedProxies) == 0 {
		warnings = append(warnings, "TRUST_PROXY_HEADERS is on with no TRUSTED_PROXIES: "+
			"any client can set X-Forwarded-For and choose the ip its attempts are counted under")
	}

	return warnings
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsSeconds accepts either a bare number of seconds or a Go duration string
func getEnvAsSeconds(key string, defaultVal time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return getEnvAsDuration(key, defaultVal)
}

func parseCIDRs(raw string) ([]*net.IPNet, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var nets []*net.IPNet
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			if ip := net.ParseIP(part); ip != nil && ip.To4() != nil {
				part += "/32"
			} else {
				part += "/128"
			}
		}
		_, n, err := net.ParseCIDR(part)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", part, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}
}
