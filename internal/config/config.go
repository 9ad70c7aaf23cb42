package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the application.
type Config struct {
	Environment    string
	Server         ServerConfig
	Redis          RedisConfig
	Fetch          FetchConfig
	Timezone       string
	AllowedOrigins []string
	Tenants        []TenantConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port                    int
	ReadTimeoutSeconds      int
	WriteTimeoutSeconds     int
	IdleTimeoutSeconds      int
	GracefulShutdownSeconds int
	// RequestTimeoutSeconds caps one whole checkins pipeline run. Individual
	// upstream calls have their own shorter timeouts.
	RequestTimeoutSeconds int
}

// RedisConfig holds the optional cache configuration.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// FetchConfig tunes pagination across all tenants.
type FetchConfig struct {
	PageSize       int
	EmptyPageLimit int
	MaxPages       int
	LookbackDays   int
}

// TenantConfig selects one HANET account: which brand prefix it serves and
// the credentials it authenticates with.
type TenantConfig struct {
	Name         string
	RoutePrefix  string
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	LookbackDays int
}

const (
	defaultTokenURL = "https://oauth.hanet.com/token"
	defaultBaseURL  = "https://partner.hanet.ai"
)

// tenantEnv maps a tenant to its environment variable prefix.
var tenantEnvs = []struct {
	name        string
	routePrefix string
	envPrefix   string
}{
	{name: "default", routePrefix: "", envPrefix: "HANET"},
	{name: "kaipany", routePrefix: "/Kaipany", envPrefix: "KAIPANY_HANET"},
	{name: "ladyfit", routePrefix: "/Ladyfit", envPrefix: "LADYFIT_HANET"},
}

// Load loads configuration from environment variables. A tenant with no
// credentials at all is considered not deployed and is skipped; a tenant
// with only some of its credentials set is a configuration error, as is a
// deployment with zero tenants.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:                    getEnvAsInt("SERVER_PORT", 3001),
			ReadTimeoutSeconds:      getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeoutSeconds:     getEnvAsInt("SERVER_WRITE_TIMEOUT", 150),
			IdleTimeoutSeconds:      getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			GracefulShutdownSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT", 30),
			RequestTimeoutSeconds:   getEnvAsInt("REQUEST_TIMEOUT", 120),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Fetch: FetchConfig{
			PageSize:       getEnvAsInt("HANET_PAGE_SIZE", 500),
			EmptyPageLimit: getEnvAsInt("HANET_EMPTY_PAGE_LIMIT", 3),
			MaxPages:       getEnvAsInt("HANET_MAX_PAGES", 50000),
			LookbackDays:   getEnvAsInt("HANET_LOOKBACK_DAYS", 1),
		},
		Timezone:       getEnv("TIMEZONE", "Asia/Ho_Chi_Minh"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ","),
	}

	for _, te := range tenantEnvs {
		tenant, configured, err := loadTenant(te.name, te.routePrefix, te.envPrefix, cfg.Fetch.LookbackDays)
		if err != nil {
			return nil, err
		}
		if configured {
			cfg.Tenants = append(cfg.Tenants, tenant)
		}
	}
	if len(cfg.Tenants) == 0 {
		return nil, fmt.Errorf("no tenant configured: set at least HANET_CLIENT_ID, HANET_CLIENT_SECRET and HANET_REFRESH_TOKEN")
	}

	return cfg, nil
}

func loadTenant(name, routePrefix, envPrefix string, defaultLookback int) (TenantConfig, bool, error) {
	clientID := getEnv(envPrefix+"_CLIENT_ID", "")
	clientSecret := getEnv(envPrefix+"_CLIENT_SECRET", "")
	refreshToken := getEnv(envPrefix+"_REFRESH_TOKEN", "")

	if clientID == "" && clientSecret == "" && refreshToken == "" {
		return TenantConfig{}, false, nil
	}

	var missing []string
	if clientID == "" {
		missing = append(missing, envPrefix+"_CLIENT_ID")
	}
	if clientSecret == "" {
		missing = append(missing, envPrefix+"_CLIENT_SECRET")
	}
	if refreshToken == "" {
		missing = append(missing, envPrefix+"_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return TenantConfig{}, false, fmt.Errorf("tenant %s: missing required variables: %s", name, strings.Join(missing, ", "))
	}

	return TenantConfig{
		Name:         name,
		RoutePrefix:  routePrefix,
		BaseURL:      getEnv(envPrefix+"_API_BASE_URL", defaultBaseURL),
		TokenURL:     getEnv(envPrefix+"_TOKEN_URL", defaultTokenURL),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
		LookbackDays: getEnvAsInt(envPrefix+"_LOOKBACK_DAYS", defaultLookback),
	}, true, nil
}

// Helper functions for reading environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
