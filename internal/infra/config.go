package infra

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv                    string
	Port                      string
	DatabaseURL               string
	DBMaxConns                int
	JWTSecret                 string
	StorageBaseURL            string
	StoragePath               string
	EvidenceHostAllowlist     []string
	CORSAllowedOrigins        []string
	GeoIPDBPath               string
	AMQPURL                   string
	AMQPExchange              string
	MidtransServerKey         string
	ReconcileTolerance        decimal.Decimal
	ReconcileTolerancePercent decimal.Decimal
	RiskWeightAttendance      decimal.Decimal
	RiskWeightIncome          decimal.Decimal
	RiskWeightParent          decimal.Decimal
	StatsReconcileSchedule    string
	LedgerAuditSchedule       string
	RiskRefreshSchedule       string
	RiskStaleAfter            time.Duration
	HTTPReadTimeout           time.Duration
	HTTPWriteTimeout          time.Duration
	HTTPIdleTimeout           time.Duration
	RateLimitPerMin           int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		Port:                   port,
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		DBMaxConns:             getEnvInt("DB_MAX_CONNS", 10),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		StorageBaseURL:         getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		StoragePath:            getEnv("STORAGE_PATH", "./storage"),
		GeoIPDBPath:            os.Getenv("GEOIP_DB_PATH"),
		AMQPURL:                os.Getenv("AMQP_URL"),
		AMQPExchange:           getEnv("AMQP_EXCHANGE", "fundtrace.events"),
		MidtransServerKey:      os.Getenv("MIDTRANS_SERVER_KEY"),
		StatsReconcileSchedule: getEnv("STATS_RECONCILE_SCHEDULE", "@every 15m"),
		LedgerAuditSchedule:    getEnv("LEDGER_AUDIT_SCHEDULE", "@hourly"),
		RiskRefreshSchedule:    getEnv("RISK_REFRESH_SCHEDULE", "0 2 * * *"),
		RiskStaleAfter:         time.Hour * time.Duration(getEnvInt("RISK_STALE_AFTER_HOURS", 24*7)),
		HTTPReadTimeout:        time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:       time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:        time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:        getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be positive")
	}

	decimals := []struct {
		key      string
		fallback string
		dst      *decimal.Decimal
	}{
		{"RECONCILE_TOLERANCE", "0.01", &cfg.ReconcileTolerance},
		{"RECONCILE_TOLERANCE_PERCENT", "1", &cfg.ReconcileTolerancePercent},
		{"RISK_WEIGHT_ATTENDANCE", "0.5", &cfg.RiskWeightAttendance},
		{"RISK_WEIGHT_INCOME", "0.3", &cfg.RiskWeightIncome},
		{"RISK_WEIGHT_PARENT", "0.2", &cfg.RiskWeightParent},
	}
	for _, d := range decimals {
		v, err := getEnvDecimal(d.key, d.fallback)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}
	if cfg.ReconcileTolerance.IsNegative() || cfg.ReconcileTolerancePercent.IsNegative() {
		return nil, fmt.Errorf("reconcile tolerance must not be negative")
	}

	cfg.EvidenceHostAllowlist = evidenceHosts(cfg.StorageBaseURL, os.Getenv("EVIDENCE_HOST_ALLOWLIST"))
	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	return cfg, nil
}

// RequireJWTSecret fails when the API is started without a signing secret.
func (c *Config) RequireJWTSecret() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func evidenceHosts(storageBaseURL, extra string) []string {
	seen := map[string]struct{}{}
	if u, err := url.Parse(storageBaseURL); err == nil && u.Hostname() != "" {
		seen[strings.ToLower(u.Hostname())] = struct{}{}
	}
	for _, h := range strings.Split(extra, ",") {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			seen[h] = struct{}{}
		}
	}
	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDecimal(key, fallback string) (decimal.Decimal, error) {
	raw := getEnv(key, fallback)
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", key, raw)
	}
	return d, nil
}
