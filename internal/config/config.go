package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  The four SAP connection variables are
// required; everything else has a sensible default so a bare .env with
// just the ERP credentials is enough to boot.
type Config struct {
	Env            string        // application environment (e.g. "dev", "prod")
	Port           string        // HTTP port to listen on
	AllowedOrigins []string      // CORS allow-list for the frontend
	UsersFile      string        // path of the users collection file
	BcryptCost     int           // bcrypt cost for password hashing
	SessionTTL     time.Duration // bearer session lifetime; 0 = no expiry

	SAPBaseURL       string        // ERP host, e.g. https://erp.example.com:44300
	SAPServicePath   string        // OData service path
	SAPTokenEndpoint string        // CSRF token-fetch endpoint (relative to base URL)
	SAPUsername      string        // ERP basic-auth user
	SAPPassword      string        // ERP basic-auth password
	SAPClient        string        // sap-client header value
	SAPTimeout       time.Duration // per-request timeout for OData calls
	VerifyTLS        bool          // verify the ERP certificate chain
	CSRFCacheTTL     time.Duration // how long a fetched CSRF token is cached

	LoginRateLimit  int           // max login attempts per window (0 disables)
	LoginRateWindow time.Duration // fixed window for the login limiter

	AuditEnabled bool // publish/consume approval audit events over RabbitMQ
}

// Load reads configuration from environment variables.  Missing required
// variables cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           envStr("PORT", "3001"),
		AllowedOrigins: splitCSV(envStr("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		UsersFile:      envStr("USERS_FILE", "data/users.json"),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		SessionTTL:     envDur("SESSION_TTL", 0),

		SAPBaseURL:       must("SAP_BASE_URL"),
		SAPServicePath:   must("SAP_ODATA_SERVICE_PATH"),
		SAPTokenEndpoint: envStr("SAP_CSRF_TOKEN_ENDPOINT", ""),
		SAPUsername:      must("SAP_USERNAME"),
		SAPPassword:      must("SAP_PASSWORD"),
		SAPClient:        envStr("SAP_CLIENT", "100"),
		SAPTimeout:       envDur("SAP_TIMEOUT", 30*time.Second),
		VerifyTLS:        envBool("SSL_REJECT_UNAUTHORIZED", false),
		CSRFCacheTTL:     envDur("CSRF_TOKEN_CACHE_DURATION", time.Hour),

		LoginRateLimit:  envInt("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: envDur("LOGIN_RATE_WINDOW", time.Minute),

		AuditEnabled: envBool("AUDIT_ENABLED", false),
	}
}

// TokenURL resolves the absolute CSRF token-fetch URL.  When no
// dedicated endpoint is configured the service path itself is used,
// which is how most ERP OData services hand out tokens.
func (c Config) TokenURL() string {
	if c.SAPTokenEndpoint != "" {
		return c.SAPBaseURL + c.SAPTokenEndpoint
	}
	return c.SAPBaseURL + c.SAPServicePath
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
