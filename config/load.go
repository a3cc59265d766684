package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func Load() App {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using process env")
	}

	cfg := App{
		Port:             getenv("APP_PORT", "8080"),
		DBDriver:         strings.ToLower(getenv("DATABASE_DRIVER", "postgres")),
		SQLitePath:       getenv("SQLITE_PATH", "bookclub.db"),
		JWTSecret:        getenv("JWT_SECRET", "local_dev_secret"),
		Env:              getenv("APP_ENV", "dev"),
		CORSOrigins:      splitList(os.Getenv("CORS_ORIGINS")),
		CatalogBaseURL:   strings.TrimRight(getenv("CATALOG_BASE_URL", "https://openlibrary.org"), "/"),
		CoversBaseURL:    strings.TrimRight(getenv("COVERS_BASE_URL", "https://covers.openlibrary.org"), "/"),
		SearchCacheTTL:   duration("SEARCH_CACHE_TTL", 30*time.Minute),
		SearchCacheSweep: duration("SEARCH_CACHE_SWEEP", 10*time.Minute),
		ResendAPIKey:     os.Getenv("RESEND_API_KEY"),
		MailFrom:         getenv("MAIL_FROM", "clubs@bookclub.local"),
		AppURL:           strings.TrimRight(getenv("APP_URL", "http://localhost:8080"), "/"),
	}
	if !cfg.IsSQLite() {
		cfg.DatabaseURL = must("DATABASE_URL")
	}
	return cfg
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("required env missing", "key", k)
		panic("missing env " + k)
	}
	return v
}

func duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", k, "value", v, "default", def.String())
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
