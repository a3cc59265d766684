package config

import "time"

type App struct {
	Port        string   `env:"APP_PORT" default:"8080"`
	DBDriver    string   `env:"DATABASE_DRIVER" default:"postgres"`
	DatabaseURL string   `env:"DATABASE_URL"`
	SQLitePath  string   `env:"SQLITE_PATH" default:"bookclub.db"`
	JWTSecret   string   `env:"JWT_SECRET,required"`
	Env         string   `env:"APP_ENV" default:"dev"`
	CORSOrigins []string `env:"CORS_ORIGINS"`

	CatalogBaseURL string `env:"CATALOG_BASE_URL" default:"https://openlibrary.org"`
	CoversBaseURL  string `env:"COVERS_BASE_URL" default:"https://covers.openlibrary.org"`

	SearchCacheTTL   time.Duration `env:"SEARCH_CACHE_TTL" default:"30m"`
	SearchCacheSweep time.Duration `env:"SEARCH_CACHE_SWEEP" default:"10m"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	MailFrom     string `env:"MAIL_FROM" default:"clubs@bookclub.local"`
	AppURL       string `env:"APP_URL" default:"http://localhost:8080"`
}

func (a App) IsSQLite() bool { return a.DBDriver == "sqlite" }
