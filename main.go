// Package main bookclub API.
//
// @title           Bookclub API
// @version         1.0
// @description     Reading clubs: shelves, book voting, invitations and chat.
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookclub/app/echoServer"
	authctrl "bookclub/app/echoServer/controller/auth"
	bookctrl "bookclub/app/echoServer/controller/book"
	chatctrl "bookclub/app/echoServer/controller/chat"
	clubctrl "bookclub/app/echoServer/controller/club"
	votingctrl "bookclub/app/echoServer/controller/voting"
	"bookclub/app/echoServer/validation"
	"bookclub/app/echoServer/ws"
	"bookclub/config"
	authrepo "bookclub/repository/auth"
	bookrepo "bookclub/repository/book"
	chatrepo "bookclub/repository/chat"
	clubrepo "bookclub/repository/club"
	"bookclub/repository/openlibrary"
	votingrepo "bookclub/repository/voting"
	authsvc "bookclub/service/auth"
	booksvc "bookclub/service/book"
	chatsvc "bookclub/service/chat"
	clubsvc "bookclub/service/club"
	votingsvc "bookclub/service/voting"
	"bookclub/util/cache"
	"bookclub/util/database"
	"bookclub/util/httpx"
	"bookclub/util/mailer"

	"github.com/labstack/echo/v4"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	echoSwagger "github.com/swaggo/echo-swagger"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	root := &cobra.Command{
		Use:           "bookclub",
		Short:         "Reading club API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(log), migrateCmd(log))

	if err := root.Execute(); err != nil {
		log.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context, cfg config.App) (*database.DB, error) {
	if cfg.IsSQLite() {
		return database.NewSQLite(cfg.SQLitePath)
	}
	return database.New(ctx, cfg.DatabaseURL)
}

func migrateCmd(log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(); err != nil {
				return err
			}
			log.Info("schema migrated", "driver", cfg.DBDriver)
			return nil
		},
	}
}

func serveCmd(log *slog.Logger) *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), log, !skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not auto-migrate on start")
	return cmd
}

func serve(parent context.Context, log *slog.Logger, migrate bool) error {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return err
	}
	defer db.Close()
	if migrate {
		if err := db.Migrate(); err != nil {
			log.Error("migrate failed", "err", err)
			return err
		}
	}

	// repos
	ar := authrepo.New(db.Gorm)
	br := bookrepo.New(db.Gorm)
	cr := clubrepo.New(db.Gorm)
	vr := votingrepo.New(db.Gorm)
	chr := chatrepo.New(db.Gorm)
	catalog := openlibrary.NewHTTP(cfg.CatalogBaseURL, cfg.CoversBaseURL, httpx.Client())

	searchCache := cache.New[*openlibrary.SearchResult](cfg.SearchCacheTTL)
	go cache.NewJanitor(searchCache, cfg.SearchCacheSweep, log).Run(ctx)

	var mail mailer.Sender
	if cfg.ResendAPIKey != "" {
		mail = mailer.NewResend(cfg.ResendAPIKey, cfg.MailFrom, cfg.AppURL)
	} else {
		log.Warn("RESEND_API_KEY not set, invitation emails are only logged")
		mail = mailer.NewLog(log)
	}

	// services
	as := authsvc.New(ar, cfg.JWTSecret)
	bs := booksvc.New(br, catalog, searchCache, log)
	cs := clubsvc.New(cr, ar, br, vr, mail, log)
	vs := votingsvc.New(db.Gorm, vr, cr, br, bs, log)
	chs := chatsvc.New(chr, cr)

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	// controllers
	val := validation.New()
	v := val.Engine()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	clubC := &clubctrl.Controller{Svc: cs, V: v, Log: log}
	votingC := &votingctrl.Controller{Svc: vs, V: v, Log: log}
	chatC := &chatctrl.Controller{Svc: chs, Log: log}
	wsH := &ws.Handler{Hub: hub, Chat: chs, Secret: cfg.JWTSecret, Origins: cfg.CORSOrigins, Log: log}

	// echo
	e := echo.New()
	e.HideBanner = true
	echoServer.RegisterMiddlewares(e, log)
	e.Validator = val

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:   authC,
		Book:   bookC,
		Club:   clubC,
		Voting: votingC,
		Chat:   chatC,
		WS:     wsH,

		JWTSecret: cfg.JWTSecret,
		Log:       log,
	})

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: len(cfg.CORSOrigins) > 0,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler.Handler(e),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Port, "driver", cfg.DBDriver, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
