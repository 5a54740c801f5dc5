// Package server exposes the HTTP API: auth, topic management, job triggers,
// report retrieval, and operational endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/delver-dev/delver/config"
	"github.com/delver-dev/delver/internal/auth"
	"github.com/delver-dev/delver/internal/llm"
	"github.com/delver-dev/delver/internal/queue/streams"
	"github.com/delver-dev/delver/internal/research"
	"github.com/delver-dev/delver/internal/scrape"
	"github.com/delver-dev/delver/internal/search"
	"github.com/delver-dev/delver/internal/store"
	"github.com/delver-dev/delver/internal/telemetry"
)

// Run wires the full service and blocks serving HTTP until the process exits.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	ctx := context.Background()
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		baseLogger.Printf("warn: migrations: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	tele := telemetry.New(cfg.Telemetry)
	e.GET("/metrics", echo.WrapHandler(tele.Handler()))

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	searcher, err := NewSearchProvider(cfg)
	if err != nil {
		return err
	}
	scraper, err := NewScraper(cfg)
	if err != nil {
		return err
	}
	orch := research.NewOrchestrator(cfg, provider, searcher, scraper, st, tele,
		log.New(log.Writer(), "[ORCH] ", log.LstdFlags))

	secret := cfg.Server.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret or DELVER_JWT_SECRET)")
	}

	var rdb *redis.Client
	var publisher *streams.Publisher
	if cfg.Storage.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		publisher = streams.NewPublisher(rdb)
	}

	api := e.Group("/api")
	(&AuthHandler{Store: st, Secret: []byte(secret)}).Register(api.Group("/auth"))

	me := api.Group("/me")
	me.Use(auth.EchoMiddleware([]byte(secret)))
	me.GET("", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"user_id": c.Get("user_id").(string)})
	})

	ops := api.Group("/ops")
	ops.Use(auth.EchoMiddleware([]byte(secret)))
	ops.GET("/costs", func(c echo.Context) error {
		return c.JSON(http.StatusOK, tele.CostSummary())
	})

	th := &TopicsHandler{Store: st}
	th.Register(api.Group("/topics"), []byte(secret))

	jh := &JobsHandler{
		Store:     st,
		Orch:      orch,
		Publisher: publisher,
		Stream:    cfg.Queue.Stream,
		MaxLen:    cfg.Queue.MaxLen,
		Logger:    log.New(log.Writer(), "[JOBS] ", log.LstdFlags),
	}
	jh.Register(api.Group("/topics"), []byte(secret))

	sched := &Scheduler{
		Store:     st,
		Stop:      make(chan struct{}),
		Rdb:       rdb,
		Orch:      orch,
		Publisher: publisher,
		Stream:    cfg.Queue.Stream,
		MaxLen:    cfg.Queue.MaxLen,
		Logger:    log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
	}
	sched.Start()

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// NewSearchProvider builds the configured web search provider.
func NewSearchProvider(cfg *config.Config) (search.Provider, error) {
	switch cfg.Search.Provider {
	case "serper":
		if cfg.Search.SerperAPIKey == "" {
			return nil, fmt.Errorf("SERPER_API_KEY not configured")
		}
		return search.NewSerper(cfg.Search.SerperAPIKey, cfg.Search.Timeout), nil
	case "brave":
		if cfg.Search.BraveAPIKey == "" {
			return nil, fmt.Errorf("BRAVE_API_KEY not configured")
		}
		return search.NewBrave(cfg.Search.BraveAPIKey, cfg.Search.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Search.Provider)
	}
}

// NewScraper builds the configured page scraper.
func NewScraper(cfg *config.Config) (scrape.Scraper, error) {
	switch cfg.Scrape.Provider {
	case "firecrawl":
		if cfg.Scrape.FirecrawlAPIKey == "" {
			return nil, fmt.Errorf("FIRECRAWL_API_KEY not configured")
		}
		return scrape.NewFirecrawl(cfg.Scrape.FirecrawlAPIKey, cfg.Scrape.FirecrawlBaseURL), nil
	case "chromedp":
		return &scrape.Chromedp{MaxChars: cfg.Scrape.MaxChars}, nil
	default:
		return nil, fmt.Errorf("unknown scrape provider: %s", cfg.Scrape.Provider)
	}
}
