package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/datepoll/internal/config"
	"github.com/iliyamo/datepoll/internal/handler"
	"github.com/iliyamo/datepoll/internal/kv"
	"github.com/iliyamo/datepoll/internal/logging"
	"github.com/iliyamo/datepoll/internal/middleware"
	"github.com/iliyamo/datepoll/internal/queue"
	"github.com/iliyamo/datepoll/internal/repository"
	"github.com/iliyamo/datepoll/internal/router"
	"github.com/iliyamo/datepoll/internal/service"
	"github.com/iliyamo/datepoll/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kv.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	defer store.Close()
	if m, ok := store.(*kv.MySQL); ok {
		go m.RunJanitor(ctx, time.Hour, func(err error) {
			log.Warn().Err(err).Msg("purge expired rows")
		})
	}

	// Rate limiting and response caching need Redis even when the store
	// runs on another driver; both are skipped when none is reachable.
	var rdb *redis.Client
	if r, ok := store.(*kv.Redis); ok {
		rdb = r.Client()
	} else if rdb = config.NewRedisClient(); rdb != nil {
		defer rdb.Close()
	} else {
		log.Info().Msg("redis unavailable; rate limiting and caching disabled")
	}

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.EventsEnabled {
		p := queue.NewAMQPPublisher(cfg.RabbitURL, log)
		defer p.Close()
		events = p
	}

	meetings := service.NewMeetingService(
		repository.NewMeetingRepo(store),
		repository.NewAvailabilityRepo(store),
		service.MeetingOptions{TTLMonths: cfg.MeetingTTLMonths, EnforceLocks: cfg.LockEnforcement, Events: events},
	)
	links := service.NewShortLinkService(repository.NewShortLinkRepo(store), cfg.ShortLinkTTL, cfg.BaseURL, events)
	issuer := session.NewIssuer(cfg.SessionSecret, cfg.SessionTTL)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.BodyLimit("256K"))
	e.Use(middleware.Session(issuer))

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e, func(ctx context.Context) error {
		_, err := store.Exists(ctx, "healthz")
		return err
	})
	router.RegisterMeetings(e, handler.NewMeetingHandler(meetings, issuer), limiter, cache)
	router.RegisterShortLinks(e, handler.NewShortLinkHandler(links, cfg.BaseURL), limiter)

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
