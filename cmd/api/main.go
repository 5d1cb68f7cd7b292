package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/emandor/kelas_service/internal/auth"
	"github.com/emandor/kelas_service/internal/cache"
	"github.com/emandor/kelas_service/internal/config"
	"github.com/emandor/kelas_service/internal/db"
	"github.com/emandor/kelas_service/internal/material"
	"github.com/emandor/kelas_service/internal/middleware"
	"github.com/emandor/kelas_service/internal/model"
	"github.com/emandor/kelas_service/internal/quizgen"
	"github.com/emandor/kelas_service/internal/telemetry"
	"github.com/emandor/kelas_service/internal/testpaper"
	"github.com/emandor/kelas_service/internal/ws"
)

func main() {
	doMigrate := flag.Bool("migrate", false, "run migrations and exit")
	flag.Parse()

	cfg := config.Load()
	tlog := telemetry.Init(telemetry.FromEnv(config.GetEnv))

	sqlxDB := db.MustConnect(cfg.DBDSN)
	if *doMigrate {
		db.MustMigrate(sqlxDB)
		tlog.Info().Msg("migrations done")
		return
	}
	rdb := cache.MustConnect(cfg.RedisAddr, cfg.RedisDB)

	gen, err := quizgen.FromConfig(cfg)
	if err != nil {
		log.Fatalf("quiz generator: %v", err)
	}
	tlog.Info().
		Str("port", cfg.AppPort).
		Int("gemini_keys", gen.Pool().Size()).
		Str("gemini_model", cfg.GeminiModel).
		Bool("dry_run", cfg.GeminiDryRun).
		Msg("booting kelas_service")

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler,
		BodyLimit:    cfg.MaxSourceBytes + 64*1024,
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())
	app.Use(middleware.SecureHeaders())
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.RequestLog())
	app.Use(middleware.RateLimiter(100, 30*time.Second))

	authReg := auth.NewRegistry(cfg, sqlxDB, rdb)
	materials := material.NewRepo(sqlxDB)
	tests := testpaper.NewService(testpaper.NewRepo(sqlxDB), rdb, gen, ws.Default, testpaper.Options{
		CacheTTL: cfg.TestCacheTTL,
		Timeout:  cfg.GenerateTimeout,
	})
	mh := material.NewHandler(materials, cfg.MaxSourceBytes)
	th := testpaper.NewHandler(tests, materials, cfg.MaxSourceBytes)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/api/v1/auth/google/login", authReg.GoogleLogin)
	app.Get("/api/v1/auth/google/callback", authReg.GoogleCallback)

	protected := app.Group("/api/v1", middleware.AuthSession(authReg))
	teacher := middleware.RequireRole(model.RoleTeacher)

	protected.Post("/auth/logout", authReg.Logout)
	protected.Get("/me", authReg.Me)

	protected.Post("/materials", teacher, middleware.SourceSizeLimit(cfg.MaxSourceBytes+4096), mh.Create)
	protected.Get("/materials", mh.List)
	protected.Get("/materials/:id", mh.Get)

	protected.Post("/tests", teacher,
		middleware.RateLimiter(cfg.GenerateRateMax, time.Minute),
		middleware.SourceSizeLimit(cfg.MaxSourceBytes+4096),
		th.Create)
	protected.Get("/tests", th.List)
	protected.Get("/tests/:id", th.Get)
	protected.Post("/tests/:id/retry", teacher, middleware.RateLimiter(cfg.GenerateRateMax, time.Minute), th.Retry)
	protected.Post("/tests/:id/submissions", th.Submit)

	app.Get("/ws", middleware.AuthSession(authReg), middleware.WSUpgrade(), websocket.New(ws.Default.Handle))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(":" + cfg.AppPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		tlog.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			return err
		}
		// let running generations finish writing their result
		tests.Wait()
		_ = rdb.Close()
		return sqlxDB.Close()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		tlog.Fatal().Err(err).Msg("server stopped")
	}
}
