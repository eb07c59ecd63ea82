package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"github.com/WilliamCarlos132/site4me/internal/buffer"
	"github.com/WilliamCarlos132/site4me/internal/config"
	"github.com/WilliamCarlos132/site4me/internal/http/handlers"
	"github.com/WilliamCarlos132/site4me/internal/http/middleware"
	"github.com/WilliamCarlos132/site4me/internal/reconcile"
	"github.com/WilliamCarlos132/site4me/internal/recorder"
	"github.com/WilliamCarlos132/site4me/internal/sched"
	"github.com/WilliamCarlos132/site4me/internal/store"
	"github.com/WilliamCarlos132/site4me/internal/track"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	local, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	cached := store.NewCached(local, cfg.CacheTTL)

	queue, err := buffer.NewGormQueue(local.DB(), cfg.RetryLimit)
	if err != nil {
		log.Fatalf("failed to prepare retry buffer: %v", err)
	}

	recorder.InitPrometheusMetrics()

	var (
		mirror *store.Mirror
		engine *reconcile.Engine
	)
	if cfg.MirrorURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.MirrorTimeout)
		mirror, err = store.ConnectMirror(ctx, cfg.MirrorURI, cfg.MirrorDatabase)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect mirror: %v", err)
		}
		reconcile.InitPrometheusMetrics()
		engine = reconcile.New(local, mirror, cached.Invalidate, cfg.MirrorTimeout)
	} else {
		log.Printf("no mirror configured, running local-only")
	}

	recOpts := []recorder.Option{}
	if engine != nil {
		recOpts = append(recOpts, recorder.WithMirror(engine))
	}
	rec := recorder.New(cached, queue, cfg.RecentVisitLimit, recOpts...)

	minVisit := time.Duration(cfg.MinVisitSeconds * float64(time.Second))
	sessions := track.NewManager(rec, minVisit, cfg.SessionIdleTimeout)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := sched.New()
	scheduler.AddEvery(time.Minute, 30*time.Second, func(ctx context.Context) error {
		rec.ReplayPending(ctx)
		return nil
	}, "retry replay failed")
	scheduler.AddEvery(time.Minute, 10*time.Second, func(context.Context) error {
		sessions.SweepIdle()
		return nil
	}, "session sweep failed")
	if engine != nil {
		scheduler.AddEvery(cfg.ReconcileEvery, 2*time.Minute, engine.ReconcileAll, "reconciliation pass failed")

		// One pass at boot so a restart converges before the first tick.
		go func() {
			ctx, cancel := context.WithTimeout(rootCtx, 2*time.Minute)
			defer cancel()
			if err := engine.ReconcileAll(ctx); err != nil {
				log.Printf("startup reconciliation failed: %v", err)
			}
		}()
		if cfg.MirrorWatch {
			go engine.Watch(rootCtx, mirror.Collection())
		}
	}
	go rec.ReplayPending(rootCtx)
	scheduler.Start()

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metrics", handlers.MetricsHandler())

	r.POST("/v1/pageview", handlers.PageviewHandler(rec))
	r.POST("/v1/track/navigate", handlers.NavigateHandler(sessions))
	r.POST("/v1/track/visibility", handlers.VisibilityHandler(sessions))
	r.POST("/v1/track/close", handlers.CloseHandler(sessions))
	r.GET("/v1/stats", handlers.StatsBatchHandler(cached))
	r.GET("/v1/stats/{key}", handlers.StatsHandler(cached))

	handler := handlers.RequestLogger(middleware.CORS(cfg)(r.Handler))
	server := &fasthttp.Server{Handler: handler}

	go func() {
		log.Printf("site4me listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Printf("shutting down")
	scheduler.Stop()
	if err := server.Shutdown(); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
