// Package app wires configuration, services, the quote hub and the job
// scheduler into one runnable application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MiaoJiyu/mini-biz-sim/internal/catalog"
	"github.com/MiaoJiyu/mini-biz-sim/internal/config"
	"github.com/MiaoJiyu/mini-biz-sim/internal/handlers"
	"github.com/MiaoJiyu/mini-biz-sim/internal/keylock"
	"github.com/MiaoJiyu/mini-biz-sim/internal/logger"
	"github.com/MiaoJiyu/mini-biz-sim/internal/market"
	"github.com/MiaoJiyu/mini-biz-sim/internal/middleware"
	"github.com/MiaoJiyu/mini-biz-sim/internal/quotes"
	"github.com/MiaoJiyu/mini-biz-sim/internal/scheduler"
	"github.com/MiaoJiyu/mini-biz-sim/internal/services"
)

// Scheduler job names.
const (
	JobTick    = "market.tick"
	JobDrift   = "market.drift"
	JobSession = "market.session"
	JobQuotes  = "quotes.publish"
)

// App is the assembled application.
type App struct {
	cfg *config.Config
	db  *gorm.DB
	log *zap.SugaredLogger

	Router    *gin.Engine
	Hub       *quotes.Hub
	Scheduler *scheduler.Scheduler

	Instruments services.InstrumentServicer
	History     services.PriceHistoryServicer
	Simulation  services.SimulationServicer
	Trades      services.TradeServicer
	Positions   services.PositionServicer
	Audit       services.AuditServicer
	Distributor *quotes.Distributor

	hubCancel context.CancelFunc
	hubDone   chan struct{}
}

// New builds every service and handler on top of db. Nothing runs until Start.
func New(cfg *config.Config, db *gorm.DB) (*App, error) {
	locks := keylock.New()
	hub := quotes.NewHub(logger.Named("quotes"))

	history := services.NewPriceHistoryService(db)
	instruments := services.NewInstrumentService(db, history)
	simulation := services.NewSimulationService(db, history, locks, services.SimulationConfig{
		TickInterval:    cfg.TickInterval,
		DriftInterval:   cfg.DriftInterval,
		SessionInterval: cfg.SessionInterval,
		Concurrency:     cfg.TickConcurrency,
		Drift:           market.MacroDrift{AnnualGrowth: cfg.MarketGrowthRate, Period: cfg.DriftInterval},
	})

	a := &App{
		cfg:         cfg,
		db:          db,
		log:         logger.Named("app"),
		Hub:         hub,
		Scheduler:   scheduler.New(logger.Named("scheduler")),
		Instruments: instruments,
		History:     history,
		Simulation:  simulation,
		Trades:      services.NewTradeService(db, locks, hub),
		Positions:   services.NewPositionService(db),
		Audit:       services.NewAuditService(db),
		Distributor: quotes.NewDistributor(instruments, hub, cfg.TopMoversLimit),
	}
	a.Router = a.routes()

	if err := a.registerJobs(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) registerJobs() error {
	jobs := []scheduler.Job{
		{
			Name:    JobTick,
			Period:  a.cfg.TickInterval,
			Jitter:  a.cfg.SchedulerJitter,
			Timeout: a.cfg.JobTimeout,
			Run:     a.runSimulation(a.Simulation.Tick),
		},
		{
			Name:    JobDrift,
			Period:  a.cfg.DriftInterval,
			Jitter:  a.cfg.SchedulerJitter,
			Timeout: a.cfg.JobTimeout,
			Run:     a.runSimulation(a.Simulation.Drift),
		},
		{
			Name:    JobSession,
			Period:  a.cfg.SessionInterval,
			Timeout: a.cfg.JobTimeout,
			Run:     a.runSimulation(a.Simulation.OpenSession),
		},
		{
			Name:       JobQuotes,
			Period:     a.cfg.QuoteInterval,
			Timeout:    a.cfg.JobTimeout,
			RunOnStart: true,
			Run:        a.Distributor.Publish,
		},
	}
	for _, job := range jobs {
		if err := a.Scheduler.Add(job); err != nil {
			return fmt.Errorf("failed to register job: %w", err)
		}
	}
	return nil
}

func (a *App) runSimulation(fn func(context.Context, time.Time) (*services.RunResult, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		result, err := fn(ctx, time.Now())
		if err != nil {
			return err
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("%s: %d of %d instruments failed", result.Job, len(result.Errors), result.Instruments)
		}
		return nil
	}
}

// Seed registers the instruments of the catalog at path that do not exist yet.
func (a *App) Seed(ctx context.Context, path string) error {
	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}
	created, err := a.Instruments.SeedInstruments(ctx, cat.Inputs())
	if err != nil {
		return fmt.Errorf("failed to seed instruments: %w", err)
	}
	a.log.Infow("instrument catalog applied", "path", path, "entries", len(cat.Instruments), "created", created)
	return nil
}

// Start runs the quote hub and the scheduler until Stop.
func (a *App) Start(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(ctx)
	a.hubCancel = cancel
	a.hubDone = make(chan struct{})
	go func() {
		defer close(a.hubDone)
		a.Hub.Run(hubCtx)
	}()

	if err := a.Scheduler.Start(ctx); err != nil {
		cancel()
		return err
	}
	return nil
}

// Stop halts the scheduler, waiting for in-flight runs, then closes every
// stream client.
func (a *App) Stop(ctx context.Context) error {
	err := a.Scheduler.Stop(ctx)
	if a.hubCancel != nil {
		a.hubCancel()
		select {
		case <-a.hubDone:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}
	}
	return err
}

// health reports database reachability and stream statistics.
func (a *App) health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	sqlDB, err := a.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":         status,
		"stream_clients": a.Hub.ClientCount(),
		"stream_dropped": a.Hub.Dropped(),
	}
	if stats, ok := a.Scheduler.Stats(JobTick); ok {
		body["last_tick_at"] = stats.LastRunAt
		body["tick_failures"] = stats.Failures
	}
	c.JSON(code, body)
}

func (a *App) routes() *gin.Engine {
	quoteHandler := handlers.NewQuoteHandler(a.Instruments, a.History)
	tradeHandler := handlers.NewTradeHandler(a.Trades)
	positionHandler := handlers.NewPositionHandler(a.Positions)
	pipelineHandler := handlers.NewPipelineHandler(a.Instruments, a.Simulation, a.Audit,
		middleware.GenerateAccessToken, a.cfg.JWTExpirationDur)
	streamHandler := handlers.NewStreamHandler(a.Hub, a.cfg.WSAllowedOrigin)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(cors())
	router.NoRoute(middleware.NotFound)

	router.GET("/swagger/*any", swaggerHandler())
	router.GET("/api/health", a.health)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware())

	q := v1.Group("/quotes")
	q.GET("", quoteHandler.ListQuotes)
	q.GET("/search", quoteHandler.SearchQuotes)
	q.GET("/movers", quoteHandler.TopMovers)
	q.GET("/:symbol", quoteHandler.GetQuote)
	q.GET("/:symbol/history", quoteHandler.GetPriceHistory)

	v1.POST("/trades", tradeHandler.ExecuteTrade)
	v1.GET("/trades", tradeHandler.ListTrades)

	v1.GET("/positions", positionHandler.ListPositions)
	v1.GET("/positions/:symbol", positionHandler.GetPosition)
	v1.GET("/portfolio/value", positionHandler.GetPortfolioValue)

	router.GET("/ws/quotes", middleware.AuthMiddleware(), streamHandler.Stream)

	pipeline := router.Group("/api/v1/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(a.cfg.PipelineAPIKey))
	pipeline.GET("/instruments", pipelineHandler.ListInstruments)
	pipeline.POST("/instruments", pipelineHandler.CreateInstrument)
	pipeline.PUT("/instruments/:symbol/active", pipelineHandler.SetActive)
	pipeline.POST("/market/tick", pipelineHandler.RunTick)
	pipeline.POST("/market/drift", pipelineHandler.RunDrift)
	pipeline.POST("/market/session", pipelineHandler.RunSession)
	pipeline.POST("/tokens", pipelineHandler.IssueToken)

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
