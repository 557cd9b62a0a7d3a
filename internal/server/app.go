// Package server wires the storefront together: database and migrations,
// mail dispatcher, throttle backend, services and the HTTP server. It also
// runs the expired-session sweeper and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/mailer"
	"github.com/dmitrijs2005/storefront/internal/server/metrics"
	"github.com/dmitrijs2005/storefront/internal/server/ratelimit"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/dmitrijs2005/storefront/internal/server/web"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

const mailDrainTimeout = 15 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	rdb      *redis.Client
	metrics  *metrics.Metrics
	mail     *mailer.Dispatcher
	sessions *services.SessionService
	web      *web.Server
}

// OpenDB connects to Postgres and applies pending migrations.
func OpenDB(ctx context.Context, c *config.Config, m repomanager.RepositoryManager) (*sql.DB, error) {
	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	return db, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	um := repomanager.NewPostgresRepositoryManager()
	db, err := OpenDB(ctx, c, um)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := metrics.New()
	mail := newMailer(c, logger, m)
	limiter, rdb := newLimiter(c)

	tokens := auth.NewHexTokenGenerator()
	as := services.NewAuthService(db, um, c, auth.NewBcryptHasher(), tokens, mail)
	ss := services.NewSessionService(db, um, c, tokens)

	gin.SetMode(gin.ReleaseMode)
	ws := web.NewServer(c, as, ss, limiter, m, logger)

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		rdb:      rdb,
		metrics:  m,
		mail:     mail,
		sessions: ss,
		web:      ws,
	}, nil
}

func newMailer(c *config.Config, logger logging.Logger, m *metrics.Metrics) *mailer.Dispatcher {
	var sender mailer.Sender
	if c.SMTPHost != "" {
		sender = mailer.NewSMTPSender(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword)
	} else {
		sender = mailer.NewLogSender(logger.With("module", "mailer"))
	}

	return mailer.NewDispatcher(sender, c.MailTimeout, logger.With("module", "mail_dispatcher"),
		mailer.WithFailureHook(func(ctx context.Context, msg mailer.Message, err error) {
			m.MailsTotal.WithLabelValues("failed").Inc()
		}),
		mailer.WithSuccessHook(func(msg mailer.Message) {
			m.MailsTotal.WithLabelValues("sent").Inc()
		}),
	)
}

// newLimiter returns the Redis-backed throttle, or a no-op when no Redis
// address is configured. The client is nil in the latter case.
func newLimiter(c *config.Config) (ratelimit.Limiter, *redis.Client) {
	if c.RedisAddr == "" {
		return ratelimit.Noop{}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})
	return ratelimit.NewRedisLimiter(rdb, "", c.RateLimitMax, c.RateLimitWindow), rdb
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.web.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// sweep removes expired sessions once.
func (app *App) sweep(ctx context.Context) {
	n, err := app.sessions.Sweep(ctx)
	if err != nil {
		app.logger.Error(ctx, "session sweep failed", "error", err)
		return
	}
	if n > 0 {
		app.metrics.SessionsSwept.Add(float64(n))
		app.logger.Debug(ctx, "expired sessions removed", "count", n)
	}
}

func (app *App) runSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.sweep(ctx)
		}
	}
}

func (app *App) shutdown(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailDrainTimeout)
	defer cancel()
	if err := app.mail.Wait(drainCtx); err != nil {
		app.logger.Warn(ctx, "mail still in flight at shutdown", "error", err)
	}

	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Error(ctx, "redis close", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close", "error", err)
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweeper(ctx, app.config.SessionSweepInterval)
	}()

	wg.Wait()

	app.shutdown(ctx)
	app.logger.Info(ctx, "App stopped")
}
