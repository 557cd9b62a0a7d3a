// Package web is the HTTP surface of the storefront: a gin engine with the
// session, CSRF and throttling middleware and the auth page handlers.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/metrics"
	"github.com/dmitrijs2005/storefront/internal/server/ratelimit"
	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

const shutdownTimeout = 10 * time.Second

type Server struct {
	address      string
	cookieSecure bool
	auth         *services.AuthService
	sessions     *services.SessionService
	limiter      ratelimit.Limiter
	metrics      *metrics.Metrics
	logger       logging.Logger
	router       *gin.Engine
}

func NewServer(cfg *config.Config, as *services.AuthService, ss *services.SessionService,
	limiter ratelimit.Limiter, m *metrics.Metrics, l logging.Logger) *Server {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}

	s := &Server{
		address:      cfg.HTTPAddr,
		cookieSecure: cfg.CookieSecure,
		auth:         as,
		sessions:     ss,
		limiter:      limiter,
		metrics:      m,
		logger:       l.With("module", "web_server"),
	}
	s.router = s.routes()

	return s
}

// Handler exposes the engine, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").ParseFS(templateFS, "templates/*.html")))

	r.Use(s.requestLogger())
	r.Use(gin.CustomRecoveryWithWriter(io.Discard, s.recovery))
	r.Use(s.loadSession())
	r.Use(s.attachUser())
	r.Use(s.csrf())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	r.GET("/", s.getIndex)
	r.GET("/cart", s.requireAuth(), s.getCart)

	r.GET("/login", s.getLogin)
	r.POST("/login", s.throttle("login", "login.html", "Login"), s.postLogin)
	r.GET("/signup", s.getSignup)
	r.POST("/signup", s.postSignup)
	r.POST("/logout", s.postLogout)

	r.GET("/reset", s.getReset)
	r.POST("/reset", s.throttle("reset", "reset.html", "Reset Password"), s.postReset)
	r.GET("/reset/:token", s.getNewPassword)
	r.POST("/new-password", s.postNewPassword)

	r.NoRoute(s.notFound)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
