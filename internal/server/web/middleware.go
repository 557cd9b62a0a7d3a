package web

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestLogger logs one line per request and feeds the HTTP metrics.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(keyRequestID, id)
		c.Header("X-Request-ID", id)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)

		s.metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(latency.Seconds())

		s.logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"route", route,
			"path", c.Request.URL.Path,
			"status", status,
			"client_ip", c.ClientIP(),
			"latency", latency,
			"request_id", id,
		)
	}
}

// loadSession resolves the session cookie. A missing, forged or expired
// cookie leaves the request without a session. An ageing session is marked
// dirty so the response slides both the stored expiry and the cookie.
func (s *Server) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(cookieName)
		if err != nil {
			c.Next()
			return
		}

		sess, err := s.sessions.Load(c.Request.Context(), value)
		switch {
		case err == nil:
			c.Set(keySession, sess)
			if s.sessions.NeedsRefresh(sess) {
				markDirty(c)
			}
		case errors.Is(err, common.ErrorNotFound):
		default:
			s.fail(c, err)
			return
		}

		c.Next()
	}
}

// attachUser fetches the logged-in user on every request. A user that no
// longer exists leaves the request anonymous.
func (s *Server) attachUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := currentSession(c)
		if sess == nil || !sess.Data.IsLoggedIn || sess.Data.UserID <= 0 {
			c.Next()
			return
		}

		user, err := s.auth.CurrentUser(c.Request.Context(), sess.Data.UserID)
		switch {
		case err == nil:
			c.Set(keyUser, user)
		case errors.Is(err, common.ErrorNotFound):
		default:
			s.fail(c, err)
			return
		}

		c.Next()
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// csrf rejects state-changing requests whose token does not match the
// session's. A logout without a session passes through.
func (s *Server) csrf() gin.HandlerFunc {
	return func(c *gin.Context) {
		if safeMethod(c.Request.Method) {
			c.Next()
			return
		}

		sess := currentSession(c)
		// Logging out without a session changes nothing.
		if sess == nil && c.FullPath() == "/logout" {
			c.Next()
			return
		}

		var want string
		if sess != nil {
			want = sess.Data.CSRFToken
		}

		got := c.PostForm("_csrf")
		if got == "" {
			got = c.GetHeader("X-CSRF-Token")
		}

		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.logger.Warn(c.Request.Context(), "csrf token mismatch",
				"path", c.Request.URL.Path,
				"request_id", c.GetString(keyRequestID),
			)
			s.errorPage(c, http.StatusForbidden, "Forbidden", "Invalid or missing form token. Please reload the page and try again.")
			return
		}

		c.Next()
	}
}

// throttle limits attempts per client IP for one route. Limiter errors let
// the request through.
func (s *Server) throttle(route, page, title string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := s.limiter.Allow(c.Request.Context(), route+":"+c.ClientIP())
		if err != nil {
			s.logger.Warn(c.Request.Context(), "rate limiter unavailable", "route", route, "error", err)
			c.Next()
			return
		}
		if !ok {
			s.metrics.RateLimited.WithLabelValues(route).Inc()
			s.render(c, http.StatusTooManyRequests, page, title, gin.H{
				"errorMessage": msgTooManyAttempts,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			s.redirect(c, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}
