package web

import (
	"net/http"

	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/gin-gonic/gin"
)

const (
	msgTooManyAttempts = "Too many attempts, please try again later."
	msgInvalidLogin    = "Invalid email or password."
	msgEmailTaken      = "E-Mail exists already, please pick a different one."
	msgUnknownEmail    = "No account with that email found."
	msgBadResetLink    = "Password reset link is invalid or has expired."
	msgResetFailed     = "Could not start a password reset, please try again."
)

// render writes a page with the shared chrome values. A pending "error"
// flash is shown unless data already carries an errorMessage.
func (s *Server) render(c *gin.Context, status int, name, title string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}

	tok, err := s.csrfToken(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	if _, ok := data["errorMessage"]; !ok {
		data["errorMessage"] = popFlash(c, "error")
	}
	if _, ok := data["fieldErrors"]; !ok {
		data["fieldErrors"] = map[string]string{}
	}
	if _, ok := data["oldEmail"]; !ok {
		data["oldEmail"] = ""
	}
	data["csrfToken"] = tok
	data["isAuthenticated"] = currentUser(c) != nil
	data["path"] = c.Request.URL.Path
	data["pageTitle"] = title

	if err := s.commitSession(c); err != nil {
		s.fail(c, err)
		return
	}

	c.HTML(status, name, data)
}

func (s *Server) redirect(c *gin.Context, location string) {
	if err := s.commitSession(c); err != nil {
		s.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, location)
}

// flashRedirect queues an error flash and redirects.
func (s *Server) flashRedirect(c *gin.Context, location, msg string) {
	if err := s.flash(c, "error", msg); err != nil {
		s.fail(c, err)
		return
	}
	s.redirect(c, location)
}

// errorPage never writes the session, so it is safe when the session store is
// the thing that failed.
func (s *Server) errorPage(c *gin.Context, status int, heading, message string) {
	var tok string
	if sess := currentSession(c); sess != nil {
		tok = sess.Data.CSRFToken
	}

	c.HTML(status, "error.html", gin.H{
		"heading":         heading,
		"message":         message,
		"errorMessage":    "",
		"fieldErrors":     map[string]string{},
		"csrfToken":       tok,
		"isAuthenticated": currentUser(c) != nil,
		"path":            c.Request.URL.Path,
		"pageTitle":       heading,
	})
	c.Abort()
}

// fail is the single fault boundary of the web layer.
func (s *Server) fail(c *gin.Context, err error) {
	s.logger.Error(c.Request.Context(), "request failed",
		"error", err,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString(keyRequestID),
	)
	s.errorPage(c, http.StatusInternalServerError, "Error!", "We're working on fixing this, sorry for the inconvenience!")
}

func (s *Server) recovery(c *gin.Context, recovered any) {
	s.logger.Error(c.Request.Context(), "panic recovered",
		"panic", recovered,
		"path", c.Request.URL.Path,
		"request_id", c.GetString(keyRequestID),
	)
	s.errorPage(c, http.StatusInternalServerError, "Error!", "We're working on fixing this, sorry for the inconvenience!")
}

func (s *Server) notFound(c *gin.Context) {
	s.errorPage(c, http.StatusNotFound, "Page Not Found!", "The page you are looking for does not exist.")
}

func fieldErrorMap(ve *services.ValidationError) map[string]string {
	m := make(map[string]string, len(ve.Errors))
	for _, fe := range ve.Errors {
		if _, ok := m[fe.Field]; !ok {
			m[fe.Field] = fe.Message
		}
	}
	return m
}
