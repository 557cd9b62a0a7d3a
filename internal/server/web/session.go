package web

import (
	"net/http"

	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/gin-gonic/gin"
)

const (
	cookieName = "storefront.sid"

	keySession      = "session"
	keySessionDirty = "session_dirty"
	keyUser         = "user"
	keyRequestID    = "request_id"
)

func currentSession(c *gin.Context) *models.Session {
	if v, ok := c.Get(keySession); ok {
		if sess, ok := v.(*models.Session); ok {
			return sess
		}
	}
	return nil
}

func currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(keyUser); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

func markDirty(c *gin.Context) {
	c.Set(keySessionDirty, true)
}

// ensureSession returns the request's session, starting an anonymous one
// when the client has none yet.
func (s *Server) ensureSession(c *gin.Context) (*models.Session, error) {
	if sess := currentSession(c); sess != nil {
		return sess, nil
	}
	sess, err := s.sessions.New()
	if err != nil {
		return nil, err
	}
	c.Set(keySession, sess)
	markDirty(c)
	return sess, nil
}

func (s *Server) csrfToken(c *gin.Context) (string, error) {
	sess, err := s.ensureSession(c)
	if err != nil {
		return "", err
	}
	tok, changed, err := s.sessions.CSRFToken(sess)
	if err != nil {
		return "", err
	}
	if changed {
		markDirty(c)
	}
	return tok, nil
}

func (s *Server) flash(c *gin.Context, key, msg string) error {
	sess, err := s.ensureSession(c)
	if err != nil {
		return err
	}
	sess.Data.AddFlash(key, msg)
	markDirty(c)
	return nil
}

func popFlash(c *gin.Context, key string) string {
	sess := currentSession(c)
	if sess == nil {
		return ""
	}
	msgs := sess.Data.PopFlash(key)
	if len(msgs) == 0 {
		return ""
	}
	markDirty(c)
	return msgs[0]
}

// commitSession stores a modified session and refreshes the cookie. It
// must run before the response is written.
func (s *Server) commitSession(c *gin.Context) error {
	if !c.GetBool(keySessionDirty) {
		return nil
	}
	sess := currentSession(c)
	if sess == nil {
		return nil
	}
	if err := s.sessions.Save(c.Request.Context(), sess); err != nil {
		return err
	}
	if err := s.writeCookie(c, sess); err != nil {
		return err
	}
	c.Set(keySessionDirty, false)
	return nil
}

func (s *Server) writeCookie(c *gin.Context, sess *models.Session) error {
	value, err := s.sessions.Cookie(sess)
	if err != nil {
		return err
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) clearCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
