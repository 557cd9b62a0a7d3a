package web

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *Server) getLogin(c *gin.Context) {
	s.render(c, http.StatusOK, "login.html", "Login", nil)
}

func (s *Server) postLogin(c *gin.Context) {
	ctx := c.Request.Context()
	email := c.PostForm("email")

	user, err := s.auth.Login(ctx, email, c.PostForm("password"))
	if err != nil {
		var ve *services.ValidationError
		switch {
		case errors.As(err, &ve):
			s.metrics.Auth("login", "invalid")
			s.render(c, http.StatusUnprocessableEntity, "login.html", "Login", gin.H{
				"errorMessage": ve.First(),
				"fieldErrors":  fieldErrorMap(ve),
				"oldEmail":     email,
			})
		case errors.Is(err, common.ErrorUnauthorized):
			s.metrics.Auth("login", "denied")
			s.render(c, http.StatusUnprocessableEntity, "login.html", "Login", gin.H{
				"errorMessage": msgInvalidLogin,
				"oldEmail":     email,
			})
		default:
			s.metrics.Auth("login", "error")
			s.fail(c, err)
		}
		return
	}

	sess, err := s.sessions.Establish(ctx, currentSession(c), user.ID)
	if err != nil {
		s.metrics.Auth("login", "error")
		s.fail(c, err)
		return
	}
	c.Set(keySession, sess)
	c.Set(keySessionDirty, false)
	if err := s.writeCookie(c, sess); err != nil {
		s.fail(c, err)
		return
	}

	s.metrics.Auth("login", "ok")
	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) getSignup(c *gin.Context) {
	s.render(c, http.StatusOK, "signup.html", "Signup", nil)
}

func (s *Server) postSignup(c *gin.Context) {
	ctx := c.Request.Context()
	in := services.SignupInput{
		Email:           c.PostForm("email"),
		Password:        c.PostForm("password"),
		ConfirmPassword: c.PostForm("confirmPassword"),
	}

	user, err := s.auth.Signup(ctx, in)
	if err != nil {
		var ve *services.ValidationError
		switch {
		case errors.As(err, &ve):
			s.metrics.Auth("signup", "invalid")
			s.render(c, http.StatusUnprocessableEntity, "signup.html", "Signup", gin.H{
				"errorMessage": ve.First(),
				"fieldErrors":  fieldErrorMap(ve),
				"oldEmail":     in.Email,
			})
		case errors.Is(err, common.ErrorAlreadyExists):
			s.metrics.Auth("signup", "duplicate")
			s.flashRedirect(c, "/signup", msgEmailTaken)
		default:
			s.metrics.Auth("signup", "error")
			s.fail(c, err)
		}
		return
	}

	s.metrics.Auth("signup", "ok")
	s.logger.Info(ctx, "user signed up", "user_id", user.ID)
	s.redirect(c, "/login")
}

func (s *Server) postLogout(c *gin.Context) {
	if err := s.sessions.Destroy(c.Request.Context(), currentSession(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Set(keySession, nil)
	c.Set(keySessionDirty, false)
	s.clearCookie(c)

	s.metrics.Auth("logout", "ok")
	c.Redirect(http.StatusFound, "/")
}
