package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *Server) getReset(c *gin.Context) {
	s.render(c, http.StatusOK, "reset.html", "Reset Password", nil)
}

func (s *Server) postReset(c *gin.Context) {
	ctx := c.Request.Context()

	err := s.auth.RequestPasswordReset(ctx, c.PostForm("email"))
	switch {
	case err == nil:
		s.metrics.Auth("reset_request", "ok")
		s.redirect(c, "/")
	case errors.Is(err, common.ErrorNotFound):
		s.metrics.Auth("reset_request", "unknown")
		s.flashRedirect(c, "/reset", msgUnknownEmail)
	default:
		s.metrics.Auth("reset_request", "error")
		s.logger.Error(ctx, "password reset request failed", "error", err, "request_id", c.GetString(keyRequestID))
		s.flashRedirect(c, "/reset", msgResetFailed)
	}
}

func (s *Server) getNewPassword(c *gin.Context) {
	token := c.Param("token")

	user, err := s.auth.ValidateResetToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			s.flashRedirect(c, "/reset", msgBadResetLink)
			return
		}
		s.fail(c, err)
		return
	}

	s.render(c, http.StatusOK, "new-password.html", "New Password", gin.H{
		"userId":        strconv.FormatInt(user.ID, 10),
		"passwordToken": token,
	})
}

func (s *Server) postNewPassword(c *gin.Context) {
	ctx := c.Request.Context()
	rawID := c.PostForm("userId")
	token := c.PostForm("passwordToken")

	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		userID = 0
	}

	err = s.auth.CompletePasswordReset(ctx, userID, token, c.PostForm("password"))
	if err != nil {
		var ve *services.ValidationError
		switch {
		case errors.As(err, &ve):
			s.metrics.Auth("reset_complete", "invalid")
			s.render(c, http.StatusUnprocessableEntity, "new-password.html", "New Password", gin.H{
				"errorMessage":  ve.First(),
				"fieldErrors":   fieldErrorMap(ve),
				"userId":        rawID,
				"passwordToken": token,
			})
		case errors.Is(err, common.ErrInvalidToken):
			s.metrics.Auth("reset_complete", "invalid_token")
			s.flashRedirect(c, "/reset", msgBadResetLink)
		default:
			s.metrics.Auth("reset_complete", "error")
			s.fail(c, err)
		}
		return
	}

	s.metrics.Auth("reset_complete", "ok")
	s.logger.Info(ctx, "password reset", "user_id", userID)
	s.redirect(c, "/login")
}
