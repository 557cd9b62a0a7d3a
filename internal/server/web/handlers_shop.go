package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) getIndex(c *gin.Context) {
	var email string
	if user := currentUser(c); user != nil {
		email = user.Email
	}
	s.render(c, http.StatusOK, "index.html", "Shop", gin.H{"email": email})
}

func (s *Server) getCart(c *gin.Context) {
	user := currentUser(c)

	cart, err := s.auth.Cart(c.Request.Context(), user.ID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.render(c, http.StatusOK, "cart.html", "Your Cart", gin.H{
		"cartId": strconv.FormatInt(cart.ID, 10),
	})
}
