package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"flipbook-app/internal/store"
)

type credentials struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type userJSON struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func toUserJSON(u store.User) userJSON {
	return userJSON{ID: u.ID, Email: u.Email}
}

func (s *Server) register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	user, err := s.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": toUserJSON(user)})
}

func (s *Server) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	user, session, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respond(c, err)
		return
	}

	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, session.ID, maxAge, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{
		"user": toUserJSON(user),
		"session": gin.H{
			"id":         session.ID,
			"expires_at": session.ExpiresAt,
		},
	})
}

func (s *Server) logout(c *gin.Context) {
	if err := s.auth.Logout(c.Request.Context(), currentSession(c).ID); err != nil {
		respond(c, err)
		return
	}
	c.SetCookie(SessionCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	c.Status(http.StatusNoContent)
}
