// Package api exposes accounts, flipbooks and conversion jobs over HTTP.
package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"flipbook-app/config"
	"flipbook-app/internal/auth"
	"flipbook-app/internal/dispatcher"
	"flipbook-app/internal/flipbook"
	"flipbook-app/internal/logging"
)

// SessionCookie carries the session token for browser requests such as the
// viewer's page images.
const SessionCookie = "flipbook_session"

type Server struct {
	auth      *auth.Service
	flipbooks *flipbook.Service
	jobs      *dispatcher.Dispatcher
	cfg       config.ServerConfig
	log       logrus.FieldLogger

	loginLimiter  *limiter
	uploadLimiter *limiter
}

type Deps struct {
	Auth      *auth.Service
	Flipbooks *flipbook.Service
	Jobs      *dispatcher.Dispatcher
	Config    config.ServerConfig
	LoginRate int
	Logger    logrus.FieldLogger
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	cfg := deps.Config
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 10 << 20
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 50 << 20
	}
	return &Server{
		auth:          deps.Auth,
		flipbooks:     deps.Flipbooks,
		jobs:          deps.Jobs,
		cfg:           cfg,
		log:           logger,
		loginLimiter:  newLimiter(deps.LoginRate),
		uploadLimiter: newLimiter(cfg.UploadPerMinute),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.cors(), s.limitBody())

	r.GET("/", func(c *gin.Context) {
		host, _ := os.Hostname()
		c.JSON(http.StatusOK, gin.H{"hostname": host})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"healthy": true, "pending": s.flipbooks.PendingCount()})
	})

	authGroup := r.Group("/auth")
	authGroup.POST("/register", s.rateLimit(s.loginLimiter), s.register)
	authGroup.POST("/login", s.rateLimit(s.loginLimiter), s.login)
	authGroup.POST("/logout", s.requireAuth(), s.logout)

	books := r.Group("/flipbooks", s.requireAuth())
	books.GET("", s.listFlipbooks)
	books.POST("", s.rateLimit(s.uploadLimiter), s.createFlipbook)
	books.POST("/pending/:id/retry", s.retryPending)
	books.GET("/:id", s.getFlipbook)
	books.PUT("/:id", s.updateFlipbook)
	books.DELETE("/:id", s.deleteFlipbook)
	books.GET("/:id/pages/:n", s.getPage)
	books.GET("/:id/view", s.viewFlipbook)
	books.GET("/:id/export.html", s.exportHTML)
	books.GET("/:id/export.pdf", s.exportPDF)

	jobs := r.Group("/jobs", s.requireAuth())
	jobs.POST("", s.rateLimit(s.uploadLimiter), s.createJob)
	jobs.GET("/:id", s.getJob)

	return r
}
