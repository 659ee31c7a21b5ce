package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	userIDHeader = "X-User-Id"
	userIDKey    = "userID"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(s.corsConfig()))

	r.GET("/health", s.healthHandler)

	orders := r.Group("/api/order", s.requireUser())
	orders.POST("", s.createOrderHandler)
	orders.GET("", s.listOrdersHandler)
	orders.GET("/:id", s.getOrderHandler)

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", userIDHeader},
		ExposeHeaders:    []string{"Location"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	// cors.New panics if AllowAllOrigins is combined with AllowOrigins.
	for _, o := range s.corsOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = s.corsOrigins
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := s.log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if id, ok := c.Get(userIDKey); ok {
			entry = entry.WithField("user_id", id)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}

// requireUser reads the caller id that the gateway sets after validating the
// bearer token.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(userIDHeader))
		if err != nil || id == uuid.Nil {
			writeProblem(c, problem{
				Title:  "Unauthorized",
				Detail: "missing or invalid " + userIDHeader + " header",
				Status: http.StatusUnauthorized,
			})
			c.Abort()
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

func currentUser(c *gin.Context) uuid.UUID {
	return c.MustGet(userIDKey).(uuid.UUID)
}

func (s *Server) healthHandler(c *gin.Context) {
	stats := s.health.Health()
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}
