package server

import (
	"fmt"
	"net/http"
	"time"

	"healthstack/internal/service"

	"github.com/sirupsen/logrus"
)

// HealthChecker reports dependency health for GET /health.
// database.Service satisfies it.
type HealthChecker interface {
	Health() map[string]string
}

type staticHealth map[string]string

func (h staticHealth) Health() map[string]string { return h }

// InMemoryHealth is used when the order store has no database behind it.
var InMemoryHealth HealthChecker = staticHealth{"status": "up", "message": "in-memory store"}

type Server struct {
	port        int
	orders      service.OrderService
	health      HealthChecker
	corsOrigins []string
	log         *logrus.Entry
}

func New(port int, orders service.OrderService, health HealthChecker, corsOrigins []string, log *logrus.Entry) *Server {
	useWireFieldNames()
	return &Server{
		port:        port,
		orders:      orders,
		health:      health,
		corsOrigins: corsOrigins,
		log:         log.WithField("component", "http"),
	}
}

// NewServer wraps the routes in an *http.Server listening on the configured port.
func NewServer(s *Server) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.RegisterRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}
