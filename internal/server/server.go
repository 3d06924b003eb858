package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/p1sim/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// the master waits up to a second for its children
	healthTimeout = 10 * time.Second
	meterTimeout  = 2 * time.Second
)

// Server exposes the simulator over HTTP: health, the last reading, setpoints and metrics.
// Every handler is a request to the master actor.
type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	registry    *prometheus.Registry
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, registry *prometheus.Registry) *http.Server {
	s := &Server{
		port:        cfg.Port,
		httpLog:     cfg.HttpLog,
		rootContext: rootContext,
		masterActor: masterActor,
		registry:    registry,
	}
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      healthTimeout + 5*time.Second,
	}
}

func (s *Server) ask(msg any, timeout time.Duration) (any, error) {
	return s.rootContext.RequestFuture(s.masterActor, msg, timeout).Result()
}
