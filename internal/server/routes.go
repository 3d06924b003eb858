package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/berfenger/p1sim/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxSetpointBody = 1024

type setpointBody struct {
	Power *float64 `json:"power"`
}

type setpointResult struct {
	Power float64 `json:"power"`
}

type errorResult struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/reading", s.ReadingHandler)
	e.PUT("/api/setpoint", s.SetpointHandler)
	if s.registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.ask(domain.ActorHealthRequest{}, healthTimeout)
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// ReadingHandler returns the last emitted reading, 503 until the first telegram.
func (s *Server) ReadingHandler(c echo.Context) error {
	res, err := s.ask(domain.GetReadingRequest{}, meterTimeout)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResult{Error: err.Error()})
	}
	response, ok := res.(domain.GetReadingResponse)
	if !ok || response.HasResponseError() {
		return c.JSON(http.StatusServiceUnavailable, errorResult{Error: "meter unavailable"})
	}
	if response.Reading == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResult{Error: "no reading yet"})
	}
	return c.JSON(http.StatusOK, response.Reading)
}

// SetpointHandler accepts {"power": <kW>} or a plain number.
func (s *Server) SetpointHandler(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSetpointBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResult{Error: err.Error()})
	}
	power, err := parseSetpointBody(string(body))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResult{Error: err.Error()})
	}

	res, err := s.ask(domain.SetPowerRequest{
		Power:  power,
		Source: "http",
	}, meterTimeout)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResult{Error: err.Error()})
	}
	response, ok := res.(domain.SetPowerResponse)
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, errorResult{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusServiceUnavailable, errorResult{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, setpointResult{Power: response.Power})
}

func parseSetpointBody(body string) (float64, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "{") {
		return domain.ParseSetpoint(body)
	}
	var parsed setpointBody
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return 0, errors.Join(domain.ErrInvalidSetpoint, err)
	}
	if parsed.Power == nil {
		return 0, errors.Join(domain.ErrInvalidSetpoint, errors.New("missing power"))
	}
	return *parsed.Power, nil
}
