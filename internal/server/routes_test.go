package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/metrics"
	"github.com/berfenger/p1sim/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMaster answers like the master actor with a meter behind it.
type fakeMaster struct {
	mu      sync.Mutex
	reading *domain.Reading
	powers  []float64
	healthy bool
}

func (m *fakeMaster) receive(ctx actor.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: m.healthy})
	case domain.GetReadingRequest:
		ctx.Respond(domain.GetReadingResponse{Reading: m.reading})
	case domain.SetPowerRequest:
		m.powers = append(m.powers, msg.Power)
		ctx.Respond(domain.SetPowerResponse{Power: msg.Power})
	}
}

func (m *fakeMaster) setReading(reading *domain.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reading = reading
}

func (m *fakeMaster) setPowers() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.powers...)
}

func newTestServer(t *testing.T, master *fakeMaster) http.Handler {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromFunc(master.receive))

	cfg := util.LoadTestConfig()
	s := &Server{
		port:        cfg.Port,
		rootContext: as.Root,
		masterActor: pid,
		registry:    metrics.NewMeter().Registry,
	}
	return s.RegisterRoutes()
}

func do(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	master := &fakeMaster{healthy: true}
	handler := newTestServer(t, master)

	rec := do(handler, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())

	master.mu.Lock()
	master.healthy = false
	master.mu.Unlock()
	rec = do(handler, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReading(t *testing.T) {
	master := &fakeMaster{healthy: true}
	handler := newTestServer(t, master)

	rec := do(handler, http.MethodGet, "/api/reading", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no reading before the first telegram")

	master.setReading(&domain.Reading{
		Timestamp: time.Date(2024, 5, 10, 13, 0, 0, 0, time.UTC),
		Tariff:    domain.TARIFF_HIGH,
		EnergyT1:  9159.772,
		Power:     0.5,
		Voltages:  [3]float64{230, 231, 229},
	})
	rec = do(handler, http.MethodGet, "/api/reading", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var reading domain.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
	assert.Equal(t, domain.TARIFF_HIGH, reading.Tariff)
	assert.Equal(t, 9159.772, reading.EnergyT1)
	assert.Equal(t, 0.5, reading.Power)
	assert.True(t, reading.Timestamp.Equal(time.Date(2024, 5, 10, 13, 0, 0, 0, time.UTC)))
}

func TestSetpoint(t *testing.T) {
	master := &fakeMaster{healthy: true}
	handler := newTestServer(t, master)

	rec := do(handler, http.MethodPut, "/api/setpoint", `{"power": 2.75}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"power": 2.75}`, rec.Body.String())

	rec = do(handler, http.MethodPut, "/api/setpoint", "-1.5\n")
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, body := range []string{"", "abc", `{"power": "x"}`, `{"watts": 1}`, "NaN"} {
		rec = do(handler, http.MethodPut, "/api/setpoint", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}

	assert.Equal(t, []float64{2.75, -1.5}, master.setPowers())
}

func TestMetrics(t *testing.T) {
	handler := newTestServer(t, &fakeMaster{healthy: true})

	rec := do(handler, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "p1sim_telegrams_total")
}

func TestNewServer(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Port = 8089

	srv := NewServer(cfg, nil, nil, nil)
	assert.Equal(t, ":8089", srv.Addr)
	assert.Greater(t, srv.WriteTimeout, healthTimeout, "health checks finish before the write deadline")

	rec := do(srv.Handler, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no registry, no metrics route")
}
