package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apptwatch/apptwatch/pkg/automation"
	"github.com/apptwatch/apptwatch/pkg/monitor"
)

type fakeMonitor struct {
	startID   string
	startErr  error
	lastSpec  monitor.SessionSpec
	stopCalls []string
	stopped   int
	statuses  []monitor.SessionStatus
}

func (m *fakeMonitor) StartMonitoring(spec monitor.SessionSpec) (string, error) {
	m.lastSpec = spec
	return m.startID, m.startErr
}

func (m *fakeMonitor) StopMonitoring(id string) int {
	m.stopCalls = append(m.stopCalls, id)
	return m.stopped
}

func (m *fakeMonitor) Status() []monitor.SessionStatus { return m.statuses }

type fakeHealth struct {
	health automation.Health
}

func (h *fakeHealth) Health() automation.Health { return h.health }

func serve(t *testing.T, m Monitor, h HealthSource, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	s := New(m, h, 0, zerolog.Nop())
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStartMonitoring_Created(t *testing.T) {
	m := &fakeMonitor{startID: "abc-123"}
	payload := `{"targetUrl":"https://example.com/book","locations":["Danvers","Brockton"]}`

	req := httptest.NewRequest(http.MethodPost, "/api/monitor", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, m, &fakeHealth{}, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "abc-123", decode(t, rec)["sessionId"])
	assert.Equal(t, "https://example.com/book", m.lastSpec.TargetURL)
	assert.Equal(t, []string{"Danvers", "Brockton"}, m.lastSpec.LocationNames)
}

func TestStartMonitoring_InvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/monitor", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, &fakeMonitor{}, &fakeHealth{}, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartMonitoring_ValidationErrorSurfaces(t *testing.T) {
	m := &fakeMonitor{startErr: monitor.Fatal(assert.AnError)}
	req := httptest.NewRequest(http.MethodPost, "/api/monitor", bytes.NewBufferString(`{"targetUrl":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, m, &fakeHealth{}, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["error"])
}

func TestStopAll(t *testing.T) {
	m := &fakeMonitor{stopped: 2}
	req := httptest.NewRequest(http.MethodDelete, "/api/monitor", nil)
	rec := serve(t, m, &fakeHealth{}, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["removed"])
	assert.Equal(t, []string{""}, m.stopCalls)
}

func TestStopOne_NotFound(t *testing.T) {
	m := &fakeMonitor{stopped: 0}
	req := httptest.NewRequest(http.MethodDelete, "/api/monitor/missing", nil)
	rec := serve(t, m, &fakeHealth{}, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []string{"missing"}, m.stopCalls)
}

func TestStopOne_Removed(t *testing.T) {
	m := &fakeMonitor{stopped: 1}
	req := httptest.NewRequest(http.MethodDelete, "/api/monitor/abc-123", nil)
	rec := serve(t, m, &fakeHealth{}, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"abc-123"}, m.stopCalls)
}

func TestStatus(t *testing.T) {
	m := &fakeMonitor{statuses: []monitor.SessionStatus{{
		SessionID:      "abc-123",
		LocationsCount: 2,
		SlotsFound:     4,
		StartedAt:      time.Now(),
	}}}
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := serve(t, m, &fakeHealth{}, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	sessions, ok := decode(t, rec)["sessions"].([]any)
	require.True(t, ok)
	require.Len(t, sessions, 1)
	first := sessions[0].(map[string]any)
	assert.Equal(t, "abc-123", first["sessionId"])
	assert.EqualValues(t, 4, first["slotsFound"])
}

func TestHealth_Healthy(t *testing.T) {
	h := &fakeHealth{health: automation.Health{BrowserOK: true, LastLatencyMs: 42}}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := serve(t, &fakeMonitor{}, h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 42, body["lastLatencyMs"])
}

func TestHealth_DegradedBrowserStillAnswers(t *testing.T) {
	h := &fakeHealth{health: automation.Health{BrowserOK: false}}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := serve(t, &fakeMonitor{}, h, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, false, body["browserOk"])
}
