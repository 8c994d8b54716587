package relayhandler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatrelay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	users    []string
	messages []relay.Message
	snapshot relay.MetricsSnapshot
}

func (s *stubReader) Users() []string                 { return s.users }
func (s *stubReader) Messages() []relay.Message       { return s.messages }
func (s *stubReader) Snapshot() relay.MetricsSnapshot { return s.snapshot }

func newTestEngine(svc ISessionReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	New(svc).Register(engine)
	return engine
}

func doGet(t *testing.T, engine *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doGet(t, newTestEngine(&stubReader{}), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUsers(t *testing.T) {
	svc := &stubReader{users: []string{"Alice", "Guest_abcd"}}
	rec := doGet(t, newTestEngine(svc), "/users")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":["Alice","Guest_abcd"]}`, rec.Body.String())
}

func TestMessages(t *testing.T) {
	svc := &stubReader{messages: []relay.Message{
		{Text: "hi", Username: "Alice", Timestamp: 1700000000.25, Server: "go-relay"},
	}}
	rec := doGet(t, newTestEngine(svc), "/messages")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []relay.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Text)
	assert.Equal(t, 1700000000.25, got[0].Timestamp)
}

func TestMetrics(t *testing.T) {
	svc := &stubReader{snapshot: relay.MetricsSnapshot{
		ActiveConnections: 3,
		MessagesPerSecond: 0.5,
		MemoryUsageMB:     128,
		CPUUsagePct:       7.5,
		AverageLatencies:  map[string]float64{"sid-a": 42},
		Server:            "go-relay",
	}}
	rec := doGet(t, newTestEngine(svc), "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	var got relay.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.ActiveConnections)
	assert.Equal(t, 42.0, got.AverageLatencies["sid-a"])
}
