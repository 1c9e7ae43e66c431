package watchdog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/techpack-cli/internal/model"
)

func TestHandler_Health(t *testing.T) {
	w := New(newTestStore(t), nil, testConfig())
	h := NewHandler(w, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandler_GetJob(t *testing.T) {
	st := newTestStore(t)
	job, err := st.CreateJob(context.Background(), "styles.csv")
	require.NoError(t, err)
	h := NewHandler(New(st, nil, testConfig()), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, model.JobStatusQueued, got.Status)
}

func TestHandler_GetJobNotFound(t *testing.T) {
	h := NewHandler(New(newTestStore(t), nil, testConfig()), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Attempts(t *testing.T) {
	w := New(newTestStore(t), nil, testConfig())
	w.attempts["job-1"] = 2
	h := NewHandler(w, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/watchdog/attempts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"max_restart_attempts":3,"attempts":{"job-1":2}}`, rec.Body.String())
}

func TestHandler_CORS(t *testing.T) {
	h := NewHandler(New(newTestStore(t), nil, testConfig()), []string{"https://ops.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandler_UnknownRoute(t *testing.T) {
	h := NewHandler(New(newTestStore(t), nil, testConfig()), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
