package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"buckethop/pkg/scheduler"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	InitTaskManager(zap.NewNop(), 4, 8*1024*1024)
	require.NoError(t, InitScheduler(zap.NewNop(), nil))
	return SetupRouter()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTransferNotFound(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/api/transfers/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartTransferValidation(t *testing.T) {
	router := setupTestRouter(t)

	// Missing required fields.
	w := doJSON(t, router, http.MethodPost, "/api/transfers", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed URL scheme.
	w = doJSON(t, router, http.MethodPost, "/api/transfers", map[string]any{
		"source_url": "ftp://bucket/prefix",
		"dest_url":   "s3://dst/",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleCRUDOverHTTP(t *testing.T) {
	router := setupTestRouter(t)

	create := map[string]any{
		"name":       "nightly",
		"cron_expr":  "0 2 * * *",
		"source_url": "s3://src/data/",
		"dest_url":   "s3://dst/backup/",
	}
	w := doJSON(t, router, http.MethodPost, "/api/schedules", create)
	require.Equal(t, http.StatusOK, w.Code)

	var created scheduler.Schedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.True(t, created.Enabled)

	w = doJSON(t, router, http.MethodGet, "/api/schedules/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/schedules/"+created.ID+"/disable", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/schedules/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats scheduler.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.DisabledSchedules)

	w = doJSON(t, router, http.MethodDelete, "/api/schedules/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/schedules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScheduleRejectsBadCron(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/schedules", map[string]any{
		"name":       "broken",
		"cron_expr":  "every now and then",
		"source_url": "s3://src/",
		"dest_url":   "s3://dst/",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
