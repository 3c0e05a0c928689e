package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inscenium-media/scene.render/internal/db"
	"github.com/inscenium-media/scene.render/internal/render"
	"github.com/inscenium-media/scene.render/internal/render/gate"
)

func testServer(t *testing.T) (*WebServer, *db.DB) {
	t.Helper()
	store, err := db.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	params := NewMemoryParams(gate.Thresholds{
		RejectThreshold:              70,
		MaxGeometryUncertainty:       0.5,
		MinTemporalStability:         0.6,
		MinDeviceCapability:          0.4,
		DownscaleCapabilityThreshold: 0.3,
	})
	ws := NewWebServer(WebServerConfig{Address: ":0", Store: store, Params: params})
	return ws, store
}

func seedDecision(t *testing.T, store *db.DB, id, placementID, state string, epoch time.Time) {
	t.Helper()
	require.NoError(t, store.RecordDecision(context.Background(), render.DecisionRecord{
		DecisionID:  id,
		PlacementID: placementID,
		SurfaceID:   "surf-1",
		EpochTime:   epoch,
		State:       state,
		Opacity:     1,
		Resolution:  "full",
		FinalPRS:    91.75,
	}))
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	ws, _ := testServer(t)

	rr := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status": "ok"`)
}

func TestHandleParams(t *testing.T) {
	t.Parallel()

	t.Run("get returns current thresholds", func(t *testing.T) {
		t.Parallel()
		ws, _ := testServer(t)
		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/render/params", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var p map[string]float64
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
		assert.Equal(t, 70.0, p["reject_threshold"])
		assert.Equal(t, 0.6, p["min_temporal_stability"])
	})

	t.Run("post updates thresholds", func(t *testing.T) {
		t.Parallel()
		ws, _ := testServer(t)
		body := `{"reject_threshold":60,"max_geometry_uncertainty":0.5,"min_temporal_stability":0.5,"min_device_capability":0.4,"downscale_capability_threshold":0.3}`
		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/render/params", strings.NewReader(body)))
		require.Equal(t, http.StatusNoContent, rr.Code)

		assert.Equal(t, 60.0, ws.params.Get().RejectThreshold)
	})

	t.Run("post rejects out-of-range values", func(t *testing.T) {
		t.Parallel()
		ws, _ := testServer(t)
		body := `{"reject_threshold":140}`
		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/render/params", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "reject_threshold")
	})

	t.Run("post rejects malformed body", func(t *testing.T) {
		t.Parallel()
		ws, _ := testServer(t)
		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/render/params", bytes.NewReader([]byte("{"))))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("delete is not allowed", func(t *testing.T) {
		t.Parallel()
		ws, _ := testServer(t)
		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/render/params", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestHandleDecisions(t *testing.T) {
	t.Parallel()
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("returns recent decisions", func(t *testing.T) {
		t.Parallel()
		ws, store := testServer(t)
		seedDecision(t, store, "d-1", "pl-1", "full", epoch)
		seedDecision(t, store, "d-2", "pl-2", "suppress", epoch.Add(time.Second))

		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/render/decisions", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var records []render.DecisionRecord
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
		require.Len(t, records, 2)
		assert.Equal(t, "d-2", records[0].DecisionID)
	})

	t.Run("filters by placement id", func(t *testing.T) {
		t.Parallel()
		ws, store := testServer(t)
		seedDecision(t, store, "d-1", "pl-1", "full", epoch)
		seedDecision(t, store, "d-2", "pl-2", "suppress", epoch)

		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/render/decisions?placement_id=pl-2", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var records []render.DecisionRecord
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
		require.Len(t, records, 1)
		assert.Equal(t, "d-2", records[0].DecisionID)
	})

	t.Run("rejects invalid limit", func(t *testing.T) {
		t.Parallel()
		ws, _ := testServer(t)
		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/render/decisions?limit=bogus", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleDecisionChart(t *testing.T) {
	t.Parallel()
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("renders html chart", func(t *testing.T) {
		t.Parallel()
		ws, store := testServer(t)
		for i := 0; i < 3; i++ {
			seedDecision(t, store, "d-"+string(rune('a'+i)), "pl-1", "full", epoch.Add(time.Duration(i)*time.Second))
		}
		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/decisions/chart", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rr.Body.String(), "echarts")
	})

	t.Run("empty store is not found", func(t *testing.T) {
		t.Parallel()
		ws, _ := testServer(t)
		rr := httptest.NewRecorder()
		ws.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/decisions/chart", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestMemoryParamsValidation(t *testing.T) {
	t.Parallel()
	p := NewMemoryParams(gate.Thresholds{RejectThreshold: 70})

	assert.Error(t, p.Set(gate.Thresholds{MinTemporalStability: 2}))
	assert.Error(t, p.Set(gate.Thresholds{MinDeviceCapability: -1}))
	assert.NoError(t, p.Set(gate.Thresholds{RejectThreshold: 80, MinTemporalStability: 0.5}))
	assert.Equal(t, 80.0, p.Get().RejectThreshold)
}
