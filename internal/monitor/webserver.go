// Package monitor is the HTTP interface for observing and tuning the
// renderer: health, live gate thresholds, the decision audit feed, and
// debug charts.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/inscenium-media/scene.render/internal/db"
	"github.com/inscenium-media/scene.render/internal/render/gate"
	"github.com/inscenium-media/scene.render/internal/version"
)

// ParamStore is the live gate-threshold store shared between the monitor
// and the render loop. The loop reads it each decision epoch.
type ParamStore interface {
	Get() gate.Thresholds
	Set(gate.Thresholds) error
}

// MemoryParams is the in-process ParamStore.
type MemoryParams struct {
	mu sync.RWMutex
	th gate.Thresholds
}

func NewMemoryParams(th gate.Thresholds) *MemoryParams {
	return &MemoryParams{th: th}
}

func (p *MemoryParams) Get() gate.Thresholds {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.th
}

func (p *MemoryParams) Set(th gate.Thresholds) error {
	if th.RejectThreshold < 0 || th.RejectThreshold > 100 {
		return fmt.Errorf("reject_threshold %v out of range [0,100]", th.RejectThreshold)
	}
	if th.MinTemporalStability < 0 || th.MinTemporalStability > 1 {
		return fmt.Errorf("min_temporal_stability %v out of range [0,1]", th.MinTemporalStability)
	}
	if th.MinDeviceCapability < 0 || th.MinDeviceCapability > 1 {
		return fmt.Errorf("min_device_capability %v out of range [0,1]", th.MinDeviceCapability)
	}
	if th.MaxGeometryUncertainty < 0 {
		return fmt.Errorf("max_geometry_uncertainty %v must be non-negative", th.MaxGeometryUncertainty)
	}
	p.mu.Lock()
	p.th = th
	p.mu.Unlock()
	return nil
}

// WebServer handles the HTTP interface for monitoring render decisions.
type WebServer struct {
	address string
	server  *http.Server
	store   *db.DB
	params  ParamStore
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Store   *db.DB
	Params  ParamStore
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		store:   config.Store,
		params:  config.Params,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Handler exposes the route mux, for tests and for mounting admin routes.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start begins the HTTP server in a goroutine and handles graceful shutdown
// when the context is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/render/params", ws.handleParams)
	mux.HandleFunc("/api/render/decisions", ws.handleDecisions)
	mux.HandleFunc("/debug/decisions/chart", ws.handleDecisionChart)

	if ws.store != nil {
		ws.store.AttachAdminRoutes(mux)
	}

	return mux
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "render", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

// paramsPayload is the wire form of the gate thresholds, keyed the way the
// threshold configuration file spells them.
type paramsPayload struct {
	RejectThreshold              float64 `json:"reject_threshold"`
	MaxGeometryUncertainty       float64 `json:"max_geometry_uncertainty"`
	MinTemporalStability         float64 `json:"min_temporal_stability"`
	MinDeviceCapability          float64 `json:"min_device_capability"`
	DownscaleCapabilityThreshold float64 `json:"downscale_capability_threshold"`
}

func (ws *WebServer) handleParams(w http.ResponseWriter, r *http.Request) {
	if ws.params == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no parameter store configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		th := ws.params.Get()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(paramsPayload{
			RejectThreshold:              th.RejectThreshold,
			MaxGeometryUncertainty:       th.MaxGeometryUncertainty,
			MinTemporalStability:         th.MinTemporalStability,
			MinDeviceCapability:          th.MinDeviceCapability,
			DownscaleCapabilityThreshold: th.DownscaleCapabilityThreshold,
		})
	case http.MethodPost:
		var p paramsPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
			return
		}
		th := gate.Thresholds{
			RejectThreshold:              p.RejectThreshold,
			MaxGeometryUncertainty:       p.MaxGeometryUncertainty,
			MinTemporalStability:         p.MinTemporalStability,
			MinDeviceCapability:          p.MinDeviceCapability,
			DownscaleCapabilityThreshold: p.DownscaleCapabilityThreshold,
		}
		if err := ws.params.Set(th); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (ws *WebServer) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if ws.store == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no audit store configured")
		return
	}

	limit := 100
	if lp := r.URL.Query().Get("limit"); lp != "" {
		v, err := strconv.Atoi(lp)
		if err != nil || v < 1 || v > 5000 {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	placementID := r.URL.Query().Get("placement_id")
	var (
		records interface{}
		err     error
	)
	if placementID != "" {
		records, err = ws.store.PlacementDecisions(r.Context(), placementID, limit)
	} else {
		records, err = ws.store.RecentDecisions(r.Context(), limit)
	}
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}
