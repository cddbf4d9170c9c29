// Package monitor serves a small HTTP interface over the run database:
// JSON endpoints for runs and epoch stats, echarts views of training
// progress and data slices, and a tailsql console for ad hoc queries.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/AmeerHamza111/MONAI/rundb"
)

// WebServer handles the HTTP interface for monitoring training runs.
type WebServer struct {
	address  string
	server   *http.Server
	db       *rundb.DB
	dataRoot string
}

// Config contains configuration options for the web server.
type Config struct {
	Address string
	DB      *rundb.DB
	// DataRoot confines slice previews; requests outside it are
	// rejected.
	DataRoot string
}

// NewWebServer creates a web server with the provided configuration.
func NewWebServer(cfg Config) (*WebServer, error) {
	ws := &WebServer{
		address:  cfg.Address,
		db:       cfg.DB,
		dataRoot: cfg.DataRoot,
	}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: mux,
	}
	return ws, nil
}

// Handler exposes the route tree, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start begins serving in a goroutine and blocks until the context is
// cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("monitor listening on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("monitor server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down monitor server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("monitor shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("monitor force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", ws.handleHealth)
	mux.HandleFunc("/", ws.handleDashboard)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/api/epochs", ws.handleEpochs)
	mux.HandleFunc("/api/checkpoints", ws.handleCheckpoints)
	mux.HandleFunc("/charts/progress", ws.handleProgressChart)
	mux.HandleFunc("/charts/slice", ws.handleSliceChart)

	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "train-monitor", "timestamp": "%s"}`,
		time.Now().UTC().Format(time.RFC3339))
}

func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

// apiRun is the JSON shape of one run.
type apiRun struct {
	ID         string   `json:"run_id"`
	CreatedAt  string   `json:"created_at"`
	Config     string   `json:"config"`
	Status     string   `json:"status"`
	BestMetric *float64 `json:"best_metric,omitempty"`
	BestEpoch  *int64   `json:"best_epoch,omitempty"`
}

func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no run database configured")
		return
	}
	runs, err := ws.db.Runs()
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}
	out := make([]apiRun, 0, len(runs))
	for _, run := range runs {
		a := apiRun{
			ID:        run.ID,
			CreatedAt: run.CreatedAt.UTC().Format(time.RFC3339),
			Config:    run.Config,
			Status:    run.Status,
		}
		if run.BestMetric.Valid {
			v := run.BestMetric.Float64
			a.BestMetric = &v
		}
		if run.BestEpoch.Valid {
			v := run.BestEpoch.Int64
			a.BestEpoch = &v
		}
		out = append(out, a)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// apiEpoch is the JSON shape of one epoch row.
type apiEpoch struct {
	Phase      string   `json:"phase"`
	Epoch      int      `json:"epoch"`
	Loss       float64  `json:"loss"`
	MeanDice   *float64 `json:"mean_dice,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

func (ws *WebServer) handleEpochs(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no run database configured")
		return
	}
	runID := r.URL.Query().Get("run")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run' parameter")
		return
	}
	stats, err := ws.db.EpochStats(runID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("epoch stats: %v", err))
		return
	}
	out := make([]apiEpoch, 0, len(stats))
	for _, s := range stats {
		a := apiEpoch{Phase: s.Phase, Epoch: s.Epoch, Loss: s.Loss, DurationMS: s.DurationMS}
		if s.MeanDice.Valid {
			v := s.MeanDice.Float64
			a.MeanDice = &v
		}
		out = append(out, a)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (ws *WebServer) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no run database configured")
		return
	}
	runID := r.URL.Query().Get("run")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run' parameter")
		return
	}
	cks, err := ws.db.Checkpoints(runID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("checkpoints: %v", err))
		return
	}
	type apiCheckpoint struct {
		Epoch  int      `json:"epoch"`
		Path   string   `json:"path"`
		Metric *float64 `json:"metric,omitempty"`
	}
	out := make([]apiCheckpoint, 0, len(cks))
	for _, ck := range cks {
		a := apiCheckpoint{Epoch: ck.Epoch, Path: ck.Path}
		if ck.Metric.Valid {
			v := ck.Metric.Float64
			a.Metric = &v
		}
		out = append(out, a)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
