// Package control implements the Control API (§4.11): a thin HTTP CRUD layer
// over the consent directory plus a health endpoint, built on a plain
// net/http.ServeMux and encoding/json rather than a router package, grounded
// on the broader pack's vincent99-velocipi/server/handlers.go (hand-rolled
// net/http handlers with manual JSON responses) — a five-route surface does
// not earn a routing dependency.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/privacyfilter/streamer/internal/consent"
	"github.com/privacyfilter/streamer/internal/supervisor"
)

// Server is the Control API's HTTP surface.
type Server struct {
	consentDir string
	consents   *consent.Manager
	capture    *consent.CaptureTrigger
	sup        *supervisor.WorkerStateManager
	log        *slog.Logger

	httpServer *http.Server
}

// New builds a Server listening on addr. consents and sup must not be nil;
// capture may be nil, in which case POST /consents/capture responds 404.
func New(addr, consentDir string, consents *consent.Manager, capture *consent.CaptureTrigger, sup *supervisor.WorkerStateManager, log *slog.Logger) *Server {
	s := &Server{
		consentDir: consentDir,
		consents:   consents,
		capture:    capture,
		sup:        sup,
		log:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /consents", s.handleListConsents)
	mux.HandleFunc("POST /consents/capture", s.handleCaptureConsent)
	mux.HandleFunc("GET /consents/{id}/image", s.handleConsentImage)
	mux.HandleFunc("DELETE /consents/{id}", s.handleDeleteConsent)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine. A bind failure is reported
// through errCh rather than returned, since ListenAndServe blocks.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		s.log.Info("control API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
}

// Stop gracefully shuts the HTTP server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type consentSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Time int64  `json:"time"`
}

func (s *Server) handleListConsents(w http.ResponseWriter, r *http.Request) {
	records := s.consents.Snapshot()
	out := make([]consentSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, consentSummary{
			ID:   strings.TrimSuffix(filepath.Base(rec.Path), filepath.Ext(rec.Path)),
			Name: rec.Name,
			Time: rec.CapturedAt.Unix(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time > out[j].Time })
	writeJSON(w, http.StatusOK, out)
}

type captureRequest struct {
	Speaker string `json:"speaker"`
}

func (s *Server) handleCaptureConsent(w http.ResponseWriter, r *http.Request) {
	if s.capture == nil {
		http.Error(w, "consent capture is not available", http.StatusNotFound)
		return
	}
	var req captureRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	s.capture.Request(req.Speaker)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleConsentImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path, err := s.resolveConsentPath(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "consent capture not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleDeleteConsent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path, err := s.resolveConsentPath(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "consent capture not found", http.StatusNotFound)
			return
		}
		s.log.Error("failed to delete consent capture", "path", path, "error", err)
		http.Error(w, "failed to delete consent capture", http.StatusInternalServerError)
		return
	}
	// The Consent Manager observes this deletion via its own watcher/poll
	// loop and removes the record asynchronously (§4.9); this handler does
	// not mutate the database directly.
	w.WriteHeader(http.StatusNoContent)
}

// resolveConsentPath maps an {id} path segment back to a file under the
// consent directory, rejecting any id that would escape it.
func (s *Server) resolveConsentPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", errors.New("invalid consent id")
	}
	path := filepath.Join(s.consentDir, id+".jpg")
	if !strings.HasPrefix(path, filepath.Clean(s.consentDir)+string(os.PathSeparator)) {
		return "", errors.New("invalid consent id")
	}
	return path, nil
}

type healthResponse struct {
	Healthy bool                      `json:"healthy"`
	Workers []supervisor.WorkerHealth `json:"workers"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snapshot := s.sup.HealthSnapshot()
	resp := healthResponse{Healthy: s.sup.AllHealthy(), Workers: snapshot}
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("control API: failed to encode response", "error", err)
	}
}
