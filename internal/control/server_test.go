package control

import (
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/privacyfilter/streamer/internal/consent"
	"github.com/privacyfilter/streamer/internal/mediaio"
	"github.com/privacyfilter/streamer/internal/mediaio/fakemedia"
	"github.com/privacyfilter/streamer/internal/supervisor"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// writeTestCapture writes a tiny valid JPEG under dir using the consent
// filename codec so the manager's reconcile loop can load it as a Record.
func writeTestCapture(t *testing.T, dir, name string, when time.Time) string {
	path := filepath.Join(dir, consent.EncodeFilename(name, when))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	require.NoError(t, jpeg.Encode(f, img, nil))
	return path
}

func newTestServer(t *testing.T, det mediaio.Detector, rec mediaio.Recognizer) (*Server, string, *consent.Manager) {
	dir := t.TempDir()
	mgr := consent.NewManager(dir, det, rec, time.Hour, discardLogger(), nil)
	require.NoError(t, mgr.LoadExisting())

	sup := supervisor.NewWorkerStateManager(time.Second, discardLogger())
	trigger := &consent.CaptureTrigger{}

	s := New("127.0.0.1:0", dir, mgr, trigger, sup, discardLogger())
	return s, dir, mgr
}

func TestHandleListConsentsReturnsSortedSummaries(t *testing.T) {
	det := &fakemedia.Detector{Boxes: []mediaio.FaceBox{{X: 0, Y: 0, W: 4, H: 4, Score: 0.9}}}
	rec := &fakemedia.Recognizer{}
	s, dir, mgr := newTestServer(t, det, rec)

	older := time.Now().Add(-time.Hour).Truncate(time.Second)
	newer := time.Now().Truncate(time.Second)
	writeTestCapture(t, dir, "alice", older)
	writeTestCapture(t, dir, "bob", newer)
	mgr.LoadExisting() // reconcile picks up both files

	req := httptest.NewRequest(http.MethodGet, "/consents", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var out []consentSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, "bob", out[0].Name, "newer capture must sort first")
	require.Equal(t, "alice", out[1].Name)
}

func TestHandleConsentImageServesFile(t *testing.T) {
	det := &fakemedia.Detector{Boxes: []mediaio.FaceBox{{X: 0, Y: 0, W: 4, H: 4, Score: 0.9}}}
	rec := &fakemedia.Recognizer{}
	s, dir, _ := newTestServer(t, det, rec)

	path := writeTestCapture(t, dir, "alice", time.Now())
	id := filepath.Base(path)
	id = id[:len(id)-len(filepath.Ext(id))]

	req := httptest.NewRequest(http.MethodGet, "/consents/"+id+"/image", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Body.Bytes())
}

func TestHandleConsentImageMissingReturns404(t *testing.T) {
	det := &fakemedia.Detector{}
	rec := &fakemedia.Recognizer{}
	s, _, _ := newTestServer(t, det, rec)

	req := httptest.NewRequest(http.MethodGet, "/consents/20200101000000_nobody/image", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleConsentImageRejectsPathTraversal(t *testing.T) {
	det := &fakemedia.Detector{}
	rec := &fakemedia.Recognizer{}
	s, _, _ := newTestServer(t, det, rec)

	req := httptest.NewRequest(http.MethodGet, "/consents/..%2F..%2Fetc%2Fpasswd/image", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.NotEqual(t, http.StatusOK, rr.Code)
}

func TestHandleDeleteConsentRemovesFile(t *testing.T) {
	det := &fakemedia.Detector{Boxes: []mediaio.FaceBox{{X: 0, Y: 0, W: 4, H: 4, Score: 0.9}}}
	rec := &fakemedia.Recognizer{}
	s, dir, _ := newTestServer(t, det, rec)

	path := writeTestCapture(t, dir, "alice", time.Now())
	id := filepath.Base(path)
	id = id[:len(id)-len(filepath.Ext(id))]

	req := httptest.NewRequest(http.MethodDelete, "/consents/"+id, nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestHandleCaptureConsentRequestsTrigger(t *testing.T) {
	det := &fakemedia.Detector{}
	rec := &fakemedia.Recognizer{}
	s, _, _ := newTestServer(t, det, rec)

	body := `{"speaker":"alice"}`
	req := httptest.NewRequest(http.MethodPost, "/consents/capture", strings.NewReader(body))
	req.ContentLength = int64(len(body))
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	name, ok := s.capture.Consume()
	require.True(t, ok)
	require.Equal(t, "alice", name)
}

func TestHandleCaptureConsentWithoutTriggerReturns404(t *testing.T) {
	det := &fakemedia.Detector{}
	rec := &fakemedia.Recognizer{}
	dir := t.TempDir()
	mgr := consent.NewManager(dir, det, rec, time.Hour, discardLogger(), nil)
	require.NoError(t, mgr.LoadExisting())
	sup := supervisor.NewWorkerStateManager(time.Second, discardLogger())

	s := New("127.0.0.1:0", dir, mgr, nil, sup, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/consents/capture", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleHealthzReportsSupervisorState(t *testing.T) {
	det := &fakemedia.Detector{}
	rec := &fakemedia.Recognizer{}
	s, _, _ := newTestServer(t, det, rec)

	s.sup.Register("input")
	s.sup.Heartbeat("input")
	s.sup.UpdateState("input", supervisor.StateRunning)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Healthy)
	require.Len(t, resp.Workers, 1)
}
