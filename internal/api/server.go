// Package api serves the live estimate over HTTP.
package api

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/dpoint/internal/db"
	"github.com/banshee-data/dpoint/internal/httputil"
	"github.com/banshee-data/dpoint/internal/pipeline"
	"github.com/banshee-data/dpoint/internal/plot"
	"github.com/banshee-data/dpoint/internal/replay"
	"github.com/banshee-data/dpoint/internal/serialmux"
	"github.com/banshee-data/dpoint/internal/version"
	"gonum.org/v1/gonum/spatial/r3"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// defaultTrailPoints is how many trail points /api/trail returns without n.
const defaultTrailPoints = 1000

// Source is what the server reads the live state from.
type Source interface {
	Snapshot() pipeline.Snapshot
	TrailTail(n int) []r3.Vec
}

type Server struct {
	src    Source
	m      serialmux.SerialMuxInterface
	db     *db.DB
	config any
}

// NewServer returns a server over src. m and database may be nil; config
// is reported verbatim by /api/config.
func NewServer(src Source, m serialmux.SerialMuxInterface, database *db.DB, config any) *Server {
	return &Server{src: src, m: m, db: database, config: config}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pose", s.showPose)
	mux.HandleFunc("/api/trail", s.showTrail)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/chart", s.showChart)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}

func vec(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

type poseResponse struct {
	Tracking    bool       `json:"tracking"`
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"` // w, x, y, z
	Tip         [3]float64 `json:"tip"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (s *Server) showPose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.src.Snapshot()
	q := snap.Pose.Orientation
	httputil.WriteJSONOK(w, poseResponse{
		Tracking:    snap.Tracking,
		Position:    vec(snap.Pose.Position),
		Orientation: [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
		Tip:         vec(snap.Tip),
		UpdatedAt:   snap.UpdatedAt,
	})
}

// trailTail parses the n query parameter.
func trailTail(r *http.Request) (int, error) {
	n := defaultTrailPoints
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return 0, fmt.Errorf("invalid 'n' parameter")
		}
		n = parsed
	}
	return n, nil
}

func (s *Server) showTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	n, err := trailTail(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	tail := s.src.TrailTail(n)
	pts := make([][3]float64, len(tail))
	for i, p := range tail {
		pts[i] = vec(p)
	}
	httputil.WriteJSONOK(w, map[string]any{"points": pts})
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.src.Snapshot()
	httputil.WriteJSONOK(w, map[string]any{
		"estimator":     snap.Stats,
		"dropped_imu":   snap.DroppedIMU,
		"dropped_poses": snap.DroppedPoses,
		"record_errors": snap.RecordErrors,
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.config)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "recording disabled")
		return
	}
	sessions, err := s.db.ListSessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}

// showChart renders the current trail as a top-down scatter chart.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := trailTail(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tail := s.src.TrailTail(n)
	pts := make([]replay.TrajectoryPoint, len(tail))
	for i, p := range tail {
		pts[i] = replay.TrajectoryPoint{Position: p}
	}

	snap := s.src.Snapshot()
	subtitle := fmt.Sprintf("%d points, %d fusions, %d resets", len(tail), snap.Stats.Fusions, snap.Stats.DivergenceResets)

	var buf bytes.Buffer
	if err := plot.RenderHTML(&buf, "Stylus trail", subtitle, "X (m)", "Y (m)", plot.TopDown("tip", pts)); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.Copy(w, &buf)
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.m == nil {
		http.Error(w, "No receiver attached", http.StatusServiceUnavailable)
		return
	}
	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}
