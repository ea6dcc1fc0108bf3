// Package web serves fund snapshots, rebalance reports and holding history as JSON.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fundwatch/internal/app"
	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/internal/events"
	"github.com/vadiminshakov/fundwatch/internal/services/history"
	"github.com/vadiminshakov/fundwatch/pkg/date"
)

const (
	heartbeatInterval = 30 * time.Second

	defaultTop         = 5
	defaultHistoryDays = 30
	defaultTrendWindow = 5
)

type monitor interface {
	Funds() []domain.Fund
	Run(ctx context.Context, fundID string, on date.Date) (app.Report, error)
	Analyze(ctx context.Context, fundID string, on date.Date) (app.Report, error)
	Snapshot(ctx context.Context, fundID string, on date.Date) (domain.HoldingSnapshot, error)
	History(ctx context.Context, fundID string, days int) (history.History, error)
}

// Server exposes the monitor over HTTP.
type Server struct {
	Addr    string
	l       *zap.Logger
	monitor monitor
	today   func() date.Date
	events  *events.Broadcaster[events.RunCompleted]
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithEvents enables the run event stream backed by b.
func WithEvents(b *events.Broadcaster[events.RunCompleted]) ServerOption {
	return func(s *Server) {
		s.events = b
	}
}

// NewServer creates a new web server instance. today supplies the default date of requests.
func NewServer(addr string, l *zap.Logger, m monitor, today func() date.Date, opts ...ServerOption) *Server {
	s := &Server{Addr: addr, l: l, monitor: m, today: today}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /funds", s.handleFunds)
	mux.HandleFunc("POST /funds/{id}/collect", s.handleCollect)
	mux.HandleFunc("GET /funds/{id}/snapshots/{date}", s.handleSnapshot)
	mux.HandleFunc("GET /funds/{id}/rebalance", s.handleRebalance)
	mux.HandleFunc("GET /funds/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /runs/stream", s.handleRunStream)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("web server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web server")
	}
	return nil
}

func (s *Server) handleFunds(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.Funds())
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	on, err := s.dateParam(r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	report, err := s.monitor.Run(r.Context(), r.PathValue("id"), on)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newReportResponse(report, defaultTop))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	on, err := date.Parse(r.PathValue("date"))
	if err != nil {
		s.writeError(w, errors.Wrap(domain.ErrInvalidInput, err.Error()))
		return
	}

	snapshot, err := s.monitor.Snapshot(r.Context(), r.PathValue("id"), on)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	on, err := s.dateParam(q.Get("date"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	top, err := intParam(q.Get("top"), defaultTop)
	if err != nil {
		s.writeError(w, err)
		return
	}

	report, err := s.monitor.Analyze(r.Context(), r.PathValue("id"), on)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newReportResponse(report, top))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := intParam(q.Get("days"), defaultHistoryDays)
	if err != nil {
		s.writeError(w, err)
		return
	}

	h, err := s.monitor.History(r.Context(), r.PathValue("id"), days)
	if err != nil {
		s.writeError(w, err)
		return
	}

	stock := q.Get("stock")
	if stock == "" {
		s.writeJSON(w, http.StatusOK, historyResponse{FundID: h.FundID, Dates: h.Dates(), Points: h.Points()})
		return
	}

	window, err := intParam(q.Get("window"), defaultTrendWindow)
	if err != nil {
		s.writeError(w, err)
		return
	}
	trend, err := h.Trend(stock, window, history.Smoothing(q.Get("smoothing")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trend)
}

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "run events not available"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.events.Subscribe()
	defer s.events.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// comment heartbeat so proxies keep the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-sub:
			if !ok {
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				s.l.Warn("failed to encode run event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: run\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

type reportResponse struct {
	app.Report
	TopIncreased []domain.StockChange `json:"top_increased,omitempty"`
	TopDecreased []domain.StockChange `json:"top_decreased,omitempty"`
}

func newReportResponse(report app.Report, top int) reportResponse {
	resp := reportResponse{Report: report}
	if report.Result != nil {
		resp.TopIncreased = report.Result.TopIncreased(top)
		resp.TopDecreased = report.Result.TopDecreased(top)
	}
	return resp
}

type historyResponse struct {
	FundID string                `json:"fund_id"`
	Dates  []date.Date           `json:"dates"`
	Points []domain.HistoryPoint `json:"points"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) dateParam(v string) (date.Date, error) {
	if v == "" {
		return s.today(), nil
	}
	d, err := date.Parse(v)
	if err != nil {
		return date.Date{}, errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	return d, nil
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.Wrapf(domain.ErrInvalidInput, "expected a positive integer, got %q", v)
	}
	return n, nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCollection):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.l.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Warn("failed to encode response", zap.Error(err))
	}
}
