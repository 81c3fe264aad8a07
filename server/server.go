// Package server exposes the range scraper and the stored records over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PavelSimon/EDC-data/models"
)

// RangeScraper scrapes an inclusive range of days.
type RangeScraper interface {
	Scrape(ctx context.Context, start, end models.Date) (*models.ScrapeResult, error)
}

// RecordStore is the persistence the handlers need.
type RecordStore interface {
	HasRange(ctx context.Context, r models.DateRange) (bool, error)
	InsertRecords(ctx context.Context, records []models.Record) (int, error)
	Records(ctx context.Context, r models.DateRange) ([]models.Record, error)
	AllRecords(ctx context.Context) ([]models.Record, error)
}

// Server wires the HTTP handlers.
type Server struct {
	scraper  RangeScraper
	store    RecordStore
	registry *prometheus.Registry
}

// New returns a server. registry may be nil, in which case /metrics is not
// mounted.
func New(scraper RangeScraper, store RecordStore, registry *prometheus.Registry) *Server {
	return &Server{scraper: scraper, store: store, registry: registry}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scrape", s.handleScrape)
	mux.HandleFunc("GET /api/records", s.handleRecords)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, message{Message: "ok"})
	})
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return logRequests(mux)
}

type message struct {
	Message string `json:"message"`
}

type scrapeResponse struct {
	Message string              `json:"message"`
	Records int                 `json:"records"`
	Days    []models.DaySummary `json:"days,omitempty"`
}

type recordsResponse struct {
	Records []models.Record `json:"records"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	start, err := models.ParseDate(r.FormValue("start_date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, message{Message: fmt.Sprintf("Invalid date format: %v", err)})
		return
	}
	end, err := models.ParseDate(r.FormValue("end_date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, message{Message: fmt.Sprintf("Invalid date format: %v", err)})
		return
	}
	if end.Before(start) {
		writeJSON(w, http.StatusBadRequest, message{Message: "End date must be after start date"})
		return
	}

	dates := models.DateRange{Start: start, End: end}
	ctx := r.Context()

	exists, err := s.store.HasRange(ctx, dates)
	if err != nil {
		s.fail(w, "checking stored range", err)
		return
	}
	if exists {
		writeJSON(w, http.StatusConflict, message{Message: "Data for this date range already exists in the database"})
		return
	}

	result, err := s.scraper.Scrape(ctx, start, end)
	if err != nil {
		s.fail(w, "scraping", err)
		return
	}
	if result.Empty() {
		writeJSON(w, http.StatusNotFound, scrapeResponse{
			Message: "No data found for the selected date range. Please check the date range and try again.",
			Days:    result.Days,
		})
		return
	}

	n, err := s.store.InsertRecords(ctx, result.Records)
	if err != nil {
		s.fail(w, "storing records", err)
		return
	}

	slog.Info("scrape stored",
		slog.String("range", dates.String()),
		slog.Int("records", n),
	)
	writeJSON(w, http.StatusOK, scrapeResponse{
		Message: fmt.Sprintf("Successfully scraped and stored %d records", n),
		Records: n,
		Days:    result.Days,
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		records []models.Record
		err     error
	)
	if q.Get("start") == "" && q.Get("end") == "" {
		records, err = s.store.AllRecords(r.Context())
	} else {
		var dates models.DateRange
		if dates.Start, err = models.ParseDate(q.Get("start")); err != nil {
			writeJSON(w, http.StatusBadRequest, message{Message: fmt.Sprintf("Invalid date format: %v", err)})
			return
		}
		if dates.End, err = models.ParseDate(q.Get("end")); err != nil {
			writeJSON(w, http.StatusBadRequest, message{Message: fmt.Sprintf("Invalid date format: %v", err)})
			return
		}
		records, err = s.store.Records(r.Context(), dates)
	}
	if err != nil {
		s.fail(w, "loading records", err)
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: records})
}

func (s *Server) fail(w http.ResponseWriter, action string, err error) {
	slog.Error("request failed", slog.String("action", action), slog.Any("error", err))
	writeJSON(w, http.StatusInternalServerError, message{Message: fmt.Sprintf("Error during %s: %v", action, err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", slog.Any("error", err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
