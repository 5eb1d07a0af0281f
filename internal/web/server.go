// Package web exposes the task submission API consumed by the CLI (and any
// future UI). It owns no booking state: submissions go straight to the
// scheduler, and the caller learns only that a task was accepted — the actual
// result arrives asynchronously by notification.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/example/court-scheduler/internal/auth"
	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/venue"
)

// TaskService is the scheduler surface the API exposes.
type TaskService interface {
	Submit(intent booking.Intent) (string, error)
	ListPending() []scheduler.TaskSummary
	Cancel(id string) bool
}

type Server struct {
	Auth    *auth.Store
	Tasks   TaskService
	Session *venue.Session // nil disables the readiness probe
	Log     *slog.Logger
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.Handle("POST /api/tasks", s.Auth.RequireAuth(http.HandlerFunc(s.handleTaskCreate)))
	mux.Handle("GET /api/tasks", s.Auth.RequireAuth(http.HandlerFunc(s.handleTaskList)))
	mux.Handle("DELETE /api/tasks/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleTaskCancel)))

	return mux
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Session == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	select {
	case <-s.Session.Ready():
		if err := s.Session.Err(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "venue session unavailable", "reason": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "verifying venue session"})
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.Auth.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		s.Log.Error("authenticate failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		s.Log.Error("set session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTaskRequest struct {
	Name          string                  `json:"name"`
	Slots         []booking.SlotSelection `json:"slots"`
	TargetDate    string                  `json:"targetDate"` // YYYY-MM-DD
	TriggerAt     time.Time               `json:"triggerAt"`  // RFC3339
	NotifyAddress string                  `json:"notifyAddress"`
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	targetDate, err := time.Parse("2006-01-02", req.TargetDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "targetDate must be YYYY-MM-DD")
		return
	}

	id, err := s.Tasks.Submit(booking.Intent{
		Name:          req.Name,
		Slots:         req.Slots,
		TargetDate:    targetDate,
		TriggerAt:     req.TriggerAt,
		NotifyAddress: strings.TrimSpace(req.NotifyAddress),
	})
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, scheduler.ErrStopped), errors.Is(err, scheduler.ErrNotStarted):
			writeError(w, http.StatusServiceUnavailable, "scheduler unavailable")
		default:
			s.Log.Error("submit failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	pending := s.Tasks.ListPending()
	writeJSON(w, http.StatusOK, map[string]any{"tasks": pending})
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.Tasks.Cancel(id) {
		// already running, finished, or never existed
		writeJSON(w, http.StatusNotFound, map[string]any{"cancelled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
