package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"genserver/internal/bus"
	"genserver/internal/domain"
	"genserver/internal/pipeline"
	"genserver/internal/registry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type generateReq struct {
	Prompt string          `json:"prompt"`
	Kind   domain.TaskKind `json:"kind"`
}

// statusResp is the public view of a task record. The filename is derived
// from the result path so clients can build a download URL.
type statusResp struct {
	Success   bool             `json:"success"`
	TaskID    string           `json:"task_id"`
	State     domain.TaskState `json:"state"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message"`
	Filename  string           `json:"filename,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type Server struct {
	router *chi.Mux
}

func NewServer(orch *pipeline.Orchestrator, store *registry.Store, hub *bus.Hub, downloadDir string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Post("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		req.Prompt = strings.TrimSpace(req.Prompt)
		if req.Prompt == "" {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		if req.Kind == "" {
			req.Kind = domain.KindVideo
		}

		t, err := orch.Submit(r.Context(), req.Kind, req.Prompt)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"task_id": t.ID,
			"message": "Generation started",
		})
	})

	r.Get("/api/status/{taskID}", func(w http.ResponseWriter, r *http.Request) {
		t, err := store.Get(chi.URLParam(r, "taskID"))
		if err != nil {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}

		resp := statusResp{
			Success:   true,
			TaskID:    t.ID,
			State:     t.State,
			Progress:  t.Progress,
			Message:   t.Message,
			Error:     t.Error,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		}
		if t.Result != "" {
			resp.Filename = filepath.Base(t.Result)
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"tasks":   store.List(),
		})
	})

	r.Get("/download/{filename}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if name != filepath.Base(name) || !allowedDownload(name) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}

		path := filepath.Join(downloadDir, name)
		if _, err := os.Stat(path); err != nil {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		http.ServeFile(w, r, path)
	})

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		bus.ServeWS(hub, w, r)
	})

	return &Server{router: r}
}

// allowedDownload restricts downloads to generated artifact types.
func allowedDownload(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".avi", ".mov", ".mkv", ".png", ".jpg", ".jpeg", ".pdf":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// Run serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Run(port int) {
	addr := fmt.Sprintf(":%d", port)

	httpServer := http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0, // websocket connections outlive any write budget
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Failed to listen and serve")
	}

	<-done
	log.Info().Msg("Server stopped")
}
