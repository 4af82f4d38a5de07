package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fpang/funny-booth/internal/booth"
	"github.com/fpang/funny-booth/internal/imageuri"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type ctxKey struct{}

// server holds the state shared by the API handlers.
type server struct {
	// baseCtx outlives individual requests; background generations derive from it.
	baseCtx         context.Context
	registry        *booth.Registry
	generateTimeout time.Duration
}

func newServer(baseCtx context.Context, registry *booth.Registry, generateTimeout time.Duration) *server {
	return &server{baseCtx: baseCtx, registry: registry, generateTimeout: generateTimeout}
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withLogging)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))
	r.Use(withCORS)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/start", s.handleStart)
			r.Post("/camera-ready", s.handleCameraReady)
			r.Post("/camera-error", s.handleCameraError)
			r.Post("/capture", s.handleCapture)
			r.Post("/generate", s.handleGenerate)
			r.Post("/retake", s.handleRetake)
			r.Post("/reset", s.handleReset)
		})
	})
	return r
}

// withSession resolves the {id} URL parameter to a live session.
func (s *server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess := s.registry.Get(id)
		if sess == nil {
			httpError(w, http.StatusNotFound, "session not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *booth.Session {
	return r.Context().Value(ctxKey{}).(*booth.Session)
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess := s.registry.Create()
	respondJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionFrom(r).Snapshot())
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.registry.Delete(sessionFrom(r).ID())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.Start(r.Context()); err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *server) handleCameraReady(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.CameraReady(); err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

type cameraErrorRequest struct {
	Message string `json:"message"`
}

func (s *server) handleCameraError(w http.ResponseWriter, r *http.Request) {
	var req cameraErrorRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		bodyError(w, err)
		return
	}

	sess := sessionFrom(r)
	if err := sess.CameraError(req.Message); err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

type captureRequest struct {
	Image string `json:"image"`
}

func (s *server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		bodyError(w, err)
		return
	}
	img, err := imageuri.Parse(req.Image)
	if err != nil {
		log.Debug().Err(err).Msg("Rejected captured frame")
		httpError(w, http.StatusBadRequest, imageuri.ErrInvalidData.Error())
		return
	}

	sess := sessionFrom(r)
	if err := sess.CaptureImage(img); err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

// handleGenerate starts the pipeline and returns 202 at once; clients poll
// GET /api/sessions/{id} until the phase is result or error.
func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	ctx, cancel := context.WithTimeout(s.baseCtx, s.generateTimeout)
	done, err := sess.GenerateAsync(ctx)
	if err != nil {
		cancel()
		sessionError(w, err)
		return
	}

	go func() {
		defer cancel()
		err := <-done
		if err != nil && !errors.Is(err, booth.ErrSuperseded) {
			log.Debug().Err(err).Str("session", sess.ID()).Msg("Background generation finished with error")
		}
	}()

	respondJSON(w, http.StatusAccepted, sess.Snapshot())
}

func (s *server) handleRetake(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.Retake(r.Context()); err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Reset()
	respondJSON(w, http.StatusOK, sess.Snapshot())
}
