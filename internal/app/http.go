package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"planner/api/internal/auth"
	"planner/api/internal/plandoc"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultMaxBodyBytes = 1 << 20

type HTTPServer struct {
	service      *Service
	corsOrigin   string
	maxBodyBytes int64
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	maxBody := service.cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, maxBodyBytes: maxBody}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(responseHeaders(s.corsOrigin))
	r.Use(RequestLogger(s.service.Logger()))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})
	r.Get("/api/health", s.handleHealth)
	r.Head("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Head("/api/ready", s.handleReady)

	r.Route("/api/planner", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/get", s.handlePlannerGet)
		r.Post("/set", s.handlePlannerSet)
		r.Post("/history", s.handlePlannerHistory)
		r.Post("/history/show", s.handlePlannerRevision)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, ready := s.service.Readiness(ctx)
	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handlePlannerGet(w http.ResponseWriter, r *http.Request) {
	var body plandoc.GetRequest
	if !s.decode(w, r, &body) {
		return
	}
	view, err := s.service.LoadPlanner(r.Context(), sessionFrom(r.Context()), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := plandoc.GetResponse{OK: true, State: view.State, PlannerID: view.PlannerID}
	if !view.UpdatedAt.IsZero() {
		updated := view.UpdatedAt.UTC()
		resp.LastUpdated = &updated
	}
	payload, err := resp.Encode()
	if err != nil {
		s.fail(w, r, fmt.Errorf("encode planner: %w", err))
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handlePlannerSet(w http.ResponseWriter, r *http.Request) {
	var body plandoc.SetRequest
	if !s.decode(w, r, &body) {
		return
	}
	view, err := s.service.SavePlanner(r.Context(), sessionFrom(r.Context()), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updated := view.UpdatedAt.UTC()
	writeJSON(w, http.StatusOK, plandoc.SetResponse{OK: true, PlannerID: view.PlannerID, UpdatedAt: &updated})
}

func (s *HTTPServer) handlePlannerHistory(w http.ResponseWriter, r *http.Request) {
	var body plandoc.GetRequest
	if !s.decode(w, r, &body) {
		return
	}
	entries, err := s.service.PlannerHistory(r.Context(), sessionFrom(r.Context()), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plandoc.HistoryResponse{OK: true, Entries: entries})
}

func (s *HTTPServer) handlePlannerRevision(w http.ResponseWriter, r *http.Request) {
	var body plandoc.RevisionRequest
	if !s.decode(w, r, &body) {
		return
	}
	view, err := s.service.PlannerRevision(r.Context(), sessionFrom(r.Context()), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payload, err := plandoc.GetResponse{OK: true, State: view.State, PlannerID: view.PlannerID}.Encode()
	if err != nil {
		s.fail(w, r, fmt.Errorf("encode revision: %w", err))
		return
	}
	writeRawJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
				return
			}
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := decodeBody(r, target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return false
	}
	return true
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		s.service.Logger().Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, code, message)
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) Session {
	session, _ := ctx.Value(sessionKey{}).(Session)
	return session
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeRawJSON sends a body that was already encoded.
func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.WriteHeader(status)
	_, _ = w.Write(append(payload, '\n'))
}

// writeError renders the protocol failure shape {ok:false, reason, code}.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"ok":     false,
		"code":   code,
		"reason": message,
	})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found"
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error"
}
