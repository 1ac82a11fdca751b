package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"planner/api/internal/auth"
	"planner/api/internal/config"
	"planner/api/internal/history"
	"planner/api/internal/plandoc"
	"planner/api/internal/rbac"
	"planner/api/internal/statecache"
	"planner/api/internal/store"
	"planner/api/internal/util"
)

const historyLimit = 50

type Session struct {
	Token     string
	UserID    string
	Email     string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

// PlannerView is what the protocol returns for one identity's planner.
// PlannerID is empty when the identity never saved.
type PlannerView struct {
	State     *plandoc.Document
	PlannerID string
	UpdatedAt time.Time
}

type dataStore interface {
	GetPlannerByUser(context.Context, string) (store.Planner, error)
	UpsertPlanner(context.Context, store.Planner) (store.Planner, error)
	Ping(ctx context.Context) error
}

type documentCache interface {
	Get(context.Context, string) (statecache.Entry, bool, error)
	Put(context.Context, string, statecache.Entry) error
	Invalidate(context.Context, string) error
	Ping(ctx context.Context) error
}

type historyService interface {
	Record(string, []byte, string, string) (store.CommitInfo, error)
	List(string, int) ([]store.CommitInfo, error)
	Document(string, string) ([]byte, error)
}

type Service struct {
	cfg     config.Config
	store   dataStore
	cache   documentCache
	history historyService
	logger  *slog.Logger
}

type Option func(*Service)

func WithCache(cache *statecache.RedisCache) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

func WithHistory(svc *history.Service) Option {
	return func(s *Service) {
		if svc != nil {
			s.history = svc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Logger() *slog.Logger {
	return s.logger
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		Email:     claims.Email,
		Role:      string(rbac.Normalize(claims.Role)),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// authorize checks that session may perform action on the planner of id.
// Only admins may act on another identity's planner.
func (s *Service) authorize(session Session, id string, action rbac.Action) error {
	if strings.TrimSpace(id) == "" {
		return validationError("id is required")
	}
	if session.UserID != id && !s.Can(session.Role, rbac.ActionAdmin) {
		return forbidden("token does not match id")
	}
	if !s.Can(session.Role, action) {
		return forbidden(fmt.Sprintf("role %s cannot %s planners", rbac.Normalize(session.Role), action))
	}
	return nil
}

func (s *Service) LoadPlanner(ctx context.Context, session Session, req plandoc.GetRequest) (PlannerView, error) {
	if err := s.authorize(session, req.ID, rbac.ActionRead); err != nil {
		return PlannerView{}, err
	}

	if s.cache != nil {
		entry, ok, err := s.cache.Get(ctx, req.ID)
		if err != nil {
			s.logger.Warn("planner cache read failed", "user_id", req.ID, "error", err)
		} else if ok {
			doc, err := plandoc.Decode(entry.State)
			if err == nil {
				return PlannerView{State: doc, PlannerID: entry.PlannerID, UpdatedAt: entry.UpdatedAt}, nil
			}
			s.logger.Warn("discarding corrupt cache entry", "user_id", req.ID, "error", err)
			_ = s.cache.Invalidate(ctx, req.ID)
		}
	}

	planner, err := s.store.GetPlannerByUser(ctx, req.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return PlannerView{State: plandoc.NewDocument()}, nil
	}
	if err != nil {
		return PlannerView{}, err
	}
	doc, err := plandoc.Decode(planner.State)
	if err != nil {
		return PlannerView{}, fmt.Errorf("decode stored planner %s: %w", planner.ID, err)
	}
	s.remember(ctx, planner)
	return PlannerView{State: doc, PlannerID: planner.ID, UpdatedAt: planner.UpdatedAt}, nil
}

// SavePlanner replaces the whole document. Section merging happens on the
// client; the server only checks the document shape.
func (s *Service) SavePlanner(ctx context.Context, session Session, req plandoc.SetRequest) (PlannerView, error) {
	if err := s.authorize(session, req.ID, rbac.ActionWrite); err != nil {
		return PlannerView{}, err
	}
	if req.State == nil {
		return PlannerView{}, validationError("state is required")
	}
	if err := req.State.Validate(); err != nil {
		return PlannerView{}, domainError(http.StatusUnprocessableEntity, "INVALID_DOCUMENT", err.Error())
	}
	raw, err := req.State.Marshal()
	if err != nil {
		return PlannerView{}, fmt.Errorf("encode planner: %w", err)
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = session.Email
	}
	saved, err := s.store.UpsertPlanner(ctx, store.Planner{
		ID:     util.NewID("planner"),
		UserID: req.ID,
		Email:  email,
		State:  raw,
	})
	if err != nil {
		return PlannerView{}, err
	}
	s.remember(ctx, saved)

	if s.history != nil {
		message := fmt.Sprintf("Save planner revision %d\n\nsections: %s", saved.Revision, strings.Join(req.State.SectionNames(), ", "))
		if _, err := s.history.Record(saved.ID, raw, session.UserID, message); err != nil {
			s.logger.Warn("planner history record failed", "planner_id", saved.ID, "error", err)
		}
	}

	s.logger.Info("planner saved",
		"planner_id", saved.ID,
		"user_id", req.ID,
		"revision", saved.Revision,
		"sections", len(req.State.Sections),
	)
	return PlannerView{State: req.State.Clone(), PlannerID: saved.ID, UpdatedAt: saved.UpdatedAt}, nil
}

func (s *Service) PlannerHistory(ctx context.Context, session Session, req plandoc.GetRequest) ([]plandoc.HistoryEntry, error) {
	if err := s.authorize(session, req.ID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "history is not configured")
	}
	planner, err := s.store.GetPlannerByUser(ctx, req.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return []plandoc.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	commits, err := s.history.List(planner.ID, historyLimit)
	if err != nil {
		return nil, err
	}
	entries := make([]plandoc.HistoryEntry, 0, len(commits))
	for _, commit := range commits {
		entries = append(entries, plandoc.HistoryEntry{
			Hash:      commit.Hash,
			Message:   strings.TrimSpace(commit.Message),
			Author:    commit.Author,
			CreatedAt: commit.CreatedAt,
		})
	}
	return entries, nil
}

// PlannerRevision returns the document recorded at req.Hash.
func (s *Service) PlannerRevision(ctx context.Context, session Session, req plandoc.RevisionRequest) (PlannerView, error) {
	if err := s.authorize(session, req.ID, rbac.ActionRead); err != nil {
		return PlannerView{}, err
	}
	if strings.TrimSpace(req.Hash) == "" {
		return PlannerView{}, validationError("hash is required")
	}
	if s.history == nil {
		return PlannerView{}, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "history is not configured")
	}
	planner, err := s.store.GetPlannerByUser(ctx, req.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return PlannerView{}, revisionNotFound(req.Hash)
	}
	if err != nil {
		return PlannerView{}, err
	}
	raw, err := s.history.Document(planner.ID, req.Hash)
	if errors.Is(err, history.ErrRevisionNotFound) {
		return PlannerView{}, revisionNotFound(req.Hash)
	}
	if err != nil {
		return PlannerView{}, err
	}
	doc, err := plandoc.Decode(raw)
	if err != nil {
		return PlannerView{}, fmt.Errorf("decode revision %s: %w", req.Hash, err)
	}
	return PlannerView{State: doc, PlannerID: planner.ID}, nil
}

func revisionNotFound(hash string) *DomainError {
	return domainError(http.StatusNotFound, "REVISION_NOT_FOUND", fmt.Sprintf("no revision %s", hash))
}

// Readiness reports per-dependency status; ok is false if any check failed.
func (s *Service) Readiness(ctx context.Context) (map[string]any, bool) {
	checks := map[string]any{}
	ready := true

	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		checks["database"] = map[string]any{"status": "ok"}
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			ready = false
			checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["redis"] = map[string]any{"status": "ok"}
		}
	}
	return checks, ready
}

func (s *Service) remember(ctx context.Context, planner store.Planner) {
	if s.cache == nil {
		return
	}
	entry := statecache.Entry{
		PlannerID: planner.ID,
		State:     planner.State,
		Revision:  planner.Revision,
		UpdatedAt: planner.UpdatedAt,
	}
	if err := s.cache.Put(ctx, planner.UserID, entry); err != nil {
		s.logger.Warn("planner cache write failed", "user_id", planner.UserID, "error", err)
		_ = s.cache.Invalidate(ctx, planner.UserID)
	}
}
