// Package sections keeps one versioned planner document per identity and lets
// each feature load and save only its own section of it.
package sections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"planner/api/internal/localcache"
	"planner/api/internal/plandoc"
)

// DocumentKey is the local cache key of the last full document seen from the
// remote service.
const DocumentKey = "remote:document"

var ErrSaveInProgress = errors.New("save already in progress for section")

// Remote exchanges full documents with the planner service.
type Remote interface {
	Get(ctx context.Context, identity plandoc.Identity) (*plandoc.RemoteState, error)
	Set(ctx context.Context, identity plandoc.Identity, doc *plandoc.Document) (*plandoc.SetResult, error)
}

// IdentityResolver yields the signed-in identity, or nil when nobody is
// signed in.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context) (*plandoc.Identity, error)
}

type LoadStatus int

const (
	Unloaded LoadStatus = iota
	Loading
	Loaded
	LoadFailed
)

func (s LoadStatus) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case LoadFailed:
		return "load_failed"
	default:
		return "unloaded"
	}
}

type SaveStatus int

const (
	Idle SaveStatus = iota
	Saving
	Saved
	SaveFailed
)

func (s SaveStatus) String() string {
	switch s {
	case Saving:
		return "saving"
	case Saved:
		return "saved"
	case SaveFailed:
		return "save_failed"
	default:
		return "idle"
	}
}

// Result is the outcome of a Load or Save. Generation identifies the request
// for Current.
type Result struct {
	State      json.RawMessage
	Found      bool
	Generation uint64
	PlannerID  string
	UpdatedAt  time.Time
}

type sectionState struct {
	load       LoadStatus
	save       SaveStatus
	generation uint64
}

// Store is safe for concurrent use.
type Store struct {
	remote   Remote
	identity IdentityResolver
	cache    localcache.Cache
	logger   *slog.Logger

	// writeMu serializes full-document writes so each merge starts from the
	// latest confirmed document.
	writeMu sync.Mutex

	mu        sync.Mutex
	doc       *plandoc.Document
	docSeq    uint64
	plannerID string
	updatedAt time.Time
	sections  map[string]*sectionState
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCache(cache localcache.Cache) Option {
	return func(s *Store) {
		if cache != nil {
			s.cache = cache
		}
	}
}

func NewStore(remote Remote, identity IdentityResolver, opts ...Option) *Store {
	s := &Store{
		remote:   remote,
		identity: identity,
		cache:    localcache.NewMemory(),
		logger:   slog.Default(),
		sections: map[string]*sectionState{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the full document and returns the state stored under section.
// Found is false when the section is absent or null.
func (s *Store) Load(ctx context.Context, section string) (Result, error) {
	gen := s.begin(section, func(st *sectionState) { st.load = Loading })

	identity, err := s.resolve(ctx)
	if err != nil {
		s.finishLoad(section, LoadFailed)
		return Result{Generation: gen}, err
	}
	remote, err := s.fetch(ctx, *identity)
	if err != nil {
		s.finishLoad(section, LoadFailed)
		s.logger.Warn("section load failed", "section", section, "error", err)
		return Result{Generation: gen}, err
	}

	s.finishLoad(section, Loaded)
	state, found := remote.Document.SectionState(section)
	return Result{
		State:      state,
		Found:      found,
		Generation: gen,
		PlannerID:  remote.PlannerID,
		UpdatedAt:  remote.LastUpdated,
	}, nil
}

// Save replaces exactly sections[section] in the cached document and writes
// the merged document. The cache only changes after the remote accepts it.
func (s *Store) Save(ctx context.Context, section string, payload any) (Result, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode section %s: %w", section, err)
	}

	var gen uint64
	s.mu.Lock()
	st := s.sectionLocked(section)
	if st.save == Saving {
		s.mu.Unlock()
		return Result{}, ErrSaveInProgress
	}
	st.save = Saving
	st.generation++
	gen = st.generation
	s.mu.Unlock()

	res, err := s.save(ctx, section, raw)
	res.Generation = gen
	if err != nil {
		s.finishSave(section, SaveFailed)
		s.logger.Warn("section save failed", "section", section, "error", err)
		return res, err
	}
	s.finishSave(section, Saved)
	return res, nil
}

func (s *Store) save(ctx context.Context, section string, raw json.RawMessage) (Result, error) {
	identity, err := s.resolve(ctx)
	if err != nil {
		return Result{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	base := s.doc
	s.mu.Unlock()
	if base == nil {
		remote, err := s.fetch(ctx, *identity)
		if err != nil {
			return Result{}, err
		}
		base = remote.Document
	}

	merged := base.WithSection(section, raw)
	result, err := s.remote.Set(ctx, *identity, merged)
	if err != nil {
		return Result{}, asRemote("set", err)
	}
	if result == nil {
		result = &plandoc.SetResult{}
	}

	s.mu.Lock()
	s.doc = merged
	s.docSeq++
	if result.PlannerID != "" {
		s.plannerID = result.PlannerID
	}
	s.updatedAt = result.UpdatedAt
	s.mu.Unlock()
	s.persist(ctx, merged)

	state, found := merged.SectionState(section)
	return Result{
		State:     state,
		Found:     found,
		PlannerID: result.PlannerID,
		UpdatedAt: result.UpdatedAt,
	}, nil
}

// fetch GETs the full document and installs it as the cached document. If
// another document was installed while the request was in flight, the
// response is discarded and the installed document is returned instead.
func (s *Store) fetch(ctx context.Context, identity plandoc.Identity) (*plandoc.RemoteState, error) {
	s.mu.Lock()
	seq := s.docSeq
	s.mu.Unlock()

	remote, err := s.remote.Get(ctx, identity)
	if err != nil {
		return nil, asRemote("get", err)
	}
	if remote == nil {
		remote = &plandoc.RemoteState{}
	}
	if remote.Document == nil {
		remote.Document = plandoc.NewDocument()
	}
	doc := remote.Document.Clone()

	s.mu.Lock()
	if s.docSeq != seq {
		current := &plandoc.RemoteState{
			Document:    s.doc.Clone(),
			PlannerID:   s.plannerID,
			LastUpdated: s.updatedAt,
		}
		s.mu.Unlock()
		s.logger.Debug("discarding stale document", "planner_id", remote.PlannerID)
		return current, nil
	}
	s.doc = doc
	s.docSeq++
	s.plannerID = remote.PlannerID
	s.updatedAt = remote.LastUpdated
	s.mu.Unlock()
	s.persist(ctx, doc)
	return remote, nil
}

func (s *Store) persist(ctx context.Context, doc *plandoc.Document) {
	raw, err := doc.Marshal()
	if err != nil {
		s.logger.Warn("encode cached document", "error", err)
		return
	}
	if err := s.cache.Put(ctx, DocumentKey, raw); err != nil {
		s.logger.Warn("persist cached document", "error", err)
	}
}

func (s *Store) resolve(ctx context.Context) (*plandoc.Identity, error) {
	if s.identity == nil {
		return nil, &plandoc.AuthError{Reason: "no identity resolver"}
	}
	identity, err := s.identity.ResolveIdentity(ctx)
	if err != nil {
		if plandoc.IsAuth(err) {
			return nil, err
		}
		return nil, &plandoc.AuthError{Reason: err.Error()}
	}
	if identity == nil || !identity.Valid() {
		return nil, &plandoc.AuthError{Reason: "not signed in"}
	}
	return identity, nil
}

// CachedSection reads section from the last known document: the in-memory
// copy first, then the local cache. Corrupt cache entries read as absent.
func (s *Store) CachedSection(ctx context.Context, section string) (json.RawMessage, bool) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc != nil {
		return doc.SectionState(section)
	}

	raw, ok, err := s.cache.Get(ctx, DocumentKey)
	if err != nil {
		s.logger.Warn("read cached document", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	cached, err := plandoc.Decode(raw)
	if err != nil {
		s.logger.Warn("decode cached document", "error", err)
		return nil, false
	}
	return cached.SectionState(section)
}

// Document returns a copy of the cached document, or nil before the first
// successful load or save.
func (s *Store) Document() *plandoc.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	return s.doc.Clone()
}

func (s *Store) PlannerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plannerID
}

func (s *Store) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Store) Status(section string) (LoadStatus, SaveStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sections[section]
	if !ok {
		return Unloaded, Idle
	}
	return st.load, st.save
}

// Current reports whether gen is the newest request issued for section.
func (s *Store) Current(section string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sections[section]
	return ok && st.generation == gen
}

func (s *Store) begin(section string, mark func(*sectionState)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sectionLocked(section)
	st.generation++
	mark(st)
	return st.generation
}

func (s *Store) finishLoad(section string, status LoadStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sectionLocked(section).load = status
}

func (s *Store) finishSave(section string, status SaveStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sectionLocked(section).save = status
}

func (s *Store) sectionLocked(section string) *sectionState {
	st, ok := s.sections[section]
	if !ok {
		st = &sectionState{}
		s.sections[section] = st
	}
	return st
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return v, nil
	case []byte:
		return encodePayload(json.RawMessage(v))
	default:
		return json.Marshal(payload)
	}
}

func asRemote(op string, err error) error {
	if plandoc.IsAuth(err) || plandoc.IsRemote(err) {
		return err
	}
	return &plandoc.RemoteError{Op: op, Err: err}
}
