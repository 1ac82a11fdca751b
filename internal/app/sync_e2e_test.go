package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"planner/api/internal/localcache"
	"planner/api/internal/plandoc"
	"planner/api/internal/sections"
	"planner/api/internal/syncclient"
)

func newSyncedStore(t *testing.T, url, token, id string) *sections.Store {
	t.Helper()
	client := syncclient.NewClient(url, token)
	identity := syncclient.StaticIdentity{ID: id, Email: id + "@example.com"}
	return sections.NewStore(client, identity,
		sections.WithCache(localcache.NewFile(t.TempDir())),
		sections.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestSectionWritesThroughServiceKeepOtherSections(t *testing.T) {
	svc := newTestService(newFakeStore())
	srv := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	defer srv.Close()
	token := issueTestToken(t, svc, "u1", "student")
	ctx := context.Background()

	schedule := newSyncedStore(t, srv.URL, token, "u1")
	if _, err := schedule.Save(ctx, "schedule", map[string]any{"slots": []int{1, 2}}); err != nil {
		t.Fatalf("schedule Save() error = %v", err)
	}
	before := schedule.Document().Sections["schedule"].State

	planner := newSyncedStore(t, srv.URL, token, "u1")
	if _, err := planner.Save(ctx, "planner", json.RawMessage(`{"instances":{"ECON101#X1":{"tags":["core"]}}}`)); err != nil {
		t.Fatalf("planner Save() error = %v", err)
	}

	reader := newSyncedStore(t, srv.URL, token, "u1")
	res, err := reader.Load(ctx, "schedule")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !bytes.Equal(res.State, before) {
		t.Fatalf("schedule section changed: %s vs %s", res.State, before)
	}
	if res.PlannerID == "" {
		t.Fatal("expected planner id after saves")
	}
	plannerState, ok := reader.CachedSection(ctx, "planner")
	if !ok || string(plannerState) != `{"instances":{"ECON101#X1":{"tags":["core"]}}}` {
		t.Fatalf("unexpected planner section %s", plannerState)
	}
}

func TestForeignSectionSurvivesSyncByteForByte(t *testing.T) {
	svc := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()
	srv := httptest.NewServer(handler)
	defer srv.Close()
	token := issueTestToken(t, svc, "u1", "student")
	ctx := context.Background()

	foreign := `{"source":"A","state":{"note": "a < b & c"},"savedAt":"2024-01-01"}`
	rr, _ := doRequest(t, handler, http.MethodPost, "/api/planner/set", token,
		`{"id":"u1","state":{"version":1,"sections":{"A":`+foreign+`}}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("seed set failed: %d %s", rr.Code, rr.Body.String())
	}

	store := newSyncedStore(t, srv.URL, token, "u1")
	if _, err := store.Save(ctx, "S", map[string]any{"x": 1}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rr, _ = doRequest(t, handler, http.MethodPost, "/api/planner/get", token, `{"id":"u1"}`)
	want := `"sections":{"A":` + foreign + `,"S":{"source":"S","state":{"x":1}}}`
	if !bytes.Contains(rr.Body.Bytes(), []byte(want)) {
		t.Fatalf("foreign section re-encoded: %s", rr.Body.String())
	}
}

func TestSyncClientSurfacesAuthErrors(t *testing.T) {
	svc := newTestService(newFakeStore())
	srv := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	defer srv.Close()
	ctx := context.Background()

	anonymous := newSyncedStore(t, srv.URL, "", "u1")
	if _, err := anonymous.Load(ctx, "planner"); !plandoc.IsAuth(err) {
		t.Fatalf("expected AuthError without token, got %v", err)
	}

	otherToken := issueTestToken(t, svc, "u2", "student")
	impostor := newSyncedStore(t, srv.URL, otherToken, "u1")
	if _, err := impostor.Save(ctx, "planner", json.RawMessage(`{}`)); !plandoc.IsAuth(err) {
		t.Fatalf("expected AuthError for mismatched identity, got %v", err)
	}

	signedOut := newSyncedStore(t, srv.URL, otherToken, "")
	if _, err := signedOut.Load(ctx, "planner"); !plandoc.IsAuth(err) {
		t.Fatalf("expected AuthError when signed out, got %v", err)
	}
}
