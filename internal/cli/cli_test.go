package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"planner/api/internal/auth"
	"planner/api/internal/localcache"
	"planner/api/internal/plandoc"
)

const testToken = "test-token"

const testDataset = `{
  "rotation": "2026-fall",
  "courses": [
    {"code": "ECON101", "title": "Economics", "topics": [
      {"id": "supply", "title": "Supply and demand"},
      {"id": "elasticity", "title": "Elasticity"}
    ]},
    {"code": "MATH200", "title": "Applied math", "topics": [
      {"id": "supply", "title": "Supply and demand"}
    ]},
    {"code": "HIST110", "title": "World history"}
  ]
}`

// fakePlanner serves the planner protocol from memory, one raw document per
// identity.
type fakePlanner struct {
	mu        sync.Mutex
	docs      map[string][]byte
	revisions [][]byte
	sets      int
	down      bool
}

func revisionHash(i int) string {
	return fmt.Sprintf("%040d", i+1)
}

func newFakePlanner(t *testing.T) (*fakePlanner, *httptest.Server) {
	t.Helper()
	fp := &fakePlanner{docs: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(fp.serve))
	t.Cleanup(srv.Close)
	return fp, srv
}

func (f *fakePlanner) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "reason": "Unauthorized"})
		return
	}
	if f.down {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "reason": "maintenance"})
		return
	}

	switch r.URL.Path {
	case "/api/planner/get":
		var req plandoc.GetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := plandoc.GetResponse{OK: true}
		if raw, ok := f.docs[req.ID]; ok {
			doc, _ := plandoc.Decode(raw)
			resp.State = doc
			resp.PlannerID = "pln_" + req.ID
		}
		body, _ := resp.Encode()
		_, _ = w.Write(body)
	case "/api/planner/set":
		var req plandoc.SetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		raw, _ := req.State.Marshal()
		f.docs[req.ID] = raw
		f.revisions = append(f.revisions, raw)
		f.sets++
		now := time.Now().UTC()
		_ = json.NewEncoder(w).Encode(plandoc.SetResponse{OK: true, PlannerID: "pln_" + req.ID, UpdatedAt: &now})
	case "/api/planner/history":
		entries := make([]plandoc.HistoryEntry, 0, len(f.revisions))
		for i := len(f.revisions) - 1; i >= 0; i-- {
			entries = append(entries, plandoc.HistoryEntry{Hash: revisionHash(i), Message: "save"})
		}
		_ = json.NewEncoder(w).Encode(plandoc.HistoryResponse{OK: true, Entries: entries})
	case "/api/planner/history/show":
		var req plandoc.RevisionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for i, raw := range f.revisions {
			if revisionHash(i) != req.Hash {
				continue
			}
			doc, _ := plandoc.Decode(raw)
			body, _ := plandoc.GetResponse{OK: true, State: doc, PlannerID: "pln_" + req.ID}.Encode()
			_, _ = w.Write(body)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "reason": "no revision " + req.Hash})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakePlanner) doc(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.docs[id]...)
}

func (f *fakePlanner) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

func (f *fakePlanner) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

type cliEnv struct {
	url      string
	cacheDir string
	dataset  string
}

func newCLIEnv(t *testing.T, url string) cliEnv {
	t.Helper()
	dir := t.TempDir()
	dataset := filepath.Join(dir, "curriculum.json")
	if err := os.WriteFile(dataset, []byte(testDataset), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return cliEnv{url: url, cacheDir: filepath.Join(dir, "cache"), dataset: dataset}
}

func (e cliEnv) args(extra ...string) []string {
	base := []string{
		"--url", e.url,
		"--token", testToken,
		"--id", "u1",
		"--email", "u1@example.com",
		"--cache", "file",
		"--cache-dir", e.cacheDir,
	}
	if e.dataset != "" {
		base = append(base, "--dataset", e.dataset)
	}
	return append(base, extra...)
}

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()
	cmd := NewRootCmd()
	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)
	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

func mustRun(t *testing.T, args ...string) map[string]any {
	t.Helper()
	stdout, stderr, err := runCLI(t, args)
	if err != nil {
		t.Fatalf("plannerctl %v failed: %v\nstderr:\n%s", args, err, stderr)
	}
	var env map[string]any
	if err := json.Unmarshal(stdout, &env); err != nil {
		t.Fatalf("unmarshal stdout: %v\n%s", err, stdout)
	}
	if _, ok := env["data"]; !ok {
		t.Fatalf("expected data key in %v", env)
	}
	return env
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}

func TestTagAddSyncsWithoutTouchingOtherSections(t *testing.T) {
	fp, srv := newFakePlanner(t)
	fp.docs["u1"] = []byte(`{"version":1,"sections":{"schedule":{"source":"schedule","state":{"z":1,"a":[2]}}}}`)
	env := newCLIEnv(t, srv.URL)

	out := mustRun(t, env.args("tag", "add", "ECON101#supply", "core")...)
	data, _ := out["data"].(map[string]any)
	if got := stringList(data["tags"]); len(got) != 1 || got[0] != "core" {
		t.Fatalf("unexpected tags %v", data["tags"])
	}

	stored := fp.doc("u1")
	if !bytes.Contains(stored, []byte(`"schedule":{"source":"schedule","state":{"z":1,"a":[2]}}`)) {
		t.Fatalf("schedule section changed: %s", stored)
	}
	if !bytes.Contains(stored, []byte(`"planner":{"source":"planner"`)) {
		t.Fatalf("planner section missing: %s", stored)
	}

	out = mustRun(t, env.args("tag", "missing", "MATH200#supply")...)
	data, _ = out["data"].(map[string]any)
	if got := stringList(data["missing"]); len(got) != 1 || got[0] != "core" {
		t.Fatalf("expected core to be suggested, got %v", data["missing"])
	}

	// The second run restored a roster from the planner section and seeds the
	// empty schedule cache with it.
	roster, ok, err := localcache.NewFile(env.cacheDir).Get(context.Background(), "feature:schedule")
	if err != nil || !ok {
		t.Fatalf("expected seeded schedule roster, ok=%v err=%v", ok, err)
	}
	if string(roster) != `["ECON101","HIST110","MATH200"]` {
		t.Fatalf("unexpected roster %s", roster)
	}
}

func TestRosterFallsBackToScheduleCacheWithoutDataset(t *testing.T) {
	_, srv := newFakePlanner(t)
	env := newCLIEnv(t, srv.URL)
	ctx := context.Background()
	cache := localcache.NewFile(env.cacheDir)
	if err := cache.Put(ctx, "feature:schedule", json.RawMessage(`["ECON101","ZOO100"]`)); err != nil {
		t.Fatalf("seed schedule roster: %v", err)
	}

	bare := env
	bare.dataset = ""
	out := mustRun(t, bare.args("roster")...)
	data, _ := out["data"].(map[string]any)
	if got := stringList(data["roster"]); !reflect.DeepEqual(got, []string{"ECON101", "ZOO100"}) {
		t.Fatalf("expected schedule roster without a dataset, got %v", got)
	}

	out = mustRun(t, env.args("roster")...)
	data, _ = out["data"].(map[string]any)
	if got := stringList(data["roster"]); !reflect.DeepEqual(got, []string{"ECON101", "HIST110", "MATH200"}) {
		t.Fatalf("expected live dataset roster, got %v", got)
	}

	mustRun(t, env.args("tag", "add", "HIST110", "core")...)
	if _, ok, _ := cache.Get(ctx, "feature:planner"); ok {
		t.Fatal("saving the planner must not write a planner feature cache")
	}
	if got, _, _ := cache.Get(ctx, "feature:schedule"); string(got) != `["ECON101","ZOO100"]` {
		t.Fatalf("schedule cache overwritten: %s", got)
	}
}

func TestTagDismissSavesOnlyRememberedTags(t *testing.T) {
	fp, srv := newFakePlanner(t)
	fp.docs["u1"] = []byte(`{"version":1,"sections":{"planner":{"source":"planner","state":{"version":1,"tagMemory":{"supply":["revisit"]}}}}}`)
	env := newCLIEnv(t, srv.URL)

	out := mustRun(t, env.args("tag", "dismiss", "supply", "done")...)
	data, _ := out["data"].(map[string]any)
	if data["dismissed"] != false {
		t.Fatalf("expected nothing dismissed, got %v", data)
	}
	if got := fp.setCount(); got != 0 {
		t.Fatalf("dismissing an unknown tag must not save, got %d writes", got)
	}

	out = mustRun(t, env.args("tag", "dismiss", "supply", "revisit")...)
	data, _ = out["data"].(map[string]any)
	if data["dismissed"] != true || len(stringList(data["remembered"])) != 0 {
		t.Fatalf("expected revisit dismissed, got %v", data)
	}
	if got := fp.setCount(); got != 1 {
		t.Fatalf("expected one write, got %d", got)
	}
	if bytes.Contains(fp.doc("u1"), []byte("revisit")) {
		t.Fatalf("dismissed tag still stored: %s", fp.doc("u1"))
	}
}

func TestTagAddRejectsUnknownInputs(t *testing.T) {
	_, srv := newFakePlanner(t)
	env := newCLIEnv(t, srv.URL)

	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown instance", args: []string{"tag", "add", "CHEM100", "core"}, want: "instance not found: CHEM100"},
		{name: "unknown tag", args: []string{"tag", "add", "HIST110", "urgent"}, want: "tag not found: urgent"},
		{name: "unknown course", args: []string{"bookmark", "group", "CHEM100"}, want: "course not found: CHEM100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, err := runCLI(t, env.args(tc.args...))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(string(stderr), tc.want) {
				t.Fatalf("stderr %q does not mention %q", stderr, tc.want)
			}
		})
	}
}

func TestBookmarkGroupTogglesWholeCourse(t *testing.T) {
	_, srv := newFakePlanner(t)
	env := newCLIEnv(t, srv.URL)

	mustRun(t, env.args("bookmark", "group", "ECON101")...)
	out := mustRun(t, env.args("bookmark", "list")...)
	if got := stringList(out["data"]); len(got) != 2 || got[0] != "ECON101#elasticity" || got[1] != "ECON101#supply" {
		t.Fatalf("expected whole course bookmarked, got %v", got)
	}

	mustRun(t, env.args("bookmark", "group", "ECON101")...)
	out = mustRun(t, env.args("bookmark", "list")...)
	if got := stringList(out["data"]); len(got) != 0 {
		t.Fatalf("expected bookmarks cleared, got %v", got)
	}
}

func TestBookmarkToggleReportsOtherPlacements(t *testing.T) {
	_, srv := newFakePlanner(t)
	env := newCLIEnv(t, srv.URL)

	mustRun(t, env.args("bookmark", "toggle", "ECON101#supply")...)
	out := mustRun(t, env.args("bookmark", "toggle", "MATH200#supply")...)
	data, _ := out["data"].(map[string]any)
	if data["bookmarked"] != true || data["bookmarkedElsewhere"] != true {
		t.Fatalf("expected bookmark here and elsewhere, got %v", data)
	}
	if got := stringList(data["placements"]); !reflect.DeepEqual(got, []string{"ECON101#supply"}) {
		t.Fatalf("expected the ECON101 placement listed, got %v", data["placements"])
	}

	mustRun(t, env.args("bookmark", "clear", "MATH200")...)
	out = mustRun(t, env.args("bookmark", "adopt", "MATH200#supply")...)
	data, _ = out["data"].(map[string]any)
	if data["bookmarked"] != true {
		t.Fatalf("expected adopted bookmark, got %v", data)
	}

	mustRun(t, env.args("bookmark", "clear", "ECON101")...)
	mustRun(t, env.args("bookmark", "clear", "MATH200")...)
	if _, _, err := runCLI(t, env.args("bookmark", "adopt", "MATH200#supply")); err == nil {
		t.Fatal("expected adopt to fail with no sibling bookmark")
	}
}

func TestNotesFollowTopicIdentity(t *testing.T) {
	_, srv := newFakePlanner(t)
	env := newCLIEnv(t, srv.URL)

	mustRun(t, env.args("note", "set", "ECON101#supply", "read", "chapter", "3")...)
	out := mustRun(t, env.args("note", "get", "MATH200#supply")...)
	data, _ := out["data"].(map[string]any)
	if data["note"] != "read chapter 3" {
		t.Fatalf("expected shared topic note, got %v", data)
	}

	mustRun(t, env.args("note", "set", "HIST110", "primary sources")...)
	mustRun(t, env.args("note", "set", "HIST110", "--clear")...)
	out = mustRun(t, env.args("note", "get", "HIST110")...)
	data, _ = out["data"].(map[string]any)
	if data["note"] != "" {
		t.Fatalf("expected cleared note, got %v", data)
	}
}

func TestSectionGetFallsBackToCacheWhenServerDown(t *testing.T) {
	fp, srv := newFakePlanner(t)
	env := newCLIEnv(t, srv.URL)

	mustRun(t, env.args("section", "put", "schedule", `{"slots":[1,2]}`)...)
	fp.setDown(true)

	out := mustRun(t, env.args("section", "get", "schedule")...)
	data, _ := out["data"].(map[string]any)
	if data["cached"] != true {
		t.Fatalf("expected cached fallback, got %v", data)
	}
	state, _ := json.Marshal(data["state"])
	if string(state) != `{"slots":[1,2]}` {
		t.Fatalf("unexpected cached state %s", state)
	}

	_, _, err := runCLI(t, env.args("tag", "add", "HIST110", "core"))
	if err == nil {
		t.Fatal("expected save to fail while the server is down")
	}
}

func TestSectionCommandsSurfaceAuthErrors(t *testing.T) {
	_, srv := newFakePlanner(t)
	env := newCLIEnv(t, srv.URL)

	args := env.args("section", "get", "schedule")
	args[3] = "wrong-token"
	_, _, err := runCLI(t, args)
	if !plandoc.IsAuth(err) {
		t.Fatalf("expected AuthError for a bad token, got %v", err)
	}

	args = env.args("section", "get", "schedule")
	args[5] = ""
	_, _, err = runCLI(t, args)
	if !plandoc.IsAuth(err) {
		t.Fatalf("expected AuthError without identity, got %v", err)
	}
}

func TestHistoryListsServerEntries(t *testing.T) {
	_, srv := newFakePlanner(t)
	env := newCLIEnv(t, srv.URL)

	mustRun(t, env.args("section", "put", "schedule", `{"slots":[]}`)...)
	mustRun(t, env.args("section", "put", "schedule", `{"slots":[1]}`)...)
	out := mustRun(t, env.args("history")...)
	entries, _ := out["data"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected two history entries, got %v", out["data"])
	}
	oldest, _ := entries[1].(map[string]any)
	hash, _ := oldest["hash"].(string)

	out = mustRun(t, env.args("history", "show", hash)...)
	data, _ := out["data"].(map[string]any)
	sections, _ := data["sections"].(map[string]any)
	schedule, _ := sections["schedule"].(map[string]any)
	state, _ := json.Marshal(schedule["state"])
	if string(state) != `{"slots":[]}` {
		t.Fatalf("expected the first revision, got %v", data)
	}

	_, stderr, err := runCLI(t, env.args("history", "show", "deadbeef"))
	if err == nil || !strings.Contains(string(stderr), "no revision deadbeef") {
		t.Fatalf("expected unknown revision error, got %v %s", err, stderr)
	}
}

func TestTokenIssueSignsParseableToken(t *testing.T) {
	out := mustRun(t, "token", "issue", "--secret", "s3cret", "--sub", "u1", "--role", "admin", "--ttl", "1h")
	data, _ := out["data"].(map[string]any)
	token, _ := data["token"].(string)
	claims, err := auth.ParseToken([]byte("s3cret"), token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "u1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	out = mustRun(t, "token", "issue", "--secret", "s3cret", "--sub", "u1")
	data, _ = out["data"].(map[string]any)
	if data["role"] != "student" {
		t.Fatalf("expected the default token to carry the student role, got %v", data["role"])
	}

	out = mustRun(t, "token", "issue", "--secret", "s3cret", "--sub", "u1", "--role", "editor")
	data, _ = out["data"].(map[string]any)
	if data["role"] != "viewer" {
		t.Fatalf("expected unknown role to issue a viewer token, got %v", data["role"])
	}
}
