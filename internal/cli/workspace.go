package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"planner/api/internal/annotate"
	"planner/api/internal/catalog"
	"planner/api/internal/localcache"
	"planner/api/internal/plandoc"
	"planner/api/internal/sections"
	"planner/api/internal/syncclient"

	"github.com/spf13/cobra"
)

// scheduleFeature is the sibling feature whose roster cache the planner seeds.
const scheduleFeature = "schedule"

// workspace is one command's view of the synced planner.
type workspace struct {
	app      *App
	client   *syncclient.Client
	identity syncclient.StaticIdentity
	store    *sections.Store
	planner  *annotate.Planner
	closer   io.Closer
	// offline is set when the planner section came from the local cache.
	offline bool
}

func openWorkspace(cmd *cobra.Command, app *App) (*workspace, error) {
	cache, err := localcache.Open(cmd.Context(), app.CacheBackend, app.CacheDir)
	if err != nil {
		return nil, err
	}
	dataset, err := loadDataset(app.DatasetPath)
	if err != nil {
		closeCache(cache)
		return nil, err
	}

	client := syncclient.NewClient(app.URL, app.Token,
		syncclient.WithHTTPClient(&http.Client{Timeout: app.Timeout}),
	)
	identity := syncclient.StaticIdentity{ID: app.IdentityID, Email: app.Email}
	ws := &workspace{
		app:      app,
		client:   client,
		identity: identity,
		store: sections.NewStore(client, identity,
			sections.WithCache(cache),
			sections.WithLogger(app.log()),
		),
		planner: annotate.NewPlanner(catalog.DefaultCatalog(), dataset),
	}
	if c, ok := cache.(io.Closer); ok {
		ws.closer = c
	}
	return ws, nil
}

func (w *workspace) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

func loadDataset(path string) (*catalog.Dataset, error) {
	if path == "" {
		return &catalog.Dataset{}, nil
	}
	f, err := readDatasetFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return catalog.DecodeDataset(f)
}

func closeCache(cache localcache.Cache) {
	if c, ok := cache.(io.Closer); ok {
		_ = c.Close()
	}
}

// loadPlanner restores the registries from the planner section. A remote
// failure other than an auth failure falls back to the cached document.
func (w *workspace) loadPlanner(ctx context.Context) error {
	res, err := w.store.Load(ctx, annotate.SectionName)
	raw := res.State
	if err != nil {
		if plandoc.IsAuth(err) {
			return err
		}
		cached, ok := w.store.CachedSection(ctx, annotate.SectionName)
		if !ok {
			return err
		}
		w.app.log().Warn("planner unreachable, using cached section", "error", err)
		raw = cached
		w.offline = true
	}

	state, err := annotate.DecodeState(raw)
	if err != nil {
		return err
	}
	w.planner.Restore(state)
	w.hydrateRosters(ctx, state.Roster)
	return nil
}

// hydrateRosters picks the planner roster from the live dataset or the
// schedule feature cache, and seeds an empty schedule cache with the roster
// the section carried.
func (w *workspace) hydrateRosters(ctx context.Context, loaded json.RawMessage) {
	if roster, ok := w.store.Hydrate(ctx, scheduleFeature, w.planner.Dataset()); ok {
		w.planner.SetRoster(roster)
	}
	if _, err := w.store.HydrateForeign(ctx, scheduleFeature, loaded); err != nil {
		w.app.log().Warn("seed schedule roster", "error", err)
	}
}

// savePlanner writes the planner section. Feature caches are left to the
// features that own them.
func (w *workspace) savePlanner(ctx context.Context) (sections.Result, error) {
	if w.offline {
		return sections.Result{}, errors.New("planner is offline; changes were not saved")
	}
	raw, err := w.planner.MarshalSection()
	if err != nil {
		return sections.Result{}, err
	}
	return w.store.Save(ctx, annotate.SectionName, raw)
}

// target resolves an instance key against the loaded dataset.
func (w *workspace) target(key string) (catalog.Target, error) {
	target := w.planner.Find(key)
	if target == nil {
		return nil, errNotFound("instance", key)
	}
	return target, nil
}

// courseGroup returns every instance placed under the course code.
func (w *workspace) courseGroup(code string) ([]catalog.Target, error) {
	for _, item := range w.planner.Dataset().Items {
		if item.CourseCode() != code {
			continue
		}
		switch v := item.(type) {
		case *catalog.LeafCourse:
			return []catalog.Target{v}, nil
		case *catalog.TopicCourse:
			group := make([]catalog.Target, 0, len(v.Topics))
			for _, topic := range v.Topics {
				group = append(group, topic)
			}
			return group, nil
		}
	}
	return nil, errNotFound("course", code)
}

// withPlanner opens the workspace, restores the planner and runs fn. When
// fn reports a change the section is saved before the result is written.
func withPlanner(cmd *cobra.Command, app *App, fn func(w *workspace) (any, bool, error)) error {
	ctx := cmd.Context()
	ws, err := openWorkspace(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer ws.Close()

	if err := ws.loadPlanner(ctx); err != nil {
		return writeErr(cmd, err)
	}
	out, changed, err := fn(ws)
	if err != nil {
		return writeErr(cmd, err)
	}
	if !changed {
		return writeOutMeta(cmd, app, out, map[string]any{"offline": ws.offline})
	}
	res, err := ws.savePlanner(ctx)
	if err != nil {
		return writeErr(cmd, fmt.Errorf("save planner: %w", err))
	}
	return writeOutMeta(cmd, app, out, map[string]any{
		"plannerId": res.PlannerID,
		"updatedAt": res.UpdatedAt,
	})
}
