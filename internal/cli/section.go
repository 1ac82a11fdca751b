package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"planner/api/internal/plandoc"

	"github.com/spf13/cobra"
)

func newSectionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "section",
		Short: "Read or replace one section of the synced document",
	}
	cmd.AddCommand(newSectionGetCmd(app))
	cmd.AddCommand(newSectionPutCmd(app))
	return cmd
}

type sectionView struct {
	Section   string          `json:"section"`
	Found     bool            `json:"found"`
	State     json.RawMessage `json:"state"`
	PlannerID string          `json:"plannerId,omitempty"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
	Cached    bool            `json:"cached,omitempty"`
}

func newSectionGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <section>",
		Short: "Print a section's state; falls back to the local cache when the server is unreachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ws.Close()

			name := args[0]
			res, err := ws.store.Load(ctx, name)
			if err != nil {
				if plandoc.IsAuth(err) {
					return writeErr(cmd, err)
				}
				cached, ok := ws.store.CachedSection(ctx, name)
				if !ok {
					return writeErr(cmd, err)
				}
				app.log().Warn("planner unreachable, using cached section", "section", name, "error", err)
				return writeOut(cmd, app, sectionView{Section: name, Found: true, State: cached, Cached: true})
			}

			view := sectionView{Section: name, Found: res.Found, State: res.State, PlannerID: res.PlannerID}
			if !res.UpdatedAt.IsZero() {
				updated := res.UpdatedAt
				view.UpdatedAt = &updated
			}
			if view.State == nil {
				view.State = json.RawMessage("null")
			}
			return writeOut(cmd, app, view)
		},
	}
}

func newSectionPutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "put <section> <json|->",
		Short: "Replace a section's state, leaving every other section untouched",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := readStateArg(cmd, args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			ws, err := openWorkspace(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ws.Close()

			res, err := ws.store.Save(ctx, args[0], raw)
			if err != nil {
				return writeErr(cmd, err)
			}
			view := sectionView{Section: args[0], Found: res.Found, State: res.State, PlannerID: res.PlannerID}
			if !res.UpdatedAt.IsZero() {
				updated := res.UpdatedAt
				view.UpdatedAt = &updated
			}
			return writeOut(cmd, app, view)
		},
	}
}

// readStateArg takes inline JSON, or reads stdin when arg is "-".
func readStateArg(cmd *cobra.Command, arg string) (json.RawMessage, error) {
	var raw []byte
	if arg == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read state: %w", err)
		}
		raw = b
	} else {
		raw = []byte(arg)
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, errors.New("state is required")
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, errors.New("state is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}
