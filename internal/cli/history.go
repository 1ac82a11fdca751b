package cli

import (
	"context"

	"planner/api/internal/plandoc"

	"github.com/spf13/cobra"
)

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded revisions of the synced document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, app, func(ctx context.Context, ws *workspace, identity plandoc.Identity) (any, error) {
				entries, err := ws.client.History(ctx, identity)
				if entries == nil {
					entries = []plandoc.HistoryEntry{}
				}
				return entries, err
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <hash>",
		Short: "Print the document recorded at one revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, app, func(ctx context.Context, ws *workspace, identity plandoc.Identity) (any, error) {
				return ws.client.Revision(ctx, identity, args[0])
			})
		},
	})
	return cmd
}

// withHistory resolves the identity and writes whatever fn returns.
func withHistory(cmd *cobra.Command, app *App, fn func(context.Context, *workspace, plandoc.Identity) (any, error)) error {
	ws, err := openWorkspace(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer ws.Close()

	identity, err := ws.identity.ResolveIdentity(cmd.Context())
	if err != nil {
		return writeErr(cmd, err)
	}
	if identity == nil {
		return writeErr(cmd, &plandoc.AuthError{Reason: "no identity; pass --id"})
	}
	out, err := fn(cmd.Context(), ws, *identity)
	if err != nil {
		return writeErr(cmd, err)
	}
	return writeOut(cmd, app, out)
}
