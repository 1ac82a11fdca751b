package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newRosterCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Show the course roster the planner writes with its section",
		Long: `Show the course roster the planner writes with its section.

The roster comes from --dataset when one is loaded, otherwise from the
schedule feature's cached roster, otherwise from the planner section itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				roster := w.planner.Roster()
				if len(roster) == 0 {
					roster = json.RawMessage("[]")
				}
				return map[string]any{"roster": roster}, false, nil
			})
		},
	}
}
