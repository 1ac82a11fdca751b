package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"planner/api/internal/config"

	"github.com/spf13/cobra"
)

type App struct {
	URL          string
	Token        string
	IdentityID   string
	Email        string
	CacheDir     string
	CacheBackend string
	DatasetPath  string
	Timeout      time.Duration
	PrettyJSON   bool
	Verbose      bool

	logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	cfg := config.Load()
	app := &App{}

	cmd := &cobra.Command{
		Use:          "plannerctl",
		Short:        "Curriculum planner annotations and sync",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Tag a topic instance and sync the planner section
  plannerctl --dataset curriculum.json tag add ECON101#supply-demand core

  # Read another feature's section verbatim
  plannerctl section get schedule

  # Mint a development token for a local server
  plannerctl token issue --sub u1 --secret planner-dev-secret
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if app.Verbose {
			level = slog.LevelDebug
		}
		app.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		return nil
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&app.URL, "url", cfg.PlannerURL, "Planner API base URL (PLANNER_URL)")
	flags.StringVar(&app.Token, "token", cfg.Token, "Bearer token (PLANNER_TOKEN)")
	flags.StringVar(&app.IdentityID, "id", cfg.IdentityID, "Identity id the document belongs to (PLANNER_IDENTITY_ID)")
	flags.StringVar(&app.Email, "email", cfg.IdentityEmail, "Identity email (PLANNER_IDENTITY_EMAIL)")
	flags.StringVar(&app.CacheDir, "cache-dir", cfg.CacheDir, "Local cache directory (PLANNER_CACHE_DIR)")
	flags.StringVar(&app.CacheBackend, "cache", cfg.CacheBackend, "Local cache backend (file|sqlite|memory)")
	flags.StringVar(&app.DatasetPath, "dataset", cfg.DatasetPath, "Curriculum dataset JSON (PLANNER_DATASET)")
	flags.DurationVar(&app.Timeout, "timeout", 30*time.Second, "Planner API request timeout")
	flags.BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	flags.BoolVarP(&app.Verbose, "verbose", "v", false, "Log sync activity to stderr")

	cmd.AddCommand(newSectionCmd(app))
	cmd.AddCommand(newTagCmd(app))
	cmd.AddCommand(newBookmarkCmd(app))
	cmd.AddCommand(newNoteCmd(app))
	cmd.AddCommand(newRosterCmd(app))
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newTokenCmd(app))

	return cmd
}

func (a *App) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

type envelope struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return writeEnvelope(cmd.OutOrStdout(), app.PrettyJSON, envelope{Data: v})
}

func writeOutMeta(cmd *cobra.Command, app *App, v any, meta map[string]any) error {
	return writeEnvelope(cmd.OutOrStdout(), app.PrettyJSON, envelope{Data: v, Meta: meta})
}

func writeEnvelope(w io.Writer, pretty bool, env envelope) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(env)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}

func readDatasetFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return f, nil
}
