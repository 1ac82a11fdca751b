package cli

import (
	"errors"
	"fmt"
	"strings"

	"planner/api/internal/catalog"

	"github.com/spf13/cobra"
)

type instanceView struct {
	Key         string   `json:"key"`
	TopicID     string   `json:"topicId,omitempty"`
	Tags        []string `json:"tags"`
	Missing     []string `json:"missing,omitempty"`
	Bookmarked  bool     `json:"bookmarked"`
	ElsewhereBM bool     `json:"bookmarkedElsewhere,omitempty"`
	// Placements lists the other instance keys of the same topic.
	Placements []string `json:"placements,omitempty"`
	Note       string   `json:"note,omitempty"`
}

func describe(w *workspace, target catalog.Target) instanceView {
	view := instanceView{
		Key:         target.InstanceKey(),
		TopicID:     target.SharedID(),
		Tags:        []string{},
		Missing:     w.planner.Tags.MissingGlobalTags(target),
		Bookmarked:  w.planner.Bookmarks.IsBookmarked(target),
		ElsewhereBM: w.planner.Bookmarks.BookmarkedElsewhere(target),
		Note:        w.planner.Notes.Note(target),
	}
	for _, option := range w.planner.Tags.Tags(target) {
		view.Tags = append(view.Tags, option.ID)
	}
	if topic, ok := target.(*catalog.Topic); ok {
		for _, other := range w.planner.Dataset().TopicInstances(topic.ID) {
			if other != topic {
				view.Placements = append(view.Placements, other.InstanceKey())
			}
		}
	}
	return view
}

func newTagCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage planning tags on course and topic instances",
	}
	cmd.AddCommand(newTagMutateCmd(app, "add", "Assign a tag to an instance", func(w *workspace, target catalog.Target, tagID string) {
		w.planner.Tags.Assign(target, tagID)
	}))
	cmd.AddCommand(newTagMutateCmd(app, "rm", "Remove a tag from an instance", func(w *workspace, target catalog.Target, tagID string) {
		w.planner.Tags.Remove(target, tagID)
	}))
	cmd.AddCommand(newTagMutateCmd(app, "apply", "Apply a tag remembered for the instance's topic", func(w *workspace, target catalog.Target, tagID string) {
		w.planner.Tags.ApplyGlobalTag(target, tagID)
	}))
	cmd.AddCommand(newTagMissingCmd(app))
	cmd.AddCommand(newTagDismissCmd(app))
	return cmd
}

func newTagMutateCmd(app *App, use, short string, mutate func(*workspace, catalog.Target, string)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <instance-key> <tag-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				target, err := w.target(args[0])
				if err != nil {
					return nil, false, err
				}
				tagID := strings.TrimSpace(args[1])
				if _, ok := w.planner.Tags.Catalog().Lookup(tagID); !ok {
					return nil, false, errNotFound("tag", tagID)
				}
				mutate(w, target, tagID)
				return describe(w, target), true, nil
			})
		},
	}
}

func newTagMissingCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "missing <instance-key>",
		Short: "List tags used on other placements of the topic but not on this one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				target, err := w.target(args[0])
				if err != nil {
					return nil, false, err
				}
				missing := w.planner.Tags.MissingGlobalTags(target)
				if missing == nil {
					missing = []string{}
				}
				return map[string]any{"key": target.InstanceKey(), "missing": missing}, false, nil
			})
		},
	}
}

func newTagDismissCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <topic-id> <tag-id>",
		Short: "Forget a remembered tag no placement still holds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				dismissed := w.planner.Tags.DismissGhost(args[0], args[1])
				return map[string]any{
					"topicId":    args[0],
					"dismissed":  dismissed,
					"remembered": w.planner.Tags.Ghosts(args[0]),
				}, dismissed, nil
			})
		},
	}
}

func newBookmarkCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark",
		Short: "Manage bookmarks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <instance-key>",
		Short: "Flip one instance's bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				target, err := w.target(args[0])
				if err != nil {
					return nil, false, err
				}
				w.planner.Bookmarks.Toggle(target)
				return describe(w, target), true, nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "group <course-code>",
		Short: "Bookmark every instance under a course, or clear them when all are set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				group, err := w.courseGroup(args[0])
				if err != nil {
					return nil, false, err
				}
				w.planner.Bookmarks.ToggleAllForGroup(group)
				views := make([]instanceView, 0, len(group))
				for _, target := range group {
					views = append(views, describe(w, target))
				}
				return views, true, nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "adopt <instance-key>",
		Short: "Bookmark an instance because another placement of its topic is bookmarked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				target, err := w.target(args[0])
				if err != nil {
					return nil, false, err
				}
				if !w.planner.Bookmarks.BookmarkedElsewhere(target) {
					return nil, false, fmt.Errorf("%s is not bookmarked elsewhere", target.InstanceKey())
				}
				w.planner.Bookmarks.ApplyFromElsewhere(target)
				return describe(w, target), true, nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <course-code>",
		Short: "Clear every bookmark under a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				group, err := w.courseGroup(args[0])
				if err != nil {
					return nil, false, err
				}
				w.planner.Bookmarks.ClearAll(group)
				return w.planner.BookmarkedKeys(), true, nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List bookmarked instance keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				return w.planner.BookmarkedKeys(), false, nil
			})
		},
	})
	return cmd
}

func newNoteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Read or write notes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <instance-key>",
		Short: "Print an instance's note; topic notes are shared by every placement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				target, err := w.target(args[0])
				if err != nil {
					return nil, false, err
				}
				return map[string]any{"key": target.InstanceKey(), "note": w.planner.Notes.Note(target)}, false, nil
			})
		},
	})
	cmd.AddCommand(newNoteSetCmd(app))
	return cmd
}

func newNoteSetCmd(app *App) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "set <instance-key> [text...]",
		Short: "Set an instance's note; blank text deletes it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 && !remove {
				return writeErr(cmd, errors.New("note text is required (use --clear to delete)"))
			}
			return withPlanner(cmd, app, func(w *workspace) (any, bool, error) {
				target, err := w.target(args[0])
				if err != nil {
					return nil, false, err
				}
				text := ""
				if !remove {
					text = strings.Join(args[1:], " ")
				}
				w.planner.Notes.SetNote(target, text)
				return describe(w, target), true, nil
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "clear", false, "Delete the note")
	return cmd
}
