package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/stories"
)

func storiesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stories",
		Aliases: []string{"story"},
		Short:   "Ephemeral stories",
	}
	cmd.AddCommand(
		storiesListCmd(g, false), storiesListCmd(g, true),
		storiesCreateCmd(g), storiesViewCmd(g),
		storiesReactCmd(g), storiesMoveCmd(g), storiesReplyCmd(g),
		storiesIDCmd(g, "archive", "Move a story to your archive", (*stories.Service).Archive, false),
		storiesIDCmd(g, "restore", "Restore a manually archived story that has not expired", (*stories.Service).Restore, false),
		storiesIDCmd(g, "delete", "Delete a story", (*stories.Service).Delete, true),
		storiesHighlightCmd(g),
	)
	return cmd
}

func printStory(w io.Writer, s model.Story, now time.Time) {
	state := "expires " + ago(stories.ExpiresAt(s))
	if stories.Expired(s, now) {
		state = "expired"
	}
	if s.Archived {
		state = fmt.Sprintf("archived (%s)", s.ArchiveType)
		if stories.Restorable(s, now) {
			state += ", restorable"
		}
	}
	fmt.Fprintf(w, "%s  @%s  %s  %s\n", s.ID, s.Author.Username, ago(s.CreatedAt), state)
	fmt.Fprintf(w, "  [%s] %s\n", s.Media.Type, s.Media.URL)
	fmt.Fprintf(w, "  %s, %s, %s\n",
		english.Plural(len(s.Views), "view", ""),
		english.Plural(len(s.Reactions), "reaction", ""),
		english.Plural(len(s.Replies), "reply", "replies"))
	if s.Highlight != "" {
		fmt.Fprintf(w, "  highlight: %s\n", s.Highlight)
	}
}

func storiesListCmd(g *globals, archived bool) *cobra.Command {
	use, short := "list", "List active stories"
	if archived {
		use, short = "archived", "List your archived stories, including expired ones"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			list := a.Stories.Active
			if archived {
				list = a.Stories.Archived
			}
			ss, err := list(ctx)
			if err != nil {
				return err
			}
			now := a.Clock.Now()
			g.out(ss, func(w io.Writer) {
				for _, s := range ss {
					printStory(w, s, now)
				}
			})
			return nil
		},
	}
}

func storiesCreateCmd(g *globals) *cobra.Command {
	var file, visibility string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return fmt.Errorf("--media is required")
			}
			part, err := mediaFile(file, "media")
			if err != nil {
				return err
			}
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			s, err := a.Stories.Create(ctx, api.NewStory{Media: part, Visibility: visibility})
			if err != nil {
				return err
			}
			g.out(s, func(w io.Writer) { printStory(w, s, a.Clock.Now()) })
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "media", "", "image or video file")
	cmd.Flags().StringVar(&visibility, "visibility", "", "public, followers or close_friends (default public)")
	return cmd
}

func storiesViewCmd(g *globals) *cobra.Command {
	var d time.Duration
	cmd := &cobra.Command{
		Use:   "view <story-id>",
		Short: "Record a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			if err := a.Stories.View(ctx, args[0], d); err != nil {
				return err
			}
			fmt.Fprintln(g.stdout, "ok")
			return nil
		},
	}
	cmd.Flags().DurationVar(&d, "duration", 5*time.Second, "how long the story was watched")
	return cmd
}

func storiesReactCmd(g *globals) *cobra.Command {
	var pos model.Position
	cmd := &cobra.Command{
		Use:   "react <story-id> <type>",
		Short: "Place a reaction on the story canvas",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			r, err := a.Stories.React(ctx, args[0], args[1], pos)
			if err != nil {
				return err
			}
			g.out(r, func(w io.Writer) {
				fmt.Fprintf(w, "reaction %s at (%.2f, %.2f)\n", r.ID, r.Position.X, r.Position.Y)
			})
			return nil
		},
	}
	cmd.Flags().Float64Var(&pos.X, "x", 0.5, "horizontal position, 0..1")
	cmd.Flags().Float64Var(&pos.Y, "y", 0.5, "vertical position, 0..1")
	return cmd
}

func storiesMoveCmd(g *globals) *cobra.Command {
	var pos model.Position
	cmd := &cobra.Command{
		Use:   "move <story-id> <reaction-id>",
		Short: "Move one of your reactions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			if _, err := a.Stories.Active(ctx); err != nil {
				return err
			}
			if err := a.Stories.MoveReaction(ctx, args[0], args[1], pos); err != nil {
				return err
			}
			fmt.Fprintln(g.stdout, "ok")
			return nil
		},
	}
	cmd.Flags().Float64Var(&pos.X, "x", 0.5, "horizontal position, 0..1")
	cmd.Flags().Float64Var(&pos.Y, "y", 0.5, "vertical position, 0..1")
	return cmd
}

func storiesReplyCmd(g *globals) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "reply <story-id> <text>",
		Short: "Reply to a story",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var media *api.File
			if file != "" {
				part, err := mediaFile(file, "media")
				if err != nil {
					return err
				}
				media = &part
			}
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			r, err := a.Stories.Reply(ctx, args[0], args[1], media)
			if err != nil {
				return err
			}
			g.out(r, func(w io.Writer) { fmt.Fprintf(w, "replied %s\n", r.ID) })
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "media", "", "optional attachment")
	return cmd
}

// storiesIDCmd builds a command that runs op on one story id.
func storiesIDCmd(g *globals, use, short string, op func(*stories.Service, context.Context, string) error, confirm bool) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   use + " <story-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm {
				if err := requireYes(yes); err != nil {
					return err
				}
			}
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			if err := op(a.Stories, ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(g.stdout, "%s: %s\n", use, args[0])
			return nil
		},
	}
	if confirm {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	}
	return cmd
}

func storiesHighlightCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "highlight <story-id> <category>",
		Short: "Pin a story to a highlight category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			if err := a.Stories.Highlight(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(g.stdout, "%s added to %q\n", args[0], args[1])
			return nil
		},
	}
}
