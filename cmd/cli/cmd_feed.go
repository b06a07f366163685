package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/model"
)

func feedCmd(g *globals) *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pages < 1 {
				return fmt.Errorf("--pages must be >= 1")
			}
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			st, err := a.Feed.Refresh(ctx)
			if err != nil {
				return err
			}
			for i := 1; i < pages && st.HasMore; i++ {
				if st, err = a.Feed.LoadMore(ctx); err != nil {
					return err
				}
			}
			posts := make([]model.Post, 0, len(st.Posts))
			for _, p := range st.Posts {
				posts = append(posts, a.Feed.ResolveMedia(ctx, p))
			}
			g.out(posts, func(w io.Writer) {
				for _, p := range posts {
					printPost(w, p)
				}
				if st.HasMore {
					fmt.Fprintf(w, "more available: sc feed --pages %d\n", pages+1)
				}
			})
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	return cmd
}

func printPost(w io.Writer, p model.Post) {
	liked := ""
	if p.Liked {
		liked = " (liked)"
	}
	fmt.Fprintf(w, "%s  @%s  %s\n", p.ID, p.Author.Username, ago(p.CreatedAt))
	if p.Content != "" {
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(p.Content, "\n", "\n  "))
	}
	for _, m := range p.Media {
		fmt.Fprintf(w, "  [%s] %s\n", m.Type, m.URL)
	}
	fmt.Fprintf(w, "  %s%s, %s\n",
		english.Plural(p.LikesCount, "like", ""), liked,
		english.Plural(p.CommentsCount, "comment", ""))
}

func likeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "like <post-id>",
		Short: "Toggle your like on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			res, err := a.Feed.ToggleLike(ctx, args[0])
			if err != nil {
				return err
			}
			g.out(res, func(w io.Writer) {
				verb := "unliked"
				if res.Liked {
					verb = "liked"
				}
				fmt.Fprintf(w, "%s %s, %s total\n", verb, args[0], humanize.Comma(int64(res.LikesCount)))
			})
			return nil
		},
	}
}

func followCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <user-id>",
		Short: "Toggle following a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			res, err := a.Feed.Follow(ctx, args[0])
			if err != nil {
				return err
			}
			g.out(res, func(w io.Writer) {
				verb := "unfollowed"
				if res.Following {
					verb = "following"
				}
				fmt.Fprintf(w, "%s %s, %s\n", verb, args[0], english.Plural(res.FollowersCount, "follower", ""))
			})
			return nil
		},
	}
}

func postCmd(g *globals) *cobra.Command {
	var (
		text  string
		files []string
	)
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publish a post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(text) == "" && len(files) == 0 {
				return fmt.Errorf("nothing to post: pass --text or --media")
			}
			in := api.NewPost{Content: text}
			for _, f := range files {
				part, err := mediaFile(f, "media")
				if err != nil {
					return err
				}
				in.Media = append(in.Media, part)
			}
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			p, err := a.Feed.CreatePost(ctx, in)
			if err != nil {
				return err
			}
			g.out(p, func(w io.Writer) { printPost(w, p) })
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "post text")
	cmd.Flags().StringArrayVar(&files, "media", nil, "attachment file (repeatable)")
	return cmd
}

func rmPostCmd(g *globals) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm-post <post-id>",
		Short: "Delete one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireYes(yes); err != nil {
				return err
			}
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			if err := a.Feed.DeletePost(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(g.stdout, "deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}
