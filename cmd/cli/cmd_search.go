package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/and161185/social-client/internal/model"
)

func printResults(w io.Writer, q string, res model.SearchResults) {
	fmt.Fprintf(w, "results for %q: %d users, %d posts\n", q, len(res.Users), len(res.Posts))
	for _, u := range res.Users {
		fmt.Fprintf(w, "  user @%s (%s) id=%s\n", u.Username, u.DisplayName, u.ID)
	}
	for _, p := range res.Posts {
		fmt.Fprintf(w, "  post %s by @%s: %s\n", p.ID, p.Author.Username, p.Content)
	}
}

func searchCmd(g *globals) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search users and posts (-i reads queries as you type them on stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return searchInteractive(g, cmd, os.Stdin)
			}
			if len(args) == 0 {
				return fmt.Errorf("query is required")
			}
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			res, err := a.Search.Search(ctx, args[0])
			if err != nil {
				return err
			}
			g.out(res, func(w io.Writer) { printResults(w, args[0], res) })
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "debounce queries read line by line from stdin")
	return cmd
}

// searchInteractive treats each stdin line as the current input. Only the
// last line of a quick burst is searched.
func searchInteractive(g *globals, cmd *cobra.Command, in io.Reader) error {
	a, err := g.authed(cmd.Context())
	if err != nil {
		return err
	}
	var mu sync.Mutex
	a.Search.OnResult(func(q string, res model.SearchResults, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			fmt.Fprintf(g.stderr, "search %q: %v\n", q, err)
			return
		}
		g.out(res, func(w io.Writer) { printResults(w, q, res) })
	})
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		a.Search.Type(sc.Text())
	}
	a.Search.Flush()
	return sc.Err()
}

func historyCmd(g *globals) *cobra.Command {
	var (
		rm       string
		clearAll bool
		yes      bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or edit your search history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			switch {
			case clearAll:
				if err := requireYes(yes); err != nil {
					return err
				}
				if err := a.Search.ClearHistory(ctx); err != nil {
					return err
				}
				fmt.Fprintln(g.stdout, "history cleared")
				return nil
			case rm != "":
				if _, err := a.Search.History(ctx); err != nil {
					return err
				}
				if err := a.Search.DeleteHistory(ctx, rm); err != nil {
					return err
				}
				fmt.Fprintf(g.stdout, "removed %s\n", rm)
				return nil
			}
			hs, err := a.Search.History(ctx)
			if err != nil {
				return err
			}
			g.out(hs, func(w io.Writer) {
				for _, h := range hs {
					fmt.Fprintf(w, "%s  %-30s %s\n", h.ID, h.Query, ago(h.CreatedAt))
				}
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&rm, "rm", "", "remove one entry by id")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "remove every entry")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm --clear")
	return cmd
}

func trendingCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "trending",
		Short: "Show trending hashtags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			tags, err := a.Search.Trending(ctx, limit)
			if err != nil {
				return err
			}
			g.out(tags, func(w io.Writer) {
				for i, t := range tags {
					fmt.Fprintf(w, "%2d. #%s  %s posts\n", i+1, t.Tag, humanize.Comma(int64(t.Count)))
				}
			})
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of tags")
	return cmd
}

func notificationsCmd(g *globals) *cobra.Command {
	var (
		pages   int
		read    string
		readAll bool
		rm      string
	)
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Show or update notifications",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			list, err := a.Notifications.List(ctx, 1)
			if err != nil {
				return err
			}
			for p := 2; p <= pages && list.HasMore; p++ {
				if list, err = a.Notifications.List(ctx, p); err != nil {
					return err
				}
			}
			switch {
			case readAll:
				err = a.Notifications.MarkAllRead(ctx)
			case read != "":
				err = a.Notifications.MarkRead(ctx, read)
			case rm != "":
				err = a.Notifications.Delete(ctx, rm)
			default:
				unread, err := a.Notifications.UnreadCount(ctx)
				if err != nil {
					return err
				}
				g.out(list.Items, func(w io.Writer) {
					fmt.Fprintf(w, "%d unread\n", unread)
					for _, n := range list.Items {
						mark := " "
						if !n.IsRead {
							mark = "*"
						}
						fmt.Fprintf(w, "%s %s  %-10s @%s  %s\n", mark, n.ID, n.Type, n.Sender.Username, ago(n.CreatedAt))
					}
				})
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(g.stdout, "ok")
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	cmd.Flags().StringVar(&read, "read", "", "mark one notification read")
	cmd.Flags().BoolVar(&readAll, "read-all", false, "mark every notification read")
	cmd.Flags().StringVar(&rm, "rm", "", "delete one notification")
	return cmd
}
