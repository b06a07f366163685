package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/social-client/internal/app"
	"github.com/and161185/social-client/internal/chat"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/querycache"
)

func chatCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Direct messages",
	}
	cmd.AddCommand(
		chatListCmd(g), chatWithCmd(g), chatShowCmd(g),
		chatSendCmd(g), chatEditCmd(g), chatRecallCmd(g), chatDeleteCmd(g), chatReactCmd(g),
		chatReadCmd(g), chatListenCmd(g),
	)
	return cmd
}

func peers(c model.Conversation, self string) string {
	var names []string
	for _, p := range c.Participants {
		if p.ID != self {
			names = append(names, "@"+p.Username)
		}
	}
	if len(names) == 0 {
		return "(yourself)"
	}
	return strings.Join(names, ", ")
}

func printMessage(w io.Writer, m model.Message) {
	body := m.Content
	switch {
	case m.Status == model.StatusRecalled:
		body = "(recalled)"
	case m.IsDeleted:
		body = "(deleted)"
	case m.Type != model.MessageText:
		body = fmt.Sprintf("[%s] %s %s", m.Type, m.MediaURL, m.Content)
	}
	flags := string(m.Status)
	if m.Edited {
		flags += ", edited"
	}
	if m.Slow {
		flags += ", slow"
	}
	fmt.Fprintf(w, "%s  @%s  %s  [%s]\n  %s\n", m.ID, m.Sender.Username, ago(m.CreatedAt), flags, body)
	if len(m.Reactions) > 0 {
		var rs []string
		for _, r := range m.Reactions {
			rs = append(rs, r.Emoji)
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(rs, " "))
	}
}

func chatListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			convs, err := a.Chat.Conversations(ctx)
			if err != nil {
				return err
			}
			self := a.Store.UserID()
			g.out(convs, func(w io.Writer) {
				for _, c := range convs {
					fmt.Fprintf(w, "%s  %s  %d unread  %s\n", c.ID, peers(c, self), c.UnreadCount, ago(c.UpdatedAt))
					if c.LastMessage != nil {
						fmt.Fprintf(w, "  %s\n", c.LastMessage.Content)
					}
				}
			})
			return nil
		},
	}
}

func chatWithCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "with <user-id>",
		Short: "Find or start the conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			c, err := a.Chat.GetOrCreate(ctx, args[0])
			if err != nil {
				return err
			}
			g.out(c, func(w io.Writer) { fmt.Fprintln(w, c.ID) })
			return nil
		},
	}
}

func chatShowCmd(g *globals) *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			t, err := a.Chat.Messages(ctx, args[0])
			if err != nil {
				return err
			}
			for p := 2; p <= pages && t.HasOlder; p++ {
				if t, err = a.Chat.LoadOlder(ctx, args[0], p); err != nil {
					return err
				}
			}
			g.out(t.Messages, func(w io.Writer) {
				for _, m := range t.Messages {
					printMessage(w, m)
				}
			})
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of history pages to load")
	return cmd
}

// resolveConversation returns conv, or the conversation with user to.
func resolveConversation(ctx context.Context, a *app.App, conv, to string) (string, error) {
	switch {
	case conv != "" && to != "":
		return "", errors.New("pass either --conv or --to")
	case conv != "":
		return conv, nil
	case to != "":
		c, err := a.Chat.GetOrCreate(ctx, to)
		if err != nil {
			return "", err
		}
		return c.ID, nil
	}
	return "", errors.New("--conv or --to is required")
}

func chatSendCmd(g *globals) *cobra.Command {
	var conv, to, kind, mediaURL string
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			convID, err := resolveConversation(ctx, a, conv, to)
			if err != nil {
				return err
			}
			if _, err := a.Chat.Messages(ctx, convID); err != nil {
				return err
			}
			m, err := a.Chat.Send(ctx, convID, chat.Draft{
				Type:     model.MessageType(kind),
				Content:  strings.Join(args, " "),
				MediaURL: mediaURL,
			})
			if err != nil {
				return err
			}
			g.out(m, func(w io.Writer) { printMessage(w, m) })
			return nil
		},
	}
	cmd.Flags().StringVar(&conv, "conv", "", "conversation id")
	cmd.Flags().StringVar(&to, "to", "", "user id; finds or starts the conversation")
	cmd.Flags().StringVar(&kind, "type", string(model.MessageText), "text, image, video or audio")
	cmd.Flags().StringVar(&mediaURL, "media-url", "", "uploaded media URL for non-text messages")
	return cmd
}

// withThread loads conv before running fn, so cached-message checks see it.
func withThread(g *globals, fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := g.withTimeout(cmd.Context())
		defer cancel()
		a, err := g.authed(ctx)
		if err != nil {
			return err
		}
		if _, err := a.Chat.Messages(ctx, args[0]); err != nil {
			return err
		}
		return fn(ctx, a, args)
	}
}

func chatEditCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <conversation-id> <message-id> <text...>",
		Short: "Edit one of your recent messages",
		Args:  cobra.MinimumNArgs(3),
		RunE: withThread(g, func(ctx context.Context, a *app.App, args []string) error {
			m, err := a.Chat.Edit(ctx, args[0], args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			g.out(m, func(w io.Writer) { printMessage(w, m) })
			return nil
		}),
	}
}

func chatRecallCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "recall <conversation-id> <message-id>",
		Short: "Recall one of your recent messages for everyone",
		Args:  cobra.ExactArgs(2),
		RunE: withThread(g, func(ctx context.Context, a *app.App, args []string) error {
			if err := a.Chat.Recall(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(g.stdout, "recalled %s\n", args[1])
			return nil
		}),
	}
}

func chatDeleteCmd(g *globals) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <conversation-id> <message-id>",
		Short: "Delete one of your messages",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(*cobra.Command, []string) error {
			return requireYes(yes)
		},
		RunE: withThread(g, func(ctx context.Context, a *app.App, args []string) error {
			if err := a.Chat.Delete(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(g.stdout, "deleted %s\n", args[1])
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func chatReactCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "react <conversation-id> <message-id> <emoji>",
		Short: "Toggle a reaction on a message",
		Args:  cobra.ExactArgs(3),
		RunE: withThread(g, func(ctx context.Context, a *app.App, args []string) error {
			rs, err := a.Chat.React(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			g.out(rs, func(w io.Writer) {
				fmt.Fprintf(w, "%s now has %d reactions\n", args[1], len(rs))
			})
			return nil
		}),
	}
}

func chatReadCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "read <conversation-id>",
		Short: "Mark a conversation as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			if _, err := a.Chat.Open(ctx, args[0]); err != nil {
				return err
			}
			a.Chat.MarkThreadRead(args[0])
			a.Chat.CloseConversation(ctx, args[0])
			fmt.Fprintln(g.stdout, "ok")
			return nil
		},
	}
}

// printer writes each message once per status change.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	seen map[string]string
}

func (p *printer) thread(t chat.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range t.Messages {
		sig := fmt.Sprintf("%s|%s|%t|%d|%s", m.Status, m.Content, m.IsDeleted, len(m.Reactions), m.ID)
		key := m.TempID
		if key == "" {
			key = m.ID
		}
		if p.seen[key] == sig {
			continue
		}
		p.seen[key] = sig
		printMessage(p.w, m)
	}
}

func chatListenCmd(g *globals) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "listen [conversation-id...]",
		Short: "Follow conversations live until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pr := &printer{w: g.stdout, seen: make(map[string]string)}
			g.opts = append(g.opts, app.WithTypingObserver(func(convID, userID string, typing bool) {
				if typing {
					fmt.Fprintf(g.stderr, "%s: %s is typing\n", convID, userID)
				}
			}))
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				convs, err := a.Chat.Conversations(ctx)
				if err != nil {
					return err
				}
				for _, c := range convs {
					args = append(args, c.ID)
				}
			}
			unsub := a.Cache.Subscribe(querycache.Key{"chat", "messages"}, func(k querycache.Key, ev querycache.Event) {
				if ev != querycache.Updated {
					return
				}
				if t, ok := querycache.Get[chat.Thread](a.Cache, k); ok {
					pr.thread(t)
				}
			})
			defer unsub()

			grp, ctx := errgroup.WithContext(ctx)
			if metricsAddr != "" {
				grp.Go(func() error { return a.Metrics.Serve(ctx, metricsAddr, a.Log) })
			}
			grp.Go(func() error {
				err := a.RunSocket(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			if err := waitConnected(ctx, a); err != nil {
				return grp.Wait()
			}
			for _, id := range args {
				if _, err := a.Chat.Open(ctx, id); err != nil {
					a.Log.Warn("open conversation", zap.String("conversation", id), zap.Error(err))
				}
			}
			fmt.Fprintf(g.stderr, "listening on %d conversations, Ctrl-C to stop\n", len(args))
			<-ctx.Done()
			for _, id := range args {
				a.Chat.CloseConversation(context.Background(), id)
			}
			return grp.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	return cmd
}

// waitConnected blocks until the socket is up so room joins reach the server.
func waitConnected(ctx context.Context, a *app.App) error {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for !a.Socket.Connected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
