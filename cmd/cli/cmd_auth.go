package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/and161185/social-client/internal/model"
)

func loginCmd(g *globals) *cobra.Command {
	var credential string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with an identity-provider credential (use - to read it from stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if credential == "" || credential == "-" {
				b, err := readAll("-")
				if err != nil {
					return err
				}
				credential = strings.TrimSpace(string(b))
			}
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			sess, err := a.Auth.LoginWithGoogle(ctx, credential)
			if err != nil {
				return err
			}
			g.out(newSessionView(sess), func(w io.Writer) {
				fmt.Fprintf(w, "logged in as @%s, session expires %s\n", sess.User.Username, ago(sess.ExpiresAt))
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&credential, "credential", "", "credential issued by the identity provider")
	return cmd
}

func logoutCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			a.Start(cmd.Context())
			if err := a.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(g.stdout, "logged out")
			return nil
		},
	}
}

// sessionView is the printable part of a session; the token stays private.
type sessionView struct {
	User      model.User    `json:"user"`
	Profile   model.Profile `json:"profile"`
	ExpiresAt string        `json:"expiresAt"`
}

func newSessionView(s model.Session) sessionView {
	return sessionView{User: s.User, Profile: s.Profile, ExpiresAt: s.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z")}
}

func whoamiCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.authed(cmd.Context())
			if err != nil {
				return err
			}
			sess, _ := a.Store.Current()
			g.out(newSessionView(sess), func(w io.Writer) {
				name := sess.Profile.DisplayName
				if name == "" {
					name = sess.User.DisplayName
				}
				fmt.Fprintf(w, "@%s (%s) id=%s\n", sess.User.Username, name, sess.User.ID)
				fmt.Fprintf(w, "session expires %s\n", ago(sess.ExpiresAt))
			})
			return nil
		},
	}
}
