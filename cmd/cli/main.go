// Command sc is a terminal client for the social network: feed, chat,
// stories, search, notifications and profile editing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/app"
	"github.com/and161185/social-client/internal/config"
	"github.com/and161185/social-client/internal/logging"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// globals holds the persistent flags and the lazily built client.
type globals struct {
	configPath string
	profile    string
	baseURL    string
	logLevel   string
	jsonOut    bool
	timeout    time.Duration

	stdout io.Writer
	stderr io.Writer

	opts []app.Option
	app  *app.App
	log  *zap.Logger
}

// open loads configuration and builds the client once.
func (g *globals) open(ctx context.Context) (*app.App, error) {
	if g.app != nil {
		return g.app, nil
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.profile != "" {
		cfg.Session.Profile = g.profile
	}
	if g.baseURL != "" {
		cfg.API.BaseURL = g.baseURL
		cfg.API.SocketURL = config.SocketURLFor(g.baseURL)
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, log, g.opts...)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	g.app, g.log = a, log
	return a, nil
}

// authed opens the client and requires a stored session.
func (g *globals) authed(ctx context.Context) (*app.App, error) {
	a, err := g.open(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := a.RequireSession(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (g *globals) close() {
	if g.app != nil {
		g.app.Close()
		g.app = nil
	}
	if g.log != nil {
		_ = g.log.Sync()
	}
}

// out prints v as JSON with --json and calls human otherwise.
func (g *globals) out(v any, human func(w io.Writer)) {
	if g.jsonOut {
		printJSON(g.stdout, v)
		return
	}
	human(g.stdout)
}

// withTimeout bounds one command's network work.
func (g *globals) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *globals) {
	g := &globals{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "sc",
		Short:         "Terminal client for the social network",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			g.close()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "config file (default $SC_CONFIG)")
	pf.StringVarP(&g.profile, "profile", "p", "", "session profile name")
	pf.StringVar(&g.baseURL, "api", "", "REST base URL (overrides config)")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&g.jsonOut, "json", false, "print JSON instead of text")
	pf.DurationVar(&g.timeout, "timeout", 30*time.Second, "per-command network timeout (0 = none)")

	root.AddCommand(
		versionCmd(g),
		loginCmd(g), logoutCmd(g), whoamiCmd(g),
		feedCmd(g), likeCmd(g), followCmd(g), postCmd(g), rmPostCmd(g),
		chatCmd(g),
		storiesCmd(g),
		searchCmd(g), historyCmd(g), trendingCmd(g), notificationsCmd(g),
		profileCmd(g), cropCmd(g),
	)
	return root, g
}

func versionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(g.stdout, "sc %s (%s)\n", version, buildDate)
		},
	}
}

func main() {
	root, g := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		g.close()
		fail(err)
	}
}

// ---- helpers ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// mediaFile reads path into a multipart part named field.
func mediaFile(path, field string) (api.File, error) {
	data, err := readAll(path)
	if err != nil {
		return api.File{}, fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	if path == "-" {
		name = "stdin"
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return api.File{Field: field, Name: name, ContentType: ct, Data: data}, nil
}

var errNotConfirmed = errors.New("refusing destructive action without --yes")

func requireYes(yes bool) error {
	if !yes {
		return errNotConfirmed
	}
	return nil
}

// ago renders t relative to now ("3 minutes ago").
func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
