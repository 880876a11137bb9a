// Command fakesky serves a local stand-in for the Bluesky XRPC endpoints the
// widget uses, seeded from a YAML fixture file.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"skywidget/cmd/internal/fakesky"
	"skywidget/cmd/security/password"

	"github.com/spf13/cobra"
)

type serveFlags struct {
	addr          string
	fixtures      string
	accessTTL     time.Duration
	expiredStatus int
	admin         bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f serveFlags

	root := &cobra.Command{
		Use:   "fakesky",
		Short: "Local fake of the Bluesky session and search endpoints",
		Long: `fakesky answers createSession, refreshSession, getSession and searchPosts
for one account, with expiring access tokens and single-use refresh tokens.
Point the widget at it with BLUESKY_BASE_URL.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}

	root.Flags().StringVar(&f.addr, "addr", "127.0.0.1:2583", "listen address")
	root.Flags().StringVar(&f.fixtures, "fixtures", "", "YAML file with account and posts")
	root.Flags().DurationVar(&f.accessTTL, "access-ttl", 2*time.Hour, "lifetime of minted access tokens")
	root.Flags().IntVar(&f.expiredStatus, "expired-status", http.StatusBadRequest, "status for expired access tokens (400 or 401)")
	root.Flags().BoolVar(&f.admin, "admin", false, "expose POST /_admin/{expire-access,revoke-refresh,fail}")

	root.AddCommand(newCheckCmd(), newHashCmd())
	return root
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <fixtures.yaml>",
		Short: "Validate a fixture file and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := loadFixtures(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account=%q posts=%d\n", fx.Account.Identifier, len(fx.Posts))
			return nil
		},
	}
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Read a password from stdin and print an argon2id password_hash for fixtures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			h, err := password.DefaultConfig().Hash(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func loadFixtures(path string) (fakesky.Fixtures, error) {
	file, err := os.Open(path)
	if err != nil {
		return fakesky.Fixtures{}, err
	}
	defer func() { _ = file.Close() }()
	return fakesky.LoadFixtures(file)
}

func serve(ctx context.Context, f serveFlags) error {
	if f.expiredStatus != http.StatusBadRequest && f.expiredStatus != http.StatusUnauthorized {
		return fmt.Errorf("--expired-status must be 400 or 401, got %d", f.expiredStatus)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var fx fakesky.Fixtures
	if f.fixtures != "" {
		var err error
		if fx, err = loadFixtures(f.fixtures); err != nil {
			return err
		}
	}

	fake := fakesky.New(fakesky.Options{
		Account:       fx.Account,
		Posts:         fx.Posts,
		AccessTTL:     f.accessTTL,
		ExpiredStatus: f.expiredStatus,
		Log:           log,
	})

	mux := http.NewServeMux()
	mux.Handle("/xrpc/", fake.Handler())
	if f.admin {
		registerAdmin(mux, fake)
	}

	srv := &http.Server{
		Addr:              f.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	acct := fake.Account()
	log.Info("fakesky.start", "addr", f.addr, "identifier", acct.Identifier, "did", acct.DID, "posts", len(fx.Posts), "admin", f.admin)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func registerAdmin(mux *http.ServeMux, fake *fakesky.Server) {
	mux.HandleFunc("POST /_admin/expire-access", func(w http.ResponseWriter, _ *http.Request) {
		fake.ExpireAccess()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /_admin/revoke-refresh", func(w http.ResponseWriter, _ *http.Request) {
		fake.RevokeRefresh()
		w.WriteHeader(http.StatusNoContent)
	})
	// ?nsid=app.bsky.feed.searchPosts&n=2
	mux.HandleFunc("POST /_admin/fail", func(w http.ResponseWriter, r *http.Request) {
		nsid := r.URL.Query().Get("nsid")
		n, err := strconv.Atoi(r.URL.Query().Get("n"))
		if nsid == "" || err != nil || n < 0 {
			http.Error(w, "nsid and n required", http.StatusBadRequest)
			return
		}
		fake.FailNext(nsid, n)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /_admin/counts", func(w http.ResponseWriter, _ *http.Request) {
		c := fake.Counts()
		fmt.Fprintf(w, "createSession=%d refreshSession=%d getSession=%d searchPosts=%d\n",
			c.CreateSession, c.RefreshSession, c.GetSession, c.SearchPosts)
	})
}
