// Command authlink-demo is a small host app that mounts the authlink routes
// under /auth and serves a page showing the signed in user.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/caarlos0/env/v11"
	"github.com/gorilla/mux"

	"github.com/panyam/authlink"
	"github.com/panyam/authlink/oauth2"
	"github.com/panyam/authlink/stores/fs"
	"github.com/panyam/authlink/stores/gae"
)

type demoConfig struct {
	authlink.Config

	Addr             string `env:"AUTHLINK_ADDR" envDefault:":8080"`
	Store            string `env:"AUTHLINK_STORE" envDefault:"fs"`
	DatastoreProject string `env:"AUTHLINK_DATASTORE_PROJECT"`
	DatastoreNS      string `env:"AUTHLINK_DATASTORE_NAMESPACE"`
	LogLevel         string `env:"AUTHLINK_LOG_LEVEL" envDefault:"info"`

	GoogleClientID     string `env:"OAUTH2_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"OAUTH2_GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string `env:"OAUTH2_GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"OAUTH2_GITHUB_CLIENT_SECRET"`
}

func main() {
	var cfg demoConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: parse env: %v\n", err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "address to listen on")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "store to use: fs or datastore (gae)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

// storeKind maps the -store flag to "fs" or "datastore". "gae" is accepted
// as another name for datastore.
func storeKind(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fs", "":
		return "fs", nil
	case "datastore", "gae":
		return "datastore", nil
	}
	return "", fmt.Errorf("unknown store %q", name)
}

func openStore(ctx context.Context, cfg demoConfig) (authlink.Store, error) {
	kind, err := storeKind(cfg.Store)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "fs":
		if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		return fs.NewFSStore(cfg.StoragePath), nil
	case "datastore":
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, fmt.Errorf("open datastore: %w", err)
		}
		return gae.NewStore(client, cfg.DatastoreNS), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func run(ctx context.Context, cfg demoConfig, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	auth := authlink.New(cfg.Config, store)
	auth.Logger = logger
	auth.OAuth = oauth2.NewClient(auth.Config.BaseURL)
	if cfg.SessionStrategy == authlink.SessionStrategySCS {
		auth.SessionManager = scs.New()
		auth.SessionManager.Lifetime = auth.Config.SessionMaxAge
		auth.SessionManager.Cookie.Secure = cfg.SecureCookies
	}

	auth.AddProvider(authlink.NewEmailProvider("email", &authlink.ConsoleSender{}))
	if cfg.GoogleClientID != "" {
		auth.AddProvider(oauth2.Google(cfg.GoogleClientID, cfg.GoogleClientSecret))
	}
	if cfg.GitHubClientID != "" {
		auth.AddProvider(oauth2.GitHub(cfg.GitHubClientID, cfg.GitHubClientSecret))
	}

	router := mux.NewRouter()
	if err := auth.RegisterRoutes(router.PathPrefix("/auth").Subrouter()); err != nil {
		return err
	}

	auth.Middleware.GetRedirURL = func(r *http.Request) string { return "/auth/signin" }
	router.Handle("/me", auth.Middleware.EnsurePrincipal(http.HandlerFunc(showPrincipal)))
	router.Handle("/", auth.Middleware.ExtractPrincipal(http.HandlerFunc(showPrincipal)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "base_url", auth.Config.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showPrincipal(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p := authlink.PrincipalFromContext(r.Context())
	if p == nil {
		json.NewEncoder(w).Encode(map[string]any{"signedIn": false})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"signedIn": true, "user": p})
}
