package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"memory-duel-server/auth"
	"memory-duel-server/config"
	"memory-duel-server/game"
	"memory-duel-server/loghandler"
	"memory-duel-server/storage"
	"memory-duel-server/web"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stdout, loghandler.ParseLevel(cfg.LogLevel))))
	if envErr != nil {
		slog.Info("no .env file found; using environment variables", "tag", "main")
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "tag", "main", "err", err)
		os.Exit(1)
	}
	if cfg.SessionSecret == config.Defaults().SessionSecret {
		slog.Warn("SESSION_SECRET is not set; using the development secret", "tag", "main")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, closeFn, err := buildServer(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "tag", "main", "err", err)
		os.Exit(1)
	}
	defer closeFn()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "tag", "main", "err", err)
		}
	}()

	slog.Info("Memory Duel server listening", "tag", "main", "addr", srv.Addr,
		"tiles", cfg.TileCount, "persistent", cfg.DatabaseURL != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "tag", "main", "err", err)
		os.Exit(1)
	}
}

// buildServer wires storage, auth, the game manager and the HTTP layer.
// The returned function releases the store.
func buildServer(ctx context.Context, cfg *config.Config) (http.Handler, func(), error) {
	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL is not set; games are kept in memory only", "tag", "main")
	}

	var external *auth.ExternalValidator
	if cfg.ExternalAuthBaseURL != "" {
		external, err = auth.NewExternalValidator(ctx, cfg.ExternalAuthBaseURL)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		slog.Info("external auth configured", "tag", "main", "base_url", cfg.ExternalAuthBaseURL)
	}

	manager := game.NewManager(store, game.Options{
		TileCount:    cfg.TileCount,
		HistoryLimit: cfg.HistoryLimit,
	})
	srv, err := web.New(web.Deps{
		Games:    manager,
		Accounts: auth.NewAccounts(store, cfg.BcryptCost),
		Sessions: auth.NewSessions(cfg.SessionSecret, cfg.SessionCookieName, cfg.SessionTTL(), cfg.SecureCookies),
		External: external,
		Ping:     func(r *http.Request) error { return store.Ping(r.Context()) },
	}, web.Options{
		RequestTimeout: cfg.RequestTimeout(),
		PollInterval:   time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		LobbyLimit:     cfg.LobbyLimit,
		BoardCols:      cfg.BoardCols,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return srv, store.Close, nil
}
