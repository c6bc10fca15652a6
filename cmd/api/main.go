package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/config"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/relay"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/router"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user"
	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-app-core/pkg/database"
	"github.com/ovaphlow/pitchfork/service-app-core/pkg/utilities"
)

func main() {
	// best-effort: without a .env file the real environment is used
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting push relay")
	cfg := config.Load()

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	users := repo.NewUserRepo(db)
	bootCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := users.EnsureTable(bootCtx); err != nil {
		sugar.Fatalf("ensure users table: %v", err)
	}
	cancel()

	gateway := relay.NewGateway(cfg.PushGatewayURL, &http.Client{Timeout: cfg.RequestTimeout})
	send, err := relay.NewHandler(user.NewService(users, sugar), gateway, sugar)
	if err != nil {
		sugar.Fatalf("relay handler: %v", err)
	}
	if cfg.JWTSecret == "" {
		sugar.Warn("SUPABASE_JWT_SECRET is empty; the relay accepts unauthenticated requests")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.RelayAddr,
		Handler:           router.RegisterRoutes(sugar, send, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("relay is listening", "addr", cfg.RelayAddr)

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}
