package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ykj/studio/internal/api"
	"ykj/studio/internal/auth"
	"ykj/studio/internal/chat"
	"ykj/studio/internal/config"
	"ykj/studio/internal/events"
	"ykj/studio/internal/gateway"
	"ykj/studio/internal/gemini"
	"ykj/studio/internal/media"
	"ykj/studio/internal/model"
	"ykj/studio/internal/mux"
	"ykj/studio/internal/store"
	"ykj/studio/internal/telemetry"
	"ykj/studio/internal/workflow"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

const (
	shutdownTimeout = 15 * time.Second
	// music tracks are small; a stalled download fails the mix
	downloadTimeout = 5 * time.Minute
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "studio",
		Short:         "YKJ-Ai creative studio backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the studio API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				slog.Error("config_load_failed", "error", err)
				return err
			}
			logger, closer := telemetry.NewLogger(cfg.Log)
			defer closer.Close()
			if err := cfg.Validate(); err != nil {
				logger.Error("config_invalid", "error", err)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg, logger); err != nil {
				logger.Error("server_failed", "error", err)
				return err
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	return root
}

func openStore(ctx context.Context, cfg config.Config) (store.KV, error) {
	if cfg.DBPath == "" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenSQLite(ctx, cfg.DBPath)
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	kv, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	authSvc := auth.NewService(kv, cfg.JWTSecret, cfg.AccessTTL, logger)
	if err := authSvc.Restore(ctx); err != nil {
		kv.Close()
		return fmt.Errorf("restore session: %w", err)
	}

	reg := media.NewRegistry()
	hub := events.NewHub()

	remote := gemini.NewClient(gemini.Config{
		APIKey:        cfg.GeminiAPIKey,
		BaseURL:       cfg.GeminiBaseURL,
		OpenAIBaseURL: cfg.GeminiOpenAIBaseURL,
		HTTPClient:    gemini.DefaultHTTPClient(),
	})
	gw := gateway.New(remote, reg, logger, gateway.Options{
		PollInterval:   cfg.VideoPollInterval,
		PollTimeout:    cfg.VideoPollTimeout,
		EditVideoDelay: cfg.EditVideoDelay,
		WatermarkText:  model.WatermarkText,
	})
	mixer := mux.NewMixer(mux.NewFFmpeg(cfg.FFmpegPath), reg, &http.Client{Timeout: downloadTimeout}, logger)
	chatMgr := chat.NewManager(gw, media.NewTracker(reg), hub, logger)
	flow := workflow.NewController(gw, mixer, chatMgr, media.NewTracker(reg), hub, logger)

	defer func() {
		var result *multierror.Error
		if cerr := flow.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if cerr := chatMgr.Reset(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if cerr := kv.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if cerr := result.ErrorOrNil(); cerr != nil {
			logger.Warn("shutdown_cleanup_failed", "error", cerr)
		}
		created, released := reg.Counts()
		logger.Info("media_released", "created", created, "released", released, "live", reg.Len())
	}()

	router := api.NewServer(authSvc, flow, chatMgr, reg, hub, logger, cfg.CORSOrigins).Router()
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_start", "addr", cfg.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
