package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coolbeans/seiview/pkg/auth"
	"github.com/coolbeans/seiview/pkg/background"
	"github.com/coolbeans/seiview/pkg/blob"
	"github.com/coolbeans/seiview/pkg/cache"
	"github.com/coolbeans/seiview/pkg/config"
	"github.com/coolbeans/seiview/pkg/httpapi"
	"github.com/coolbeans/seiview/pkg/proxy"
	"github.com/coolbeans/seiview/pkg/sei"
	"github.com/coolbeans/seiview/pkg/store"
	"github.com/coolbeans/seiview/pkg/summarize"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "seiview",
		Short: "Resilient SEI proxy and collaboration backend",
		Long: `Seiview sits between SEI process viewers and the SEI API.

It serves paginated document and progress listings through a persistent
cache with background completion of partial fetches, adds collaboration
features (tags, saved processes, notes, teams, sharing) on top of the
raw API, and optionally summarizes documents with an LLM.

Configuration comes from environment variables; see the package
documentation for the full list.`,
		Version: version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(invalidateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			slog.SetDefault(logger)

			listingCache := openCache(cfg, logger)
			defer listingCache.Close()

			collabStore, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer collabStore.Close()

			blobs, err := blob.NewStore(cfg.BlobDir)
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}

			client := sei.NewClient(sei.Config{
				BaseURL: cfg.SEIBaseURL,
				Timeout: cfg.SEITimeout,
				Logger:  logger,
			})

			runner := background.NewRunner(cfg.BackgroundLimit, logger)
			service := proxy.NewService(client, listingCache, runner, proxy.Options{
				EnvelopeTTL: cfg.CacheTTL,
				Logger:      logger,
			})

			deps := httpapi.Deps{
				Proxy:         service,
				Upstream:      client,
				Store:         collabStore,
				Cache:         listingCache,
				APIKey:        cfg.APIKey,
				PublicBaseURL: cfg.PublicBaseURL,
				Logger:        logger,
			}

			if cfg.OpenAIKey != "" {
				deps.Summarizer = summarize.New(summarize.Config{
					APIKey:  cfg.OpenAIKey,
					BaseURL: cfg.OpenAIBaseURL,
					Model:   cfg.OpenAIModel,
					Source:  client,
					Cache:   listingCache,
					Blobs:   blobs,
					Logger:  logger,
				})
			} else {
				logger.Info("OPENAI_API_KEY not set, summary endpoints disabled")
			}

			tokenKey, err := cfg.TokenKeyBytes()
			if err != nil {
				return err
			}
			if len(tokenKey) > 0 {
				deps.Tokens, err = auth.NewTokenCipher(tokenKey)
				if err != nil {
					return fmt.Errorf("token cipher: %w", err)
				}
			}
			if cfg.ShareSecret != "" {
				deps.Shares, err = auth.NewShareSigner([]byte(cfg.ShareSecret))
				if err != nil {
					return fmt.Errorf("share signer: %w", err)
				}
			}

			server := httpapi.NewServer(deps)
			httpServer := &http.Server{Addr: cfg.Addr, Handler: server.Handler()}

			errs := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Addr)
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errs <- err
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errs:
				return err
			case sig := <-stop:
				logger.Info("shutting down", "signal", sig.String())
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown incomplete", "error", err)
			}
			if err := runner.Shutdown(ctx); err != nil {
				logger.Warn("background tasks abandoned", "error", err, "in_flight", runner.InFlight())
			}
			return nil
		},
	}
}

func invalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate-cache [numero-processo]",
		Short: "Remove every cached listing for a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.CachePath == "" {
				return fmt.Errorf("SEIVIEW_CACHE_PATH is not set, nothing to invalidate")
			}

			listingCache, err := cache.OpenBolt(cfg.CachePath)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer listingCache.Close()

			removed := 0
			for _, pattern := range cache.ProcessPatterns(args[0]) {
				count, err := listingCache.DeletePattern(cmd.Context(), pattern)
				if err != nil {
					return fmt.Errorf("delete %s: %w", pattern, err)
				}
				removed += count
			}
			fmt.Printf("Removed %d cached entries for process %s\n", removed, args[0])
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the seiview version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("seiview %s\n", version)
		},
	}
}

// openCache opens the bbolt cache, falling back to the in-memory cache when
// the file is unavailable. A broken cache never prevents startup.
func openCache(cfg config.Config, logger *slog.Logger) cache.Cache {
	if cfg.CachePath == "" {
		return cache.NewMemory()
	}
	bolt, err := cache.OpenBolt(cfg.CachePath)
	if err != nil {
		logger.Warn("persistent cache unavailable, using in-memory cache", "path", cfg.CachePath, "error", err)
		return cache.NewMemory()
	}
	return bolt
}
