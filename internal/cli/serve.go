package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/ytfetch/internal/handlers"
	"github.com/example/ytfetch/internal/storage"
	"github.com/example/ytfetch/internal/thumbnail"
)

const shutdownTimeout = 60 * time.Second

var (
	flagAddr     string
	flagDelivery string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (default 0.0.0.0:5000)")
	serveCmd.Flags().StringVar(&flagDelivery, "delivery", "", "File delivery: persist | inline")
}

func serveRun(cmd *cobra.Command, args []string) error {
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagDelivery != "" {
		cfg.Delivery = flagDelivery
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir, err := downloadDir()
	if err != nil {
		return err
	}
	store, err := storage.New(dir)
	if err != nil {
		return err
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	fetcher := newFetcher()
	hub := handlers.NewHub()
	h := handlers.New(handlers.Options{
		Fetcher:         fetcher,
		Thumbnails:      thumbnail.NewFetcher(fetcher, cfg.ThumbnailTimeout.Duration),
		Store:           store,
		Hub:             hub,
		Inline:          cfg.Inline(),
		DownloadTimeout: cfg.DownloadTimeout.Duration,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: handlers.NewRouter(h, cfg.AllowOrigins),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	if cfg.Retention.Duration > 0 {
		debugf("janitor: removing files older than %s every %s", cfg.Retention, cfg.CleanupInterval)
		g.Go(func() error {
			return store.Janitor(gctx, cfg.CleanupInterval.Duration, cfg.Retention.Duration)
		})
	}

	g.Go(func() error {
		log.Printf("Server starting on %s (delivery=%s, dir=%s)", cfg.Addr, cfg.Delivery, store.Dir())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("Server exited")
	return nil
}
