package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperjump/quire/internal/config"
	"github.com/hyperjump/quire/internal/extract"
	"github.com/hyperjump/quire/internal/importer"
	"github.com/hyperjump/quire/internal/keyword"
	"github.com/hyperjump/quire/internal/server"
	"github.com/hyperjump/quire/internal/storage"
	"github.com/hyperjump/quire/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// components are the long-lived pieces behind the server.
type components struct {
	Storage  *storage.SQLStore
	Index    *keyword.BleveIndex
	Images   storage.ImageStore
	Importer *importer.Importer
}

// Close releases the database and the index.
func (c *components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DataSource())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	c := &components{Storage: store}

	c.Index, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	switch cfg.Images.Backend {
	case "b2":
		c.Images, err = storage.NewB2Images(ctx, cfg.Images.B2KeyID, cfg.Images.B2AppKey, cfg.Images.B2Bucket)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open image bucket: %w", err)
		}
	case "disk", "":
		c.Images = storage.DiskImages{}
	default:
		c.Close()
		return nil, fmt.Errorf("unknown images backend %q (want disk or b2)", cfg.Images.Backend)
	}

	c.Importer = importer.New(store, c.Index, extract.NewExtractor(), importer.WithLogger(logger))
	return c, nil
}

func (a *app) serverCmd() *cobra.Command {
	var reindex bool
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the REST API and import files dropped into library inboxes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServer(cmd.Context(), reindex)
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "rebuild the keyword index from the database before serving")
	return cmd
}

func (a *app) runServer(ctx context.Context, reindex bool) error {
	cfg, logger := a.cfg, a.logger
	logger.Info("config loaded",
		zap.String("config_path", a.cfgPath),
		zap.String("driver", cfg.Storage.Driver),
		zap.String("images", cfg.Images.Backend),
	)

	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if reindex {
		n, err := c.Importer.Reindex(ctx)
		if err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
		logger.Info("keyword index rebuilt", zap.Int("documents", n))
	}

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()

	var opts []server.Option
	if cfg.Watch.EnabledOrDefault() {
		w, err := a.startWatcher(watchCtx, c)
		if err != nil {
			return err
		}
		defer w.Stop()
		opts = append(opts, server.WithWatch(w))
	}

	srv := server.NewServer(c.Storage, c.Images, c.Index, cfg, logger, opts...)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	watchCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// startWatcher watches the inbox of every stored library and feeds changes
// to the importer.
func (a *app) startWatcher(ctx context.Context, c *components) (*watcher.Watcher, error) {
	cfg := a.cfg
	w := watcher.New(
		func(ev watcher.Event) { c.Importer.Handle(ctx, ev) },
		watcher.WithLogger(a.logger),
		watcher.WithExtensions(cfg.Watch.Extensions...),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
	)
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	libs, err := c.Storage.ListLibraries(ctx)
	if err != nil {
		w.Stop()
		return nil, err
	}
	for _, lib := range libs {
		if err := w.AddLibrary(lib.Path, true); err != nil {
			a.logger.Warn("inbox not watched", zap.String("library", lib.Path), zap.Error(err))
		}
	}
	return w, nil
}
