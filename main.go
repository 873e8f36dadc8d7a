package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

//go:embed static
var staticFiles embed.FS

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portraitgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, logCloser, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	db, err := initDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database initialized", "path", cfg.DBPath)
	history := NewHistoryStore(db)

	compositor, err := newCompositor(cfg, log)
	if err != nil {
		return err
	}

	bridge, err := NewBridge(compositor, history, BridgeOptions{
		ScratchDir: cfg.ScratchDir,
		MaxRenders: cfg.MaxRenders,
		KeepLast:   cfg.KeepLast,
	}, log)
	if err != nil {
		return err
	}

	handler, err := newRouter(cfg, bridge, history, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Addr, "renderer", cfg.Renderer)
		errCh <- srv.ListenAndServe()
	}()

	if cfg.OpenBrowser {
		url := "http://" + cfg.Addr + "/"
		if err := openBrowser(url); err != nil {
			log.Warn("could not open browser", "url", url, "error", err)
		}
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newCompositor(cfg AppConfig, log *slog.Logger) (Compositor, error) {
	if cfg.Renderer == rendererNative {
		return NativeCompositor{}, nil
	}
	path, err := resolveTool(cfg.MagickBin)
	if err != nil {
		return nil, err
	}
	log.Info("using ImageMagick", "bin", path)
	return NewMagickCompositor(path, cfg.StepTimeout, log), nil
}

func newRouter(cfg AppConfig, bridge *Bridge, history *HistoryStore, log *slog.Logger) (http.Handler, error) {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("POST /api/submit-form", submitHandler(bridge, log))
	mux.HandleFunc("GET /api/bridge", bridgeSocketHandler(bridge, log))
	mux.HandleFunc("GET /api/history", historyHandler(history, log))
	mux.HandleFunc("GET /api/health-check", healthCheckHandler(cfg, log))

	// Presentation page
	page, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("static files: %w", err)
	}
	mux.Handle("GET /", http.FileServer(http.FS(page)))

	return mux, nil
}
