package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/config"
	"go.uber.org/zap"
)

// ShutdownHook runs after the listener has drained, before Start returns.
type ShutdownHook func(ctx context.Context) error

// Start serves router until ctx ends, then drains in-flight requests within
// cfg.ShutdownTimeout and runs hooks in order. Hook failures are logged and
// joined into the result.
func Start(ctx context.Context, cfg config.Config, router http.Handler, log *zap.Logger, hooks ...ShutdownHook) error {
	ln, err := net.Listen("tcp", ":"+cfg.HTTPPort)
	if err != nil {
		return err
	}
	return serve(ctx, ln, cfg, router, log, hooks)
}

func serve(ctx context.Context, ln net.Listener, cfg config.Config, router http.Handler, log *zap.Logger, hooks []ShutdownHook) error {
	srv := &http.Server{
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	log.Info("http server shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	errs := []error{srv.Shutdown(shutdownCtx)}
	for _, hook := range hooks {
		if err := hook(shutdownCtx); err != nil {
			log.Warn("shutdown hook failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
