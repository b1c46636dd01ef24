package main

import (
    "context"
    "errors"
    "flag"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"
    "golang.org/x/sync/errgroup"

    "darpm/internal/api"
    "darpm/internal/buildinfo"
    "darpm/internal/config"
)

var interruptSignals = []os.Signal{
    os.Interrupt,
    syscall.SIGTERM,
}

func main() {
    cfgPath := flag.String("config", os.Getenv("DARPM_CONFIG"), "path to a YAML config file")
    flag.Parse()

    cfg, err := config.Load(*cfgPath)
    if err != nil {
        log.Fatal().Err(err).Msg("cannot load config")
    }
    log.Logger = cfg.Log.Logger(os.Stderr)

    ctx, stop := signal.NotifyContext(context.Background(), interruptSignals...)
    defer stop()

    srvDeps, err := api.NewServer(cfg, log.Logger)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init server")
    }

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    waitGroup, ctx := errgroup.WithContext(ctx)
    worker := srvDeps.NewWebhookWorker()
    waitGroup.Go(func() error { return worker.Run(ctx) })
    waitGroup.Go(func() error {
        log.Info().Str("addr", srv.Addr).Str("version", buildinfo.Version).Msg("API listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            return err
        }
        return nil
    })
    waitGroup.Go(func() error {
        <-ctx.Done()
        log.Info().Msg("graceful shutdown API server")
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
        defer cancel()
        return errors.Join(srv.Shutdown(shutdownCtx), srvDeps.Shutdown(shutdownCtx))
    })

    if err := waitGroup.Wait(); err != nil {
        log.Fatal().Err(err).Msg("server error")
    }
}
