package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"example.com/n2kgate/internal/common"
	"example.com/n2kgate/internal/core"
	"example.com/n2kgate/internal/n2k"
	"example.com/n2kgate/internal/report"
	"example.com/n2kgate/internal/server"
)

func newCore(cfg config) (*core.Core, error) {
	table := n2k.DefaultTable()
	if cfg.PGNTable != "" {
		t, err := n2k.LoadTable(cfg.PGNTable)
		if err != nil {
			return nil, err
		}
		table = t
	}
	return core.New(core.Options{
		Capacity:         cfg.BufferCapacity,
		RefreshThreshold: cfg.RefreshThreshold,
		Table:            table,
		OnOutcome:        server.RecordOutcome,
	})
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 5*time.Minute, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		common.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		common.Fatalf("storage dir: %v", err)
	}
	logCloser, err := common.SetupLogging(cfg.Logs)
	if err != nil {
		common.Fatalf("setup logging: %v", err)
	}
	defer logCloser.Close()

	lang, err := report.ParseLanguage(cfg.Lang)
	if err != nil {
		common.Warnf("lang %q: %v, using %s", cfg.Lang, err, lang)
	}
	c, err := newCore(cfg)
	if err != nil {
		common.Fatalf("core init: %v", err)
	}
	srv, err := server.NewServer(server.Options{
		StorageDir:   cfg.StorageDir,
		Core:         c,
		Lang:         lang,
		ImportWindow: cfg.ImportWindow,
		ExportWindow: cfg.ExportWindow,
	})
	if err != nil {
		common.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Replay != "" {
		interval, err := time.ParseDuration(cfg.ReplayInterval)
		if err != nil && cfg.ReplayInterval != "" {
			common.Fatalf("replayInterval %q: %v", cfg.ReplayInterval, err)
		}
		go func() {
			n, err := replay(ctx, c, cfg.Replay, interval)
			if err != nil && !errors.Is(err, context.Canceled) {
				common.Errorf("replay %s: %v", cfg.Replay, err)
				return
			}
			common.Logf("replay %s: %d frame(s) submitted", cfg.Replay, n)
		}()
	}

	common.Logf("n2kd listening on %s (buffer %d, refresh every %d)", listenAddr, cfg.BufferCapacity, cfg.RefreshThreshold)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		common.Warnf("shutdown: %v", err)
	}
	common.Logf("n2kd stopped")
}
