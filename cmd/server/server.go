package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/quipper/poc/membercard/internal/config"
	membershipHandler "github.com/quipper/poc/membercard/internal/controller/http/membership"
	membersSqlite "github.com/quipper/poc/membercard/internal/repositories/members/sqlite"
	"github.com/quipper/poc/membercard/pkg/common/linktoken"
	"github.com/quipper/poc/membercard/pkg/common/logger"
	"github.com/quipper/poc/membercard/pkg/common/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.LogLevel)
	logger.Info("starting server")

	repo, err := membersSqlite.NewSQLiteRepo(cfg.SQLitePath)
	if err != nil {
		logger.Error("init members repo: %v", err)
		os.Exit(1)
	}

	signer, err := linktoken.NewSigner([]byte(cfg.LinkSigningKey), cfg.LinkTokenTTL)
	if err != nil {
		logger.Error("init link signer: %v", err)
		os.Exit(1)
	}

	replier, err := membershipHandler.NewLineReplier(cfg.ChannelAccessToken)
	if err != nil {
		logger.Error("init line client: %v", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if !cfg.AdminAuthEnabled() {
		logger.Warn("ADMIN_USER not set; /admin is unauthenticated")
	}

	h := membershipHandler.NewHandler(repo, replier, membershipHandler.Options{
		ChannelSecret:      cfg.ChannelSecret,
		PublicBaseURL:      cfg.PublicBaseURL,
		Signer:             signer,
		RequireSignedLinks: cfg.RequireSignedLinks,
		AdminUser:          cfg.AdminUser,
		AdminPassword:      cfg.AdminPassword,
		Metrics:            metrics.New(reg),
		Gatherer:           reg,
	})

	router := chi.NewRouter()
	const maxBodySize = 1 << 20
	router.Use(middleware.RealIP)
	router.Use(middleware.RequestSize(maxBodySize))
	router.Use(middleware.Recoverer)
	router.Mount("/", h.Router())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("listening on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen: %v", err)
			stop <- syscall.SIGTERM
		}
	}()

	<-stop
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown: %v", err)
	}
	repo.Disconnect()
	logger.Info("server stopped")
}
