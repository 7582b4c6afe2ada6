package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/sheetscan/api/handlers"
	"github.com/feichai0017/sheetscan/api/routes"
	cfg "github.com/feichai0017/sheetscan/config"
	"github.com/feichai0017/sheetscan/internal/bootstrap"
	"github.com/feichai0017/sheetscan/pkg/logger"
)

// maxBatchFiles bounds the request size of batch uploads.
const maxBatchFiles = 10

func main() {
	app := cfg.GetAppConfig()

	// init logger
	log, err := bootstrap.NewLogger(app, "sheetscan-server", "logs/app.log")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.NewPipeline(ctx, app, cfg.GetAIConfig(), log)
	if err != nil {
		log.Fatal("Failed to create pipeline", logger.Error(err))
	}
	defer pipeline.Close()

	// init document service
	svc, err := bootstrap.NewService(ctx, app, pipeline, log)
	if err != nil {
		log.Fatal("Failed to create document service", logger.Error(err))
	}
	defer svc.Close()

	// init handlers
	h := handlers.NewHandlers(pipeline.Orchestrator, svc.Documents, log)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = app.MaxUploadSize
	routes.SetupRoutes(r, h, log, routes.Options{MaxBodySize: app.MaxUploadSize*maxBatchFiles + 1<<20})

	srv := &http.Server{
		Addr:              app.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", app.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
		os.Exit(1)
	}
}
