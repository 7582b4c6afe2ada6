package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cfg "github.com/feichai0017/sheetscan/config"
	"github.com/feichai0017/sheetscan/internal/bootstrap"
	"github.com/feichai0017/sheetscan/pkg/logger"
	"github.com/feichai0017/sheetscan/pkg/worker"
)

func main() {
	app := cfg.GetAppConfig()

	// 初始化日志
	log, err := bootstrap.NewLogger(app, "sheetscan-worker", "logs/worker.log")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.NewPipeline(ctx, app, cfg.GetAIConfig(), log)
	if err != nil {
		log.Error("Failed to create pipeline", logger.Error(err))
		os.Exit(1)
	}
	defer pipeline.Close()

	// 创建文档服务
	svc, err := bootstrap.NewService(ctx, app, pipeline, log)
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Close()

	// 创建 worker 配置
	rc := cfg.GetRedisConfig()
	workerCfg := &worker.Config{
		RedisAddr:       rc.Addr,
		RedisPassword:   rc.Password,
		RedisDB:         rc.DB,
		Concurrency:     rc.Concurrency,
		Queues:          worker.DefaultQueues(),
		CleanupInterval: time.Hour,
	}

	documentWorker, err := worker.NewDocumentWorker(workerCfg, svc.Documents, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	// gRPC 健康检查
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	lis, err := net.Listen("tcp", app.HealthAddr)
	if err != nil {
		log.Error("Failed to listen for health checks", logger.String("addr", app.HealthAddr), logger.Error(err))
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("Health server stopped", logger.Error(err))
		}
	}()

	// 启动 worker
	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		grpcServer.Stop()
		os.Exit(1)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	log.Info("Worker started",
		logger.Int("concurrency", workerCfg.Concurrency),
		logger.String("healthAddr", app.HealthAddr),
	)

	<-ctx.Done()

	// 优雅关闭
	log.Info("Shutting down worker...")
	hs.Shutdown()
	documentWorker.Stop()
	grpcServer.GracefulStop()
	log.Info("Worker stopped")
}
