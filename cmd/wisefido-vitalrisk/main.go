package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/common/logger"
	"wisefido-vitalrisk/internal/config"
	httpapi "wisefido-vitalrisk/internal/http"
	"wisefido-vitalrisk/internal/service"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-vitalrisk")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vitalRiskService, err := service.NewVitalRiskService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create vital risk service", zap.Error(err))
	}

	// 4. HTTP 路由
	router := httpapi.NewRouter(log)
	router.RegisterVitalRiskRoutes(httpapi.NewVitalRiskHandler(
		vitalRiskService.Processor(),
		vitalRiskService.Pipeline(),
		vitalRiskService.ModelManager(),
		vitalRiskService.ResultCache(),
		historyStore(vitalRiskService),
		log,
	))
	router.RegisterTrainingRoutes(httpapi.NewTrainingHandler(
		trainingStore(vitalRiskService),
		vitalRiskService.ModelManager(),
		log,
	))
	router.HandleHandler("/metrics", vitalRiskService.Metrics().Handler())

	srv := service.NewServer(cfg.HTTP.Addr, vitalRiskService.Metrics().Middleware(httpapi.RouteLabel, router), log)

	// 5. 启动消费者与 HTTP
	if err := vitalRiskService.Start(ctx); err != nil {
		log.Fatal("Failed to start vital risk service", zap.Error(err))
	}

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// 6. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErrChan:
		log.Error("HTTP server error", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	_ = vitalRiskService.Stop(shutdownCtx)

	log.Info("Vital risk service stopped")
}

// DB 未启用时返回真正的 nil 接口
func historyStore(s *service.VitalRiskService) httpapi.HistoryStore {
	if repo := s.ClassificationRepo(); repo != nil {
		return repo
	}
	return nil
}

func trainingStore(s *service.VitalRiskService) httpapi.TrainingStore {
	if repo := s.TrainingRepo(); repo != nil {
		return repo
	}
	return nil
}
