package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"github.com/physiohub/rag-backend/app/bootstrap"
	"github.com/physiohub/rag-backend/app/router"
	"github.com/physiohub/rag-backend/internal/config"
	"github.com/physiohub/rag-backend/internal/logger"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init()

	// 配置Beego全局设置
	web.BConfig.AppName = "PhysioHub RAG Service"
	web.BConfig.CopyRequestBody = true
	if port, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = port
	}

	logger.Info("🚀 Starting RAG Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
