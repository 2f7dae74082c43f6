package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/physiohub/rag-backend/app/controllers"
	"github.com/physiohub/rag-backend/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Init registers all routes. Must be called after config is loaded.
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")

	// 文档入库路由
	documentController := &controllers.DocumentController{}
	web.Router("/api/documents/upload", documentController, "post:Upload")
	web.Router("/api/documents/text", documentController, "get:Text")

	// 检索问答路由
	web.Router("/api/rag/ask", &controllers.RAGController{}, "post:Ask")

	// 全文分析路由
	insightController := &controllers.InsightController{}
	web.Router("/api/insights/summarize", insightController, "post:Summarize")
	web.Router("/api/insights/topic", insightController, "post:Topic")
	web.Router("/api/insights/sentiment", insightController, "post:Sentiment")

	// Prometheus指标端点
	if config.AppConfig == nil || config.AppConfig.Prometheus.Enabled {
		web.Handler("/metrics", promhttp.Handler())
	}
}
