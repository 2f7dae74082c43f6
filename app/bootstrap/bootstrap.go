package bootstrap

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/physiohub/rag-backend/internal/config"
	"github.com/physiohub/rag-backend/internal/database"
	"github.com/physiohub/rag-backend/internal/di"
	"github.com/physiohub/rag-backend/internal/logger"
	"github.com/physiohub/rag-backend/internal/services"
	"go.uber.org/zap"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error

	documentService *services.DocumentService
	ragService      *services.RAGService
	insightService  *services.InsightService
	metrics         *services.PipelineMetrics
}

// GetDocumentService returns the document ingestion service.
func (a *App) GetDocumentService() *services.DocumentService {
	return a.documentService
}

// GetRAGService returns the retrieval QA service.
func (a *App) GetRAGService() *services.RAGService {
	return a.ragService
}

// GetInsightService returns the full-text analysis service.
func (a *App) GetInsightService() *services.InsightService {
	return a.insightService
}

// GetMetrics returns the pipeline metrics collector.
func (a *App) GetMetrics() *services.PipelineMetrics {
	return a.metrics
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// Init bootstraps configuration, logger, database connections and other shared
// infrastructure components required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	app := &App{}

	db, err := database.InitDB()
	if err != nil {
		return nil, err
	}
	app.addCleanup(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	redisClient, err := database.InitRedis()
	if err != nil {
		// Redis是可选依赖，连接失败只降级缓存
		logger.Warn("redis unavailable, retrieval cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		app.addCleanup(database.CloseRedis)
	}

	container := di.InitContainer()
	if err := di.RegisterProviders(container, db, redisClient); err != nil {
		return nil, err
	}

	if err := container.Invoke(func(
		documents *services.DocumentService,
		rag *services.RAGService,
		insights *services.InsightService,
		metrics *services.PipelineMetrics,
	) {
		app.documentService = documents
		app.ragService = rag
		app.insightService = insights
		app.metrics = metrics
	}); err != nil {
		return nil, err
	}

	SetGlobalApp(app)
	logger.Info("application bootstrap complete",
		zap.String("env", config.AppConfig.Server.Env),
		zap.String("vector_store", config.AppConfig.Knowledge.VectorStore.Provider))
	return app, nil
}

func (a *App) addCleanup(task func() error) {
	a.cleanupTasks = append(a.cleanupTasks, task)
}

// Shutdown releases resources in reverse registration order.
func (a *App) Shutdown() {
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Warn("cleanup task failed", zap.Error(err))
		}
	}
	logger.Sync()
}
