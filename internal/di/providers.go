package di

import (
	"fmt"
	"time"

	"github.com/physiohub/rag-backend/internal/config"
	"github.com/physiohub/rag-backend/internal/knowledge"
	"github.com/physiohub/rag-backend/internal/logger"
	"github.com/physiohub/rag-backend/internal/repository"
	"github.com/physiohub/rag-backend/internal/services"
	"github.com/physiohub/rag-backend/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterProviders 注册所有依赖提供者
// 数据库与Redis连接在bootstrap阶段建立后传入
func RegisterProviders(container *dig.Container, db *gorm.DB, redisClient *redis.Client) error {
	// 注册配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.AppConfig
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	if err := container.Provide(func() *gorm.DB { return db }); err != nil {
		return err
	}
	if err := container.Provide(func() *redis.Client { return redisClient }); err != nil {
		return err
	}

	// 注册管道组件
	if err := container.Provide(func(cfg *config.Config) knowledge.OCREngine {
		if !cfg.Knowledge.OCR.Enabled {
			return &knowledge.NoopOCREngine{}
		}
		return knowledge.NewHTTPOCREngine(cfg.Knowledge.OCR.Endpoint, cfg.Knowledge.OCR.Language)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(ocr knowledge.OCREngine) *knowledge.ExtractorManager {
		return knowledge.NewExtractorManager(ocr)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config) knowledge.Embedder {
		return knowledge.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.EmbeddingModel)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config) knowledge.Generator {
		return knowledge.NewOpenAIGenerator(cfg.AI.OpenAIAPIKey, cfg.AI.ChatModel, cfg.AI.MaxTokens, cfg.AI.Temperature)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config, embedder knowledge.Embedder) *knowledge.Chunker {
		return knowledge.NewChunker(embedder, cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)
	}); err != nil {
		return err
	}

	if err := container.Provide(newVectorStore); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config, embedder knowledge.Embedder, store knowledge.VectorStore, generator knowledge.Generator) *knowledge.Retriever {
		return knowledge.NewRetriever(embedder, store, generator, cfg.Knowledge.Collection, cfg.Knowledge.TopK)
	}); err != nil {
		return err
	}

	// 注册持久层与归档
	if err := container.Provide(repository.NewDocumentRepository); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config) storage.UploadArchiver {
		if !cfg.Storage.Enabled {
			return nil
		}
		archiver, err := storage.NewMinIOArchiver()
		if err != nil {
			logger.Warn("minio archiver unavailable, uploads will not be archived", zap.Error(err))
			return nil
		}
		return archiver
	}); err != nil {
		return err
	}

	// 注册服务
	if err := container.Provide(services.NewPipelineMetrics); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config, client *redis.Client) *services.RetrievalCache {
		return services.NewRetrievalCache(client, cfg.Redis.TTL)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(
		cfg *config.Config,
		extractor *knowledge.ExtractorManager,
		chunker *knowledge.Chunker,
		embedder knowledge.Embedder,
		store knowledge.VectorStore,
		repo repository.DocumentRepository,
		archiver storage.UploadArchiver,
		metrics *services.PipelineMetrics,
	) *services.DocumentService {
		return services.NewDocumentService(extractor, chunker, embedder, store, repo, archiver, metrics, cfg.Knowledge.Collection)
	}); err != nil {
		return err
	}

	if err := container.Provide(services.NewRAGService); err != nil {
		return err
	}

	if err := container.Provide(services.NewInsightService); err != nil {
		return err
	}

	return nil
}

// newVectorStore 按配置选择向量索引实现，milvus不可用时不降级，直接报错
func newVectorStore(cfg *config.Config) (knowledge.VectorStore, error) {
	switch cfg.Knowledge.VectorStore.Provider {
	case "milvus":
		return knowledge.NewMilvusVectorStore(knowledge.MilvusOptions{
			Address:    cfg.Knowledge.VectorStore.Milvus.Address,
			Username:   cfg.Knowledge.VectorStore.Milvus.Username,
			Password:   cfg.Knowledge.VectorStore.Milvus.Password,
			Database:   cfg.Knowledge.VectorStore.Milvus.Database,
			UseTLS:     cfg.Knowledge.VectorStore.Milvus.TLS,
			VectorSize: cfg.Knowledge.VectorStore.Milvus.VectorSize,
			Distance:   cfg.Knowledge.VectorStore.Milvus.Distance,
			Timeout:    10 * time.Second,
		})
	case "memory", "":
		return knowledge.NewMemoryVectorStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector store provider: %s", cfg.Knowledge.VectorStore.Provider)
	}
}
