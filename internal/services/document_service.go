package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/physiohub/rag-backend/internal/errors"
	"github.com/physiohub/rag-backend/internal/knowledge"
	"github.com/physiohub/rag-backend/internal/logger"
	"github.com/physiohub/rag-backend/internal/models"
	"github.com/physiohub/rag-backend/internal/repository"
	"github.com/physiohub/rag-backend/internal/storage"
	"go.uber.org/zap"
)

// DocumentService 文档入库服务
// 入库路径：提取 -> 规范化 -> 去重 -> 落库 -> 分块 -> 向量化 -> 写索引
type DocumentService struct {
	extractor  *knowledge.ExtractorManager
	chunker    *knowledge.Chunker
	embedder   knowledge.Embedder
	store      knowledge.VectorStore
	repo       repository.DocumentRepository
	archiver   storage.UploadArchiver
	metrics    *PipelineMetrics
	collection string
}

// IngestResult 入库结果
// AlreadyExists为true时表示内容命中去重，未重复写入索引
type IngestResult struct {
	DocumentID    uint   `json:"document_id"`
	Filename      string `json:"filename"`
	TotalChunks   int    `json:"total_chunks"`
	AlreadyExists bool   `json:"already_exists"`
}

// NewDocumentService 创建文档服务
// archiver和metrics可为nil，对应能力关闭
func NewDocumentService(
	extractor *knowledge.ExtractorManager,
	chunker *knowledge.Chunker,
	embedder knowledge.Embedder,
	store knowledge.VectorStore,
	repo repository.DocumentRepository,
	archiver storage.UploadArchiver,
	metrics *PipelineMetrics,
	collection string,
) *DocumentService {
	if collection == "" {
		collection = "physio_docs"
	}
	return &DocumentService{
		extractor:  extractor,
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		repo:       repo,
		archiver:   archiver,
		metrics:    metrics,
		collection: collection,
	}
}

// IngestFile 执行完整的文档入库管道
func (s *DocumentService) IngestFile(ctx context.Context, ownerID uint, filename string, data []byte) (*IngestResult, error) {
	start := time.Now()
	format := strings.ToLower(filepath.Ext(filename))

	result, err := s.ingest(ctx, ownerID, filename, data)
	if err != nil {
		s.metrics.ObserveIngest("failed", format, time.Since(start), 0)
		return nil, err
	}

	status := "stored"
	if result.AlreadyExists {
		status = "duplicate"
	}
	s.metrics.ObserveIngest(status, format, time.Since(start), result.TotalChunks)
	return result, nil
}

func (s *DocumentService) ingest(ctx context.Context, ownerID uint, filename string, data []byte) (*IngestResult, error) {
	// 提取并规范化文本
	text, err := s.extractor.ExtractText(ctx, data, filename)
	if err != nil {
		return nil, err
	}

	// 内容哈希基于规范化后的文本：同一内容换个文件名也会命中去重
	hash := contentHash(text)

	existing, err := s.repo.FindByHash(ctx, ownerID, hash)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	if existing != nil {
		logger.Info("document already uploaded",
			zap.Uint("owner_id", ownerID),
			zap.Uint("document_id", existing.DocumentID))
		return &IngestResult{
			DocumentID:    existing.DocumentID,
			Filename:      existing.Filename,
			AlreadyExists: true,
		}, nil
	}

	// 原始文件归档是旁路能力，失败不阻断入库
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, ownerID, hash, filename, data); err != nil {
			logger.Warn("upload archive failed", zap.String("filename", filename), zap.Error(err))
		}
	}

	doc := &models.Document{
		OwnerID:     ownerID,
		Filename:    filename,
		Content:     text,
		ContentHash: hash,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrDuplicateDocument) {
			// 并发上传同一内容：唯一索引兜底后重查即可
			if existing, findErr := s.repo.FindByHash(ctx, ownerID, hash); findErr == nil && existing != nil {
				return &IngestResult{
					DocumentID:    existing.DocumentID,
					Filename:      existing.Filename,
					AlreadyExists: true,
				}, nil
			}
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	// 分块
	chunks, err := s.chunker.Split(ctx, text)
	if err != nil {
		return nil, s.rollback(ctx, doc, err)
	}
	if len(chunks) == 0 {
		return nil, s.rollback(ctx, doc, apperrors.NewExtractionFailedError(filename))
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	// 整批向量化，全量成功或全量失败
	vectors, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return nil, s.rollback(ctx, doc, err)
	}

	// chunk id 由文档ID和块序号构成，在用户语料内全局唯一
	ids := make([]string, len(chunks))
	metadatas := make([]knowledge.ChunkMetadata, len(chunks))
	for i := range chunks {
		ids[i] = fmt.Sprintf("%d_%d", doc.DocumentID, i)
		metadatas[i] = knowledge.ChunkMetadata{
			Filename: filename,
			OwnerID:  ownerID,
		}
	}

	if err := s.store.Upsert(ctx, s.collection, knowledge.UpsertBatch{
		IDs:       ids,
		Texts:     texts,
		Vectors:   vectors,
		Metadatas: metadatas,
	}); err != nil {
		return nil, s.rollback(ctx, doc, err)
	}

	logger.Info("document ingested",
		zap.Uint("owner_id", ownerID),
		zap.Uint("document_id", doc.DocumentID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))

	return &IngestResult{
		DocumentID:  doc.DocumentID,
		Filename:    filename,
		TotalChunks: len(chunks),
	}, nil
}

// rollback 补偿删除已落库的文档记录
// 分块、向量化或写索引失败时不能留下无向量的悬挂记录，
// 否则同内容重传会被去重短路，索引永远补不齐
func (s *DocumentService) rollback(ctx context.Context, doc *models.Document, cause error) error {
	if err := s.repo.Delete(ctx, doc.OwnerID, doc.DocumentID); err != nil {
		logger.Error("ingest rollback failed, document left without vectors",
			zap.Uint("document_id", doc.DocumentID),
			zap.Error(err))
	}
	return cause
}

// LoadFullText 返回用户文档全文，供全文分析工具使用
func (s *DocumentService) LoadFullText(ctx context.Context, ownerID uint, documentID *uint) (string, error) {
	text, err := s.repo.LoadFullText(ctx, ownerID, documentID)
	if err != nil {
		return "", apperrors.NewDatabaseError(err)
	}
	return text, nil
}

// contentHash 计算规范化文本的SHA-256十六进制摘要
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
