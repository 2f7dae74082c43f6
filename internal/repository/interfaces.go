package repository

import (
	"context"

	"github.com/physiohub/rag-backend/internal/models"
)

// DocumentRepository 文档内容存储
// (owner_id, content_hash) 唯一索引实现去重；LoadFullText供全文分析工具使用
type DocumentRepository interface {
	// FindByHash 按内容哈希查找文档，未找到返回 (nil, nil)
	FindByHash(ctx context.Context, ownerID uint, contentHash string) (*models.Document, error)
	// Create 持久化新文档；同一用户重复哈希时返回 ErrDuplicateDocument
	Create(ctx context.Context, doc *models.Document) error
	// Delete 删除文档记录，用于入库管道失败后的补偿回滚
	Delete(ctx context.Context, ownerID uint, documentID uint) error
	// LoadFullText 返回用户文档全文，documentID为nil时拼接该用户全部文档
	LoadFullText(ctx context.Context, ownerID uint, documentID *uint) (string, error)
}
