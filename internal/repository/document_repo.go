package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/physiohub/rag-backend/internal/models"
	"gorm.io/gorm"
)

// ErrDuplicateDocument 表示 (owner_id, content_hash) 唯一约束冲突
var ErrDuplicateDocument = errors.New("document with same content already exists")

// documentRepository 文档仓库实现
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建文档仓库
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// FindByHash 按内容哈希查找文档
func (r *documentRepository) FindByHash(ctx context.Context, ownerID uint, contentHash string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND content_hash = ?", ownerID, contentHash).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// Create 持久化新文档
func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	err := r.db.WithContext(ctx).Create(doc).Error
	if err != nil {
		// 并发上传相同内容时唯一索引兜底，调用方重新查询即可拿到已有记录
		if isUniqueViolation(err) {
			return ErrDuplicateDocument
		}
		return err
	}
	return nil
}

// Delete 删除文档记录
func (r *documentRepository) Delete(ctx context.Context, ownerID uint, documentID uint) error {
	return r.db.WithContext(ctx).
		Where("owner_id = ? AND document_id = ?", ownerID, documentID).
		Delete(&models.Document{}).Error
}

// LoadFullText 返回用户文档全文
func (r *documentRepository) LoadFullText(ctx context.Context, ownerID uint, documentID *uint) (string, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("owner_id = ?", ownerID).
		Order("document_id")

	if documentID != nil {
		query = query.Where("document_id = ?", *documentID)
	}

	var contents []string
	if err := query.Pluck("content", &contents).Error; err != nil {
		return "", err
	}
	if len(contents) == 0 {
		return "", nil
	}

	return strings.TrimSpace(strings.Join(contents, "\n\n")), nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// postgres 23505 unique_violation
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
