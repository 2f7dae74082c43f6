package models

import (
	"time"
)

// Document 原始文档表
// 保存提取并规范化后的全文，(owner_id, content_hash)唯一索引保证同一用户
// 重复上传相同内容时不会产生重复记录
type Document struct {
	DocumentID  uint      `gorm:"primaryKey;column:document_id" json:"document_id"`
	OwnerID     uint      `gorm:"column:owner_id;not null;uniqueIndex:idx_owner_content_hash" json:"owner_id"`
	Filename    string    `gorm:"size:255;not null" json:"filename"`
	Content     string    `gorm:"type:text;not null" json:"-"`
	ContentHash string    `gorm:"column:content_hash;size:64;not null;uniqueIndex:idx_owner_content_hash" json:"content_hash"`
	CreateTime  time.Time `gorm:"column:create_time;not null;autoCreateTime" json:"create_time"`
}

func (Document) TableName() string {
	return "document"
}
