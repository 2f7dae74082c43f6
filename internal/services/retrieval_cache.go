package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/physiohub/rag-backend/internal/knowledge"
	"github.com/physiohub/rag-backend/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RetrievalCache 问答结果缓存
// 键为 (owner, 查询指纹)：问题或k变化即指纹变化，天然构成失效规则，
// 取代旧实现里跨调用共享的可变上下文对象
type RetrievalCache struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
}

// NewRetrievalCache 创建问答缓存，client为nil时缓存整体停用
func NewRetrievalCache(client *redis.Client, ttlSeconds int) *RetrievalCache {
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RetrievalCache{
		client:  client,
		enabled: client != nil,
		ttl:     ttl,
	}
}

// Fingerprint 计算查询指纹：规范化问题文本 + 检索条数
func (c *RetrievalCache) Fingerprint(question string, k int) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d", normalized, k)))
	return hex.EncodeToString(sum[:])
}

func (c *RetrievalCache) key(ownerID uint, fingerprint string) string {
	return fmt.Sprintf("rag:answer:%d:%s", ownerID, fingerprint)
}

// Get 读取缓存的问答结果，未命中返回 (nil, false)
func (c *RetrievalCache) Get(ctx context.Context, ownerID uint, fingerprint string) (*knowledge.AskResult, bool) {
	if !c.enabled {
		return nil, false
	}

	data, err := c.client.Get(ctx, c.key(ownerID, fingerprint)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("retrieval cache get failed", zap.Error(err))
		}
		return nil, false
	}

	var result knowledge.AskResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warn("retrieval cache decode failed", zap.Error(err))
		return nil, false
	}
	return &result, true
}

// Set 写入问答结果，失败只记录日志
func (c *RetrievalCache) Set(ctx context.Context, ownerID uint, fingerprint string, result *knowledge.AskResult) {
	if !c.enabled || result == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warn("retrieval cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(ownerID, fingerprint), data, c.ttl).Err(); err != nil {
		logger.Warn("retrieval cache set failed", zap.Error(err))
	}
}
