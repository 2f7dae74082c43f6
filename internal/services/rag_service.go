package services

import (
	"context"
	"time"

	"github.com/physiohub/rag-backend/internal/knowledge"
)

// RAGService 检索问答服务
// 在检索器之上叠加应答缓存与指标上报
type RAGService struct {
	retriever *knowledge.Retriever
	cache     *RetrievalCache
	metrics   *PipelineMetrics
}

// NewRAGService 创建问答服务
// metrics可为nil；cache应由NewRetrievalCache构造，停用时传入nil client即可
func NewRAGService(retriever *knowledge.Retriever, cache *RetrievalCache, metrics *PipelineMetrics) *RAGService {
	return &RAGService{
		retriever: retriever,
		cache:     cache,
		metrics:   metrics,
	}
}

// Ask 回答用户问题
// 命中缓存时直接返回，不再触发向量检索与生成
func (s *RAGService) Ask(ctx context.Context, ownerID uint, question string, k int) (*knowledge.AskResult, error) {
	start := time.Now()

	fingerprint := s.cache.Fingerprint(question, k)
	if cached, ok := s.cache.Get(ctx, ownerID, fingerprint); ok {
		s.metrics.ObserveCache(true)
		s.metrics.ObserveQuery(queryStatus(cached), time.Since(start))
		return cached, nil
	}
	s.metrics.ObserveCache(false)

	result, err := s.retriever.Ask(ctx, ownerID, question, k)
	if err != nil {
		s.metrics.ObserveQuery("failed", time.Since(start))
		return nil, err
	}

	s.cache.Set(ctx, ownerID, fingerprint, result)
	s.metrics.ObserveQuery(queryStatus(result), time.Since(start))
	return result, nil
}

func queryStatus(result *knowledge.AskResult) string {
	if result == nil || len(result.Snippets) == 0 {
		return "not_available"
	}
	return "answered"
}
