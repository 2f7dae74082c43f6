package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/physiohub/rag-backend/internal/errors"
)

// memoryRecord 内存向量记录
type memoryRecord struct {
	id       string
	text     string
	vector   []float32
	metadata ChunkMetadata
}

// memoryVectorStore 进程内向量存储
// 用于本地开发和测试环境，线性扫描计算余弦距离
type memoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string][]memoryRecord
}

// NewMemoryVectorStore 创建内存向量存储
func NewMemoryVectorStore() VectorStore {
	return &memoryVectorStore{
		collections: make(map[string][]memoryRecord),
	}
}

func (s *memoryVectorStore) Upsert(ctx context.Context, collection string, batch UpsertBatch) error {
	if len(batch.IDs) != len(batch.Texts) ||
		len(batch.IDs) != len(batch.Vectors) ||
		len(batch.IDs) != len(batch.Metadatas) {
		return apperrors.NewIndexQueryError(fmt.Errorf("upsert batch length mismatch"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.collections[collection]
	for i := range batch.IDs {
		record := memoryRecord{
			id:       batch.IDs[i],
			text:     batch.Texts[i],
			vector:   batch.Vectors[i],
			metadata: batch.Metadatas[i],
		}
		// 同ID覆盖写
		replaced := false
		for j := range records {
			if records[j].id == record.id {
				records[j] = record
				replaced = true
				break
			}
		}
		if !replaced {
			records = append(records, record)
		}
	}
	s.collections[collection] = records
	return nil
}

func (s *memoryVectorStore) Query(ctx context.Context, collection string, vector []float32, k int, ownerID uint) (*QueryResult, error) {
	if k <= 0 {
		k = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		record   memoryRecord
		distance float64
	}

	var candidates []scored
	for _, record := range s.collections[collection] {
		// owner隔离在索引层强制执行
		if record.metadata.OwnerID != ownerID {
			continue
		}
		candidates = append(candidates, scored{
			record:   record,
			distance: CosineDistance(vector, record.vector),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	result := &QueryResult{
		IDs:       make([]string, 0, len(candidates)),
		Texts:     make([]string, 0, len(candidates)),
		Metadatas: make([]ChunkMetadata, 0, len(candidates)),
		Distances: make([]float64, 0, len(candidates)),
	}
	for _, c := range candidates {
		result.IDs = append(result.IDs, c.record.id)
		result.Texts = append(result.Texts, c.record.text)
		result.Metadatas = append(result.Metadatas, c.record.metadata)
		result.Distances = append(result.Distances, c.distance)
	}
	return result, nil
}

func (s *memoryVectorStore) Ready() bool {
	return true
}
