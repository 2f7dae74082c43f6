package knowledge

import "context"

// ChunkMetadata 向量记录的元数据
type ChunkMetadata struct {
	Filename string `json:"filename"`
	OwnerID  uint   `json:"owner_id"`
}

// UpsertBatch 批量写入请求，四个切片等长，一次调用原子写入
type UpsertBatch struct {
	IDs       []string
	Texts     []string
	Vectors   [][]float32
	Metadatas []ChunkMetadata
}

// QueryResult 检索结果，四个平行数组按余弦距离升序排列
type QueryResult struct {
	IDs       []string
	Texts     []string
	Metadatas []ChunkMetadata
	Distances []float64
}

// VectorStore 向量索引抽象
// 查询必须按owner过滤：任何k值下都不允许跨用户返回记录
type VectorStore interface {
	Upsert(ctx context.Context, collection string, batch UpsertBatch) error
	Query(ctx context.Context, collection string, vector []float32, k int, ownerID uint) (*QueryResult, error)
	Ready() bool
}
