package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemoryStore(t *testing.T) VectorStore {
	t.Helper()
	store := NewMemoryVectorStore()

	err := store.Upsert(context.Background(), "physio_docs", UpsertBatch{
		IDs:   []string{"1_0", "1_1", "2_0"},
		Texts: []string{"knee flexion exercises", "shoulder mobility", "billing details"},
		Vectors: [][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
		Metadatas: []ChunkMetadata{
			{Filename: "knee.pdf", OwnerID: 1},
			{Filename: "knee.pdf", OwnerID: 1},
			{Filename: "billing.pdf", OwnerID: 2},
		},
	})
	require.NoError(t, err)
	return store
}

func TestMemoryStore_QueryRanksByDistance(t *testing.T) {
	store := seedMemoryStore(t)

	result, err := store.Query(context.Background(), "physio_docs", []float32{1, 0, 0}, 5, 1)
	require.NoError(t, err)
	require.Len(t, result.IDs, 2)

	// 与查询向量同向的记录必须排第一，距离约等于0
	assert.Equal(t, "1_0", result.IDs[0])
	assert.InDelta(t, 0.0, result.Distances[0], 1e-9)
	assert.LessOrEqual(t, result.Distances[0], result.Distances[1])
}

func TestMemoryStore_OwnerIsolation(t *testing.T) {
	store := seedMemoryStore(t)

	// owner 2的查询无论k多大都不能看到owner 1的记录
	result, err := store.Query(context.Background(), "physio_docs", []float32{0, 0, 1}, 100, 2)
	require.NoError(t, err)
	require.Len(t, result.IDs, 1)
	assert.Equal(t, "2_0", result.IDs[0])
	assert.Equal(t, "billing.pdf", result.Metadatas[0].Filename)
}

func TestMemoryStore_QueryTruncatesToK(t *testing.T) {
	store := seedMemoryStore(t)

	result, err := store.Query(context.Background(), "physio_docs", []float32{1, 1, 0}, 1, 1)
	require.NoError(t, err)
	assert.Len(t, result.IDs, 1)
}

func TestMemoryStore_UpsertOverwritesSameID(t *testing.T) {
	store := seedMemoryStore(t)

	err := store.Upsert(context.Background(), "physio_docs", UpsertBatch{
		IDs:       []string{"1_0"},
		Texts:     []string{"updated content"},
		Vectors:   [][]float32{{1, 0, 0}},
		Metadatas: []ChunkMetadata{{Filename: "knee-v2.pdf", OwnerID: 1}},
	})
	require.NoError(t, err)

	result, err := store.Query(context.Background(), "physio_docs", []float32{1, 0, 0}, 5, 1)
	require.NoError(t, err)
	require.NotEmpty(t, result.IDs)
	assert.Equal(t, "1_0", result.IDs[0])
	assert.Equal(t, "updated content", result.Texts[0])
	assert.Equal(t, "knee-v2.pdf", result.Metadatas[0].Filename)
}

func TestMemoryStore_EmptyCollection(t *testing.T) {
	store := NewMemoryVectorStore()

	result, err := store.Query(context.Background(), "physio_docs", []float32{1, 0, 0}, 5, 1)
	require.NoError(t, err)
	assert.Empty(t, result.IDs)
}

func TestMemoryStore_BatchLengthMismatch(t *testing.T) {
	store := NewMemoryVectorStore()

	err := store.Upsert(context.Background(), "physio_docs", UpsertBatch{
		IDs:     []string{"1_0", "1_1"},
		Texts:   []string{"only one"},
		Vectors: [][]float32{{1}},
	})
	assert.Error(t, err)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2.0, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// 维度不一致和零向量返回最大距离
	assert.Equal(t, 1.0, CosineDistance([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 1.0, CosineDistance(nil, nil))
}
