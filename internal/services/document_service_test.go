package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	apperrors "github.com/physiohub/rag-backend/internal/errors"
	"github.com/physiohub/rag-backend/internal/knowledge"
	"github.com/physiohub/rag-backend/internal/models"
	"github.com/physiohub/rag-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo 内存文档仓库，模拟唯一索引语义
type fakeRepo struct {
	byHash      map[string]*models.Document
	nextID      uint
	createCalls int
	failCreate  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byHash: make(map[string]*models.Document), nextID: 1}
}

func (r *fakeRepo) key(ownerID uint, hash string) string {
	return fmt.Sprintf("%d:%s", ownerID, hash)
}

func (r *fakeRepo) FindByHash(ctx context.Context, ownerID uint, contentHash string) (*models.Document, error) {
	if doc, ok := r.byHash[r.key(ownerID, contentHash)]; ok {
		return doc, nil
	}
	return nil, nil
}

func (r *fakeRepo) Create(ctx context.Context, doc *models.Document) error {
	r.createCalls++
	if r.failCreate != nil {
		return r.failCreate
	}
	if _, ok := r.byHash[r.key(doc.OwnerID, doc.ContentHash)]; ok {
		return repository.ErrDuplicateDocument
	}
	doc.DocumentID = r.nextID
	r.nextID++
	stored := *doc
	r.byHash[r.key(doc.OwnerID, doc.ContentHash)] = &stored
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, ownerID uint, documentID uint) error {
	for key, doc := range r.byHash {
		if doc.OwnerID == ownerID && doc.DocumentID == documentID {
			delete(r.byHash, key)
		}
	}
	return nil
}

func (r *fakeRepo) LoadFullText(ctx context.Context, ownerID uint, documentID *uint) (string, error) {
	var parts []string
	for _, doc := range r.byHash {
		if doc.OwnerID != ownerID {
			continue
		}
		if documentID != nil && doc.DocumentID != *documentID {
			continue
		}
		parts = append(parts, doc.Content)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")), nil
}

// fakeEmbedder 返回固定向量并记录调用次数
type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }
func (f *fakeEmbedder) Ready() bool     { return true }

// fakeStore 记录写入批次
type fakeStore struct {
	batches []knowledge.UpsertBatch
	err     error
}

func (f *fakeStore) Upsert(ctx context.Context, collection string, batch knowledge.UpsertBatch) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, collection string, vector []float32, k int, ownerID uint) (*knowledge.QueryResult, error) {
	return &knowledge.QueryResult{}, nil
}

func (f *fakeStore) Ready() bool { return true }

func newTestDocumentService(repo repository.DocumentRepository, embedder knowledge.Embedder, store knowledge.VectorStore) *DocumentService {
	return NewDocumentService(
		knowledge.NewExtractorManager(nil),
		knowledge.NewChunker(&knowledge.NoopEmbedder{}, 500, 100),
		embedder,
		store,
		repo,
		nil,
		nil,
		"physio_docs",
	)
}

func TestIngestFile_StoresAndIndexes(t *testing.T) {
	repo := newFakeRepo()
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	svc := newTestDocumentService(repo, embedder, store)

	result, err := svc.IngestFile(context.Background(), 1, "notes.txt", []byte("Knee flexion improved after six sessions."))
	require.NoError(t, err)

	assert.False(t, result.AlreadyExists)
	assert.Equal(t, uint(1), result.DocumentID)
	assert.Equal(t, "notes.txt", result.Filename)
	assert.Equal(t, 1, result.TotalChunks)

	require.Len(t, store.batches, 1)
	batch := store.batches[0]
	require.Len(t, batch.IDs, 1)
	// chunk id格式：{document_id}_{块序号}
	assert.Equal(t, "1_0", batch.IDs[0])
	assert.Equal(t, "notes.txt", batch.Metadatas[0].Filename)
	assert.Equal(t, uint(1), batch.Metadatas[0].OwnerID)
}

func TestIngestFile_DuplicateShortCircuits(t *testing.T) {
	repo := newFakeRepo()
	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	svc := newTestDocumentService(repo, embedder, store)

	content := []byte("Shoulder mobility protocol for week three.")
	first, err := svc.IngestFile(context.Background(), 1, "v1.txt", content)
	require.NoError(t, err)

	embedCallsAfterFirst := embedder.calls
	batchesAfterFirst := len(store.batches)

	// 同一内容换文件名重传：按内容哈希去重
	second, err := svc.IngestFile(context.Background(), 1, "v2.txt", content)
	require.NoError(t, err)

	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, "v1.txt", second.Filename, "返回首次入库的记录")
	assert.Equal(t, embedCallsAfterFirst, embedder.calls, "重复内容不重新向量化")
	assert.Equal(t, batchesAfterFirst, len(store.batches), "重复内容不重复写索引")
}

func TestIngestFile_DifferentOwnersNotDeduped(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestDocumentService(repo, &fakeEmbedder{}, &fakeStore{})

	content := []byte("Gait training plan for the next month.")
	first, err := svc.IngestFile(context.Background(), 1, "plan.txt", content)
	require.NoError(t, err)
	second, err := svc.IngestFile(context.Background(), 2, "plan.txt", content)
	require.NoError(t, err)

	// 去重作用域是单个用户
	assert.False(t, second.AlreadyExists)
	assert.NotEqual(t, first.DocumentID, second.DocumentID)
}

func TestIngestFile_CreateRaceResolvesToExisting(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestDocumentService(repo, &fakeEmbedder{}, &fakeStore{})

	content := []byte("Electrotherapy session notes.")
	// 预置同内容记录，并让Create报唯一冲突，模拟并发竞态
	text, err := knowledge.NewExtractorManager(nil).ExtractText(context.Background(), content, "a.txt")
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &models.Document{
		OwnerID:     1,
		Filename:    "a.txt",
		Content:     text,
		ContentHash: contentHash(text),
	}))

	// FindByHash先命中，走正常去重路径
	result, err := svc.IngestFile(context.Background(), 1, "b.txt", content)
	require.NoError(t, err)
	assert.True(t, result.AlreadyExists)
}

func TestIngestFile_EmbedFailureNoUpsert(t *testing.T) {
	repo := newFakeRepo()
	embedder := &fakeEmbedder{err: apperrors.NewEmbeddingServiceError(errors.New("quota exceeded"))}
	store := &fakeStore{}
	svc := newTestDocumentService(repo, embedder, store)

	content := []byte("Some treatment notes for the patient.")
	_, err := svc.IngestFile(context.Background(), 1, "notes.txt", content)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmbeddingService))
	assert.Empty(t, store.batches, "向量化失败不能写索引")
	assert.Equal(t, 1, repo.createCalls)

	// 失败的记录已回滚：重传同内容是一次全新入库，而不是被去重短路
	embedder.err = nil
	result, err := svc.IngestFile(context.Background(), 1, "notes.txt", content)
	require.NoError(t, err)
	assert.False(t, result.AlreadyExists)
	assert.NotEmpty(t, store.batches)
}

func TestIngestFile_UnsupportedFormat(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestDocumentService(repo, &fakeEmbedder{}, &fakeStore{})

	_, err := svc.IngestFile(context.Background(), 1, "archive.zip", []byte("binary"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedFormat))
	assert.Zero(t, repo.createCalls)
}
