package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	apperrors "github.com/physiohub/rag-backend/internal/errors"
	"github.com/physiohub/rag-backend/internal/logger"
	"go.uber.org/zap"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	VectorSize int
	Distance   string
	Database   string
	UseTLS     bool
	Timeout    time.Duration
}

type milvusVectorStore struct {
	milvusClient client.Client
	vectorSize   int
	distance     string
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusVectorStore{
		milvusClient: milvusClient,
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
	}, nil
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context, name string) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "document chunk vectors",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "owner_id",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "filename",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.vectorSize),
				},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	var index entity.Index
	index, err = entity.NewIndexHNSW(entity.MetricType(s.distance), 8, 64)
	if err != nil {
		// HNSW失败时退回IVF_FLAT
		index, err = entity.NewIndexIvfFlat(entity.MetricType(s.distance), 128)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	if err := s.milvusClient.CreateIndex(ctx, name, "vector", index, false); err != nil {
		logger.Warn("failed to create milvus index", zap.String("collection", name), zap.Error(err))
	}

	if err := s.milvusClient.LoadCollection(ctx, name, false); err != nil {
		logger.Warn("failed to load milvus collection", zap.String("collection", name), zap.Error(err))
	}

	return nil
}

func (s *milvusVectorStore) Upsert(ctx context.Context, collection string, batch UpsertBatch) error {
	if len(batch.IDs) != len(batch.Texts) ||
		len(batch.IDs) != len(batch.Vectors) ||
		len(batch.IDs) != len(batch.Metadatas) {
		return apperrors.NewIndexQueryError(fmt.Errorf("upsert batch length mismatch"))
	}
	if len(batch.IDs) == 0 {
		return nil
	}

	if err := s.ensureCollection(ctx, collection); err != nil {
		return apperrors.NewIndexQueryError(err)
	}

	ownerIDs := make([]int64, len(batch.IDs))
	filenames := make([]string, len(batch.IDs))
	for i, meta := range batch.Metadatas {
		ownerIDs[i] = int64(meta.OwnerID)
		filenames[i] = meta.Filename
	}

	idColumn := entity.NewColumnVarChar("id", batch.IDs)
	ownerColumn := entity.NewColumnInt64("owner_id", ownerIDs)
	filenameColumn := entity.NewColumnVarChar("filename", filenames)
	contentColumn := entity.NewColumnVarChar("content", batch.Texts)
	vectorColumn := entity.NewColumnFloatVector("vector", s.vectorSize, batch.Vectors)

	if _, err := s.milvusClient.Upsert(ctx, collection, "", idColumn, ownerColumn, filenameColumn, contentColumn, vectorColumn); err != nil {
		return apperrors.NewIndexQueryError(fmt.Errorf("milvus upsert failed: %w", err))
	}

	if err := s.milvusClient.Flush(ctx, collection, false); err != nil {
		logger.Warn("failed to flush milvus collection", zap.String("collection", collection), zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) Query(ctx context.Context, collection string, vector []float32, k int, ownerID uint) (*QueryResult, error) {
	if len(vector) == 0 {
		return &QueryResult{}, nil
	}
	if k <= 0 {
		k = 5
	}

	if err := s.ensureCollection(ctx, collection); err != nil {
		return nil, apperrors.NewIndexQueryError(err)
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	// owner过滤下推到索引层，杜绝跨用户泄漏
	expr := fmt.Sprintf("owner_id == %d", ownerID)

	searchResults, err := s.milvusClient.Search(
		ctx,
		collection,
		[]string{},
		expr,
		[]string{"filename", "content", "owner_id"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.MetricType(s.distance),
		k,
		sp,
	)
	if err != nil {
		return nil, apperrors.NewIndexQueryError(fmt.Errorf("milvus search failed: %w", err))
	}
	if len(searchResults) == 0 {
		return &QueryResult{}, nil
	}
	if searchResults[0].Err != nil {
		return nil, apperrors.NewIndexQueryError(fmt.Errorf("milvus search error: %w", searchResults[0].Err))
	}

	result := searchResults[0]
	out := &QueryResult{}
	if result.ResultCount == 0 {
		return out, nil
	}

	var ids []string
	if idCol, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = idCol.Data()
	}

	var filenames, contents []string
	var owners []int64
	for _, field := range result.Fields {
		switch field.Name() {
		case "filename":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				filenames = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		case "owner_id":
			if col, ok := field.(*entity.ColumnInt64); ok {
				owners = col.Data()
			}
		}
	}

	for i := 0; i < result.ResultCount; i++ {
		id, filename, content := "", "", ""
		var owner int64
		if i < len(ids) {
			id = ids[i]
		}
		if i < len(filenames) {
			filename = filenames[i]
		}
		if i < len(contents) {
			content = contents[i]
		}
		if i < len(owners) {
			owner = owners[i]
		}

		out.IDs = append(out.IDs, id)
		out.Texts = append(out.Texts, content)
		out.Metadatas = append(out.Metadatas, ChunkMetadata{Filename: filename, OwnerID: uint(owner)})
		out.Distances = append(out.Distances, s.toDistance(float64(result.Scores[i])))
	}
	return out, nil
}

// toDistance 将Milvus返回的得分统一为余弦距离（越小越近）
// COSINE/IP指标返回相似度，需要取1-score；L2本身就是距离
func (s *milvusVectorStore) toDistance(score float64) float64 {
	switch s.distance {
	case "L2":
		return score
	default:
		return 1.0 - score
	}
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
