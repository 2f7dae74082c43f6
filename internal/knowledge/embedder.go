package knowledge

import (
	"context"
	"errors"
	"strings"
	"sync"

	apperrors "github.com/physiohub/rag-backend/internal/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Embedder 定义文本向量化接口
// 文档分块与查询必须走同一个实现：跨向量空间的余弦距离没有意义
type Embedder interface {
	// EmbedMany 批量向量化，结果与输入同序同长；任一条失败整批失败
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedOne 单条向量化（查询路径）
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    sync.Mutex
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器
func NewOpenAIEmbedder(apiKey, model string) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	client := openai.NewClient(apiKey)
	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}

	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dims,
	}
}

func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperrors.NewEmbeddingServiceError(errors.New("no texts to embed"))
	}
	if e.client == nil {
		return nil, apperrors.NewEmbeddingServiceError(errors.New("openai client not initialized"))
	}

	e.limiter.Lock()
	defer e.limiter.Unlock()

	// 整批一次请求：部分成功不可接受，否则索引里会悄悄缺向量
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingServiceError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewEmbeddingServiceError(errors.New("embedding response count mismatch"))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		copy(vector, data.Embedding)
		// OpenAI按Index返回，不保证顺序
		vectors[data.Index] = vector
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewEmbeddingServiceError(errors.New("text is empty"))
	}
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
