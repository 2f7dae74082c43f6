package knowledge

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/physiohub/rag-backend/internal/errors"
	"github.com/physiohub/rag-backend/internal/logger"
	"go.uber.org/zap"
)

// NotAvailableAnswer 检索不到相关内容时的固定回答
// 这是对外契约，其他组件会对该字符串做精确匹配，不可改动措辞
const NotAvailableAnswer = "Not available in the document."

// DefaultTopK 默认检索条数
const DefaultTopK = 5

// Snippet 单条检索片段，Ordinal从1开始，1号即最近邻
type Snippet struct {
	Ordinal  int     `json:"ordinal"`
	ChunkID  string  `json:"chunk_id"`
	Filename string  `json:"filename"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// AskResult 一次问答的完整结果，片段和距离随答案返回供引用审计
type AskResult struct {
	Answer   string    `json:"answer"`
	Snippets []Snippet `json:"snippets"`
}

// Retriever 检索与提示词组装器
// 查询态流水线：向量化问题 -> 查询索引 -> 格式化片段 -> 生成回答
// 每一步失败都以类型化错误中止，本层不做重试
type Retriever struct {
	embedder   Embedder
	store      VectorStore
	generator  Generator
	collection string
	topK       int
}

// NewRetriever 创建检索器
func NewRetriever(embedder Embedder, store VectorStore, generator Generator, collection string, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if collection == "" {
		collection = "physio_docs"
	}
	return &Retriever{
		embedder:   embedder,
		store:      store,
		generator:  generator,
		collection: collection,
		topK:       topK,
	}
}

// Ask 执行一次检索增强问答
func (r *Retriever) Ask(ctx context.Context, ownerID uint, question string, k int) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.NewValidationError("question cannot be empty")
	}
	if k <= 0 {
		k = r.topK
	}

	// 向量化问题：与文档入库共用同一个embedder
	queryVector, err := r.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, err
	}

	// 查询索引
	queryResult, err := r.store.Query(ctx, r.collection, queryVector, k, ownerID)
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.NewIndexQueryError(err)
	}

	snippets := buildSnippets(queryResult)

	// 空索引或完全无命中时直接返回固定回答，不浪费一次生成调用
	// 注意：服务错误永远不会走到这里，绝不能把故障伪装成"查无此文"
	if len(snippets) == 0 {
		logger.Info("no snippets retrieved", zap.Uint("owner_id", ownerID))
		return &AskResult{Answer: NotAvailableAnswer, Snippets: []Snippet{}}, nil
	}

	prompt := buildPrompt(formatSnippets(snippets), question)

	answer, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.NewGenerationError(err)
	}

	return &AskResult{
		Answer:   strings.TrimSpace(answer),
		Snippets: snippets,
	}, nil
}

// buildSnippets 把检索结果转为有序片段，保持距离升序的排名
func buildSnippets(result *QueryResult) []Snippet {
	if result == nil {
		return nil
	}
	snippets := make([]Snippet, 0, len(result.IDs))
	for i := range result.IDs {
		snippet := Snippet{
			Ordinal: i + 1,
			ChunkID: result.IDs[i],
			Text:    result.Texts[i],
		}
		if i < len(result.Metadatas) {
			snippet.Filename = result.Metadatas[i].Filename
		}
		if i < len(result.Distances) {
			snippet.Distance = result.Distances[i]
		}
		if snippet.Filename == "" {
			snippet.Filename = "unknown"
		}
		snippets = append(snippets, snippet)
	}
	return snippets
}

// formatSnippets 将片段渲染为提示词中的SNIPPET块
func formatSnippets(snippets []Snippet) string {
	var builder strings.Builder
	for _, s := range snippets {
		builder.WriteString(fmt.Sprintf(
			"\n=== SNIPPET %d ===\nID: %s\nFILE: %s\nCONTENT: %s\n",
			s.Ordinal, s.ChunkID, s.Filename, s.Text,
		))
	}
	return builder.String()
}

// buildPrompt 组装最终提示词
// 形状固定：接地规则在前，片段块居中，用户问题在最后
// 稳定的提示词结构是跨调用复现模型行为的前提
func buildPrompt(snippetBlock, question string) string {
	return fmt.Sprintf(`You are an intelligent Retrieval-Augmented Generation (RAG) assistant.

Use the document SNIPPETS below to answer the user's question — even if the user
asks for:
- titles
- page count
- highlights
- key insights
- purpose of the document
- structure
- metadata
- summaries
- recommendations
- creative outputs based on document content

You may **infer, reason, summarize, or create suggestions** using the snippet content.

RULES:
1. Always use the information and themes found in the snippets.
2. If the answer is not explicitly written, you may INFER or CREATE it based on the document's content.
3. Only if the snippets are completely irrelevant to the question, reply:
   "%s"
4. Otherwise, ALWAYS give the best possible answer.

SNIPPETS:
%s

User Question: %s

Respond with:
Answer:
`, NotAvailableAnswer, snippetBlock, question)
}
