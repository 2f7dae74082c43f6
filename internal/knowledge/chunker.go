package knowledge

import (
	"context"
	"sort"
	"strings"
)

// Chunk 表示分块后的文本结构
type Chunk struct {
	Index int
	Text  string
}

// 递归切分的分隔符优先级，从粗到细，最后的空串表示按字符窗口切
var recursiveSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// semanticBreakpointPercentile 语义切分的断点分位数
// 相邻句向量余弦距离超过该分位数视为话题切换
const semanticBreakpointPercentile = 0.95

// Chunker 两阶段文本分块器
// 第一阶段按句向量相似度聚成语义段，第二阶段对超长段做递归切分
type Chunker struct {
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
}

// NewChunker 创建分块器
func NewChunker(embedder Embedder, chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// Split 将文本切分为多个chunk，顺序与原文一致
// 语义段超过chunkSize时落入递归切分兜底，块长不超过chunkSize
func (c *Chunker) Split(ctx context.Context, text string) ([]Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	segments, err := c.semanticSegments(ctx, text)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, segment := range segments {
		if len([]rune(segment)) <= c.chunkSize {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: segment})
			continue
		}
		for _, piece := range c.recursiveSplit(segment, recursiveSeparators) {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: piece})
		}
	}
	return chunks, nil
}

// semanticSegments 第一阶段：按话题边界聚句成段
// 句子太少或向量服务不可用时退化为单个段，交给递归切分处理
func (c *Chunker) semanticSegments(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	if len(sentences) < 3 || c.embedder == nil || !c.embedder.Ready() {
		return []string{text}, nil
	}

	vectors, err := c.embedder.EmbedMany(ctx, sentences)
	if err != nil {
		return nil, err
	}

	// 相邻句向量距离，断点取95分位
	distances := make([]float64, len(vectors)-1)
	for i := 0; i < len(vectors)-1; i++ {
		distances[i] = CosineDistance(vectors[i], vectors[i+1])
	}
	threshold := percentile(distances, semanticBreakpointPercentile)

	var segments []string
	var current []string
	for i, sentence := range sentences {
		current = append(current, sentence)
		if i < len(distances) && distances[i] > threshold {
			segments = append(segments, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		segments = append(segments, strings.Join(current, " "))
	}
	return segments, nil
}

// splitSentences 按句末标点切句
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			// 句末标点后跟空白才算句子结束，避免切断小数和缩写序列
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// percentile 计算有限样本的分位数值
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// recursiveSplit 第二阶段：按分隔符优先级递归切分超长段
// 选用能把片段切进尺寸上限的最粗分隔符，相邻片段间携带overlap上下文
func (c *Chunker) recursiveSplit(text string, separators []string) []string {
	if len(separators) == 0 {
		return []string{text}
	}
	separator := separators[0]
	rest := separators[1:]

	// 字符级兜底：固定步长滑动窗口，保证任何输入都能终止
	if separator == "" {
		return c.windowSplit(text)
	}

	parts := strings.Split(text, separator)
	if len(parts) == 1 {
		// 该分隔符切不动，下沉到更细的分隔符
		return c.recursiveSplit(text, rest)
	}

	var result []string
	var pending []string
	pendingLen := 0

	flush := func() {
		if len(pending) == 0 {
			return
		}
		merged := strings.TrimSpace(strings.Join(pending, separator))
		if merged != "" {
			result = append(result, merged)
		}
		// 保留尾部片段作为下一块的overlap上下文
		for pendingLen > c.chunkOverlap && len(pending) > 0 {
			pendingLen -= len([]rune(pending[0])) + len(separator)
			pending = pending[1:]
		}
	}

	for _, part := range parts {
		partLen := len([]rune(part))
		if partLen > c.chunkSize {
			flush()
			pending = nil
			pendingLen = 0
			result = append(result, c.recursiveSplit(part, rest)...)
			continue
		}
		if pendingLen+partLen+len(separator) > c.chunkSize && len(pending) > 0 {
			flush()
			// flush后pending保留的是overlap部分，重新累计长度
			pendingLen = 0
			for _, kept := range pending {
				pendingLen += len([]rune(kept)) + len(separator)
			}
			// overlap加上新片段仍超限时继续丢弃头部，保证块长不破上限
			for len(pending) > 0 && pendingLen+partLen+len(separator) > c.chunkSize {
				pendingLen -= len([]rune(pending[0])) + len(separator)
				pending = pending[1:]
			}
		}
		pending = append(pending, part)
		pendingLen += partLen + len(separator)
	}
	if len(pending) > 0 {
		merged := strings.TrimSpace(strings.Join(pending, separator))
		if merged != "" {
			result = append(result, merged)
		}
	}
	return result
}

// windowSplit 按固定窗口切分无法再细分的文本
func (c *Chunker) windowSplit(text string) []string {
	runes := []rune(text)
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = c.chunkSize
	}

	var pieces []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return pieces
}
