package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder 测试用向量服务，按预置表返回句向量
type stubEmbedder struct {
	vectors map[string][]float32
	ready   bool
	calls   int
}

func (s *stubEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	result := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := s.vectors[text]; ok {
			result[i] = v
		} else {
			result[i] = []float32{1, 0}
		}
	}
	return result, nil
}

func (s *stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *stubEmbedder) Dimensions() int { return 2 }
func (s *stubEmbedder) Ready() bool     { return s.ready }

func TestChunkerSplit_EmptyText(t *testing.T) {
	chunker := NewChunker(&NoopEmbedder{}, 500, 100)
	chunks, err := chunker.Split(context.Background(), "   \n  ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkerSplit_ShortTextSingleChunk(t *testing.T) {
	chunker := NewChunker(&NoopEmbedder{}, 500, 100)
	chunks, err := chunker.Split(context.Background(), "Knee flexion improved after therapy.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Knee flexion improved after therapy.", chunks[0].Text)
}

func TestChunkerSplit_RespectsSizeBound(t *testing.T) {
	chunker := NewChunker(&NoopEmbedder{}, 100, 20)

	var builder strings.Builder
	for i := 0; i < 60; i++ {
		builder.WriteString("The patient continued the prescribed exercise program. ")
	}

	chunks, err := chunker.Split(context.Background(), builder.String())
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index, "索引必须连续递增")
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 100, "块长不能超过上限")
		assert.NotEmpty(t, strings.TrimSpace(chunk.Text))
	}
}

func TestChunkerSplit_OverlapYieldsToLargePart(t *testing.T) {
	chunker := NewChunker(&NoopEmbedder{}, 500, 100)

	// 两个短句后接近上限的长句：overlap尾部放不下时必须让位，不能把块撑破
	text := strings.Repeat("a", 48) + ". " + strings.Repeat("b", 48) + ". " + strings.Repeat("c", 460)
	chunks, err := chunker.Split(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 500, "块长不能超过上限")
	}

	// 长句所在块不得把前一块整段复制为前缀
	last := chunks[len(chunks)-1].Text
	assert.Contains(t, last, strings.Repeat("c", 460))
	assert.NotContains(t, last, strings.Repeat("a", 48))
}

func TestChunkerSplit_PreservesOrder(t *testing.T) {
	chunker := NewChunker(&NoopEmbedder{}, 80, 0)

	text := "alpha section one.\n\nbravo section two.\n\ncharlie section three.\n\ndelta section four.\n\necho section five."
	chunks, err := chunker.Split(context.Background(), text)
	require.NoError(t, err)

	joined := ""
	for _, chunk := range chunks {
		joined += chunk.Text + " "
	}
	// 首词顺序与原文一致
	posAlpha := strings.Index(joined, "alpha")
	posCharlie := strings.Index(joined, "charlie")
	posEcho := strings.Index(joined, "echo")
	assert.True(t, posAlpha < posCharlie && posCharlie < posEcho)
}

func TestChunkerSplit_OverlapCarriesContext(t *testing.T) {
	chunker := NewChunker(&NoopEmbedder{}, 60, 20)

	words := make([]string, 40)
	for i := range words {
		words[i] = "word" + string(rune('a'+i%26))
	}
	text := strings.Join(words, " ")

	chunks, err := chunker.Split(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// 相邻块应共享overlap部分的词
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		lastWord := prevWords[len(prevWords)-1]
		assert.Contains(t, chunks[i].Text, lastWord,
			"后一块应以前一块的尾部作为上下文")
	}
}

func TestChunkerSplit_NoSeparatorsTerminates(t *testing.T) {
	chunker := NewChunker(&NoopEmbedder{}, 50, 10)

	// 无任何分隔符的长文本走字符窗口兜底
	text := strings.Repeat("x", 500)
	chunks, err := chunker.Split(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 50)
	}
}

func TestChunkerSplit_SemanticBreakpoint(t *testing.T) {
	embedder := &stubEmbedder{
		ready: true,
		vectors: map[string][]float32{
			"The knee shows good progress.":       {1, 0},
			"Flexion reached ninety degrees.":     {1, 0},
			"Billing code updated in the system.": {0, 1},
			"Invoice sent to the insurer.":        {0, 1},
		},
	}
	chunker := NewChunker(embedder, 500, 100)

	text := "The knee shows good progress. Flexion reached ninety degrees. Billing code updated in the system. Invoice sent to the insurer."
	chunks, err := chunker.Split(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, chunks, 2, "话题切换处应产生段边界")

	assert.Contains(t, chunks[0].Text, "knee")
	assert.Contains(t, chunks[0].Text, "ninety degrees")
	assert.Contains(t, chunks[1].Text, "Billing")
	assert.Contains(t, chunks[1].Text, "insurer")
	assert.Equal(t, 1, embedder.calls)
}

func TestChunkerSplit_EmbedderDownFallsBack(t *testing.T) {
	embedder := &stubEmbedder{ready: false}
	chunker := NewChunker(embedder, 500, 100)

	text := "First sentence here. Second sentence there. Third sentence somewhere. Fourth one too."
	chunks, err := chunker.Split(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Zero(t, embedder.calls, "向量服务不可用时不应发起调用")
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("First one. Second one! Third one? Trailing fragment")
	require.Len(t, sentences, 4)
	assert.Equal(t, "First one.", sentences[0])
	assert.Equal(t, "Second one!", sentences[1])
	assert.Equal(t, "Third one?", sentences[2])
	assert.Equal(t, "Trailing fragment", sentences[3])
}

func TestSplitSentences_DecimalNotSplit(t *testing.T) {
	sentences := splitSentences("Temperature was 37.5 degrees. Next reading tomorrow.")
	require.Len(t, sentences, 2)
	assert.Equal(t, "Temperature was 37.5 degrees.", sentences[0])
}
