package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/physiohub/rag-backend/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOCR 测试用OCR引擎，按预置表返回识别文本
type stubOCR struct {
	text  string
	err   error
	ready bool
	calls int
}

func (s *stubOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	s.calls++
	return s.text, s.err
}

func (s *stubOCR) Ready() bool { return s.ready }

func TestExtractText_PlainText(t *testing.T) {
	manager := NewExtractorManager(nil)

	text, err := manager.ExtractText(context.Background(), []byte("knee ROM exercises\n"), "notes.txt")
	require.NoError(t, err)
	// 提取后立即规范化：缩写已展开
	assert.Equal(t, "knee Range of Motion exercises", text)
}

func TestExtractText_CSV(t *testing.T) {
	manager := NewExtractorManager(nil)

	text, err := manager.ExtractText(context.Background(), []byte("date,score\n2024-01-02,7\n"), "scores.csv")
	require.NoError(t, err)
	assert.Contains(t, text, "date,score")
}

func TestExtractText_InvalidUTF8Dropped(t *testing.T) {
	manager := NewExtractorManager(nil)

	text, err := manager.ExtractText(context.Background(), []byte{'o', 'k', 0xff, 0xfe, '!'}, "raw.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok!", text)
}

func TestExtractText_UnsupportedFormat(t *testing.T) {
	manager := NewExtractorManager(nil)

	_, err := manager.ExtractText(context.Background(), []byte("data"), "archive.zip")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedFormat))
}

func TestExtractText_EmptyContent(t *testing.T) {
	manager := NewExtractorManager(nil)

	_, err := manager.ExtractText(context.Background(), []byte("   \n  "), "empty.txt")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExtractionFailed))
}

func TestSupportedFormats(t *testing.T) {
	manager := NewExtractorManager(nil)
	assert.ElementsMatch(t, []string{".pdf", ".docx", ".txt", ".csv"}, manager.SupportedFormats())
}

func TestAssemblePage_OrderTablesOCRNative(t *testing.T) {
	ocr := &stubOCR{text: "scanned paragraph", ready: true}
	p := NewPDFExtractor(ocr)

	// 低置信度 + 嵌入图片 + 无表格的页面触发OCR
	scanned := pdfPage{
		number:     2,
		nativeText: "a b c",
		images:     [][]byte{{0x1}},
	}
	out := p.assemblePage(context.Background(), scanned)
	assert.Contains(t, out, "--- OCR Page 2 ---\nscanned paragraph")
	assert.Contains(t, out, "a b c")
	assert.Equal(t, 1, ocr.calls)

	// 有表格的页面：表格块在前，OCR被跳过
	withTable := pdfPage{
		number:     3,
		nativeText: "x y",
		tables:     []string{"joint | left | right\nknee | 90 | 85"},
		images:     [][]byte{{0x1}},
	}
	out = p.assemblePage(context.Background(), withTable)
	assert.Contains(t, out, "--- TABLE Page 3 ---\njoint | left | right")
	assert.NotContains(t, out, "--- OCR")

	tablePos := strings.Index(out, "--- TABLE")
	nativePos := strings.Index(out, "x y")
	assert.True(t, tablePos < nativePos, "表格块必须排在原生文本之前")
}

func TestAssemblePage_OCRFailureNotFatal(t *testing.T) {
	ocr := &stubOCR{err: errors.New("ocr service down"), ready: true}
	p := NewPDFExtractor(ocr)

	page := pdfPage{
		number:     1,
		nativeText: "a b",
		images:     [][]byte{{0x1}, {0x2}},
	}
	out := p.assemblePage(context.Background(), page)
	// 识别失败只丢OCR块，原生文本仍然保留
	assert.NotContains(t, out, "--- OCR")
	assert.Contains(t, out, "a b")
	assert.Equal(t, 2, ocr.calls)
}

func TestAssemblePage_OCRSkippedWhenEngineNotReady(t *testing.T) {
	ocr := &stubOCR{text: "should not appear", ready: false}
	p := NewPDFExtractor(ocr)

	page := pdfPage{
		number:     1,
		nativeText: "a b",
		images:     [][]byte{{0x1}},
	}
	out := p.assemblePage(context.Background(), page)
	assert.NotContains(t, out, "should not appear")
	assert.Zero(t, ocr.calls)
}

func TestAssemblePages_SkipsEmptyAndJoins(t *testing.T) {
	p := NewPDFExtractor(nil)

	out := p.assemblePages(context.Background(), []pdfPage{
		{number: 1, nativeText: "first page text"},
		{number: 2},
		{number: 3, nativeText: "third page text"},
	})
	assert.Equal(t, "first page text\n\nthird page text", out)
}
