package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/physiohub/rag-backend/internal/errors"
	"github.com/unidoc/unioffice/document"
)

// Extractor 文件文本提取器接口
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (string, error)
	Supports(filename string) bool
}

// TextExtractor 纯文本提取器（txt/csv按行读取，无分页概念）
type TextExtractor struct{}

func (p *TextExtractor) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".txt" || ext == ".csv"
}

func (p *TextExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	// 按UTF-8解码，非法字节直接丢弃
	return string(bytes.ToValidUTF8(data, nil)), nil
}

// WordExtractor Word文档提取器
type WordExtractor struct{}

func (p *WordExtractor) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".docx"
}

func (p *WordExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("解析Word文档失败: %w", err)
	}
	defer doc.Close()

	// 按段落顺序拼接全部文本
	var textBuilder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// ExtractorManager 文本提取管理器
// 按扩展名分发到具体提取器，统一做空结果校验和文本规范化
type ExtractorManager struct {
	extractors []Extractor
}

// NewExtractorManager 创建提取管理器
func NewExtractorManager(ocr OCREngine) *ExtractorManager {
	if ocr == nil {
		ocr = &NoopOCREngine{}
	}
	return &ExtractorManager{
		extractors: []Extractor{
			NewPDFExtractor(ocr),
			&WordExtractor{},
			&TextExtractor{},
		},
	}
}

// ExtractText 提取并规范化文件文本
// 未知扩展名返回UNSUPPORTED_FORMAT，所有策略都拿不到文本返回EXTRACTION_FAILED
func (m *ExtractorManager) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	for _, extractor := range m.extractors {
		if !extractor.Supports(filename) {
			continue
		}

		raw, err := extractor.Extract(ctx, data, filename)
		if err != nil {
			if apperrors.IsAppError(err) {
				return "", err
			}
			return "", apperrors.NewExtractionFailedError(filename).WithCause(err)
		}
		if strings.TrimSpace(raw) == "" {
			return "", apperrors.NewExtractionFailedError(filename)
		}

		return NormalizeText(raw), nil
	}

	return "", apperrors.NewUnsupportedFormatError(filename)
}

// SupportedFormats 返回支持的扩展名列表
func (m *ExtractorManager) SupportedFormats() []string {
	return []string{".pdf", ".docx", ".txt", ".csv"}
}
