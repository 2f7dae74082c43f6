package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/physiohub/rag-backend/internal/logger"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"
)

// PDFExtractor PDF文件提取器
// 逐页执行三层策略：原生文本、表格、OCR兜底，由置信度启发式决定是否OCR
type PDFExtractor struct {
	ocr OCREngine
}

// NewPDFExtractor 创建PDF提取器
func NewPDFExtractor(ocr OCREngine) *PDFExtractor {
	if ocr == nil {
		ocr = &NoopOCREngine{}
	}
	return &PDFExtractor{ocr: ocr}
}

func (p *PDFExtractor) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

// pdfPage 解析后的单页内容
type pdfPage struct {
	number     int
	nativeText string
	tables     []string // 渲染为行文本的表格
	images     [][]byte // PNG编码的嵌入图片
}

func (p *PDFExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("解析PDF失败: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("获取PDF页数失败: %w", err)
	}

	pages := make([]pdfPage, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			logger.Warn("skip unreadable pdf page", zap.Int("page", i), zap.Error(err))
			continue
		}
		pages = append(pages, p.readPage(page, i))
	}

	return p.assemblePages(ctx, pages), nil
}

// readPage 读取单页的原生文本、表格和嵌入图片
func (p *PDFExtractor) readPage(page *model.PdfPage, pageNo int) pdfPage {
	result := pdfPage{number: pageNo}

	ex, err := extractor.New(page)
	if err != nil {
		logger.Warn("pdf extractor init failed", zap.Int("page", pageNo), zap.Error(err))
		return result
	}

	pageText, _, _, err := ex.ExtractPageText()
	if err != nil {
		logger.Warn("pdf text extraction failed", zap.Int("page", pageNo), zap.Error(err))
	} else {
		result.nativeText = pageText.Text()
		for _, table := range pageText.Tables() {
			if rendered := renderTable(table); rendered != "" {
				result.tables = append(result.tables, rendered)
			}
		}
	}

	result.images = p.encodePageImages(ex, pageNo)
	return result
}

// renderTable 把表格渲染为 "cell | cell | cell" 的行文本
func renderTable(table extractor.TextTable) string {
	var rows []string
	for _, row := range table.Cells {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, strings.TrimSpace(cell.Text))
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	return strings.TrimSpace(strings.Join(rows, "\n"))
}

// encodePageImages 提取页面嵌入图片并编码为PNG，供OCR使用
func (p *PDFExtractor) encodePageImages(ex *extractor.Extractor, pageNo int) [][]byte {
	pageImages, err := ex.ExtractPageImages(nil)
	if err != nil {
		logger.Warn("pdf image extraction failed", zap.Int("page", pageNo), zap.Error(err))
		return nil
	}

	var encoded [][]byte
	for _, mark := range pageImages.Images {
		goImage, err := mark.Image.ToGoImage()
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, goImage); err != nil {
			continue
		}
		encoded = append(encoded, buf.Bytes())
	}
	return encoded
}

// assemblePages 按页组装输出，页间以空行分隔
func (p *PDFExtractor) assemblePages(ctx context.Context, pages []pdfPage) string {
	var pageOutputs []string
	for _, page := range pages {
		if out := p.assemblePage(ctx, page); strings.TrimSpace(out) != "" {
			pageOutputs = append(pageOutputs, out)
		}
	}
	return strings.Join(pageOutputs, "\n\n")
}

// assemblePage 组装单页输出
// 固定顺序：表格块、OCR文本、原生文本——结构化内容始终排在自由文本之前
func (p *PDFExtractor) assemblePage(ctx context.Context, page pdfPage) string {
	confidence := TextConfidence(page.nativeText)

	logger.Info("pdf page analyzed",
		zap.Int("page", page.number),
		zap.Float64("confidence", confidence),
		zap.Int("images", len(page.images)),
		zap.Int("tables", len(page.tables)))

	var parts []string

	for _, table := range page.tables {
		parts = append(parts, fmt.Sprintf("--- TABLE Page %d ---\n%s", page.number, table))
	}

	if ShouldRunOCR(confidence, len(page.images), len(page.tables)) {
		logger.Warn("ocr triggered", zap.Int("page", page.number))
		if ocrText := p.ocrPageImages(ctx, page); strings.TrimSpace(ocrText) != "" {
			parts = append(parts, fmt.Sprintf("--- OCR Page %d ---\n%s", page.number, ocrText))
		}
	}

	if strings.TrimSpace(page.nativeText) != "" {
		parts = append(parts, page.nativeText)
	}

	return strings.Join(parts, "\n")
}

// ocrPageImages 对页面全部嵌入图片执行OCR并拼接结果
// 单张图片识别失败只记录日志，不中断整页提取
func (p *PDFExtractor) ocrPageImages(ctx context.Context, page pdfPage) string {
	if !p.ocr.Ready() {
		logger.Warn("ocr engine not configured, skipping", zap.Int("page", page.number))
		return ""
	}

	var texts []string
	for _, image := range page.images {
		text, err := p.ocr.Recognize(ctx, image)
		if err != nil {
			logger.Warn("ocr recognition failed", zap.Int("page", page.number), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}
