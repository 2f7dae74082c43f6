package knowledge

import (
	"math"
	"strings"
)

// 置信度权重，三个信号权重之和恰好为1.0
const (
	confidenceLengthWeight  = 0.4 // 文本长度 > 300 字符
	confidenceWordLenWeight = 0.4 // 平均词长 > 3
	confidenceWordCntWeight = 0.2 // 词数 > 80
)

// ocrConfidenceThreshold OCR触发的置信度阈值
const ocrConfidenceThreshold = 0.6

// TextConfidence 计算原生提取文本的可用性置信度，范围[0,1]
// 三个独立二值信号加权求和，用于判断是否需要OCR兜底
func TextConfidence(text string) float64 {
	if text == "" {
		return 0
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	totalWordLen := 0
	for _, w := range words {
		totalWordLen += len([]rune(w))
	}
	avgWordLen := float64(totalWordLen) / float64(len(words))

	score := 0.0
	if len([]rune(text)) > 300 {
		score += confidenceLengthWeight
	}
	if avgWordLen > 3 {
		score += confidenceWordLenWeight
	}
	if len(words) > 80 {
		score += confidenceWordCntWeight
	}

	return math.Round(score*100) / 100
}

// ShouldRunOCR 判断页面是否需要OCR
// 表格视为可靠的结构化信号：即使置信度低，只要提取到表格就跳过OCR；
// OCR只保留给疑似纯扫描页（低置信度、有嵌入图片、无表格）
func ShouldRunOCR(confidence float64, imageCount, tableCount int) bool {
	return confidence < ocrConfidenceThreshold && imageCount > 0 && tableCount == 0
}
