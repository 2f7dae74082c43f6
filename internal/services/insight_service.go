package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/physiohub/rag-backend/internal/errors"
	"github.com/physiohub/rag-backend/internal/knowledge"
)

// 全文分析的提示词模板
const (
	summarizePrompt = `Summarize the following physiotherapy document in exactly 5 bullet points.
Focus on diagnoses, treatments, exercises, and patient progress.

Document:
%s

Respond with 5 bullet points only.`

	topicPrompt = `Classify the following physiotherapy document into ONE of these topics:
- exercise therapy
- manual therapy
- electrotherapy
- pain management
- rehabilitation

Document:
%s

Respond with only the topic name.`

	sentimentPrompt = `Analyze the overall tone of the following physiotherapy document regarding patient progress.
Classify it as one of: positive, neutral, negative.

Document:
%s

Respond with only the classification and one sentence of justification.`
)

// 送入提示词的全文上限，超长文档取前缀即可覆盖诊断与计划部分
const insightMaxRunes = 24000

// InsightService 文档全文分析服务
// 摘要、主题分类、倾向分析各对应一次生成调用，输入为用户的文档全文
type InsightService struct {
	documents *DocumentService
	generator knowledge.Generator
}

// NewInsightService 创建分析服务
func NewInsightService(documents *DocumentService, generator knowledge.Generator) *InsightService {
	return &InsightService{
		documents: documents,
		generator: generator,
	}
}

// Summarize 生成5条要点摘要
func (s *InsightService) Summarize(ctx context.Context, ownerID uint, documentID *uint) (string, error) {
	return s.analyze(ctx, ownerID, documentID, summarizePrompt)
}

// ClassifyTopic 将文档归入固定的理疗主题之一
func (s *InsightService) ClassifyTopic(ctx context.Context, ownerID uint, documentID *uint) (string, error) {
	return s.analyze(ctx, ownerID, documentID, topicPrompt)
}

// AnalyzeSentiment 判断文档对患者进展的整体倾向
func (s *InsightService) AnalyzeSentiment(ctx context.Context, ownerID uint, documentID *uint) (string, error) {
	return s.analyze(ctx, ownerID, documentID, sentimentPrompt)
}

func (s *InsightService) analyze(ctx context.Context, ownerID uint, documentID *uint, template string) (string, error) {
	text, err := s.documents.LoadFullText(ctx, ownerID, documentID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", apperrors.NewNotFoundError("document")
	}

	runes := []rune(text)
	if len(runes) > insightMaxRunes {
		text = string(runes[:insightMaxRunes])
	}

	answer, err := s.generator.Generate(ctx, fmt.Sprintf(template, text))
	if err != nil {
		if apperrors.IsAppError(err) {
			return "", err
		}
		return "", apperrors.NewGenerationError(err)
	}
	return strings.TrimSpace(answer), nil
}
