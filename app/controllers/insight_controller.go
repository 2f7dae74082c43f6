package controllers

import (
	"context"
	"net/http"

	"github.com/physiohub/rag-backend/app/bootstrap"
)

// InsightController 文档全文分析控制器
type InsightController struct {
	BaseController
}

// POST /api/insights/summarize
func (c *InsightController) Summarize() {
	c.runInsight(func(ctx context.Context, ownerID uint, documentID *uint) (string, error) {
		return bootstrap.GetApp().GetInsightService().Summarize(ctx, ownerID, documentID)
	}, "summary")
}

// POST /api/insights/topic
func (c *InsightController) Topic() {
	c.runInsight(func(ctx context.Context, ownerID uint, documentID *uint) (string, error) {
		return bootstrap.GetApp().GetInsightService().ClassifyTopic(ctx, ownerID, documentID)
	}, "topic")
}

// POST /api/insights/sentiment
func (c *InsightController) Sentiment() {
	c.runInsight(func(ctx context.Context, ownerID uint, documentID *uint) (string, error) {
		return bootstrap.GetApp().GetInsightService().AnalyzeSentiment(ctx, ownerID, documentID)
	}, "sentiment")
}

func (c *InsightController) runInsight(fn func(context.Context, uint, *uint) (string, error), field string) {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	if bootstrap.GetApp() == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	documentID, ok := c.parseOptionalDocumentID()
	if !ok {
		return
	}

	result, err := fn(c.Ctx.Request.Context(), userID, documentID)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(map[string]string{field: result})
}
