package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/physiohub/rag-backend/app/bootstrap"
)

var validate = validator.New()

// RAGController 检索问答控制器
type RAGController struct {
	BaseController
}

// AskRequest 问答请求
// K为0时使用服务端默认检索条数
type AskRequest struct {
	Question string `json:"question" validate:"required"`
	K        int    `json:"k" validate:"gte=0,lte=20"`
}

// POST /api/rag/ask
func (c *RAGController) Ask() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	var req AskRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数错误")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, "question is required")
		return
	}

	result, err := app.GetRAGService().Ask(c.Ctx.Request.Context(), userID, req.Question, req.K)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(result)
}
