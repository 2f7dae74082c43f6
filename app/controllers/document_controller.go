package controllers

import (
	"io"
	"net/http"

	"github.com/physiohub/rag-backend/app/bootstrap"
	"github.com/physiohub/rag-backend/internal/logger"
	"go.uber.org/zap"
)

// DocumentController 文档控制器
// 负责上传入库与全文读取
type DocumentController struct {
	BaseController
}

// POST /api/documents/upload
// multipart表单字段名为file，同一用户重复上传同一内容返回already_exists
func (c *DocumentController) Upload() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "missing multipart field: file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		c.JSONError(http.StatusBadRequest, "uploaded file is empty")
		return
	}

	result, err := app.GetDocumentService().IngestFile(c.Ctx.Request.Context(), userID, header.Filename, data)
	if err != nil {
		logger.Error("document upload failed",
			zap.Uint("owner_id", userID),
			zap.String("filename", header.Filename),
			zap.Error(err))
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(result)
}

// GET /api/documents/text
// 返回用户全部文档拼接后的全文，document_id参数可限定单个文档
func (c *DocumentController) Text() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	app := bootstrap.GetApp()
	if app == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not initialized")
		return
	}

	documentID, ok := c.parseOptionalDocumentID()
	if !ok {
		return
	}

	text, err := app.GetDocumentService().LoadFullText(c.Ctx.Request.Context(), userID, documentID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	if text == "" {
		c.JSONError(http.StatusNotFound, "no documents found")
		return
	}

	c.JSONSuccess(map[string]string{"text": text})
}
