package knowledge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OCREngine 图片文字识别接口
// 实际识别由外部OCR服务完成，这里只定义调用边界
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Ready() bool
}

// NoopOCREngine 默认占位实现，未配置OCR服务时使用
type NoopOCREngine struct{}

func (n *NoopOCREngine) Recognize(ctx context.Context, image []byte) (string, error) {
	return "", nil
}

func (n *NoopOCREngine) Ready() bool {
	return false
}

// HTTPOCREngine 调用tesseract sidecar服务识别图片文字
type HTTPOCREngine struct {
	endpoint string
	language string
	client   *http.Client
}

// ocrRequest OCR服务请求体
type ocrRequest struct {
	Image    string `json:"image"` // base64编码的图片
	Language string `json:"language,omitempty"`
}

// ocrResponse OCR服务响应体
type ocrResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewHTTPOCREngine 创建HTTP OCR引擎
func NewHTTPOCREngine(endpoint, language string) OCREngine {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return &NoopOCREngine{}
	}
	if language == "" {
		language = "eng"
	}

	return &HTTPOCREngine{
		endpoint: endpoint,
		language: language,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (e *HTTPOCREngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}

	jsonData, err := json.Marshal(ocrRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		Language: e.language,
	})
	if err != nil {
		return "", fmt.Errorf("序列化OCR请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("创建OCR请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("OCR请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取OCR响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR服务返回错误状态 %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp ocrResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return "", fmt.Errorf("解析OCR响应失败: %w", err)
	}
	if ocrResp.Error != "" {
		return "", fmt.Errorf("OCR识别失败: %s", ocrResp.Error)
	}

	// 去掉识别结果中的空字节
	return strings.ReplaceAll(ocrResp.Text, "\x00", ""), nil
}

func (e *HTTPOCREngine) Ready() bool {
	return e.client != nil && e.endpoint != ""
}
