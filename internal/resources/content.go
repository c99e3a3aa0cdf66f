// internal/resources/content.go
package resources

import (
	"context"

	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/transport"
)

// ContentRequest 单章内容生成请求
type ContentRequest struct {
	TemplateID string
	ProjectID  string
	Chapter    *models.Chapter
}

// ContentAPI 正文生成与对话接口
type ContentAPI struct {
	client *transport.Client
}

// Generate 生成单章正文
func (a *ContentAPI) Generate(ctx context.Context, req ContentRequest) (*models.GeneratedContent, error) {
	body := map[string]interface{}{
		"template_id":    models.IDValue(req.TemplateID),
		"project_id":     models.IDValue(req.ProjectID),
		"chapter_number": req.Chapter.ChapterNumber,
		"chapters":       []*models.Chapter{req.Chapter},
	}

	var out models.GeneratedContent
	if err := a.client.PostData(ctx, "/documents/generate-content", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartGeneration 通知后端开始整篇生成
func (a *ContentAPI) StartGeneration(ctx context.Context, templateID, projectID string, chapters []models.Summary) error {
	body := map[string]interface{}{
		"template_id": models.IDValue(templateID),
		"project_id":  models.IDValue(projectID),
		"chapters":    chapters,
	}
	return a.client.PostData(ctx, "/documents/start-generate-content", body, nil)
}

// Chat 针对章节的对话
func (a *ContentAPI) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	var out models.ChatReply
	if err := a.client.PostData(ctx, "/documents/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
