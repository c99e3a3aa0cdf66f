// internal/resources/outlines.go
package resources

import (
	"context"
	"encoding/json"
	"net/url"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/transport"
)

// OutlineRequest 大纲生成参数
type OutlineRequest struct {
	TemplateID    string
	ProjectID     string
	OutlinePrompt string
	InputFile     *models.Upload
}

// RegenerateRequest 重新生成大纲参数
type RegenerateRequest struct {
	TemplateID        string
	Requirement       string
	PreservedChapters []*models.Chapter
	InputFile         *models.Upload
}

// RegenerateQuery 以查询参数形式重新生成章节
type RegenerateQuery struct {
	TemplateID      string
	ProjectID       string
	Requirement     string
	PreserveEdited  bool
	CurrentChapters []*models.Chapter
}

// SubchapterRequest 为已有章节续写子章节
type SubchapterRequest struct {
	ProjectID   string
	TemplateID  string
	Chapters    []*models.Chapter
	Requirement string
}

// OutlineAPI 大纲接口
type OutlineAPI struct {
	client *transport.Client
}

// Generate 生成大纲
func (a *OutlineAPI) Generate(ctx context.Context, req OutlineRequest) (*models.OutlineResult, error) {
	if req.TemplateID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingTemplateID, "必须提供模板ID")
	}
	form := transport.NewForm().
		Set("template_id", req.TemplateID).
		SetIf("project_id", req.ProjectID).
		SetIf("outline_prompt", req.OutlinePrompt)
	if !req.InputFile.Empty() {
		form.File("input_file", req.InputFile.FileName, req.InputFile.Data)
	}
	return a.postOutline(ctx, "/outlines/generate", form)
}

// Regenerate 保留指定章节后重新生成大纲
func (a *OutlineAPI) Regenerate(ctx context.Context, req RegenerateRequest) (*models.OutlineResult, error) {
	if req.TemplateID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingTemplateID, "必须提供模板ID")
	}
	form := transport.NewForm().
		Set("template_id", req.TemplateID).
		SetIf("requirement", req.Requirement)
	if len(req.PreservedChapters) > 0 {
		if err := form.SetJSON("preserved_chapters", req.PreservedChapters); err != nil {
			return nil, err
		}
	}
	if !req.InputFile.Empty() {
		form.File("input_file", req.InputFile.FileName, req.InputFile.Data)
	}
	return a.postOutline(ctx, "/outlines/regenerate", form)
}

// RegenerateByQuery GET 形式的重新生成，当前章节以 JSON 放入查询参数
func (a *OutlineAPI) RegenerateByQuery(ctx context.Context, req RegenerateQuery) (*models.OutlineResult, error) {
	q := url.Values{}
	q.Set("template_id", req.TemplateID)
	q.Set("project_id", req.ProjectID)
	if req.Requirement != "" {
		q.Set("requirement", req.Requirement)
	}
	if req.PreserveEdited && len(req.CurrentChapters) > 0 {
		current, err := json.Marshal(req.CurrentChapters)
		if err != nil {
			return nil, apperrors.NewValidationError("INVALID_BODY", "章节序列化失败")
		}
		q.Set("preserveEdited", "true")
		q.Set("currentChapters", string(current))
	}

	var raw json.RawMessage
	if err := a.client.Get(ctx, "/outlines/regenerate", q, &raw); err != nil {
		return nil, err
	}
	return parseOutline(raw)
}

// GenerateSubchapters 以表单方式生成子章节
func (a *OutlineAPI) GenerateSubchapters(ctx context.Context, templateID string, chapters []*models.Chapter, inputFile *models.Upload) (*models.OutlineResult, error) {
	if templateID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingTemplateID, "必须提供模板ID")
	}
	form := transport.NewForm().Set("template_id", templateID)
	if err := form.SetJSON("chapters", chapters); err != nil {
		return nil, err
	}
	if !inputFile.Empty() {
		form.File("input_file", inputFile.FileName, inputFile.Data)
	}
	return a.postOutline(ctx, "/outlines/generate-subchapters", form)
}

// ContinueSubchapters 以 JSON 方式为项目章节生成子章节
func (a *OutlineAPI) ContinueSubchapters(ctx context.Context, req SubchapterRequest) (*models.OutlineResult, error) {
	body := map[string]interface{}{
		"project_id":  models.IDValue(req.ProjectID),
		"template_id": models.IDValue(req.TemplateID),
		"chapters":    req.Chapters,
	}
	if req.Requirement != "" {
		body["requirement"] = req.Requirement
	}

	var raw json.RawMessage
	if err := a.client.Post(ctx, "/outlines/generate-subchapters", body, &raw); err != nil {
		return nil, err
	}
	return parseOutline(raw)
}

func (a *OutlineAPI) postOutline(ctx context.Context, path string, form *transport.Form) (*models.OutlineResult, error) {
	var raw json.RawMessage
	if err := a.client.PostMultipart(ctx, path, form, &raw); err != nil {
		return nil, err
	}
	return parseOutline(raw)
}

func parseOutline(raw json.RawMessage) (*models.OutlineResult, error) {
	chapters, err := ParseChapterList(raw)
	if err != nil {
		return nil, err
	}
	return &models.OutlineResult{Chapters: models.BuildTree(chapters), Raw: raw}, nil
}
