// internal/resources/templates.go
package resources

import (
	"context"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/transport"
)

// TemplateUpload 模板上传参数
type TemplateUpload struct {
	File             models.Upload
	Title            string
	Description      string
	OutlinePrompt    string
	SubchapterPrompt string
	ContentPrompt    string
}

// TemplateAPI 模板接口
type TemplateAPI struct {
	client *transport.Client
}

// Upload 上传模板文件及自定义提示词
func (a *TemplateAPI) Upload(ctx context.Context, in TemplateUpload) (*models.Template, error) {
	if in.File.Empty() {
		return nil, apperrors.NewValidationError("MISSING_FILE", "请选择模板文件")
	}
	form := transport.NewForm().
		File("file", in.File.FileName, in.File.Data).
		SetIf("title", in.Title).
		SetIf("content", in.Description).
		SetIf("outline_prompt", in.OutlinePrompt).
		SetIf("subchapter_prompt", in.SubchapterPrompt).
		SetIf("content_prompt", in.ContentPrompt)

	var tpl models.Template
	if err := a.client.MultipartData(ctx, "/templates", form, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Get 获取模板详情
func (a *TemplateAPI) Get(ctx context.Context, id int64) (*models.Template, error) {
	var tpl models.Template
	if err := a.client.GetData(ctx, idPath("/templates/%d", id), nil, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Preview 模板预览内容
func (a *TemplateAPI) Preview(ctx context.Context, id int64) (*models.TemplatePreview, error) {
	var preview models.TemplatePreview
	if err := a.client.GetData(ctx, idPath("/templates/%d/preview", id), nil, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// Search 按标题分页搜索
func (a *TemplateAPI) Search(ctx context.Context, params models.SearchParams) (*models.Page[models.Template], error) {
	var page models.Page[models.Template]
	if err := a.client.GetData(ctx, "/templates", searchQuery(params), &page); err != nil {
		return nil, err
	}
	if page.Content == nil {
		return nil, apperrors.NewParseError("返回的数据格式不正确", nil)
	}
	return &page, nil
}

// Download 下载模板文件
func (a *TemplateAPI) Download(ctx context.Context, id int64) (*transport.Blob, error) {
	return a.client.GetBlob(ctx, idPath("/templates/%d/download", id), nil)
}

// Delete 删除模板
func (a *TemplateAPI) Delete(ctx context.Context, id int64) error {
	return a.client.Delete(ctx, idPath("/templates/%d", id), nil)
}

// Create 以 JSON 创建模板
func (a *TemplateAPI) Create(ctx context.Context, tpl *models.Template) (*models.Template, error) {
	var out models.Template
	if err := a.client.PostData(ctx, "/templates", tpl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update 更新模板
func (a *TemplateAPI) Update(ctx context.Context, id int64, tpl *models.Template) (*models.Template, error) {
	var out models.Template
	if err := a.client.PutData(ctx, idPath("/templates/%d", id), tpl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadURL 模板下载地址
func (a *TemplateAPI) DownloadURL(id int64) string {
	return a.client.URL(idPath("/templates/%d/download", id))
}

// PreviewURL 模板预览地址
func (a *TemplateAPI) PreviewURL(id int64) string {
	return a.client.URL(idPath("/templates/%d/preview", id))
}
