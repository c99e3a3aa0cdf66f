// internal/resources/documents.go
package resources

import (
	"context"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/transport"
)

// DocumentAPI 源文档接口
type DocumentAPI struct {
	client *transport.Client
}

// Upload 上传文档
func (a *DocumentAPI) Upload(ctx context.Context, file models.Upload, title string) (*models.Document, error) {
	if file.Empty() {
		return nil, apperrors.NewValidationError("MISSING_FILE", "请选择要上传的文件")
	}
	form := transport.NewForm().File("file", file.FileName, file.Data).SetIf("title", title)

	var doc models.Document
	if err := a.client.MultipartData(ctx, "/documents", form, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Get 获取文档详情
func (a *DocumentAPI) Get(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	if err := a.client.GetData(ctx, idPath("/documents/%d", id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Search 按标题分页搜索
func (a *DocumentAPI) Search(ctx context.Context, params models.SearchParams) (*models.Page[models.Document], error) {
	var page models.Page[models.Document]
	if err := a.client.GetData(ctx, "/documents", searchQuery(params), &page); err != nil {
		return nil, err
	}
	if page.Content == nil {
		return nil, apperrors.NewParseError("返回的数据格式不正确", nil)
	}
	return &page, nil
}

// Download 下载文档原文件
func (a *DocumentAPI) Download(ctx context.Context, id int64) (*transport.Blob, error) {
	return a.client.GetBlob(ctx, idPath("/documents/%d/download", id), nil)
}

// Delete 删除文档
func (a *DocumentAPI) Delete(ctx context.Context, id int64) error {
	return a.client.Delete(ctx, idPath("/documents/%d", id), nil)
}

// DownloadURL 文档下载地址
func (a *DocumentAPI) DownloadURL(id int64) string {
	return a.client.URL(idPath("/documents/%d/download", id))
}

// PreviewURL 文档预览地址
func (a *DocumentAPI) PreviewURL(id int64) string {
	return a.client.URL(idPath("/documents/%d/preview", id))
}
