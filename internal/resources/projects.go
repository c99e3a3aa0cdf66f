// internal/resources/projects.go
package resources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/transport"
)

// ProjectAPI 项目接口
type ProjectAPI struct {
	client *transport.Client
}

// List 项目列表，page 从 1 开始
func (a *ProjectAPI) List(ctx context.Context, page, perPage int, title string) (*models.ProjectPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if t := strings.TrimSpace(title); t != "" {
		q.Set("title", t)
	}

	var out models.ProjectPage
	if err := a.client.Get(ctx, "/projects", q, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "获取项目列表失败"
		}
		return nil, apperrors.NewLogicalFailure("LOGICAL_FAILURE", msg)
	}
	if out.Data == nil {
		out.Data = []*models.Project{}
	}
	return &out, nil
}

// Create 创建项目
func (a *ProjectAPI) Create(ctx context.Context, title string, templateID int64) (*models.Project, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apperrors.NewValidationError("MISSING_TITLE", "项目名称不能为空")
	}
	body := map[string]interface{}{"title": title, "template_id": templateID}

	var p models.Project
	if err := a.client.PostData(ctx, "/projects", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get 获取项目
func (a *ProjectAPI) Get(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := a.client.GetData(ctx, "/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update 更新项目
func (a *ProjectAPI) Update(ctx context.Context, id string, in models.ProjectInput) (*models.Project, error) {
	var p models.Project
	if err := a.client.PutData(ctx, "/projects/"+url.PathEscape(id), in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete 删除项目
func (a *ProjectAPI) Delete(ctx context.Context, id string) error {
	return a.client.Delete(ctx, "/projects/"+url.PathEscape(id), nil)
}

// Export 按导出设置生成整篇文档
func (a *ProjectAPI) Export(ctx context.Context, id string, settings models.ExportSettings) (*transport.Blob, error) {
	return a.client.PostBlob(ctx, "/projects/"+url.PathEscape(id)+"/export", settings)
}
