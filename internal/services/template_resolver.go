// internal/services/template_resolver.go
package services

import (
	"net/url"
	"regexp"
	"strings"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/storage"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

var projectPathPattern = regexp.MustCompile(`/projects/(\d+)`)

// TemplateSource 模板 ID 的来源
type TemplateSource string

const (
	SourceChapter TemplateSource = "chapter"
	SourceSession TemplateSource = "session"
	SourceQuery   TemplateSource = "query"
	SourceStore   TemplateSource = "store"
	SourcePath    TemplateSource = "path"
)

// TemplateResolver 按固定顺序查找模板 ID，先命中者胜出，结果写回本地存储。
// 顺序：章节/会话、地址查询参数、本地缓存、地址路径
type TemplateResolver struct {
	state  *OutlineState
	store  storage.LocalStore
	logger *utils.Logger
}

// NewTemplateResolver 创建解析器
func NewTemplateResolver(state *OutlineState, store storage.LocalStore, logger *utils.Logger) *TemplateResolver {
	return &TemplateResolver{state: state, store: store, logger: utils.OrDefault(logger)}
}

// Resolve 解析模板 ID
func (r *TemplateResolver) Resolve(chapter *models.Chapter) (string, error) {
	id, source := r.lookup(chapter)
	if id == "" {
		return "", apperrors.NewValidationError(apperrors.CodeMissingTemplateID, "模板ID缺失，无法生成文档内容。请先选择模板。")
	}

	r.logger.Debug("解析模板ID", map[string]interface{}{"template_id": id, "source": string(source)})
	if r.store != nil {
		if err := r.store.Set(storage.KeyTemplateID, id); err != nil {
			r.logger.Warn("缓存模板ID失败", map[string]interface{}{"err": err.Error()})
		}
	}
	return id, nil
}

func (r *TemplateResolver) lookup(chapter *models.Chapter) (string, TemplateSource) {
	if chapter != nil {
		if id := strings.TrimSpace(chapter.TemplateID); id != "" {
			return id, SourceChapter
		}
	}
	if id := r.state.TemplateID(); id != "" {
		return id, SourceSession
	}

	loc := r.state.Location()
	// 查询参数里的项目ID直接当作模板ID，两者不一致时会取错
	if id := queryProjectID(loc); id != "" {
		return id, SourceQuery
	}

	if r.store != nil {
		if id, ok, err := r.store.Get(storage.KeyTemplateID); err == nil && ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id), SourceStore
		}
	}

	if id := pathProjectID(loc); id != "" {
		return id, SourcePath
	}
	return "", ""
}

// queryProjectID 地址查询参数中的项目ID，projectId 优先于 project_id
func queryProjectID(loc *url.URL) string {
	if loc == nil {
		return ""
	}
	q := loc.Query()
	for _, key := range []string{"projectId", "project_id"} {
		if id := strings.TrimSpace(q.Get(key)); id != "" {
			return id
		}
	}
	return ""
}

func pathProjectID(loc *url.URL) string {
	if loc == nil {
		return ""
	}
	if m := projectPathPattern.FindStringSubmatch(loc.Path); m != nil {
		return m[1]
	}
	return ""
}

// ResolveProject 项目 ID，依次取会话、首个章节、地址查询参数、本地缓存、地址路径，
// 命中后写回缓存
func (r *TemplateResolver) ResolveProject(chapters []*models.Chapter) string {
	id := r.state.ProjectID()
	if id == "" && len(chapters) > 0 && chapters[0] != nil {
		id = chapters[0].ProjectID
	}
	loc := r.state.Location()
	if id == "" {
		id = queryProjectID(loc)
	}
	if id == "" && r.store != nil {
		if v, ok, err := r.store.Get(storage.KeyCurrentProjectID); err == nil && ok {
			id = strings.TrimSpace(v)
		}
	}
	if id == "" {
		id = pathProjectID(loc)
	}
	if id != "" && r.store != nil {
		_ = r.store.Set(storage.KeyCurrentProjectID, id)
	}
	return id
}
