// internal/resources/api.go
package resources

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/transport"
)

// API 后端资源接口集合
type API struct {
	Documents *DocumentAPI
	Templates *TemplateAPI
	Projects  *ProjectAPI
	Chapters  *ChapterAPI
	Outlines  *OutlineAPI
	Content   *ContentAPI
}

// New 基于同一个传输客户端创建全部资源接口
func New(client *transport.Client) *API {
	return &API{
		Documents: &DocumentAPI{client: client},
		Templates: &TemplateAPI{client: client},
		Projects:  &ProjectAPI{client: client},
		Chapters:  &ChapterAPI{client: client},
		Outlines:  &OutlineAPI{client: client},
		Content:   &ContentAPI{client: client},
	}
}

// searchQuery 页码从 1 转为 0 起始，永不为负
func searchQuery(p models.SearchParams) url.Values {
	q := url.Values{}
	if title := strings.TrimSpace(p.Title); title != "" {
		q.Set("title", title)
	}
	q.Set("page", strconv.Itoa(p.ZeroBasedPage()))
	q.Set("size", strconv.Itoa(p.PageSize()))
	return q
}

func idPath(format string, ids ...interface{}) string {
	return fmt.Sprintf(format, ids...)
}
