package resources

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/transport"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

func newAPI(t *testing.T, setup func(r *gin.RouterGroup)) *API {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	setup(r.Group("/api"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(transport.New(srv.URL+"/api", transport.WithLogger(utils.NewNopLogger()), transport.WithTimeout(2*time.Second)))
}

func TestSearchSendsZeroBasedPage(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var sizes []string
	api := newAPI(t, func(r *gin.RouterGroup) {
		r.GET("/documents", func(c *gin.Context) {
			mu.Lock()
			seen = append(seen, c.Query("page"))
			sizes = append(sizes, c.Query("size"))
			mu.Unlock()
			c.JSON(http.StatusOK, gin.H{"content": []gin.H{{"id": 1, "originalFilename": "a.docx"}}, "totalElements": 1, "number": 0})
		})
	})

	for _, p := range []int{1, 2, 5, 0, -3} {
		page, err := api.Documents.Search(context.Background(), models.SearchParams{Page: p})
		require.NoError(t, err)
		require.Len(t, page.Content, 1)
	}
	assert.Equal(t, []string{"0", "1", "4", "0", "0"}, seen)
	for _, s := range sizes {
		assert.Equal(t, "10", s)
	}
}

func TestSearchRejectsMissingContent(t *testing.T) {
	api := newAPI(t, func(r *gin.RouterGroup) {
		r.GET("/templates", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"totalElements": 0})
		})
	})
	_, err := api.Templates.Search(context.Background(), models.SearchParams{Title: "报告", Page: 1, Size: 5})
	assert.True(t, apperrors.IsParseError(err))
}

func TestParseChapterListShapes(t *testing.T) {
	cases := map[string]string{
		"data.chapters":     `{"success":true,"data":{"chapters":[{"chapterNumber":"1","title":"引言"}]}}`,
		"data.chapter_list": `{"success":true,"data":{"chapter_list":[{"chapter_number":"1","title":"引言"}]}}`,
		"data[]":            `{"success":true,"data":[{"chapter_number":1,"title":"引言"}]}`,
		"array":             `[{"chapterNumber":"1","title":"引言"}]`,
		"chapters":          `{"chapters":[{"chapterNumber":"1","title":"引言"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			chapters, err := ParseChapterList(json.RawMessage(body))
			require.NoError(t, err)
			require.Len(t, chapters, 1)
			assert.Equal(t, "1", chapters[0].ChapterNumber)
			assert.Equal(t, "引言", chapters[0].Title)
		})
	}

	_, err := ParseChapterList(json.RawMessage(`{"success":false,"message":"项目不存在"}`))
	assert.True(t, apperrors.IsLogicalFailure(err))

	empty, err := ParseChapterList(json.RawMessage(`{"success":true,"data":null}`))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// memoryBackend 原样保存章节 JSON 的假后端
type memoryBackend struct {
	mu     sync.Mutex
	stored json.RawMessage
	saves  int
}

func (m *memoryBackend) routes(r *gin.RouterGroup) {
	r.POST("/projects/:id/chapters", func(c *gin.Context) {
		var body struct {
			Chapters json.RawMessage `json:"chapters"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
		m.mu.Lock()
		m.stored = body.Chapters
		m.saves++
		m.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"ids": []int{11, 12}}})
	})
	r.GET("/projects/:id/chapters", func(c *gin.Context) {
		m.mu.Lock()
		defer m.mu.Unlock()
		c.Data(http.StatusOK, "application/json", []byte(`{"success":true,"data":{"chapters":`+string(m.stored)+`}}`))
	})
}

func TestSaveThenListRoundTrip(t *testing.T) {
	backend := &memoryBackend{}
	api := newAPI(t, backend.routes)

	tree := []*models.Chapter{
		{ChapterNumber: "1", Title: "引言", Children: []*models.Chapter{
			{ChapterNumber: "1.1", Title: "背景", Children: []*models.Chapter{}},
			{ChapterNumber: "1.2", Title: "目标", Children: []*models.Chapter{
				{ChapterNumber: "1.2.1", Title: "范围", Children: []*models.Chapter{}},
			}},
		}},
		{ChapterNumber: "2", Title: "方法", Children: []*models.Chapter{}},
	}

	ids, err := api.Chapters.Save(context.Background(), "7", tree)
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12}, ids)

	loaded, err := api.Chapters.List(context.Background(), "7")
	require.NoError(t, err)

	type node struct{ num, title string }
	collect := func(chs []*models.Chapter) []node {
		var out []node
		models.Walk(chs, func(ch *models.Chapter, _ int) bool {
			out = append(out, node{ch.ChapterNumber, ch.Title})
			return true
		})
		return out
	}
	assert.Equal(t, collect(tree), collect(loaded))
}

func TestSaveRejected(t *testing.T) {
	api := newAPI(t, func(r *gin.RouterGroup) {
		r.POST("/projects/:id/chapters", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "章节数据无效"})
		})
	})
	_, err := api.Chapters.Save(context.Background(), "7", []*models.Chapter{{ChapterNumber: "1", Title: "a"}})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSaveRejected))
	assert.Contains(t, err.Error(), "章节数据无效")
}

func TestDeleteMissingChapterIsNoop(t *testing.T) {
	backend := &memoryBackend{stored: json.RawMessage(`[{"chapterNumber":"1","title":"a"},{"chapterNumber":"2","title":"b"}]`)}
	api := newAPI(t, backend.routes)

	require.NoError(t, api.Chapters.Delete(context.Background(), "7", "9"))
	assert.Equal(t, 0, backend.saves)

	require.NoError(t, api.Chapters.Delete(context.Background(), "7", "1"))
	assert.Equal(t, 1, backend.saves)
	left, err := ParseChapterList(backend.stored)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "2", left[0].ChapterNumber)
}

func TestReorderPutsListedFirst(t *testing.T) {
	backend := &memoryBackend{stored: json.RawMessage(`[{"chapterNumber":"1","title":"a"},{"chapterNumber":"2","title":"b"},{"chapterNumber":"3","title":"c"}]`)}
	api := newAPI(t, backend.routes)

	require.NoError(t, api.Chapters.Reorder(context.Background(), "7", []string{"3", "1"}))
	got, err := ParseChapterList(backend.stored)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"3", "1", "2"}, []string{got[0].ChapterNumber, got[1].ChapterNumber, got[2].ChapterNumber})
	assert.Equal(t, 2, got[2].OrderIndex)
}

func TestListRebuildsFlatTree(t *testing.T) {
	api := newAPI(t, func(r *gin.RouterGroup) {
		r.GET("/projects/:id/chapters", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": []gin.H{
				{"id": 1, "chapter_number": "1", "title": "引言"},
				{"id": 2, "chapter_number": "1.1", "title": "背景", "parent_id": 1},
				{"id": 3, "chapter_number": "2", "title": "方法"},
			}})
		})
	})
	chapters, err := api.Chapters.List(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	require.Len(t, chapters[0].Children, 1)
	assert.Equal(t, "1.1", chapters[0].Children[0].ChapterNumber)
}

func TestProjectListQuery(t *testing.T) {
	var query map[string]string
	api := newAPI(t, func(r *gin.RouterGroup) {
		r.GET("/projects", func(c *gin.Context) {
			query = map[string]string{"page": c.Query("page"), "per_page": c.Query("per_page"), "title": c.Query("title")}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": []gin.H{{"id": 3, "title": "年报", "template_id": 2}}, "total": 1, "pages": 1, "current_page": 1})
		})
	})

	page, err := api.Projects.List(context.Background(), 0, 0, "  年报 ")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"page": "1", "per_page": "10", "title": "年报"}, query)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "年报", page.Data[0].DisplayName())
	require.NotNil(t, page.Data[0].TemplateID)
	assert.Equal(t, int64(2), *page.Data[0].TemplateID)
}

func TestTemplateUploadFields(t *testing.T) {
	var fields map[string]string
	api := newAPI(t, func(r *gin.RouterGroup) {
		r.POST("/templates", func(c *gin.Context) {
			fh, err := c.FormFile("file")
			require.NoError(t, err)
			f, _ := fh.Open()
			data, _ := io.ReadAll(f)
			f.Close()
			fields = map[string]string{
				"file":              string(data),
				"title":             c.PostForm("title"),
				"content":           c.PostForm("content"),
				"outline_prompt":    c.PostForm("outline_prompt"),
				"subchapter_prompt": c.PostForm("subchapter_prompt"),
				"content_prompt":    c.PostForm("content_prompt"),
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": 9, "title": c.PostForm("title")}})
		})
	})

	tpl, err := api.Templates.Upload(context.Background(), TemplateUpload{
		File:          models.Upload{FileName: "t.docx", Data: []byte("docx")},
		Title:         "研究报告",
		Description:   "说明",
		OutlinePrompt: "大纲提示",
		ContentPrompt: "正文提示",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), tpl.ID)
	assert.Equal(t, "docx", fields["file"])
	assert.Equal(t, "研究报告", fields["title"])
	assert.Equal(t, "说明", fields["content"])
	assert.Equal(t, "大纲提示", fields["outline_prompt"])
	assert.Equal(t, "", fields["subchapter_prompt"])
	assert.Equal(t, "正文提示", fields["content_prompt"])

	_, err = api.Templates.Upload(context.Background(), TemplateUpload{Title: "无文件"})
	assert.True(t, apperrors.IsValidationError(err))
}

func TestGenerateContentBody(t *testing.T) {
	var body map[string]interface{}
	api := newAPI(t, func(r *gin.RouterGroup) {
		r.POST("/documents/generate-content", func(c *gin.Context) {
			require.NoError(t, c.ShouldBindJSON(&body))
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"content": gin.H{"not": "text"}}})
		})
	})

	out, err := api.Content.Generate(context.Background(), ContentRequest{
		TemplateID: "4",
		ProjectID:  "7",
		Chapter:    &models.Chapter{ChapterNumber: "2", Title: "方法", Children: []*models.Chapter{}},
	})
	require.NoError(t, err)
	_, ok := out.Text()
	assert.False(t, ok)

	assert.Equal(t, float64(4), body["template_id"])
	assert.Equal(t, float64(7), body["project_id"])
	assert.Equal(t, "2", body["chapter_number"])
	chapters, _ := body["chapters"].([]interface{})
	assert.Len(t, chapters, 1)
}

func TestOutlineGenerateFormAndNon2xx(t *testing.T) {
	api := newAPI(t, func(r *gin.RouterGroup) {
		r.POST("/outlines/generate", func(c *gin.Context) {
			if c.PostForm("template_id") != "4" {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "必须提供模板ID"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"chapters": []gin.H{
				{"id": 1, "chapter_number": "1", "title": "引言"},
				{"id": 2, "chapter_number": "1.1", "title": "背景", "parent_id": 1},
			}}})
		})
		r.POST("/outlines/regenerate", func(c *gin.Context) {
			c.Status(http.StatusInternalServerError)
		})
	})

	res, err := api.Outlines.Generate(context.Background(), OutlineRequest{TemplateID: "4", ProjectID: "7"})
	require.NoError(t, err)
	require.Len(t, res.Chapters, 1)
	assert.Len(t, res.Chapters[0].Children, 1)

	_, err = api.Outlines.Regenerate(context.Background(), RegenerateRequest{TemplateID: "4"})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransportError(err))
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusOf(err))
}

func TestRegenerateByQueryCarriesCurrentChapters(t *testing.T) {
	var q map[string]string
	api := newAPI(t, func(r *gin.RouterGroup) {
		r.GET("/outlines/regenerate", func(c *gin.Context) {
			q = map[string]string{
				"template_id":     c.Query("template_id"),
				"project_id":      c.Query("project_id"),
				"requirement":     c.Query("requirement"),
				"preserveEdited":  c.Query("preserveEdited"),
				"currentChapters": c.Query("currentChapters"),
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"chapters": []gin.H{{"chapterNumber": "1", "title": "新"}}}})
		})
	})

	res, err := api.Outlines.RegenerateByQuery(context.Background(), RegenerateQuery{
		TemplateID:      "4",
		ProjectID:       "7",
		Requirement:     "更简洁",
		PreserveEdited:  true,
		CurrentChapters: []*models.Chapter{{ChapterNumber: "1", Title: "旧"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Chapters, 1)
	assert.Equal(t, "true", q["preserveEdited"])
	assert.Equal(t, "更简洁", q["requirement"])
	assert.Contains(t, q["currentChapters"], `"title":"旧"`)
}

func TestURLHelpers(t *testing.T) {
	api := New(transport.New("http://localhost:5000/api/", transport.WithLogger(utils.NewNopLogger())))
	assert.Equal(t, "http://localhost:5000/api/templates/3/download", api.Templates.DownloadURL(3))
	assert.Equal(t, "http://localhost:5000/api/documents/5/preview", api.Documents.PreviewURL(5))
}
