package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/realtime"
	"github.com/gaochaoqwe/wordllm/internal/resources"
	"github.com/gaochaoqwe/wordllm/internal/storage"
	"github.com/gaochaoqwe/wordllm/internal/transport"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

type fixture struct {
	state    *OutlineState
	store    *storage.MemoryStore
	recorder *notify.Recorder
	outline  *OutlineService
	content  *ContentService
	export   *ExportService
	progress *ProgressService
	api      *resources.API
}

func newFixture(t *testing.T, setup func(r *gin.RouterGroup)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	setup(r.Group("/api"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	rec := notify.NewRecorder()
	logger := utils.NewNopLogger()
	client := transport.New(srv.URL+"/api",
		transport.WithLogger(logger),
		transport.WithNotifier(rec),
		transport.WithTimeout(2*time.Second))
	api := resources.New(client)

	state := NewOutlineState()
	store := storage.NewMemoryStore()
	resolver := NewTemplateResolver(state, store, logger)
	progress := NewProgressService()

	return &fixture{
		state:    state,
		store:    store,
		recorder: rec,
		api:      api,
		progress: progress,
		outline:  NewOutlineService(state, api, nil, rec, logger),
		content: NewContentService(ContentServiceOptions{
			State:    state,
			Content:  api.Content,
			Repo:     api.Chapters,
			Resolver: resolver,
			Progress: progress,
			Notifier: rec,
			Logger:   logger,
		}),
		export: NewExportService(api, FileSaver{Dir: t.TempDir()}, rec, logger),
	}
}

func (f *fixture) init(t *testing.T, chapters ...*models.Chapter) {
	t.Helper()
	_, err := f.state.Initialize("42", "7", "")
	require.NoError(t, err)
	f.state.SetChapters(chapters)
}

func (f *fixture) levels(level notify.Level) []notify.Notification {
	var out []notify.Notification
	for _, n := range f.recorder.All() {
		if n.Level == level {
			out = append(out, n)
		}
	}
	return out
}

func flatChapters(n int) []*models.Chapter {
	out := make([]*models.Chapter, 0, n)
	for i := 1; i <= n; i++ {
		num := string(rune('0' + i))
		out = append(out, &models.Chapter{ChapterNumber: num, Title: "第" + num + "章"})
	}
	return out
}

type contentBody struct {
	TemplateID    json.RawMessage `json:"template_id"`
	ProjectID     json.RawMessage `json:"project_id"`
	ChapterNumber string          `json:"chapter_number"`
}

func TestGenerateContentUnescapesNewlines(t *testing.T) {
	var got contentBody
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/documents/generate-content", func(c *gin.Context) {
			require.NoError(t, c.ShouldBindJSON(&got))
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"content": `第一段\n第二段`}})
		})
	})
	f.init(t, flatChapters(2)...)

	text, err := f.content.GenerateContent(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "第一段\n第二段", text)
	assert.Equal(t, "2", got.ChapterNumber)
	assert.JSONEq(t, `7`, string(got.TemplateID))
	assert.JSONEq(t, `42`, string(got.ProjectID))

	v, _ := f.state.ContentOf("2")
	assert.Equal(t, text, v)
	assert.Equal(t, text, f.state.FindChapter("2").Content)
	assert.Equal(t, models.ChapterDone, f.state.StatusOf("2"))
}

func TestGenerateContentPlaceholder(t *testing.T) {
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/documents/generate-content", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"content": gin.H{"blocks": []string{"x"}}}})
		})
	})
	f.init(t, flatChapters(1)...)

	text, err := f.content.GenerateContent(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, `This is auto-generated example content for "第1章".`, text)
}

func TestGenerateContentFailureNotifiesOnce(t *testing.T) {
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/documents/generate-content", func(c *gin.Context) {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "模型不可用"})
		})
	})
	f.init(t, flatChapters(1)...)

	_, err := f.content.GenerateContent(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusOf(err))
	assert.Equal(t, models.ChapterFailed, f.state.StatusOf("1"))

	errs := f.levels(notify.LevelError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "模型不可用")
}

func TestAutoGenerateSkipsCachedContent(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/documents/generate-content", func(c *gin.Context) {
			var body contentBody
			_ = c.ShouldBindJSON(&body)
			mu.Lock()
			calls = append(calls, body.ChapterNumber)
			mu.Unlock()
			c.JSON(http.StatusOK, gin.H{"content": "生成的" + body.ChapterNumber})
		})
	})
	chapters := flatChapters(3)
	chapters[0].Content = "已有正文"
	chapters[1].Content = "   "
	f.init(t, chapters...)

	require.NoError(t, f.content.AutoGenerateAll(context.Background()))
	assert.Equal(t, []string{"2", "3"}, calls)

	v, _ := f.state.ContentOf("1")
	assert.Equal(t, "已有正文", v)

	// 第二次全部命中缓存
	calls = nil
	require.NoError(t, f.content.AutoGenerateAll(context.Background()))
	assert.Empty(t, calls)
	assert.Equal(t, int64(4), f.content.Metrics().GetMetrics()["skipped_chapters"])
}

func TestAutoGenerateProgressIsMonotonic(t *testing.T) {
	var seen []int
	var f *fixture
	f = newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/documents/generate-content", func(c *gin.Context) {
			seen = append(seen, f.state.Progress())
			c.JSON(http.StatusOK, gin.H{"content": "ok"})
		})
	})
	chapters := flatChapters(3)
	chapters[0].Children = []*models.Chapter{{ChapterNumber: "1.1", Title: "小节"}}
	f.init(t, chapters...)

	require.NoError(t, f.content.AutoGenerateAll(context.Background()))
	// 树序：1, 1.1, 2, 3
	assert.Equal(t, []int{0, 25, 50, 75}, seen)
	assert.Equal(t, 100, f.state.Progress())
	assert.False(t, f.state.AutoGenerating())

	tracker, ok := f.progress.GetTracker(AutoGenerateTaskID("42"))
	require.True(t, ok)
	snap := tracker.Snapshot()
	assert.Equal(t, TaskCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)

	success := f.levels(notify.LevelSuccess)
	require.NotEmpty(t, success)
	assert.Equal(t, "已完成 4 个章节的内容生成", success[len(success)-1].Message)
}

func TestAutoGenerateRejectsReentry(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/documents/generate-content", func(c *gin.Context) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			c.JSON(http.StatusOK, gin.H{"content": "ok"})
		})
	})
	f.init(t, flatChapters(1)...)

	done := make(chan error, 1)
	go func() { done <- f.content.AutoGenerateAll(context.Background()) }()
	<-entered

	err := f.content.AutoGenerateAll(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyRunning))
	warns := f.levels(notify.LevelWarning)
	require.Len(t, warns, 1)
	assert.Equal(t, apperrors.CodeAlreadyRunning, warns[0].Code)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.state.AutoGenerating())
}

func TestAutoGenerateContinuesAfterFailure(t *testing.T) {
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/documents/generate-content", func(c *gin.Context) {
			var body contentBody
			_ = c.ShouldBindJSON(&body)
			if body.ChapterNumber == "2" {
				c.JSON(http.StatusBadGateway, gin.H{"message": "超时"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"content": "ok"})
		})
	})
	f.init(t, flatChapters(3)...)

	require.NoError(t, f.content.AutoGenerateAll(context.Background()))
	assert.Equal(t, models.ChapterDone, f.state.StatusOf("1"))
	assert.Equal(t, models.ChapterFailed, f.state.StatusOf("2"))
	assert.Equal(t, models.ChapterDone, f.state.StatusOf("3"))
}

func TestAutoGenerateStopsOnCancel(t *testing.T) {
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/documents/generate-content", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"content": "ok"})
		})
	})
	f.content.delay = time.Hour
	f.init(t, flatChapters(3)...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for !f.state.HasContent("1") {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	err := f.content.AutoGenerateAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.state.HasContent("2"))
	assert.False(t, f.state.AutoGenerating())
}

func TestSaveChaptersToDB(t *testing.T) {
	var saved []*models.Chapter
	reject := false
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/projects/:id/chapters", func(c *gin.Context) {
			if reject {
				c.JSON(http.StatusOK, gin.H{"success": false, "message": "标题重复"})
				return
			}
			var body struct {
				Chapters []*models.Chapter `json:"chapters"`
			}
			require.NoError(t, c.ShouldBindJSON(&body))
			saved = body.Chapters
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"ids": []int64{31, 32}}})
		})
	})

	_, err := f.outline.SaveChaptersToDB(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoProjectID))

	_, err = f.state.Initialize("42", "", "")
	require.NoError(t, err)
	_, err = f.outline.SaveChaptersToDB(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoChapters))

	f.state.SetChapters(flatChapters(2))
	f.state.SetContent("2", "正文")

	ids, err := f.outline.SaveChaptersToDB(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{31, 32}, ids)
	require.Len(t, saved, 2)
	assert.Equal(t, "正文", saved[1].Content)
	assert.Equal(t, int64(31), *f.state.Chapters()[0].ID)
	assert.Equal(t, "章节目录已保存到数据库", f.levels(notify.LevelSuccess)[0].Message)

	reject = true
	_, err = f.outline.SaveChaptersToDB(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSaveRejected))
	errs := f.levels(notify.LevelError)
	require.Len(t, errs, 1)
	assert.Equal(t, "批量保存章节目录失败: 标题重复", errs[0].Message)
}

func TestRegenerateChaptersResetsRequirement(t *testing.T) {
	var query url.Values
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.GET("/outlines/regenerate", func(c *gin.Context) {
			query = c.Request.URL.Query()
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"chapters": []gin.H{
				{"id": 1, "chapter_number": "1", "title": "新的一章"},
				{"id": 2, "chapter_number": "1.1", "title": "新的小节", "parent_id": 1},
			}}})
		})
		r.POST("/projects/:id/chapters", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"ids": []int64{1}}})
		})
	})
	f.init(t, flatChapters(2)...)
	f.state.SetRegenerateRequirement("更简洁")

	chapters, err := f.outline.RegenerateChapters(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "1.1", chapters[0].Children[0].ChapterNumber)

	assert.Equal(t, "更简洁", query.Get("requirement"))
	assert.Equal(t, "true", query.Get("preserveEdited"))
	assert.True(t, strings.Contains(query.Get("currentChapters"), "第2章"))
	assert.Empty(t, f.state.RegenerateRequirement())
}

func TestRegenerateDropsContentOfReplacedChapters(t *testing.T) {
	var saved []*models.Chapter
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.GET("/outlines/regenerate", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"chapters": []gin.H{
				{"chapter_number": "1", "title": "背景"},
				{"chapter_number": "2", "title": "方法", "content": "后端正文"},
			}}})
		})
		r.POST("/projects/:id/chapters", func(c *gin.Context) {
			var body struct {
				Chapters []*models.Chapter `json:"chapters"`
			}
			require.NoError(t, c.ShouldBindJSON(&body))
			saved = body.Chapters
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"ids": []int64{1, 2}}})
		})
	})
	f.init(t, flatChapters(2)...)
	f.state.SetContent("1", "引言正文")
	f.state.SetStatus("1", models.ChapterDone)
	require.NoError(t, f.state.SelectChapter("1"))

	_, err := f.outline.RegenerateChapters(context.Background(), false)
	require.NoError(t, err)

	require.Len(t, saved, 2)
	assert.Equal(t, "背景", saved[0].Title)
	assert.Empty(t, saved[0].Content)
	assert.Equal(t, "后端正文", saved[1].Content)

	assert.False(t, f.state.HasContent("1"))
	assert.True(t, f.state.HasContent("2"))
	assert.Equal(t, models.ChapterUnwritten, f.state.StatusOf("1"))
	assert.Empty(t, f.state.Snapshot().EditorContent)
}

func TestRegenerateChaptersNeedsIdentifiers(t *testing.T) {
	f := newFixture(t, func(r *gin.RouterGroup) {})
	_, err := f.state.Initialize("42", "", "")
	require.NoError(t, err)

	_, err = f.outline.RegenerateChapters(context.Background(), false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeMissingTemplateID))
	assert.Len(t, f.levels(notify.LevelError), 1)
}

func TestExportScopeDowngrade(t *testing.T) {
	var bodies []models.ExportSettings
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/projects/:id/export", func(c *gin.Context) {
			var s models.ExportSettings
			require.NoError(t, c.ShouldBindJSON(&s))
			bodies = append(bodies, s)
			c.Data(http.StatusOK, models.ContentTypeFor(s.Format), []byte("DOCX"))
		})
	})
	f.export.now = func() time.Time { return time.Date(2026, 3, 1, 8, 30, 15, 0, time.UTC) }

	settings := models.DefaultExportSettings()
	settings.Scope = models.ScopeCurrent

	res, err := f.export.RequestExport(context.Background(), "42", settings, "")
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	assert.Equal(t, models.ScopeAll, bodies[0].Scope)
	assert.Nil(t, bodies[0].CurrentChapter)
	assert.Equal(t, "项目文档_42_2026-03-01T08-30-15.docx", res.FileName)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "DOCX", string(data))
	assert.Equal(t, res.FileName, filepath.Base(res.Path))

	warns := f.levels(notify.LevelWarning)
	require.Len(t, warns, 1)
	assert.Equal(t, "无法获取当前章节编号，将下载所有章节", warns[0].Message)

	_, err = f.export.RequestExport(context.Background(), "42", settings, "3")
	require.NoError(t, err)
	require.Len(t, bodies, 2)
	assert.Equal(t, models.ScopeCurrent, bodies[1].Scope)
	require.NotNil(t, bodies[1].CurrentChapter)
	assert.Equal(t, 3, *bodies[1].CurrentChapter)
}

func TestExportFailureIsSingleNotification(t *testing.T) {
	calls := 0
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.POST("/projects/:id/export", func(c *gin.Context) {
			calls++
			c.JSON(http.StatusInternalServerError, gin.H{"message": "渲染失败"})
		})
	})

	_, err := f.export.RequestExport(context.Background(), "42", models.DefaultExportSettings(), "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExportFailed))
	assert.Equal(t, 1, calls)

	errs := f.levels(notify.LevelError)
	require.Len(t, errs, 1)
	assert.Equal(t, "文档下载失败，请重试", errs[0].Message)

	_, err = f.export.RequestExport(context.Background(), "", models.DefaultExportSettings(), "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeMissingProjectID))
}

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]realtime.Handler
}

func (s *fakeSubscriber) Subscribe(topic string, h realtime.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = map[string]realtime.Handler{}
	}
	s.handlers[topic] = h
}

func (s *fakeSubscriber) Unsubscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, topic)
}

func TestMountLoadsEditorData(t *testing.T) {
	f := newFixture(t, func(r *gin.RouterGroup) {
		r.GET("/projects/:id", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": 42, "title": "报告", "template_id": 9}})
		})
		r.GET("/projects/:id/chapters", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": []gin.H{
				{"id": 1, "chapter_number": "1", "title": "概述"},
				{"id": 2, "chapter_number": "2", "title": ""},
				{"id": 3, "chapter_number": "3", "title": "附录"},
			}})
		})
		r.GET("/chapters/:id", func(c *gin.Context) {
			if c.Param("id") == "3" {
				c.JSON(http.StatusNotFound, gin.H{"message": "不存在"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": c.Param("id"), "content": "正文" + c.Param("id")}})
		})
	})

	sub := &fakeSubscriber{}
	editor := NewDocumentEditor(EditorDeps{
		State:    f.state,
		Outline:  f.outline,
		Content:  f.content,
		Export:   f.export,
		Progress: f.progress,
		Realtime: sub,
		Store:    f.store,
		Logger:   utils.NewNopLogger(),
	})

	loc, _ := url.Parse("/document/edit?projectId=42")
	ids, err := editor.Mount(context.Background(), "42", "", "", loc)
	require.NoError(t, err)
	assert.Equal(t, "9", ids.TemplateID)

	stored, _, _ := f.store.Get(storage.KeyCurrentProjectID)
	assert.Equal(t, "42", stored)

	v, _ := f.state.ContentOf("1")
	assert.Equal(t, "正文1", v)
	assert.Equal(t, "未命名章节", f.state.FindChapter("2").Title)
	assert.False(t, f.state.HasContent("3"))
	assert.Equal(t, models.ChapterPending, f.state.StatusOf("3"))
	// 单章拉取失败不产生提示
	assert.Empty(t, f.levels(notify.LevelError))

	handler := sub.handlers[ProjectProgressTopic("42")]
	require.NotNil(t, handler)
	handler(realtime.Message{Topic: ProjectProgressTopic("42"), Raw: json.RawMessage(`{"chapterNumber":"3","status":"completed","content":"推送正文"}`)})
	v, _ = f.state.ContentOf("3")
	assert.Equal(t, "推送正文", v)
	assert.Equal(t, models.ChapterDone, f.state.StatusOf("3"))

	editor.Unmount()
	assert.Empty(t, sub.handlers)
}
