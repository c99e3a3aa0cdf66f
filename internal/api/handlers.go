// internal/api/handlers.go
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gaochaoqwe/wordllm/internal/app"
	"github.com/gaochaoqwe/wordllm/internal/config"
	"github.com/gaochaoqwe/wordllm/internal/di"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/realtime"
	"github.com/gaochaoqwe/wordllm/internal/resources"
	"github.com/gaochaoqwe/wordllm/internal/services"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// Handler 控制台HTTP处理器
type Handler struct {
	app     *app.App
	hub     *EventHub
	rh      *ResponseHelper
	api     *resources.API
	config  *config.Config
	metrics *utils.RequestMetrics
	logger  *utils.Logger
}

// NewHandler 创建处理器，进程级服务从应用容器取出
func NewHandler(a *app.App, hub *EventHub) *Handler {
	c := a.Container()
	return &Handler{
		app:     a,
		hub:     hub,
		rh:      NewResponseHelper(),
		api:     di.MustResolve[*resources.API](c, di.ServiceResources),
		config:  di.MustResolve[*config.Config](c, di.ServiceConfig),
		metrics: di.MustResolve[*utils.RequestMetrics](c, di.ServiceMetrics),
		logger:  di.MustResolve[*utils.Logger](c, di.ServiceLogger),
	}
}

// session 当前会话，没有时直接写回 409
func (h *Handler) session(c *gin.Context) *app.Session {
	sess := h.app.Current()
	if sess == nil {
		h.rh.Conflict(c, ErrorNoSession, "尚未打开项目")
		return nil
	}
	return sess
}

func (h *Handler) editor(c *gin.Context) *services.DocumentEditor {
	if sess := h.session(c); sess != nil {
		return h.editorOf(c, sess)
	}
	return nil
}

// editorOf 从会话容器取出编辑器
func (h *Handler) editorOf(c *gin.Context, sess *app.Session) *services.DocumentEditor {
	ed, err := di.Resolve[*services.DocumentEditor](sess.Container, di.ServiceEditor)
	if err != nil {
		h.rh.Error(c, http.StatusInternalServerError, ErrorInternalError, "会话缺少编辑器", err.Error())
		return nil
	}
	return ed
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func searchParams(c *gin.Context) models.SearchParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	return models.SearchParams{Title: c.Query("title"), Page: page, Size: size}
}

// formFile 读取可选的上传文件
func formFile(c *gin.Context, field string) (*models.Upload, error) {
	fh, err := c.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &models.Upload{FileName: fh.Filename, Data: data}, nil
}

// ===============================
// 会话
// ===============================

// MountRequest 打开项目
type MountRequest struct {
	ProjectID     string `json:"projectId"`
	TemplateID    string `json:"templateId"`
	InputFileName string `json:"inputFileName"`
	Location      string `json:"location"`
}

// Mount POST /api/session
func (h *Handler) Mount(c *gin.Context) {
	var req MountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	var location *url.URL
	if req.Location != "" {
		u, err := url.Parse(req.Location)
		if err != nil {
			h.rh.BadRequest(c, "location 不是合法的地址", err.Error())
			return
		}
		location = u
	}

	sess, ids, err := h.app.Mount(c.Request.Context(), req.ProjectID, req.TemplateID, req.InputFileName, location)
	if sess == nil {
		h.rh.FromError(c, err)
		return
	}
	// 章节加载失败不影响打开项目，提示已经推送过
	ed := h.editorOf(c, sess)
	if ed == nil {
		return
	}
	data := gin.H{"identifiers": ids, "snapshot": ed.Snapshot()}
	if err != nil {
		data["loadError"] = err.Error()
	}
	h.rh.Success(c, data, "项目已打开")
}

// Snapshot GET /api/session
func (h *Handler) Snapshot(c *gin.Context) {
	if ed := h.editor(c); ed != nil {
		h.rh.Success(c, ed.Snapshot())
	}
}

// LoadDefaults POST /api/session/defaults
func (h *Handler) LoadDefaults(c *gin.Context) {
	if ed := h.editor(c); ed != nil {
		ed.State.LoadDefaultChapters()
		h.rh.Success(c, ed.State.Chapters())
	}
}

// ===============================
// 章节编辑
// ===============================

// AddChapter POST /api/chapters
func (h *Handler) AddChapter(c *gin.Context) {
	if ed := h.editor(c); ed != nil {
		h.rh.Success(c, ed.State.AddChapter(), "已添加章节")
	}
}

// RemoveChapter DELETE /api/chapters/:number
func (h *Handler) RemoveChapter(c *gin.Context) {
	if ed := h.editor(c); ed != nil {
		ed.State.RemoveChapterByKey(c.Param("number"))
		h.rh.Success(c, ed.State.Chapters())
	}
}

// RequirementRequest 章节写作要求
type RequirementRequest struct {
	Text *string `json:"text"`
}

// SetRequirement PUT /api/chapters/:number/requirement
// 不带 text 时只保证要求字段存在
func (h *Handler) SetRequirement(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	var req RequirementRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	number := c.Param("number")
	if req.Text == nil {
		ed.State.AddRequirementByKey(number)
	} else if err := ed.State.SetRequirement(number, *req.Text); err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, ed.State.FindChapter(number))
}

// SelectChapter POST /api/chapters/:number/select
func (h *Handler) SelectChapter(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	number := c.Param("number")
	if err := ed.SelectChapter(number); err != nil {
		h.rh.FromError(c, err)
		return
	}
	content, _ := ed.State.ContentOf(number)
	h.rh.Success(c, gin.H{"chapterNumber": number, "content": content, "status": ed.State.StatusOf(number)})
}

// ===============================
// 大纲
// ===============================

// GenerateOutline POST /api/outline/generate (multipart)
func (h *Handler) GenerateOutline(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	file, err := formFile(c, "input_file")
	if err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorFileInvalid, "读取上传文件失败", err.Error())
		return
	}

	templateID := c.PostForm("template_id")
	if templateID == "" {
		templateID = ed.State.TemplateID()
	}
	res, err := ed.Outline.GenerateOutline(c.Request.Context(), resources.OutlineRequest{
		TemplateID:    templateID,
		OutlinePrompt: c.PostForm("outline_prompt"),
		InputFile:     file,
	})
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	ed.State.SetChapters(res.Chapters)
	h.rh.Success(c, res, "大纲已生成")
}

// ExpandOutline POST /api/outline/expand (multipart)
func (h *Handler) ExpandOutline(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	file, err := formFile(c, "input_file")
	if err != nil {
		h.rh.Error(c, http.StatusBadRequest, ErrorFileInvalid, "读取上传文件失败", err.Error())
		return
	}
	res, err := ed.Outline.GenerateSubchapters(c.Request.Context(), ed.State.TemplateID(), ed.State.Chapters(), file)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	ed.State.SetChapters(res.Chapters)
	ed.State.SetHasGeneratedSubchapters(true)
	h.rh.Success(c, res)
}

// SaveOutline POST /api/outline/save
func (h *Handler) SaveOutline(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	ids, err := ed.Outline.SaveChaptersToDB(c.Request.Context())
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, gin.H{"ids": ids, "chapters": ed.State.Chapters()})
}

// RegenerateRequest 重新生成章节
type RegenerateRequest struct {
	Requirement    string `json:"requirement"`
	PreserveEdited bool   `json:"preserveEdited"`
}

// RegenerateOutline POST /api/outline/regenerate
func (h *Handler) RegenerateOutline(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	var req RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	if req.Requirement != "" {
		ed.State.SetRegenerateRequirement(req.Requirement)
	}
	chapters, err := ed.Outline.RegenerateChapters(c.Request.Context(), req.PreserveEdited)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, chapters)
}

// SubchapterRequest 续写子章节
type SubchapterRequest struct {
	Requirement string `json:"requirement"`
}

// ContinueSubchapters POST /api/outline/subchapters
func (h *Handler) ContinueSubchapters(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	var req SubchapterRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	chapters, err := ed.Outline.ContinueGenerateSubchapters(c.Request.Context(), req.Requirement)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, chapters)
}

// StartDocument POST /api/outline/start-document
func (h *Handler) StartDocument(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	if err := ed.Outline.StartDocumentGeneration(c.Request.Context()); err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Accepted(c, gin.H{"projectId": ed.State.ProjectID()}, "文档生成已开始")
}

// ===============================
// 正文
// ===============================

// GetContent GET /api/content/:number
func (h *Handler) GetContent(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	number := c.Param("number")
	if ed.State.FindChapter(number) == nil {
		h.rh.NotFound(c, "章节", number)
		return
	}
	content, _ := ed.State.ContentOf(number)
	h.rh.Success(c, gin.H{"chapterNumber": number, "content": content, "status": ed.State.StatusOf(number)})
}

// GenerateContent POST /api/content/:number/generate
func (h *Handler) GenerateContent(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	number := c.Param("number")
	text, err := ed.Content.GenerateContent(c.Request.Context(), number)
	h.metrics.RecordGeneration(err == nil)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, gin.H{"chapterNumber": number, "content": text})
}

// GenerateAll POST /api/generate-all
// 在会话生命周期内后台执行，进度通过 /api/progress 订阅
func (h *Handler) GenerateAll(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		return
	}
	ed := h.editorOf(c, sess)
	if ed == nil {
		return
	}
	// 跟踪器在受理前创建，进度订阅不会读到上一轮已结束的任务
	taskID, err := ed.Content.StartAutoGenerate(sess.Context(), func(err error) {
		if err != nil {
			h.logger.Warn("批量生成结束", map[string]interface{}{"project_id": ed.State.ProjectID(), "err": err.Error()})
		}
	})
	if err != nil {
		h.rh.FromError(c, err)
		return
	}

	h.rh.Accepted(c, gin.H{"taskId": taskID}, "批量生成已开始")
}

// ContentRequest 保存正文
type ContentRequest struct {
	Content string `json:"content"`
}

// SaveContent PUT /api/content/:number
func (h *Handler) SaveContent(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	if err := ed.Content.SaveChapterContent(c.Request.Context(), c.Param("number"), req.Content); err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, nil, "章节内容已保存")
}

// Chat POST /api/chat
func (h *Handler) Chat(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	reply, err := ed.Content.Chat(c.Request.Context(), req)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, reply)
}

// SubscribeProgress GET /api/progress 批量生成进度的SSE端点
func (h *Handler) SubscribeProgress(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	taskID := services.AutoGenerateTaskID(ed.State.ProjectID())

	tracker, exists := ed.Progress.GetTracker(taskID)
	if !exists {
		h.rh.NotFound(c, "任务", taskID)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	writeEvent := func(event string, v interface{}) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
		c.Writer.Flush()
	}

	// Subscribe 会先推送当前状态
	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updateChan:
			if !ok {
				return
			}
			writeEvent("progress", update)
			if update.Status == services.TaskCompleted || update.Status == services.TaskFailed {
				return
			}
		case <-ticker.C:
			writeEvent("heartbeat", gin.H{"time": time.Now().Unix()})
		}
	}
}

// ===============================
// 导出
// ===============================

// ExportRequest 导出参数；chapterNumber 为空时使用当前选中章节
type ExportRequest struct {
	Settings      models.ExportSettings `json:"settings"`
	ChapterNumber string                `json:"chapterNumber"`
}

// Export POST /api/export
func (h *Handler) Export(c *gin.Context) {
	ed := h.editor(c)
	if ed == nil {
		return
	}
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		h.rh.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	chapter := req.ChapterNumber
	if chapter == "" {
		chapter = ed.State.CurrentChapter()
	}
	res, err := ed.Export.RequestExport(c.Request.Context(), ed.State.ProjectID(), req.Settings, chapter)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, res, "文档下载成功")
}

// ===============================
// 模板、文档、项目
// ===============================

// ListTemplates GET /api/templates
func (h *Handler) ListTemplates(c *gin.Context) {
	page, err := h.api.Templates.Search(c.Request.Context(), searchParams(c))
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, page)
}

// GetTemplate GET /api/templates/:id
func (h *Handler) GetTemplate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.rh.BadRequest(c, "模板ID无效")
		return
	}
	tpl, err := h.api.Templates.Get(c.Request.Context(), id)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, tpl)
}

// DownloadTemplate GET /api/templates/:id/download
func (h *Handler) DownloadTemplate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.rh.BadRequest(c, "模板ID无效")
		return
	}
	blob, err := h.api.Templates.Download(c.Request.Context(), id)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.BlobResponse(c, blob, fmt.Sprintf("template_%d.docx", id))
}

// ListDocuments GET /api/documents
func (h *Handler) ListDocuments(c *gin.Context) {
	page, err := h.api.Documents.Search(c.Request.Context(), searchParams(c))
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, page)
}

// DownloadDocument GET /api/documents/:id/download
func (h *Handler) DownloadDocument(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		h.rh.BadRequest(c, "文档ID无效")
		return
	}
	blob, err := h.api.Documents.Download(c.Request.Context(), id)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.BlobResponse(c, blob, fmt.Sprintf("document_%d", id))
}

// ListProjects GET /api/projects
func (h *Handler) ListProjects(c *gin.Context) {
	p := searchParams(c)
	page, err := h.api.Projects.List(c.Request.Context(), p.Page, p.Size, p.Title)
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, page)
}

// GetProject GET /api/projects/:id
func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.api.Projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.rh.FromError(c, err)
		return
	}
	h.rh.Success(c, project)
}

// ===============================
// 状态
// ===============================

// Health GET /api/health
func (h *Handler) Health(c *gin.Context) {
	data := gin.H{
		"status":       "ok",
		"backend":      h.config.APIBaseURL,
		"eventClients": h.hub.Count(),
		"session":      false,
	}
	if sess := h.app.Current(); sess != nil {
		data["session"] = true
		if ed, err := di.Resolve[*services.DocumentEditor](sess.Container, di.ServiceEditor); err == nil {
			data["projectId"] = ed.State.ProjectID()
		}
		if rt, err := di.Resolve[*realtime.Client](sess.Container, di.ServiceRealtime); err == nil {
			data["realtimeConnected"] = rt.IsConnected()
		}
	}
	h.rh.Success(c, data)
}

// Metrics GET /api/metrics
func (h *Handler) Metrics(c *gin.Context) {
	data := gin.H{"requests": h.metrics.Collector().GetMetrics()}
	if sess := h.app.Current(); sess != nil {
		if ed, err := di.Resolve[*services.DocumentEditor](sess.Container, di.ServiceEditor); err == nil {
			data["generation"] = ed.Content.Metrics().GetMetrics()
		}
	}
	h.rh.Success(c, data)
}
