// internal/services/editor.go
package services

import (
	"context"
	"net/url"
	"sync"

	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/realtime"
	"github.com/gaochaoqwe/wordllm/internal/storage"
	"github.com/gaochaoqwe/wordllm/internal/transport"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// Subscriber 实时通道的订阅能力
type Subscriber interface {
	Subscribe(topic string, handler realtime.Handler)
	Unsubscribe(topic string)
}

// ProjectProgressTopic 项目生成进度主题
func ProjectProgressTopic(projectID string) string {
	return "/topic/projects/" + projectID + "/progress"
}

// RemoteProgress 后端推送的章节进度
type RemoteProgress struct {
	ChapterNumber string `json:"chapterNumber"`
	Status        string `json:"status"`
	Content       string `json:"content,omitempty"`
	Progress      *int   `json:"progress,omitempty"`
	Message       string `json:"message,omitempty"`
}

// DocumentEditor 单个编辑会话的组合根
type DocumentEditor struct {
	State    *OutlineState
	Outline  *OutlineService
	Content  *ContentService
	Export   *ExportService
	Progress *ProgressService

	realtime Subscriber
	store    storage.LocalStore
	logger   *utils.Logger

	mu        sync.Mutex
	topic     string
	listeners []func(topic string, msg RemoteProgress)
}

// EditorDeps DocumentEditor 的依赖
type EditorDeps struct {
	State    *OutlineState
	Outline  *OutlineService
	Content  *ContentService
	Export   *ExportService
	Progress *ProgressService
	Realtime Subscriber
	Store    storage.LocalStore
	Logger   *utils.Logger
}

// NewDocumentEditor 组装编辑会话
func NewDocumentEditor(deps EditorDeps) *DocumentEditor {
	return &DocumentEditor{
		State:    deps.State,
		Outline:  deps.Outline,
		Content:  deps.Content,
		Export:   deps.Export,
		Progress: deps.Progress,
		realtime: deps.Realtime,
		store:    deps.Store,
		logger:   utils.OrDefault(deps.Logger),
	}
}

// OnRemoteProgress 注册实时进度回调
func (e *DocumentEditor) OnRemoteProgress(fn func(topic string, msg RemoteProgress)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Mount 初始化会话、载入章节与正文并订阅项目进度。
// 项目或正文加载失败不影响订阅
func (e *DocumentEditor) Mount(ctx context.Context, projectID, templateID, inputFileName string, location *url.URL) (Identifiers, error) {
	ids, err := e.State.Initialize(projectID, templateID, inputFileName)
	if err != nil {
		return Identifiers{}, err
	}
	e.State.SetLocation(location)

	if e.store != nil {
		if err := e.store.Set(storage.KeyCurrentProjectID, ids.ProjectID); err != nil {
			e.logger.Warn("缓存项目ID失败", map[string]interface{}{"err": err.Error()})
		}
	}

	if ids.TemplateID == "" {
		if _, err := e.Outline.FetchProjectInfo(transport.Quiet(ctx)); err != nil {
			e.logger.Warn("获取项目详情失败", map[string]interface{}{"project_id": ids.ProjectID, "err": err.Error()})
		}
	}

	e.subscribe(ids.ProjectID)

	if _, err := e.Content.LoadEditorData(ctx, ids.ProjectID); err != nil {
		return e.State.Identifiers(), err
	}
	return e.State.Identifiers(), nil
}

// Unmount 取消订阅
func (e *DocumentEditor) Unmount() {
	e.mu.Lock()
	topic := e.topic
	e.topic = ""
	e.mu.Unlock()

	if topic != "" && e.realtime != nil {
		e.realtime.Unsubscribe(topic)
	}
}

func (e *DocumentEditor) subscribe(projectID string) {
	if e.realtime == nil {
		return
	}
	topic := ProjectProgressTopic(projectID)

	e.mu.Lock()
	previous := e.topic
	e.topic = topic
	e.mu.Unlock()

	if previous != "" && previous != topic {
		e.realtime.Unsubscribe(previous)
	}
	e.realtime.Subscribe(topic, func(msg realtime.Message) {
		var p RemoteProgress
		if err := msg.Decode(&p); err != nil {
			e.logger.Warn("无法解析进度消息", map[string]interface{}{"topic": msg.Topic, "err": err.Error()})
			return
		}
		e.applyRemote(msg.Topic, p)
	})
}

// applyRemote 把推送的章节进度写回会话
func (e *DocumentEditor) applyRemote(topic string, p RemoteProgress) {
	if p.ChapterNumber != "" && e.State.FindChapter(p.ChapterNumber) != nil {
		if p.Content != "" {
			e.State.SetContent(p.ChapterNumber, p.Content)
		}
		if p.Status != "" {
			e.State.SetStatus(p.ChapterNumber, models.ParseChapterStatus(p.Status))
		}
	}

	e.mu.Lock()
	listeners := append([]func(string, RemoteProgress){}, e.listeners...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(topic, p)
	}
}

// SelectChapter 切换章节
func (e *DocumentEditor) SelectChapter(chapterNumber string) error {
	return e.State.SelectChapter(chapterNumber)
}

// Snapshot 会话状态
func (e *DocumentEditor) Snapshot() StateSnapshot {
	return e.State.Snapshot()
}
