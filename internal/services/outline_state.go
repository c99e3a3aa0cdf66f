// internal/services/outline_state.go
package services

import (
	"net/url"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
)

const defaultInputFileName = "输入文件.docx"

// Identifiers Initialize 的返回值
type Identifiers struct {
	ProjectID     string `json:"projectId"`
	TemplateID    string `json:"templateId,omitempty"`
	InputFileName string `json:"inputFileName"`
}

// StateSnapshot 会话状态的只读副本
type StateSnapshot struct {
	Identifiers
	Chapters                []*models.Chapter               `json:"chapters"`
	DocumentContents        map[string]string               `json:"documentContents"`
	Statuses                map[string]models.ChapterStatus `json:"statuses"`
	HasGeneratedSubchapters bool                            `json:"hasGeneratedSubchapters"`
	IsGeneratingDocument    bool                            `json:"isGeneratingDocument"`
	IsRegenerating          bool                            `json:"isRegenerating"`
	RegenerateRequirement   string                          `json:"regenerateRequirement"`
	CurrentChapter          string                          `json:"currentChapter,omitempty"`
	EditorContent           string                          `json:"editorContent"`
	IsGenerating            bool                            `json:"isGenerating"`
	AutoGenerating          bool                            `json:"autoGenerating"`
	CurrentGeneratingIndex  int                             `json:"currentGeneratingIndex"`
	Progress                int                             `json:"progress"`
}

// OutlineState 单个编辑会话的章节树与流程标记。
// 每个会话一个实例，由调用方显式创建并注入各服务。
// 锁只包住读写本身，不跨越网络请求。
type OutlineState struct {
	mu sync.RWMutex

	ids      Identifiers
	location *url.URL

	chapters []*models.Chapter
	contents map[string]string
	statuses map[string]models.ChapterStatus

	hasGeneratedSubchapters bool
	isGeneratingDocument    bool
	isRegenerating          bool
	regenerateRequirement   string

	currentChapter         string
	editorContent          string
	isGenerating           bool
	autoGenerating         bool
	currentGeneratingIndex int
	progress               int
}

// NewOutlineState 创建空会话
func NewOutlineState() *OutlineState {
	return &OutlineState{
		ids:      Identifiers{InputFileName: defaultInputFileName},
		chapters: []*models.Chapter{},
		contents: make(map[string]string),
		statuses: make(map[string]models.ChapterStatus),
	}
}

// Initialize 设置会话标识，重复调用直接覆盖
func (s *OutlineState) Initialize(projectID, templateID, inputFileName string) (Identifiers, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return Identifiers{}, apperrors.NewValidationError(apperrors.CodeMissingProjectID, "未找到项目ID，无法加载大纲")
	}
	if inputFileName == "" {
		inputFileName = defaultInputFileName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = Identifiers{
		ProjectID:     projectID,
		TemplateID:    strings.TrimSpace(templateID),
		InputFileName: inputFileName,
	}
	return s.ids, nil
}

// Identifiers 当前标识
func (s *OutlineState) Identifiers() Identifiers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids
}

// ProjectID 当前项目 ID
func (s *OutlineState) ProjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids.ProjectID
}

// TemplateID 当前模板 ID
func (s *OutlineState) TemplateID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids.TemplateID
}

// SetTemplateID 项目详情补齐模板 ID 时使用
func (s *OutlineState) SetTemplateID(id string) {
	s.mu.Lock()
	s.ids.TemplateID = strings.TrimSpace(id)
	s.mu.Unlock()
}

// SetLocation 记录当前入口地址，模板 ID 解析会读取它
func (s *OutlineState) SetLocation(u *url.URL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.location = nil
		return
	}
	cp := *u
	s.location = &cp
}

// Location 当前入口地址
func (s *OutlineState) Location() *url.URL {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location == nil {
		return nil
	}
	cp := *s.location
	return &cp
}

// LoadDefaultChapters 用五个占位章节替换整棵树
func (s *OutlineState) LoadDefaultChapters() {
	titles := []string{"引言", "研究方法", "实验设计", "数据分析", "结论与展望"}
	chapters := make([]*models.Chapter, 0, len(titles))
	for i, title := range titles {
		chapters = append(chapters, &models.Chapter{
			ChapterNumber: strconv.Itoa(i + 1),
			Title:         title,
			Children:      []*models.Chapter{},
		})
	}

	s.SetChapters(chapters)
}

// AddChapter 追加一个未持久化的章节
func (s *OutlineState) AddChapter() *models.Chapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := strconv.Itoa(len(s.chapters) + 1)
	ch := &models.Chapter{
		ChapterNumber: next,
		Title:         "新章节 " + next,
		Children:      []*models.Chapter{},
	}
	s.chapters = append(s.chapters, ch)
	return ch.Clone()
}

// RemoveChapterAt 按顶层位置删除，越界时什么也不做
func (s *OutlineState) RemoveChapterAt(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.chapters) {
		return
	}
	removed := s.chapters[index]
	s.chapters = append(s.chapters[:index], s.chapters[index+1:]...)
	s.forgetLocked(removed)
}

// RemoveChapterByKey 按编号在整棵树中删除，找不到时什么也不做
func (s *OutlineState) RemoveChapterByKey(chapterNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed *models.Chapter
	s.chapters, removed = removeByKey(s.chapters, chapterNumber)
	if removed != nil {
		s.forgetLocked(removed)
	}
}

func removeByKey(chapters []*models.Chapter, key string) ([]*models.Chapter, *models.Chapter) {
	for i, ch := range chapters {
		if ch.ChapterNumber == key {
			return append(chapters[:i], chapters[i+1:]...), ch
		}
	}
	for _, ch := range chapters {
		if children, removed := removeByKey(ch.Children, key); removed != nil {
			ch.Children = children
			return chapters, removed
		}
	}
	return chapters, nil
}

// forgetLocked 删除章节后清掉它和子章节的正文与状态，编号复用时不会带出旧正文
func (s *OutlineState) forgetLocked(removed *models.Chapter) {
	models.Walk([]*models.Chapter{removed}, func(ch *models.Chapter, _ int) bool {
		delete(s.contents, ch.ChapterNumber)
		delete(s.statuses, ch.ChapterNumber)
		if s.currentChapter == ch.ChapterNumber {
			s.currentChapter = ""
			s.editorContent = ""
		}
		return true
	})
}

// AddRequirementAt 确保顶层章节带有 requirement 字段
func (s *OutlineState) AddRequirementAt(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.chapters) {
		return
	}
	ensureRequirement(s.chapters[index])
}

// AddRequirementByKey 按编号确保章节带有 requirement 字段
func (s *OutlineState) AddRequirementByKey(chapterNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch := models.FindByNumber(s.chapters, chapterNumber); ch != nil {
		ensureRequirement(ch)
	}
}

func ensureRequirement(ch *models.Chapter) {
	if ch.Requirement == nil {
		ch.Requirement = models.StringPtr("")
	}
}

// SetRequirement 写入章节要求
func (s *OutlineState) SetRequirement(chapterNumber, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := models.FindByNumber(s.chapters, chapterNumber)
	if ch == nil {
		return apperrors.NewNotFoundError(apperrors.CodeChapterNotFound, "章节不存在: "+chapterNumber)
	}
	ch.Requirement = models.StringPtr(text)
	return nil
}

// SetChapters 替换整棵树。内容缓存与状态按新树重建，
// 旧树的正文不会沿用到编号相同的新章节上
func (s *OutlineState) SetChapters(chapters []*models.Chapter) {
	tree := models.Normalize(models.CloneTree(chapters))
	contents := make(map[string]string)
	statuses := make(map[string]models.ChapterStatus)
	models.Walk(tree, func(ch *models.Chapter, _ int) bool {
		if strings.TrimSpace(ch.Content) != "" {
			contents[ch.ChapterNumber] = ch.Content
		}
		if ch.Status != "" {
			statuses[ch.ChapterNumber] = ch.Status
		}
		return true
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters = tree
	s.contents = contents
	s.statuses = statuses
	if models.FindByNumber(tree, s.currentChapter) == nil {
		s.currentChapter = ""
	}
	s.editorContent = contents[s.currentChapter]
}

// Chapters 章节树副本
func (s *OutlineState) Chapters() []*models.Chapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneTree(s.chapters)
}

// ChapterCount 顶层章节数
func (s *OutlineState) ChapterCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chapters)
}

// FindChapter 按编号查找，返回副本
func (s *OutlineState) FindChapter(chapterNumber string) *models.Chapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.FindByNumber(s.chapters, chapterNumber).Clone()
}

// SelectChapter 切换当前章节，编辑区载入缓存正文
func (s *OutlineState) SelectChapter(chapterNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if models.FindByNumber(s.chapters, chapterNumber) == nil {
		return apperrors.NewNotFoundError(apperrors.CodeChapterNotFound, "章节不存在: "+chapterNumber)
	}
	s.currentChapter = chapterNumber
	s.editorContent = s.contents[chapterNumber]
	return nil
}

// CurrentChapter 当前章节编号
func (s *OutlineState) CurrentChapter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentChapter
}

// ContentOf 内容缓存中的正文
func (s *OutlineState) ContentOf(chapterNumber string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.contents[chapterNumber]
	return v, ok
}

// HasContent 缓存正文非空白
func (s *OutlineState) HasContent(chapterNumber string) bool {
	v, ok := s.ContentOf(chapterNumber)
	return ok && strings.TrimSpace(v) != ""
}

// SetContent 同时写内容缓存与树节点
func (s *OutlineState) SetContent(chapterNumber, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[chapterNumber] = content
	if ch := models.FindByNumber(s.chapters, chapterNumber); ch != nil {
		ch.Content = content
	}
	if s.currentChapter == chapterNumber {
		s.editorContent = content
	}
}

// SetEditorContent 编辑区正文，未保存前不进入缓存
func (s *OutlineState) SetEditorContent(content string) {
	s.mu.Lock()
	s.editorContent = content
	s.mu.Unlock()
}

// SetStatus 设置章节状态
func (s *OutlineState) SetStatus(chapterNumber string, status models.ChapterStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[chapterNumber] = status
	if ch := models.FindByNumber(s.chapters, chapterNumber); ch != nil {
		ch.Status = status
	}
}

// StatusOf 章节状态，未记录时为 unwritten
func (s *OutlineState) StatusOf(chapterNumber string) models.ChapterStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.statuses[chapterNumber]; ok {
		return st
	}
	return models.ChapterUnwritten
}

// Reconcile 保存前对齐内容缓存与树：缓存有值时写回树，树上独有的正文补进缓存。
// 返回对齐后的树副本
func (s *OutlineState) Reconcile() []*models.Chapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	models.Walk(s.chapters, func(ch *models.Chapter, _ int) bool {
		if v, ok := s.contents[ch.ChapterNumber]; ok {
			ch.Content = v
		} else if ch.Content != "" {
			s.contents[ch.ChapterNumber] = ch.Content
		}
		return true
	})
	return models.CloneTree(s.chapters)
}

// ApplySavedIDs 按顶层顺序回填后端返回的 ID
func (s *OutlineState) ApplySavedIDs(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		if i >= len(s.chapters) {
			break
		}
		s.chapters[i].ID = models.Int64Ptr(id)
	}
}

// SetHasGeneratedSubchapters 子章节已生成
func (s *OutlineState) SetHasGeneratedSubchapters(v bool) {
	s.mu.Lock()
	s.hasGeneratedSubchapters = v
	s.mu.Unlock()
}

// SetGeneratingDocument 整篇生成中
func (s *OutlineState) SetGeneratingDocument(v bool) {
	s.mu.Lock()
	s.isGeneratingDocument = v
	s.mu.Unlock()
}

// SetRegenerating 重新生成中
func (s *OutlineState) SetRegenerating(v bool) {
	s.mu.Lock()
	s.isRegenerating = v
	s.mu.Unlock()
}

// SetRegenerateRequirement 重新生成时附带的要求
func (s *OutlineState) SetRegenerateRequirement(text string) {
	s.mu.Lock()
	s.regenerateRequirement = text
	s.mu.Unlock()
}

// RegenerateRequirement 当前的重新生成要求
func (s *OutlineState) RegenerateRequirement() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regenerateRequirement
}

// SetGenerating 单章生成中
func (s *OutlineState) SetGenerating(v bool) {
	s.mu.Lock()
	s.isGenerating = v
	s.mu.Unlock()
}

// tryBeginAutoGenerate 检查并置位批量生成标记
func (s *OutlineState) tryBeginAutoGenerate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoGenerating {
		return false
	}
	s.autoGenerating = true
	s.currentGeneratingIndex = 0
	s.progress = 0
	return true
}

func (s *OutlineState) endAutoGenerate() {
	s.mu.Lock()
	s.autoGenerating = false
	s.mu.Unlock()
}

// AutoGenerating 批量生成是否在进行
func (s *OutlineState) AutoGenerating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoGenerating
}

func (s *OutlineState) setProgress(index, progress int) {
	s.mu.Lock()
	s.currentGeneratingIndex = index
	s.progress = progress
	s.mu.Unlock()
}

// Progress 批量生成进度
func (s *OutlineState) Progress() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Snapshot 完整状态副本
func (s *OutlineState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contents := make(map[string]string, len(s.contents))
	for k, v := range s.contents {
		contents[k] = v
	}
	statuses := make(map[string]models.ChapterStatus, len(s.statuses))
	for k, v := range s.statuses {
		statuses[k] = v
	}
	return StateSnapshot{
		Identifiers:             s.ids,
		Chapters:                models.CloneTree(s.chapters),
		DocumentContents:        contents,
		Statuses:                statuses,
		HasGeneratedSubchapters: s.hasGeneratedSubchapters,
		IsGeneratingDocument:    s.isGeneratingDocument,
		IsRegenerating:          s.isRegenerating,
		RegenerateRequirement:   s.regenerateRequirement,
		CurrentChapter:          s.currentChapter,
		EditorContent:           s.editorContent,
		IsGenerating:            s.isGenerating,
		AutoGenerating:          s.autoGenerating,
		CurrentGeneratingIndex:  s.currentGeneratingIndex,
		Progress:                s.progress,
	}
}
