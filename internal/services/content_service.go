// internal/services/content_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/resources"
	"github.com/gaochaoqwe/wordllm/internal/transport"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// 并行拉取章节正文的上限
const contentLoadLimit = 4

// ContentService 章节正文的生成、加载与保存
type ContentService struct {
	state    *OutlineState
	content  *resources.ContentAPI
	repo     ChapterRepository
	resolver *TemplateResolver
	progress *ProgressService
	metrics  *GenerationMetrics
	notifier notify.Notifier
	logger   *utils.Logger

	// 批量生成时两章之间的间隔
	delay time.Duration
}

// ContentServiceOptions 构造参数
type ContentServiceOptions struct {
	State    *OutlineState
	Content  *resources.ContentAPI
	Repo     ChapterRepository
	Resolver *TemplateResolver
	Progress *ProgressService
	Notifier notify.Notifier
	Logger   *utils.Logger
	Delay    time.Duration
}

// NewContentService 创建正文服务
func NewContentService(opts ContentServiceOptions) *ContentService {
	if opts.Progress == nil {
		opts.Progress = NewProgressService()
	}
	return &ContentService{
		state:    opts.State,
		content:  opts.Content,
		repo:     opts.Repo,
		resolver: opts.Resolver,
		progress: opts.Progress,
		metrics:  &GenerationMetrics{lastMetricsReset: time.Now()},
		notifier: opts.Notifier,
		logger:   utils.OrDefault(opts.Logger),
		delay:    opts.Delay,
	}
}

var _ ContentGenerator = (*ContentService)(nil)

// Metrics 生成指标
func (s *ContentService) Metrics() *GenerationMetrics {
	return s.metrics
}

// Progress 进度服务
func (s *ContentService) Progress() *ProgressService {
	return s.progress
}

// placeholderContent 后端返回的 content 不是字符串时的占位正文
func placeholderContent(title string) string {
	return fmt.Sprintf("This is auto-generated example content for \"%s\".", title)
}

// GenerateContent 生成单章正文并写入会话。
// 生成前后各读写一次会话状态，期间不持锁
func (s *ContentService) GenerateContent(ctx context.Context, chapterNumber string) (string, error) {
	ch := s.state.FindChapter(chapterNumber)
	if ch == nil {
		notify.Warn(s.notifier, apperrors.CodeChapterNotFound, "请先选择章节")
		return "", apperrors.NewNotFoundError(apperrors.CodeChapterNotFound, "章节不存在: "+chapterNumber)
	}

	templateID, err := s.resolver.Resolve(ch)
	if err != nil {
		notify.Error(s.notifier, apperrors.CodeMissingTemplateID, messageOf(err))
		return "", err
	}
	projectID := s.resolver.ResolveProject(s.state.Chapters())
	if projectID == "" {
		notify.Error(s.notifier, apperrors.CodeNoProjectID, "未找到项目ID，无法生成内容")
		return "", apperrors.NewValidationError(apperrors.CodeNoProjectID, "未找到项目ID，无法生成内容")
	}

	s.state.SetStatus(chapterNumber, models.ChapterWriting)
	s.state.SetGenerating(true)
	defer s.state.SetGenerating(false)

	s.metrics.begin()
	defer s.metrics.end()
	start := time.Now()

	res, err := s.content.Generate(transport.Quiet(ctx), resources.ContentRequest{
		TemplateID: templateID,
		ProjectID:  projectID,
		Chapter:    ch,
	})
	if err != nil {
		s.metrics.RecordGeneration(time.Since(start), false)
		s.state.SetStatus(chapterNumber, models.ChapterFailed)
		notify.Error(s.notifier, apperrors.CodeRequestFailed, "内容生成失败: "+messageOf(err))
		s.logger.Error("内容生成失败", map[string]interface{}{
			"chapter":     chapterNumber,
			"template_id": templateID,
			"err":         err.Error(),
		})
		return "", err
	}

	text, ok := res.Text()
	if ok {
		text = strings.ReplaceAll(text, `\n`, "\n")
	} else {
		text = placeholderContent(ch.Title)
	}

	s.state.SetContent(chapterNumber, text)
	s.state.SetStatus(chapterNumber, models.ChapterDone)
	s.metrics.RecordGeneration(time.Since(start), true)
	s.logger.Info("章节内容已生成", map[string]interface{}{
		"chapter":  chapterNumber,
		"length":   len(text),
		"duration": time.Since(start).Milliseconds(),
	})
	return text, nil
}

// AutoGenerateAll 按树序依次生成所有没有正文的章节。
// 单章失败只记录日志，不中断批量
func (s *ContentService) AutoGenerateAll(ctx context.Context) error {
	run, err := s.beginAutoGenerate()
	if run == nil {
		return err
	}
	return s.runAutoGenerate(ctx, run)
}

// StartAutoGenerate 返回前完成重入检查并创建跟踪器，生成在后台进行，
// 结束后调用 done。没有章节时返回 NO_CHAPTERS
func (s *ContentService) StartAutoGenerate(ctx context.Context, done func(error)) (string, error) {
	run, err := s.beginAutoGenerate()
	if err != nil {
		return "", err
	}
	if run == nil {
		return "", apperrors.NewValidationError(apperrors.CodeNoChapters, "未找到章节")
	}
	go func() {
		err := s.runAutoGenerate(ctx, run)
		if done != nil {
			done(err)
		}
	}()
	return run.tracker.TaskID, nil
}

type autoRun struct {
	tracker  *ProgressTracker
	chapters []*models.Chapter
}

// beginAutoGenerate 占用批量标记并创建跟踪器。没有章节时返回 nil, nil 且不占用标记
func (s *ContentService) beginAutoGenerate() (*autoRun, error) {
	if !s.state.tryBeginAutoGenerate() {
		notify.Warn(s.notifier, apperrors.CodeAlreadyRunning, "正在批量生成内容，请稍候")
		return nil, apperrors.NewConflictError(apperrors.CodeAlreadyRunning, "批量生成已在进行中")
	}

	chapters := models.Flatten(s.state.Chapters())
	if len(chapters) == 0 {
		s.state.endAutoGenerate()
		notify.Warn(s.notifier, apperrors.CodeNoChapters, "未找到章节")
		return nil, nil
	}

	// 同一项目上一轮已结束的跟踪器在这里被替换
	tracker := s.progress.CreateTracker(AutoGenerateTaskID(s.state.ProjectID()), len(chapters))
	return &autoRun{tracker: tracker, chapters: chapters}, nil
}

func (s *ContentService) runAutoGenerate(ctx context.Context, run *autoRun) error {
	defer s.state.endAutoGenerate()

	tracker := run.tracker
	total := len(run.chapters)
	generated := 0

	for i, ch := range run.chapters {
		if err := ctx.Err(); err != nil {
			tracker.Fail("批量生成已取消")
			return err
		}

		pct := i * 100 / total
		s.state.setProgress(i, pct)
		tracker.UpdateProgress(i, ch.ChapterNumber, pct, "正在生成: "+ch.Title)

		if s.state.HasContent(ch.ChapterNumber) {
			s.metrics.RecordSkip()
			continue
		}

		if err := s.state.SelectChapter(ch.ChapterNumber); err != nil {
			// 批量过程中章节被删除
			s.logger.Warn("章节已不存在，跳过", map[string]interface{}{"chapter": ch.ChapterNumber})
			continue
		}
		if _, err := s.GenerateContent(ctx, ch.ChapterNumber); err != nil {
			s.logger.Warn("批量生成中单章失败", map[string]interface{}{"chapter": ch.ChapterNumber, "err": err.Error()})
			continue
		}
		generated++

		if err := s.wait(ctx); err != nil {
			tracker.Fail("批量生成已取消")
			return err
		}
	}

	s.state.setProgress(total-1, 100)
	msg := fmt.Sprintf("已完成 %d 个章节的内容生成", total)
	tracker.Complete(msg)
	notify.Success(s.notifier, msg)
	s.logger.Info("批量生成完成", map[string]interface{}{"total": total, "generated": generated})
	return nil
}

func (s *ContentService) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadEditorData 读取章节目录后并行拉取每章正文，全部状态置为 pending。
// 单章正文拉取失败时该章正文为空
func (s *ContentService) LoadEditorData(ctx context.Context, projectID string) ([]*models.Chapter, error) {
	if projectID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeNoProjectID, "未找到项目ID，请先生成大纲并保存目录")
	}

	chapters, err := s.repo.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(chapters) == 0 {
		notify.Error(s.notifier, apperrors.CodeNoChapters, "数据库中没有章节，请先生成并保存目录")
		return nil, apperrors.NewValidationError(apperrors.CodeNoChapters, "数据库中没有章节")
	}

	flat := models.Flatten(chapters)
	var mu sync.Mutex
	contents := make(map[string]string, len(flat))

	g := new(errgroup.Group)
	g.SetLimit(contentLoadLimit)
	quiet := transport.Quiet(ctx)
	for _, ch := range flat {
		ch := ch
		if ch.ID == nil {
			continue
		}
		g.Go(func() error {
			full, err := s.repo.Get(quiet, *ch.ID)
			if err != nil {
				s.logger.Debug("拉取章节正文失败", map[string]interface{}{"chapter_id": *ch.ID, "err": err.Error()})
				return nil
			}
			mu.Lock()
			contents[ch.ChapterNumber] = full.Content
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, ch := range flat {
		if strings.TrimSpace(ch.Title) == "" {
			ch.Title = "未命名章节"
		}
		if v, ok := contents[ch.ChapterNumber]; ok {
			ch.Content = v
		}
	}

	s.state.SetChapters(chapters)
	for _, ch := range flat {
		s.state.SetContent(ch.ChapterNumber, ch.Content)
		s.state.SetStatus(ch.ChapterNumber, models.ChapterPending)
	}

	notify.Success(s.notifier, fmt.Sprintf("已从数据库加载 %d 个章节", len(flat)))
	return s.state.Chapters(), nil
}

// SaveChapterContent 先写本地缓存再写后端
func (s *ContentService) SaveChapterContent(ctx context.Context, chapterNumber, content string) error {
	ch := s.state.FindChapter(chapterNumber)
	if ch == nil {
		notify.Warn(s.notifier, apperrors.CodeChapterNotFound, "请先选择章节")
		return apperrors.NewNotFoundError(apperrors.CodeChapterNotFound, "章节不存在: "+chapterNumber)
	}

	s.state.SetContent(chapterNumber, content)
	if ch.ID == nil {
		err := apperrors.NewValidationError(apperrors.CodeNoChapters, "章节尚未保存到数据库")
		notify.Error(s.notifier, err.Code, "保存内容失败: "+err.Message)
		return err
	}

	if err := s.repo.UpdateContent(transport.Quiet(ctx), *ch.ID, content); err != nil {
		notify.Error(s.notifier, apperrors.CodeRequestFailed, "保存内容失败: "+messageOf(err))
		return err
	}
	notify.Success(s.notifier, "章节内容已保存")
	return nil
}

// SaveCurrent 保存编辑区正文到当前章节
func (s *ContentService) SaveCurrent(ctx context.Context) error {
	snap := s.state.Snapshot()
	if snap.CurrentChapter == "" {
		notify.Warn(s.notifier, apperrors.CodeChapterNotFound, "请先选择章节")
		return apperrors.NewValidationError(apperrors.CodeChapterNotFound, "未选择章节")
	}
	return s.SaveChapterContent(ctx, snap.CurrentChapter, snap.EditorContent)
}

// Chat 针对章节对话，模板 ID 缺省时走解析链
func (s *ContentService) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	if req.TemplateID == "" {
		id, err := s.resolver.Resolve(s.state.FindChapter(req.Chapter.ChapterNumber))
		if err != nil {
			return nil, err
		}
		req.TemplateID = id
	}
	return s.content.Chat(ctx, req)
}
