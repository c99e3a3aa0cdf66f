// internal/services/outline_service.go
package services

import (
	"context"
	"strconv"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/resources"
	"github.com/gaochaoqwe/wordllm/internal/transport"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// OutlineService 大纲生成、子章节展开与章节保存
type OutlineService struct {
	state     *OutlineState
	outlines  *resources.OutlineAPI
	templates *resources.TemplateAPI
	projects  *resources.ProjectAPI
	content   *resources.ContentAPI
	repo      ChapterRepository
	notifier  notify.Notifier
	logger    *utils.Logger
}

// NewOutlineService 创建大纲服务，repo 为空时使用后端章节接口
func NewOutlineService(state *OutlineState, api *resources.API, repo ChapterRepository, notifier notify.Notifier, logger *utils.Logger) *OutlineService {
	if repo == nil {
		repo = api.Chapters
	}
	return &OutlineService{
		state:     state,
		outlines:  api.Outlines,
		templates: api.Templates,
		projects:  api.Projects,
		content:   api.Content,
		repo:      repo,
		notifier:  notifier,
		logger:    utils.OrDefault(logger),
	}
}

// GenerateOutline 提交模板与输入文件生成大纲，由调用方决定是否写入会话
func (s *OutlineService) GenerateOutline(ctx context.Context, req resources.OutlineRequest) (*models.OutlineResult, error) {
	if req.ProjectID == "" {
		req.ProjectID = s.state.ProjectID()
	}
	res, err := s.outlines.Generate(ctx, req)
	if err != nil {
		s.logger.Error("生成大纲失败", map[string]interface{}{"template_id": req.TemplateID, "err": err.Error()})
		return nil, err
	}
	s.logger.Info("大纲已生成", map[string]interface{}{"template_id": req.TemplateID, "chapters": len(res.Chapters)})
	return res, nil
}

// RegenerateOutline 带保留章节重新生成
func (s *OutlineService) RegenerateOutline(ctx context.Context, templateID string, preserved []*models.Chapter, requirement string, inputFile *models.Upload) (*models.OutlineResult, error) {
	s.state.SetRegenerating(true)
	defer s.state.SetRegenerating(false)

	res, err := s.outlines.Regenerate(ctx, resources.RegenerateRequest{
		TemplateID:        templateID,
		Requirement:       requirement,
		PreservedChapters: preserved,
		InputFile:         inputFile,
	})
	if err != nil {
		s.logger.Error("重新生成大纲失败", map[string]interface{}{"template_id": templateID, "err": err.Error()})
		return nil, err
	}
	return res, nil
}

// GenerateSubchapters 把扁平大纲展开成树
func (s *OutlineService) GenerateSubchapters(ctx context.Context, templateID string, chapters []*models.Chapter, inputFile *models.Upload) (*models.OutlineResult, error) {
	res, err := s.outlines.GenerateSubchapters(ctx, templateID, chapters, inputFile)
	if err != nil {
		s.logger.Error("生成子章节失败", map[string]interface{}{"template_id": templateID, "err": err.Error()})
		return nil, err
	}
	return res, nil
}

// FetchChapters 读取项目章节
func (s *OutlineService) FetchChapters(ctx context.Context, projectID string) ([]*models.Chapter, error) {
	if projectID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeNoProjectID, "项目ID不能为空")
	}
	chapters, err := s.repo.List(ctx, projectID)
	if err != nil {
		s.logger.Error("获取章节数据失败", map[string]interface{}{"project_id": projectID, "err": err.Error()})
		return nil, err
	}
	return chapters, nil
}

// LoadChapters 读取项目章节并写入会话
func (s *OutlineService) LoadChapters(ctx context.Context) ([]*models.Chapter, error) {
	chapters, err := s.FetchChapters(ctx, s.state.ProjectID())
	if err != nil {
		return nil, err
	}
	s.state.SetChapters(chapters)
	return s.state.Chapters(), nil
}

// FetchTemplateDetails 模板详情，失败时返回 nil
func (s *OutlineService) FetchTemplateDetails(ctx context.Context, templateID string) *models.Template {
	id, err := strconv.ParseInt(templateID, 10, 64)
	if err != nil {
		return nil
	}
	tpl, err := s.templates.Get(transport.Quiet(ctx), id)
	if err != nil {
		s.logger.Warn("获取模板详情失败", map[string]interface{}{"template_id": templateID, "err": err.Error()})
		return nil
	}
	return tpl
}

// FetchProjectInfo 项目详情，会话缺少模板 ID 时用项目绑定的模板补齐
func (s *OutlineService) FetchProjectInfo(ctx context.Context) (*models.Project, error) {
	projectID := s.state.ProjectID()
	if projectID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeNoProjectID, "项目ID不能为空")
	}
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if s.state.TemplateID() == "" && project.TemplateID != nil {
		s.state.SetTemplateID(strconv.FormatInt(*project.TemplateID, 10))
	}
	return project, nil
}

// SaveChaptersToDB 保存会话中的章节树
func (s *OutlineService) SaveChaptersToDB(ctx context.Context) ([]int64, error) {
	projectID := s.state.ProjectID()
	if projectID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeNoProjectID, "未找到项目ID，无法保存章节")
	}
	if s.state.ChapterCount() == 0 {
		return nil, apperrors.NewValidationError(apperrors.CodeNoChapters, "没有章节数据可保存")
	}

	chapters := s.state.Reconcile()
	ids, err := s.repo.Save(ctx, projectID, chapters)
	if err != nil {
		if apperrors.IsLogicalFailure(err) {
			var msg = err.Error()
			if appErr, ok := err.(*apperrors.AppError); ok {
				msg = appErr.Message
			}
			notify.Error(s.notifier, apperrors.CodeSaveRejected, "批量保存章节目录失败: "+msg)
			err = apperrors.NewLogicalFailure(apperrors.CodeSaveRejected, msg)
		}
		s.logger.Error("批量保存章节目录失败", map[string]interface{}{"project_id": projectID, "err": err.Error()})
		return nil, err
	}

	s.state.ApplySavedIDs(ids)
	notify.Success(s.notifier, "章节目录已保存到数据库")
	s.logger.Info("章节目录已保存", map[string]interface{}{"project_id": projectID, "count": len(chapters)})
	return ids, nil
}

// ContinueGenerateSubchapters 为会话中的章节生成子章节，成功后保存
func (s *OutlineService) ContinueGenerateSubchapters(ctx context.Context, requirement string) ([]*models.Chapter, error) {
	ids := s.state.Identifiers()
	if ids.ProjectID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeNoProjectID, "项目ID不存在，无法继续生成")
	}
	if ids.TemplateID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingTemplateID, "模板ID不存在，无法继续生成")
	}
	if s.state.ChapterCount() == 0 {
		return nil, apperrors.NewValidationError(apperrors.CodeNoChapters, "没有章节数据，无法继续生成")
	}

	res, err := s.outlines.ContinueSubchapters(ctx, resources.SubchapterRequest{
		ProjectID:   ids.ProjectID,
		TemplateID:  ids.TemplateID,
		Chapters:    s.state.Chapters(),
		Requirement: requirement,
	})
	if err != nil {
		s.logger.Error("生成子章节失败", map[string]interface{}{"project_id": ids.ProjectID, "err": err.Error()})
		return nil, err
	}
	if len(res.Chapters) == 0 {
		return nil, apperrors.NewParseError("返回数据格式不正确", nil)
	}

	s.state.SetChapters(res.Chapters)
	s.state.SetHasGeneratedSubchapters(true)
	if _, err := s.SaveChaptersToDB(ctx); err != nil {
		return nil, err
	}
	return s.state.Chapters(), nil
}

// RegenerateChapters 按会话中的重新生成要求刷新章节，preserveEdited 时带上当前章节。
// 无论成功与否都会清空要求
func (s *OutlineService) RegenerateChapters(ctx context.Context, preserveEdited bool) ([]*models.Chapter, error) {
	ids := s.state.Identifiers()
	if ids.ProjectID == "" || ids.TemplateID == "" {
		notify.Error(s.notifier, apperrors.CodeMissingTemplateID, "项目ID或模板ID不存在，无法重新生成")
		return nil, apperrors.NewValidationError(apperrors.CodeMissingTemplateID, "项目ID或模板ID不存在，无法重新生成")
	}

	s.state.SetRegenerating(false)
	defer s.state.SetRegenerateRequirement("")

	res, err := s.outlines.RegenerateByQuery(transport.Quiet(ctx), resources.RegenerateQuery{
		TemplateID:      ids.TemplateID,
		ProjectID:       ids.ProjectID,
		Requirement:     s.state.RegenerateRequirement(),
		PreserveEdited:  preserveEdited,
		CurrentChapters: s.state.Chapters(),
	})
	if err == nil && len(res.Chapters) == 0 {
		err = apperrors.NewParseError("返回数据格式不正确", nil)
	}
	if err != nil {
		notify.Error(s.notifier, apperrors.CodeRequestFailed, "重新生成大纲失败: "+messageOf(err))
		s.logger.Error("重新生成大纲失败", map[string]interface{}{"project_id": ids.ProjectID, "err": err.Error()})
		return nil, err
	}

	s.state.SetChapters(res.Chapters)
	notify.Success(s.notifier, "章节大纲已重新生成")
	if _, err := s.SaveChaptersToDB(ctx); err != nil {
		return nil, err
	}
	return s.state.Chapters(), nil
}

// StartDocumentGeneration 保存章节后通知后端开始整篇生成
func (s *OutlineService) StartDocumentGeneration(ctx context.Context) error {
	ids := s.state.Identifiers()
	if ids.ProjectID == "" {
		return apperrors.NewValidationError(apperrors.CodeNoProjectID, "项目ID不存在，无法生成文档内容")
	}
	if ids.TemplateID == "" {
		return apperrors.NewValidationError(apperrors.CodeMissingTemplateID, "模板ID不存在，无法生成文档内容")
	}
	if s.state.ChapterCount() == 0 {
		return apperrors.NewValidationError(apperrors.CodeNoChapters, "无可用的章节数据")
	}

	s.state.SetGeneratingDocument(true)
	if _, err := s.SaveChaptersToDB(ctx); err != nil {
		s.state.SetGeneratingDocument(false)
		return err
	}
	if err := s.content.StartGeneration(ctx, ids.TemplateID, ids.ProjectID, models.Summaries(s.state.Chapters())); err != nil {
		s.state.SetGeneratingDocument(false)
		s.logger.Error("启动文档内容生成失败", map[string]interface{}{"project_id": ids.ProjectID, "err": err.Error()})
		return err
	}
	s.logger.Info("已启动文档内容生成", map[string]interface{}{"project_id": ids.ProjectID})
	return nil
}

// messageOf AppError 取用户可读的消息
func messageOf(err error) string {
	if appErr, ok := err.(*apperrors.AppError); ok && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
