// internal/services/export_service.go
package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/resources"
	"github.com/gaochaoqwe/wordllm/internal/transport"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// Saver 导出文件的落地方式
type Saver interface {
	Save(name, contentType string, data []byte) (string, error)
}

// FileSaver 写入本地目录
type FileSaver struct {
	Dir string
}

// Save 实现 Saver，返回写入路径
func (f FileSaver) Save(name, contentType string, data []byte) (string, error) {
	dir := f.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建导出目录失败: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("写入导出文件失败: %w", err)
	}
	return path, nil
}

// ExportResult 一次导出的结果
type ExportResult struct {
	FileName    string `json:"fileName"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Format      string `json:"format,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// ExportService 文档导出与下载
type ExportService struct {
	projects  *resources.ProjectAPI
	documents *resources.DocumentAPI
	templates *resources.TemplateAPI
	chapters  *resources.ChapterAPI
	saver     Saver
	notifier  notify.Notifier
	logger    *utils.Logger
	now       func() time.Time
}

// NewExportService 创建导出服务
func NewExportService(api *resources.API, saver Saver, notifier notify.Notifier, logger *utils.Logger) *ExportService {
	if saver == nil {
		saver = FileSaver{Dir: "."}
	}
	return &ExportService{
		projects:  api.Projects,
		documents: api.Documents,
		templates: api.Templates,
		chapters:  api.Chapters,
		saver:     saver,
		notifier:  notifier,
		logger:    utils.OrDefault(logger),
		now:       time.Now,
	}
}

// ExportFileName 项目文档_<id>_<时间戳>.<格式>
func ExportFileName(projectID, format string, at time.Time) string {
	return fmt.Sprintf("项目文档_%s_%s.%s", projectID, at.UTC().Format("2006-01-02T15-04-05"), format)
}

// currentChapterNumber 导出只接受整数章节编号
func currentChapterNumber(chapterNumber string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(chapterNumber))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// RequestExport 导出整篇或当前章节。
// 当前章节无法确定时退回导出全部；请求失败只提示一次，不重试
func (s *ExportService) RequestExport(ctx context.Context, projectID string, settings models.ExportSettings, currentChapter string) (*ExportResult, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeMissingProjectID, "未找到项目ID，无法导出")
	}
	if settings.Format == "" {
		settings.Format = models.FormatDocx
	}
	if settings.Scope == "" {
		settings.Scope = models.ScopeAll
	}

	if settings.Scope == models.ScopeCurrent {
		if n, ok := currentChapterNumber(currentChapter); ok {
			settings.CurrentChapter = &n
		} else {
			notify.Warn(s.notifier, "", "无法获取当前章节编号，将下载所有章节")
			settings.Scope = models.ScopeAll
			settings.CurrentChapter = nil
		}
	}

	notify.Info(s.notifier, "正在生成文档，请稍候...")
	blob, err := s.projects.Export(transport.Quiet(ctx), projectID, settings)
	if err != nil {
		notify.Error(s.notifier, apperrors.CodeExportFailed, "文档下载失败，请重试")
		s.logger.Error("导出文档失败", map[string]interface{}{"project_id": projectID, "err": err.Error()})
		return nil, &apperrors.AppError{
			Type:    apperrors.ErrorTypeTransport,
			Message: "文档下载失败",
			Err:     err,
			Code:    apperrors.CodeExportFailed,
			Status:  apperrors.StatusOf(err),
		}
	}

	name := ExportFileName(projectID, settings.Format, s.now())
	res, err := s.save(name, models.ContentTypeFor(settings.Format), blob.Data)
	if err != nil {
		notify.Error(s.notifier, apperrors.CodeExportFailed, "文档下载失败，请重试")
		return nil, err
	}
	res.Format = settings.Format
	res.Scope = settings.Scope

	notify.Success(s.notifier, "文档下载成功")
	s.logger.Info("文档已导出", map[string]interface{}{"project_id": projectID, "path": res.Path, "scope": settings.Scope})
	return res, nil
}

func (s *ExportService) save(name, contentType string, data []byte) (*ExportResult, error) {
	path, err := s.saver.Save(name, contentType, data)
	if err != nil {
		s.logger.Error("保存导出文件失败", map[string]interface{}{"file": name, "err": err.Error()})
		return nil, err
	}
	return &ExportResult{
		FileName:    name,
		Path:        path,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *ExportService) saveBlob(blob *transport.Blob, fallback string) (*ExportResult, error) {
	name := blob.FileName
	if name == "" {
		name = fallback
	}
	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.save(name, contentType, blob.Data)
}

// DownloadDocument 下载原始文档
func (s *ExportService) DownloadDocument(ctx context.Context, documentID int64) (*ExportResult, error) {
	blob, err := s.documents.Download(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.saveBlob(blob, fmt.Sprintf("document_%d", documentID))
}

// DownloadTemplate 下载模板文件
func (s *ExportService) DownloadTemplate(ctx context.Context, templateID int64) (*ExportResult, error) {
	blob, err := s.templates.Download(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return s.saveBlob(blob, fmt.Sprintf("template_%d", templateID))
}

// ExportOutline 导出文档大纲
func (s *ExportService) ExportOutline(ctx context.Context, documentID int64) (*ExportResult, error) {
	blob, err := s.chapters.ExportOutline(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.saveBlob(blob, fmt.Sprintf("outline_%d.docx", documentID))
}
