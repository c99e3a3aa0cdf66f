// internal/services/repository.go
package services

import (
	"context"

	"github.com/gaochaoqwe/wordllm/internal/models"
)

// ChapterRepository 项目章节的持久化能力
type ChapterRepository interface {
	List(ctx context.Context, projectID string) ([]*models.Chapter, error)
	Save(ctx context.Context, projectID string, chapters []*models.Chapter) ([]int64, error)
	Get(ctx context.Context, chapterID int64) (*models.Chapter, error)
	Update(ctx context.Context, chapterID int64, patch models.ChapterPatch) (*models.Chapter, error)
	UpdateContent(ctx context.Context, chapterID int64, content string) error
	Delete(ctx context.Context, projectID, chapterNumber string) error
	Reorder(ctx context.Context, projectID string, order []string) error
}

// ContentGenerator 章节正文生成能力
type ContentGenerator interface {
	GenerateContent(ctx context.Context, chapterNumber string) (string, error)
	AutoGenerateAll(ctx context.Context) error
	StartAutoGenerate(ctx context.Context, done func(error)) (string, error)
}
