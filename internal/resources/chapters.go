// internal/resources/chapters.go
package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"sort"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/transport"
)

// ChapterAPI 章节接口：项目章节与文档章节两组路由
type ChapterAPI struct {
	client *transport.Client
}

func projectChaptersPath(projectID string) string {
	return "/projects/" + url.PathEscape(projectID) + "/chapters"
}

// List 获取项目章节列表，兼容多种返回结构
func (a *ChapterAPI) List(ctx context.Context, projectID string) ([]*models.Chapter, error) {
	if projectID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeNoProjectID, "项目ID不能为空")
	}
	var raw json.RawMessage
	if err := a.client.Get(ctx, projectChaptersPath(projectID), nil, &raw); err != nil {
		return nil, err
	}
	chapters, err := ParseChapterList(raw)
	if err != nil {
		return nil, err
	}
	return models.BuildTree(chapters), nil
}

// ParseChapterList 依次尝试 data.chapters、data.chapter_list、data[]、顶层 chapters、顶层数组
func ParseChapterList(raw json.RawMessage) ([]*models.Chapter, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return []*models.Chapter{}, nil
	}
	if raw[0] == '[' {
		return decodeChapters(raw)
	}

	var env struct {
		Success *bool           `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.NewParseError("章节数据格式不正确", err)
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "获取章节失败"
		}
		return nil, apperrors.NewLogicalFailure("LOGICAL_FAILURE", msg)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || string(data) == "null" {
		data = raw
	}
	if data[0] == '[' {
		return decodeChapters(data)
	}

	var nested struct {
		Chapters    json.RawMessage `json:"chapters"`
		ChapterList json.RawMessage `json:"chapter_list"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, apperrors.NewParseError("章节数据格式不正确", err)
	}
	switch {
	case len(nested.Chapters) > 0 && string(nested.Chapters) != "null":
		return decodeChapters(nested.Chapters)
	case len(nested.ChapterList) > 0 && string(nested.ChapterList) != "null":
		return decodeChapters(nested.ChapterList)
	}
	return []*models.Chapter{}, nil
}

func decodeChapters(raw json.RawMessage) ([]*models.Chapter, error) {
	var out []*models.Chapter
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.NewParseError("章节数据格式不正确", err)
	}
	return models.Normalize(out), nil
}

// Save 整体保存项目章节，后端会替换原有章节。返回新建章节的 ID
func (a *ChapterAPI) Save(ctx context.Context, projectID string, chapters []*models.Chapter) ([]int64, error) {
	if projectID == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeNoProjectID, "项目ID不能为空")
	}
	var env models.Envelope
	body := map[string]interface{}{"chapters": chapters}
	if err := a.client.Post(ctx, projectChaptersPath(projectID), body, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "保存章节失败"
		}
		return nil, apperrors.NewLogicalFailure(apperrors.CodeSaveRejected, msg)
	}

	var data struct {
		IDs []int64 `json:"ids"`
	}
	if err := transport.DecodeEnvelope(&env, &data); err != nil {
		return nil, err
	}
	return data.IDs, nil
}

// Get 获取单个章节（含内容）
func (a *ChapterAPI) Get(ctx context.Context, chapterID int64) (*models.Chapter, error) {
	var ch models.Chapter
	if err := a.client.GetData(ctx, idPath("/chapters/%d", chapterID), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Update 部分更新章节
func (a *ChapterAPI) Update(ctx context.Context, chapterID int64, patch models.ChapterPatch) (*models.Chapter, error) {
	var ch models.Chapter
	if err := a.client.PutData(ctx, idPath("/chapters/%d", chapterID), patch, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// UpdateContent 保存章节正文
func (a *ChapterAPI) UpdateContent(ctx context.Context, chapterID int64, content string) error {
	body := map[string]string{"content": content}
	return a.client.PutData(ctx, idPath("/chapters/%d/content", chapterID), body, nil)
}

// Delete 删除项目中的顶层章节。后端没有单章删除接口，先取列表再整体保存
func (a *ChapterAPI) Delete(ctx context.Context, projectID, chapterNumber string) error {
	chapters, err := a.List(ctx, projectID)
	if err != nil {
		return err
	}
	kept := make([]*models.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		if ch.ChapterNumber != chapterNumber {
			kept = append(kept, ch)
		}
	}
	if len(kept) == len(chapters) {
		return nil
	}
	_, err = a.Save(ctx, projectID, kept)
	return err
}

// Reorder 按给定编号顺序重排顶层章节，未列出的章节保持原相对顺序排在后面
func (a *ChapterAPI) Reorder(ctx context.Context, projectID string, order []string) error {
	chapters, err := a.List(ctx, projectID)
	if err != nil {
		return err
	}
	rank := make(map[string]int, len(order))
	for i, num := range order {
		rank[num] = i
	}
	sort.SliceStable(chapters, func(i, j int) bool {
		ri, iok := rank[chapters[i].ChapterNumber]
		rj, jok := rank[chapters[j].ChapterNumber]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		default:
			return false
		}
	})
	for i, ch := range chapters {
		ch.OrderIndex = i
	}
	_, err = a.Save(ctx, projectID, chapters)
	return err
}

func documentChaptersPath(documentID int64) string {
	return idPath("/documents/%d/chapters", documentID)
}

// ListForDocument 文档的章节列表
func (a *ChapterAPI) ListForDocument(ctx context.Context, documentID int64) ([]*models.Chapter, error) {
	var raw json.RawMessage
	if err := a.client.Get(ctx, documentChaptersPath(documentID), nil, &raw); err != nil {
		return nil, err
	}
	return ParseChapterList(raw)
}

// GetForDocument 文档中的单个章节
func (a *ChapterAPI) GetForDocument(ctx context.Context, documentID int64, chapterID string) (*models.Chapter, error) {
	var ch models.Chapter
	path := documentChaptersPath(documentID) + "/" + url.PathEscape(chapterID)
	if err := a.client.GetData(ctx, path, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// UpdateForDocument 更新文档中的章节
func (a *ChapterAPI) UpdateForDocument(ctx context.Context, documentID int64, chapterID string, patch models.ChapterPatch) (*models.Chapter, error) {
	var ch models.Chapter
	path := documentChaptersPath(documentID) + "/" + url.PathEscape(chapterID)
	if err := a.client.PutData(ctx, path, patch, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// DeleteForDocument 删除文档中的章节
func (a *ChapterAPI) DeleteForDocument(ctx context.Context, documentID int64, chapterID string) error {
	return a.client.Delete(ctx, documentChaptersPath(documentID)+"/"+url.PathEscape(chapterID), nil)
}

// Generate 生成文档中的单个章节
func (a *ChapterAPI) Generate(ctx context.Context, documentID int64, chapterID string, opts models.GenerateOptions) (*models.Chapter, error) {
	if opts.Mode == "" {
		opts.Mode = "quick"
	}
	var ch models.Chapter
	path := documentChaptersPath(documentID) + "/" + url.PathEscape(chapterID) + "/generate"
	if err := a.client.PostData(ctx, path, opts, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// BatchGenerate 批量生成文档的全部章节
func (a *ChapterAPI) BatchGenerate(ctx context.Context, documentID int64, opts models.GenerateOptions) ([]*models.Chapter, error) {
	if opts.Mode == "" {
		opts.Mode = "quick"
	}
	var out []*models.Chapter
	if err := a.client.PostData(ctx, documentChaptersPath(documentID)+"/batch-generate", opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReorderForDocument 更新文档章节顺序
func (a *ChapterAPI) ReorderForDocument(ctx context.Context, documentID int64, chapterIDs []string) error {
	body := map[string]interface{}{"chapterIds": chapterIDs}
	return a.client.PutData(ctx, documentChaptersPath(documentID)+"/order", body, nil)
}

// ExportOutline 导出文档大纲
func (a *ChapterAPI) ExportOutline(ctx context.Context, documentID int64) (*transport.Blob, error) {
	return a.client.GetBlob(ctx, idPath("/documents/%d/outline/export", documentID), nil)
}
