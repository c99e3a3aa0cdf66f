// internal/models/resources.go
package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Document 上传的源文档
type Document struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title,omitempty"`
	OriginalFilename string     `json:"originalFilename"`
	FileSize         int64      `json:"fileSize"`
	FileType         string     `json:"fileType"`
	TemplateID       *int64     `json:"templateId,omitempty"`
	Status           string     `json:"status"` // PENDING | PROCESSING | COMPLETED | ERROR
	CreatedAt        string     `json:"createdAt,omitempty"`
	UpdatedAt        string     `json:"updatedAt,omitempty"`
	Chapters         []*Chapter `json:"chapters,omitempty"`
}

// Template 文档模板，含自定义提示词
type Template struct {
	ID               int64  `json:"id"`
	Title            string `json:"title,omitempty"`
	OriginalFilename string `json:"originalFilename,omitempty"`
	FileSize         int64  `json:"fileSize,omitempty"`
	FileType         string `json:"fileType,omitempty"`
	Content          string `json:"content,omitempty"`
	Status           string `json:"status,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
	UpdatedAt        string `json:"updated_at,omitempty"`
	OutlinePrompt    string `json:"outline_prompt,omitempty"`
	SubchapterPrompt string `json:"subchapter_prompt,omitempty"`
	ContentPrompt    string `json:"content_prompt,omitempty"`
}

// TemplatePreview 模板预览
type TemplatePreview struct {
	Content string `json:"content"`
}

// Project 项目
type Project struct {
	ID           int64  `json:"id"`
	Title        string `json:"title,omitempty"`
	ProjectName  string `json:"project_name,omitempty"`
	TemplateName string `json:"template_name,omitempty"`
	TemplateID   *int64 `json:"template_id,omitempty"`
	InputFile    string `json:"input_file,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// DisplayName 优先使用项目名称
func (p *Project) DisplayName() string {
	if p.ProjectName != "" {
		return p.ProjectName
	}
	return p.Title
}

// ProjectInput 创建或更新项目
type ProjectInput struct {
	Title        string `json:"title,omitempty"`
	TemplateID   *int64 `json:"templateId,omitempty"`
	InputFile    string `json:"inputFile,omitempty"`
	ProjectName  string `json:"project_name,omitempty"`
	TemplateName string `json:"template_name,omitempty"`
}

// GenerateOptions 单章或批量生成选项
type GenerateOptions struct {
	Mode         string   `json:"mode"` // quick | precise
	MaxTokens    *int     `json:"maxTokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	CustomPrompt string   `json:"customPrompt,omitempty"`
}

// Envelope 后端通用返回结构
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Page 零起始页码的分页结果
type Page[T any] struct {
	Content       []T  `json:"content"`
	TotalElements int  `json:"totalElements"`
	TotalPages    int  `json:"totalPages"`
	Size          int  `json:"size"`
	Number        int  `json:"number"`
	Last          bool `json:"last"`
}

// ProjectPage 项目列表的分页结构
type ProjectPage struct {
	Success     bool       `json:"success"`
	Data        []*Project `json:"data"`
	Total       int        `json:"total"`
	Pages       int        `json:"pages"`
	CurrentPage int        `json:"current_page"`
	PerPage     int        `json:"per_page"`
	HasNext     bool       `json:"has_next"`
	HasPrev     bool       `json:"has_prev"`
	Message     string     `json:"message,omitempty"`
}

// SearchParams 列表查询参数，Page 从 1 开始
type SearchParams struct {
	Title string
	Page  int
	Size  int
}

// ZeroBasedPage 发送给后端的页码，永不为负
func (p SearchParams) ZeroBasedPage() int {
	if p.Page-1 < 0 {
		return 0
	}
	return p.Page - 1
}

// PageSize 默认每页 10 条
func (p SearchParams) PageSize() int {
	if p.Size <= 0 {
		return 10
	}
	return p.Size
}

// ChatMessage 对话消息
type ChatMessage struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// ChatRequest 章节对话请求
type ChatRequest struct {
	Chapter    Summary       `json:"chapter"`
	Messages   []ChatMessage `json:"messages"`
	TemplateID string        `json:"template_id"`
}

// ChatReply 对话回复
type ChatReply struct {
	Response ChatMessage `json:"response"`
}

// GeneratedContent 单章生成结果，content 可能不是字符串
type GeneratedContent struct {
	Chapter *Chapter        `json:"chapter,omitempty"`
	Content json.RawMessage `json:"content"`
}

// Text content 为字符串时返回其值
func (g *GeneratedContent) Text() (string, bool) {
	if g == nil || len(g.Content) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(g.Content, &s); err != nil {
		return "", false
	}
	return s, true
}

// Upload 待上传的文件
type Upload struct {
	FileName string
	Data     []byte
}

// Empty 没有文件内容
func (u *Upload) Empty() bool {
	return u == nil || u.FileName == "" || len(u.Data) == 0
}

// ChapterPatch 章节的部分更新
type ChapterPatch struct {
	Title      *string `json:"title,omitempty"`
	Content    *string `json:"content,omitempty"`
	OrderIndex *int    `json:"order_index,omitempty"`
	Status     string  `json:"status,omitempty"`
}

// OutlineResult 大纲生成结果
type OutlineResult struct {
	Chapters []*Chapter     `json:"chapters"`
	Raw      json.RawMessage `json:"-"`
}

// IDValue 数字 ID 按数字发送，其余原样发送
func IDValue(id string) interface{} {
	if n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err == nil {
		return n
	}
	return id
}
