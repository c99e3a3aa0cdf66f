// internal/models/chapter.go
package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ChapterStatus 章节在生成会话中的状态，只存在于客户端内存
type ChapterStatus string

const (
	ChapterUnwritten ChapterStatus = "unwritten"
	ChapterWriting   ChapterStatus = "writing"
	ChapterDone      ChapterStatus = "done"
	ChapterFailed    ChapterStatus = "failed"
	ChapterPending   ChapterStatus = "pending"
)

// ParseChapterStatus 将后端不同词汇统一到客户端状态
func ParseChapterStatus(s string) ChapterStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "writing", "generating":
		return ChapterWriting
	case "done", "completed", "confirmed":
		return ChapterDone
	case "failed", "error":
		return ChapterFailed
	case "pending":
		return ChapterPending
	case "", "unwritten", "unconfirmed":
		return ChapterUnwritten
	default:
		return ChapterUnwritten
	}
}

// Chapter 章节树节点
type Chapter struct {
	ID            *int64        `json:"id,omitempty"`
	ChapterNumber string        `json:"chapterNumber"`
	Title         string        `json:"title"`
	Content       string        `json:"content,omitempty"`
	Children      []*Chapter    `json:"children"`
	Status        ChapterStatus `json:"status,omitempty"`
	Requirement   *string       `json:"requirement,omitempty"`
	ParentID      *int64        `json:"parent_id,omitempty"`
	OrderIndex    int           `json:"order_index,omitempty"`
	ProjectID     string        `json:"project_id,omitempty"`
	TemplateID    string        `json:"template_id,omitempty"`
}

// chapterWire 后端与前端两种字段命名都接受
type chapterWire struct {
	ID               json.RawMessage `json:"id"`
	ChapterNumber    json.RawMessage `json:"chapterNumber"`
	ChapterNumberAlt json.RawMessage `json:"chapter_number"`
	Title            string          `json:"title"`
	Content          *string         `json:"content"`
	Children         []*Chapter      `json:"children"`
	Status           string          `json:"status"`
	Requirement      *string         `json:"requirement"`
	ParentID         json.RawMessage `json:"parent_id"`
	OrderIndex       json.RawMessage `json:"order_index"`
	ProjectID        json.RawMessage `json:"project_id"`
	TemplateID       json.RawMessage `json:"template_id"`
}

// UnmarshalJSON 兼容 chapterNumber / chapter_number，数字与字符串均可
func (c *Chapter) UnmarshalJSON(data []byte) error {
	var w chapterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*c = Chapter{
		Title:       w.Title,
		Children:    w.Children,
		Requirement: w.Requirement,
		ProjectID:   FlexString(w.ProjectID),
		TemplateID:  FlexString(w.TemplateID),
	}
	if w.Content != nil {
		c.Content = *w.Content
	}
	if w.Status != "" {
		c.Status = ParseChapterStatus(w.Status)
	}

	c.ChapterNumber = FlexString(w.ChapterNumber)
	if c.ChapterNumber == "" {
		c.ChapterNumber = FlexString(w.ChapterNumberAlt)
	}

	c.ID = flexInt(w.ID)
	c.ParentID = flexInt(w.ParentID)
	if idx := flexInt(w.OrderIndex); idx != nil {
		c.OrderIndex = int(*idx)
	}
	if c.Children == nil {
		c.Children = []*Chapter{}
	}
	return nil
}

// MarshalJSON 同时输出两种编号字段
func (c Chapter) MarshalJSON() ([]byte, error) {
	type plain Chapter
	children := c.Children
	if children == nil {
		children = []*Chapter{}
	}
	p := plain(c)
	p.Children = children
	return json.Marshal(struct {
		plain
		ChapterNumberAlt string `json:"chapter_number"`
	}{plain: p, ChapterNumberAlt: c.ChapterNumber})
}

// FlexString 把 JSON 字符串或数字统一为字符串
func FlexString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func flexInt(raw json.RawMessage) *int64 {
	s := FlexString(raw)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Int64Ptr 便捷构造
func Int64Ptr(v int64) *int64 { return &v }

// StringPtr 便捷构造
func StringPtr(s string) *string { return &s }

// Walk 先序遍历，fn 返回 false 时停止
func Walk(chapters []*Chapter, fn func(ch *Chapter, depth int) bool) {
	var walk func(list []*Chapter, depth int) bool
	walk = func(list []*Chapter, depth int) bool {
		for _, ch := range list {
			if ch == nil {
				continue
			}
			if !fn(ch, depth) {
				return false
			}
			if !walk(ch.Children, depth+1) {
				return false
			}
		}
		return true
	}
	walk(chapters, 0)
}

// Flatten 按树序展开
func Flatten(chapters []*Chapter) []*Chapter {
	out := make([]*Chapter, 0, len(chapters))
	Walk(chapters, func(ch *Chapter, _ int) bool {
		out = append(out, ch)
		return true
	})
	return out
}

// FindByNumber 在整棵树中查找章节
func FindByNumber(chapters []*Chapter, number string) *Chapter {
	var found *Chapter
	Walk(chapters, func(ch *Chapter, _ int) bool {
		if ch.ChapterNumber == number {
			found = ch
			return false
		}
		return true
	})
	return found
}

// Clone 深拷贝单个节点
func (c *Chapter) Clone() *Chapter {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ID != nil {
		cp.ID = Int64Ptr(*c.ID)
	}
	if c.ParentID != nil {
		cp.ParentID = Int64Ptr(*c.ParentID)
	}
	if c.Requirement != nil {
		cp.Requirement = StringPtr(*c.Requirement)
	}
	cp.Children = CloneTree(c.Children)
	return &cp
}

// CloneTree 深拷贝整棵树
func CloneTree(chapters []*Chapter) []*Chapter {
	out := make([]*Chapter, 0, len(chapters))
	for _, ch := range chapters {
		if ch != nil {
			out = append(out, ch.Clone())
		}
	}
	return out
}

// Normalize 去掉空节点，补齐 children，标题去空白
func Normalize(chapters []*Chapter) []*Chapter {
	out := make([]*Chapter, 0, len(chapters))
	for _, ch := range chapters {
		if ch == nil {
			continue
		}
		ch.Title = strings.TrimSpace(ch.Title)
		ch.Children = Normalize(ch.Children)
		out = append(out, ch)
	}
	return out
}

// Summary 只保留编号与标题，用于启动整篇生成
type Summary struct {
	ChapterNumber string `json:"chapterNumber"`
	Title         string `json:"title"`
}

// Summaries 顶层章节摘要
func Summaries(chapters []*Chapter) []Summary {
	out := make([]Summary, 0, len(chapters))
	for _, ch := range chapters {
		if ch != nil {
			out = append(out, Summary{ChapterNumber: ch.ChapterNumber, Title: ch.Title})
		}
	}
	return out
}

// BuildTree 把带 parent_id 的扁平列表还原成树，已有 children 的列表原样返回
func BuildTree(flat []*Chapter) []*Chapter {
	byID := make(map[int64]*Chapter, len(flat))
	for _, ch := range flat {
		if ch == nil {
			continue
		}
		if len(ch.Children) > 0 {
			return flat
		}
		if ch.ID != nil {
			byID[*ch.ID] = ch
		}
	}

	roots := make([]*Chapter, 0, len(flat))
	for _, ch := range flat {
		if ch == nil {
			continue
		}
		if ch.ParentID != nil {
			if parent, ok := byID[*ch.ParentID]; ok && parent != ch {
				parent.Children = append(parent.Children, ch)
				continue
			}
		}
		roots = append(roots, ch)
	}
	return roots
}
