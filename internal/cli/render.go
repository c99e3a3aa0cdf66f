// internal/cli/render.go
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/services"
)

var (
	colorInfo    = lipgloss.Color("#2196F3")
	colorSuccess = lipgloss.Color("#8BC34A")
	colorWarning = lipgloss.Color("#FFC107")
	colorError   = lipgloss.Color("#e53935")
	colorMuted   = lipgloss.Color("#8a94a6")

	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	currentStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted)
)

// 章节状态标记
var statusBadges = map[models.ChapterStatus]lipgloss.Style{
	models.ChapterPending:   lipgloss.NewStyle().Foreground(colorMuted),
	models.ChapterUnwritten: lipgloss.NewStyle().Foreground(colorMuted),
	models.ChapterWriting:   lipgloss.NewStyle().Foreground(colorInfo),
	models.ChapterDone:      lipgloss.NewStyle().Foreground(colorSuccess),
	models.ChapterFailed:    lipgloss.NewStyle().Foreground(colorError),
}

var levelStyles = map[notify.Level]lipgloss.Style{
	notify.LevelInfo:    lipgloss.NewStyle().Foreground(colorInfo),
	notify.LevelSuccess: lipgloss.NewStyle().Foreground(colorSuccess),
	notify.LevelWarning: lipgloss.NewStyle().Foreground(colorWarning),
	notify.LevelError:   lipgloss.NewStyle().Foreground(colorError).Bold(true),
}

var levelIcons = map[notify.Level]string{
	notify.LevelInfo:    "•",
	notify.LevelSuccess: "✓",
	notify.LevelWarning: "!",
	notify.LevelError:   "✗",
}

// TerminalNotifier 把提示写到终端
func TerminalNotifier(w io.Writer) notify.Notifier {
	return notify.NotifierFunc(func(n notify.Notification) {
		style := levelStyles[n.Level]
		fmt.Fprintln(w, style.Render(levelIcons[n.Level]+" "+n.Message))
	})
}

// RenderTree 以缩进树的形式输出章节目录
func RenderTree(snap services.StateSnapshot) string {
	var b strings.Builder
	header := fmt.Sprintf("项目 %s", snap.ProjectID)
	if snap.TemplateID != "" {
		header += "  模板 " + snap.TemplateID
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	if len(snap.Chapters) == 0 {
		b.WriteString(mutedStyle.Render("  (没有章节)"))
		b.WriteString("\n")
		return b.String()
	}

	models.Walk(snap.Chapters, func(ch *models.Chapter, depth int) bool {
		status := snap.Statuses[ch.ChapterNumber]
		if status == "" {
			status = models.ChapterPending
		}
		badge := statusBadges[status].Render(fmt.Sprintf("[%s]", status))

		line := fmt.Sprintf("%s %s", ch.ChapterNumber, ch.Title)
		if ch.ChapterNumber == snap.CurrentChapter {
			line = currentStyle.Render(line)
		} else {
			line = titleStyle.Render(line)
		}

		b.WriteString(strings.Repeat("  ", depth+1))
		b.WriteString(line)
		b.WriteString(" ")
		b.WriteString(badge)
		if ch.Requirement != nil && *ch.Requirement != "" {
			b.WriteString(mutedStyle.Render("  要求: " + *ch.Requirement))
		}
		b.WriteString("\n")
		return true
	})
	return b.String()
}

// RenderContent 用 glamour 渲染章节正文，渲染失败时原样返回
func RenderContent(title, content string, width int) string {
	if width <= 0 {
		width = 80
	}
	md := "# " + title + "\n\n" + content
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// RenderTable 简单的两列列表
func RenderTable(rows [][2]string) string {
	width := 0
	for _, r := range rows {
		if w := lipgloss.Width(r[0]); w > width {
			width = w
		}
	}
	key := lipgloss.NewStyle().Width(width + 2).Foreground(colorMuted)
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, key.Render(r[0]), r[1]))
		b.WriteString("\n")
	}
	return b.String()
}
