// internal/cli/content.go
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaochaoqwe/wordllm/internal/app"
	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
)

func newContentCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "查看与生成章节正文",
	}

	var width int
	show := &cobra.Command{
		Use:   "show <chapter-number>",
		Short: "渲染章节正文",
		Args:  cobra.ExactArgs(1),
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			ch := sess.Editor.State.FindChapter(args[0])
			if ch == nil {
				return apperrors.NewNotFoundError(apperrors.CodeChapterNotFound, "章节不存在: "+args[0])
			}
			content, ok := sess.Editor.State.ContentOf(args[0])
			if !ok || strings.TrimSpace(content) == "" {
				content = "_尚未生成正文_"
			}
			fmt.Fprint(r.out, RenderContent(ch.ChapterNumber+" "+ch.Title, content, width))
			return nil
		}),
	}
	show.Flags().IntVarP(&width, "width", "w", 80, "换行宽度")

	var save bool
	generate := &cobra.Command{
		Use:   "generate <chapter-number>",
		Short: "生成单章正文",
		Args:  cobra.ExactArgs(1),
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			ed := sess.Editor
			if err := ed.SelectChapter(args[0]); err != nil {
				return err
			}
			text, err := ed.Content.GenerateContent(ctx, args[0])
			if err != nil {
				return err
			}
			if save {
				if err := ed.Content.SaveCurrent(ctx); err != nil {
					return err
				}
			}
			title := args[0]
			if ch := ed.State.FindChapter(args[0]); ch != nil {
				title += " " + ch.Title
			}
			fmt.Fprint(r.out, RenderContent(title, text, 80))
			return nil
		}),
	}
	generate.Flags().BoolVar(&save, "save", true, "生成后保存到后端")

	generateAll := &cobra.Command{
		Use:   "generate-all",
		Short: "依次生成所有没有正文的章节",
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			return r.generateAll(ctx, sess)
		}),
	}

	var contentFile string
	saveCmd := &cobra.Command{
		Use:   "save <chapter-number>",
		Short: "把本地文件内容保存为章节正文",
		Args:  cobra.ExactArgs(1),
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			data, err := os.ReadFile(contentFile)
			if err != nil {
				return fmt.Errorf("读取文件失败: %w", err)
			}
			return sess.Editor.Content.SaveChapterContent(ctx, args[0], string(data))
		}),
	}
	saveCmd.Flags().StringVarP(&contentFile, "file", "f", "", "正文文件")
	_ = saveCmd.MarkFlagRequired("file")

	chat := &cobra.Command{
		Use:   "chat <chapter-number> <message>",
		Short: "就某一章节与模型对话",
		Args:  cobra.MinimumNArgs(2),
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			ch := sess.Editor.State.FindChapter(args[0])
			if ch == nil {
				return apperrors.NewNotFoundError(apperrors.CodeChapterNotFound, "章节不存在: "+args[0])
			}
			reply, err := sess.Editor.Content.Chat(ctx, models.ChatRequest{
				Chapter:  models.Summary{ChapterNumber: ch.ChapterNumber, Title: ch.Title},
				Messages: []models.ChatMessage{{Role: "user", Content: strings.Join(args[1:], " ")}},
			})
			if err != nil {
				return err
			}
			fmt.Fprint(r.out, RenderContent("回复", reply.Response.Content, 80))
			return nil
		}),
	}

	cmd.AddCommand(show, generate, generateAll, saveCmd, chat)
	return cmd
}

// generateAll 后台批量生成，前台轮询进度并逐章保存
func (r *runtime) generateAll(ctx context.Context, sess *app.Session) error {
	ed := sess.Editor
	done := make(chan error, 1)
	taskID, err := ed.Content.StartAutoGenerate(ctx, func(err error) { done <- err })
	if err != nil {
		return err
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	last := -1
	report := func() {
		tracker, ok := ed.Progress.GetTracker(taskID)
		if !ok {
			return
		}
		snap := tracker.Snapshot()
		if snap.Progress == last {
			return
		}
		last = snap.Progress
		fmt.Fprintf(r.out, "%s %3d%%  %s\n", mutedStyle.Render("["+snap.ChapterNumber+"]"), snap.Progress, snap.Message)
	}

	for {
		select {
		case err := <-done:
			report()
			if err != nil {
				return err
			}
			return r.saveGenerated(ctx, sess)
		case <-ticker.C:
			report()
		}
	}
}

// saveGenerated 把生成成功的章节逐一写回后端
func (r *runtime) saveGenerated(ctx context.Context, sess *app.Session) error {
	ed := sess.Editor
	for _, ch := range models.Flatten(ed.State.Chapters()) {
		if ed.State.StatusOf(ch.ChapterNumber) != models.ChapterDone || ch.ID == nil {
			continue
		}
		content, _ := ed.State.ContentOf(ch.ChapterNumber)
		if err := ed.Content.SaveChapterContent(ctx, ch.ChapterNumber, content); err != nil {
			return err
		}
	}
	return nil
}
