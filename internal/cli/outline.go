// internal/cli/outline.go
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gaochaoqwe/wordllm/internal/app"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/resources"
)

// readUpload 读取本地文件作为上传内容，路径为空时返回 nil
func readUpload(path string) (*models.Upload, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return &models.Upload{FileName: filepath.Base(path), Data: data}, nil
}

func (r *runtime) printTree(sess *app.Session) {
	fmt.Fprint(r.out, RenderTree(sess.Editor.Snapshot()))
}

func newOutlineCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outline",
		Short: "查看与生成章节大纲",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "显示章节目录",
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			r.printTree(sess)
			return nil
		}),
	}

	var (
		inputPath string
		prompt    string
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "根据模板与输入文件生成大纲并保存",
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			file, err := readUpload(inputPath)
			if err != nil {
				return err
			}
			ed := sess.Editor
			res, err := ed.Outline.GenerateOutline(ctx, resources.OutlineRequest{
				TemplateID:    ed.State.TemplateID(),
				OutlinePrompt: prompt,
				InputFile:     file,
			})
			if err != nil {
				return err
			}
			ed.State.SetChapters(res.Chapters)
			if _, err := ed.Outline.SaveChaptersToDB(ctx); err != nil {
				return err
			}
			r.printTree(sess)
			return nil
		}),
	}
	generate.Flags().StringVarP(&inputPath, "file", "f", "", "输入文件")
	generate.Flags().StringVar(&prompt, "prompt", "", "大纲提示词")

	var (
		requirement string
		preserve    bool
		rebuildFile string
	)
	regenerate := &cobra.Command{
		Use:   "regenerate",
		Short: "按要求重新生成章节",
		Long: `按要求重新生成章节并保存。

指定 --file 时连同输入文件提交，并保留现有章节作为参考；
否则按项目与模板重新生成，--preserve 保留已编辑的章节。`,
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			ed := sess.Editor
			if rebuildFile != "" {
				file, err := readUpload(rebuildFile)
				if err != nil {
					return err
				}
				res, err := ed.Outline.RegenerateOutline(ctx, ed.State.TemplateID(), ed.State.Chapters(), requirement, file)
				if err != nil {
					return err
				}
				ed.State.SetChapters(res.Chapters)
				if _, err := ed.Outline.SaveChaptersToDB(ctx); err != nil {
					return err
				}
			} else {
				ed.State.SetRegenerateRequirement(requirement)
				if _, err := ed.Outline.RegenerateChapters(ctx, preserve); err != nil {
					return err
				}
			}
			r.printTree(sess)
			return nil
		}),
	}
	regenerate.Flags().StringVarP(&requirement, "requirement", "r", "", "重新生成的要求")
	regenerate.Flags().BoolVar(&preserve, "preserve", false, "保留已编辑的章节")
	regenerate.Flags().StringVarP(&rebuildFile, "file", "f", "", "连同输入文件重新生成")

	var subRequirement string
	subchapters := &cobra.Command{
		Use:   "subchapters",
		Short: "为现有章节续写子章节",
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			if _, err := sess.Editor.Outline.ContinueGenerateSubchapters(ctx, subRequirement); err != nil {
				return err
			}
			r.printTree(sess)
			return nil
		}),
	}
	subchapters.Flags().StringVarP(&subRequirement, "requirement", "r", "", "子章节要求")

	var expandFile string
	expand := &cobra.Command{
		Use:   "expand",
		Short: "把扁平大纲展开成多级目录",
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			file, err := readUpload(expandFile)
			if err != nil {
				return err
			}
			ed := sess.Editor
			res, err := ed.Outline.GenerateSubchapters(ctx, ed.State.TemplateID(), ed.State.Chapters(), file)
			if err != nil {
				return err
			}
			ed.State.SetChapters(res.Chapters)
			ed.State.SetHasGeneratedSubchapters(true)
			if _, err := ed.Outline.SaveChaptersToDB(ctx); err != nil {
				return err
			}
			r.printTree(sess)
			return nil
		}),
	}
	expand.Flags().StringVarP(&expandFile, "file", "f", "", "输入文件")

	defaults := &cobra.Command{
		Use:   "defaults",
		Short: "载入默认的五个章节并保存",
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			sess.Editor.State.LoadDefaultChapters()
			if _, err := sess.Editor.Outline.SaveChaptersToDB(ctx); err != nil {
				return err
			}
			r.printTree(sess)
			return nil
		}),
	}

	var treeFile string
	save := &cobra.Command{
		Use:   "save",
		Short: "保存章节目录到后端",
		Long: `保存章节目录到后端并显示后端分配后的目录。

指定 --file 时先用 JSON 文件中的章节树替换当前目录。`,
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			if treeFile != "" {
				data, err := os.ReadFile(treeFile)
				if err != nil {
					return fmt.Errorf("读取章节文件失败: %w", err)
				}
				var chapters []*models.Chapter
				if err := json.Unmarshal(data, &chapters); err != nil {
					return fmt.Errorf("章节文件格式错误: %w", err)
				}
				sess.Editor.State.SetChapters(chapters)
			}
			ids, err := sess.Editor.Outline.SaveChaptersToDB(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(r.err, mutedStyle.Render(fmt.Sprintf("已保存 %d 个章节", len(ids))))
			r.printTree(sess)
			return nil
		}),
	}
	save.Flags().StringVarP(&treeFile, "file", "f", "", "章节树 JSON 文件")

	start := &cobra.Command{
		Use:   "start",
		Short: "保存目录并通知后端开始整篇生成",
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			return sess.Editor.Outline.StartDocumentGeneration(ctx)
		}),
	}

	cmd.AddCommand(show, generate, regenerate, subchapters, expand, save, defaults, start)
	return cmd
}

// newChaptersCommand 章节增删与要求编辑，改动立即保存
func newChaptersCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chapters",
		Short: "编辑章节目录",
	}

	save := func(ctx context.Context, sess *app.Session) error {
		if _, err := sess.Editor.Outline.SaveChaptersToDB(ctx); err != nil {
			return err
		}
		r.printTree(sess)
		return nil
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "在末尾追加一个章节",
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			sess.Editor.State.AddChapter()
			return save(ctx, sess)
		}),
	}

	rm := &cobra.Command{
		Use:   "rm <chapter-number>",
		Short: "删除章节及其子章节",
		Args:  cobra.ExactArgs(1),
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			sess.Editor.State.RemoveChapterByKey(args[0])
			return save(ctx, sess)
		}),
	}

	requirement := &cobra.Command{
		Use:   "requirement <chapter-number> [text]",
		Short: "设置章节写作要求，不带 text 时只添加空要求",
		Args:  cobra.RangeArgs(1, 2),
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			if len(args) == 1 {
				sess.Editor.State.AddRequirementByKey(args[0])
			} else if err := sess.Editor.State.SetRequirement(args[0], args[1]); err != nil {
				return err
			}
			return save(ctx, sess)
		}),
	}

	cmd.AddCommand(add, rm, requirement)
	return cmd
}
