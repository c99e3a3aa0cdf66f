// internal/cli/resources.go
package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gaochaoqwe/wordllm/internal/app"
	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/resources"
	"github.com/gaochaoqwe/wordllm/internal/services"
	"github.com/gaochaoqwe/wordllm/internal/storage"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("INVALID_ID", "ID 必须是正整数: "+s)
	}
	return id, nil
}

// downloader 不依赖项目会话的下载
func downloader(a *app.App) *services.ExportService {
	return services.NewExportService(a.API, services.FileSaver{Dir: a.Config.DownloadDir}, a.Notifier, a.Logger)
}

func (r *runtime) printSaved(res *services.ExportResult) {
	fmt.Fprintln(r.out, RenderTable([][2]string{
		{"文件", res.FileName},
		{"路径", res.Path},
		{"大小", strconv.FormatInt(res.Size, 10)},
	}))
}

type searchFlags struct {
	title string
	page  int
	size  int
}

func (f *searchFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "按标题过滤")
	cmd.Flags().IntVar(&f.page, "page", 1, "页码，从 1 开始")
	cmd.Flags().IntVar(&f.size, "size", 10, "每页条数")
}

func (f *searchFlags) params() models.SearchParams {
	return models.SearchParams{Title: f.title, Page: f.page, Size: f.size}
}

func newTemplatesCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "templates", Short: "管理文档模板"}

	var search searchFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "列出模板",
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			page, err := a.API.Templates.Search(ctx, search.params())
			if err != nil {
				return err
			}
			rows := make([][2]string, 0, len(page.Content))
			for _, t := range page.Content {
				rows = append(rows, [2]string{strconv.FormatInt(t.ID, 10), t.Title})
			}
			fmt.Fprint(r.out, RenderTable(rows))
			fmt.Fprintln(r.out, mutedStyle.Render(fmt.Sprintf("第 %d/%d 页，共 %d 个", page.Number+1, page.TotalPages, page.TotalElements)))
			return nil
		}),
	}
	search.bind(list)

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "查看模板详情",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			t, err := a.API.Templates.Get(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprint(r.out, RenderTable([][2]string{
				{"ID", strconv.FormatInt(t.ID, 10)},
				{"标题", t.Title},
				{"文件", t.OriginalFilename},
				{"状态", t.Status},
				{"大纲提示词", t.OutlinePrompt},
				{"子章节提示词", t.SubchapterPrompt},
				{"正文提示词", t.ContentPrompt},
			}))
			return nil
		}),
	}

	var upload resources.TemplateUpload
	uploadCmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "上传模板文件",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			file, err := readUpload(args[0])
			if err != nil {
				return err
			}
			upload.File = *file
			t, err := a.API.Templates.Upload(ctx, upload)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out, "模板已上传，ID %d\n", t.ID)
			return nil
		}),
	}
	uploadCmd.Flags().StringVar(&upload.Title, "title", "", "模板标题")
	uploadCmd.Flags().StringVar(&upload.Description, "description", "", "模板说明")
	uploadCmd.Flags().StringVar(&upload.OutlinePrompt, "outline-prompt", "", "大纲提示词")
	uploadCmd.Flags().StringVar(&upload.SubchapterPrompt, "subchapter-prompt", "", "子章节提示词")
	uploadCmd.Flags().StringVar(&upload.ContentPrompt, "content-prompt", "", "正文提示词")

	download := &cobra.Command{
		Use:   "download <id>",
		Short: "下载模板文件",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := downloader(a).DownloadTemplate(ctx, id)
			if err != nil {
				return err
			}
			r.printSaved(res)
			return nil
		}),
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "删除模板",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.API.Templates.Delete(ctx, id)
		}),
	}

	cmd.AddCommand(list, get, uploadCmd, download, rm)
	return cmd
}

func newDocumentsCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "documents", Short: "管理输入文档"}

	var search searchFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "列出文档",
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			page, err := a.API.Documents.Search(ctx, search.params())
			if err != nil {
				return err
			}
			rows := make([][2]string, 0, len(page.Content))
			for _, d := range page.Content {
				rows = append(rows, [2]string{strconv.FormatInt(d.ID, 10), d.OriginalFilename + "  " + mutedStyle.Render(d.Status)})
			}
			fmt.Fprint(r.out, RenderTable(rows))
			return nil
		}),
	}
	search.bind(list)

	var title string
	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "上传文档",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			file, err := readUpload(args[0])
			if err != nil {
				return err
			}
			d, err := a.API.Documents.Upload(ctx, *file, title)
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out, "文档已上传，ID %d\n", d.ID)
			return nil
		}),
	}
	upload.Flags().StringVar(&title, "title", "", "文档标题")

	download := &cobra.Command{
		Use:   "download <id>",
		Short: "下载文档",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := downloader(a).DownloadDocument(ctx, id)
			if err != nil {
				return err
			}
			r.printSaved(res)
			return nil
		}),
	}

	outline := &cobra.Command{
		Use:   "outline <id>",
		Short: "导出文档大纲",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := downloader(a).ExportOutline(ctx, id)
			if err != nil {
				return err
			}
			r.printSaved(res)
			return nil
		}),
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "删除文档",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.API.Documents.Delete(ctx, id)
		}),
	}

	cmd.AddCommand(list, upload, download, outline, rm)
	return cmd
}

func newProjectsCommand(r *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "projects", Short: "管理项目"}

	var search searchFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "列出项目",
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			page, err := a.API.Projects.List(ctx, search.page, search.size, search.title)
			if err != nil {
				return err
			}
			rows := make([][2]string, 0, len(page.Data))
			for _, p := range page.Data {
				rows = append(rows, [2]string{strconv.FormatInt(p.ID, 10), p.DisplayName() + "  " + mutedStyle.Render(p.TemplateName)})
			}
			fmt.Fprint(r.out, RenderTable(rows))
			fmt.Fprintln(r.out, mutedStyle.Render(fmt.Sprintf("第 %d/%d 页，共 %d 个", page.CurrentPage, page.Pages, page.Total)))
			return nil
		}),
	}
	search.bind(list)

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "查看项目详情",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			p, err := a.API.Projects.Get(ctx, args[0])
			if err != nil {
				return err
			}
			templateID := ""
			if p.TemplateID != nil {
				templateID = strconv.FormatInt(*p.TemplateID, 10)
			}
			fmt.Fprint(r.out, RenderTable([][2]string{
				{"ID", strconv.FormatInt(p.ID, 10)},
				{"名称", p.DisplayName()},
				{"模板", templateID + " " + p.TemplateName},
				{"输入文件", p.InputFile},
				{"创建时间", p.CreatedAt},
			}))
			return nil
		}),
	}

	var templateID int64
	create := &cobra.Command{
		Use:   "create <title>",
		Short: "创建项目并设为当前项目",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			p, err := a.API.Projects.Create(ctx, args[0], templateID)
			if err != nil {
				return err
			}
			if err := a.Store.Set(storage.KeyCurrentProjectID, strconv.FormatInt(p.ID, 10)); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "项目已创建，ID %d\n", p.ID)
			return nil
		}),
	}
	create.Flags().Int64Var(&templateID, "template-id", 0, "使用的模板ID")
	_ = create.MarkFlagRequired("template-id")

	use := &cobra.Command{
		Use:   "use <id>",
		Short: "设为当前项目",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			return a.Store.Set(storage.KeyCurrentProjectID, args[0])
		}),
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "删除项目",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			return a.API.Projects.Delete(ctx, args[0])
		}),
	}

	cmd.AddCommand(list, get, create, use, rm)
	return cmd
}
