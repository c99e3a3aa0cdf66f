// internal/cli/export.go
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gaochaoqwe/wordllm/internal/app"
	"github.com/gaochaoqwe/wordllm/internal/models"
)

func newExportCommand(r *runtime) *cobra.Command {
	settings := models.DefaultExportSettings()
	var chapter string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出当前项目文档",
		Long: `导出当前项目文档到下载目录。

--scope current 需要配合 --chapter 指定一个正整数章节编号，
编号无效时自动改为导出全部章节。`,
		RunE: r.withSession(func(ctx context.Context, sess *app.Session, args []string) error {
			ed := sess.Editor
			res, err := ed.Export.RequestExport(ctx, ed.State.ProjectID(), settings, chapter)
			if err != nil {
				return err
			}
			r.printSaved(res)
			return nil
		}),
	}
	cmd.Flags().StringVar(&settings.Format, "format", models.FormatDocx, "导出格式: docx | pdf | txt")
	cmd.Flags().StringVar(&settings.Scope, "scope", models.ScopeAll, "导出范围: all | current")
	cmd.Flags().StringVar(&chapter, "chapter", "", "scope 为 current 时导出的章节编号")
	return cmd
}
