// internal/cli/root.go
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaochaoqwe/wordllm/internal/app"
	"github.com/gaochaoqwe/wordllm/internal/config"
	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/storage"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// runtime 一次命令执行的公共参数
type runtime struct {
	configPath string
	projectID  string
	templateID string
	logLevel   string

	out io.Writer
	err io.Writer

	// 测试时替换
	newApp func(cfg *config.Config, logger *utils.Logger, opts app.Options) (*app.App, error)
}

// NewRootCommand 构建 wordllm 命令树
func NewRootCommand() *cobra.Command {
	r := &runtime{newApp: app.New}

	root := &cobra.Command{
		Use:           "wordllm",
		Short:         "文档大纲与章节正文生成客户端",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			r.out = cmd.OutOrStdout()
			r.err = cmd.ErrOrStderr()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&r.configPath, "config", "c", "", "配置文件路径 (YAML)")
	flags.StringVarP(&r.projectID, "project", "p", "", "项目ID，缺省时使用上一次打开的项目")
	flags.StringVarP(&r.templateID, "template", "t", "", "模板ID，缺省时从项目详情获取")
	flags.StringVar(&r.logLevel, "log-level", "", "日志级别，覆盖配置")

	root.AddCommand(
		newServeCommand(r),
		newOutlineCommand(r),
		newChaptersCommand(r),
		newContentCommand(r),
		newExportCommand(r),
		newTemplatesCommand(r),
		newDocumentsCommand(r),
		newProjectsCommand(r),
		newWatchCommand(r),
	)
	return root
}

// Execute 入口，收到中断信号时取消命令上下文
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, levelStyles[notify.LevelError].Render("✗ "+err.Error()))
		return 1
	}
	return 0
}

// boot 加载配置并装配 App
func (r *runtime) boot() (*app.App, error) {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if r.logLevel != "" {
		cfg.LogLevel = r.logLevel
	}

	logger, err := utils.InitLogger(utils.LogOptions{Mode: cfg.LogMode, Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	return r.newApp(cfg, logger, app.Options{Notifier: TerminalNotifier(r.err)})
}

// withApp 执行只需要后端客户端的命令
func (r *runtime) withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := r.boot()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a, args)
	}
}

// withSession 打开项目后执行命令。章节为空不算失败，允许从零生成大纲
func (r *runtime) withSession(fn func(ctx context.Context, sess *app.Session, args []string) error) func(*cobra.Command, []string) error {
	return r.withApp(func(ctx context.Context, a *app.App, args []string) error {
		projectID := r.projectID
		if projectID == "" {
			if v, ok, _ := a.Store.Get(storage.KeyCurrentProjectID); ok {
				projectID = v
			}
		}

		sess, _, err := a.Open(ctx, projectID, r.templateID)
		if sess == nil {
			return err
		}
		if err != nil && !apperrors.HasCode(err, apperrors.CodeNoChapters) {
			return err
		}
		return fn(ctx, sess, args)
	})
}
