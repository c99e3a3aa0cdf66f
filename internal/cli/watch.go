// internal/cli/watch.go
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaochaoqwe/wordllm/internal/app"
	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/realtime"
	"github.com/gaochaoqwe/wordllm/internal/services"
	"github.com/gaochaoqwe/wordllm/internal/storage"
)

func newWatchCommand(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [topic]",
		Short: "订阅实时通道，打印推送消息",
		Long: `订阅 STOMP 实时通道，直到 Ctrl+C。

不带 topic 时打开当前项目并订阅它的生成进度，
推送的正文与状态会写入本地会话。`,
		Args: cobra.MaximumNArgs(1),
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			if len(args) == 1 {
				return r.watchTopic(ctx, a, args[0])
			}
			return r.watchProject(ctx, a)
		}),
	}
}

func (r *runtime) printConnection(rt *realtime.Client) {
	rt.OnStateChange(func(connected bool) {
		if connected {
			fmt.Fprintln(r.err, levelStyles[notify.LevelSuccess].Render("✓ 实时通道已连接"))
		} else {
			fmt.Fprintln(r.err, levelStyles[notify.LevelWarning].Render("! 实时通道已断开，等待重连"))
		}
	})
}

func (r *runtime) watchTopic(ctx context.Context, a *app.App, topic string) error {
	sess := a.NewSession(ctx, false)
	defer sess.Close()

	r.printConnection(sess.Realtime)
	sess.Realtime.Subscribe(topic, func(msg realtime.Message) {
		fmt.Fprintf(r.out, "%s %s\n", mutedStyle.Render(msg.Topic), strings.TrimSpace(string(msg.Raw)))
	})
	sess.Realtime.Connect(sess.Context())

	<-ctx.Done()
	return nil
}

func (r *runtime) watchProject(ctx context.Context, a *app.App) error {
	projectID := r.projectID
	if projectID == "" {
		if v, ok, _ := a.Store.Get(storage.KeyCurrentProjectID); ok {
			projectID = v
		}
	}

	a.OnSession(func(s *app.Session) {
		r.printConnection(s.Realtime)
		s.Editor.OnRemoteProgress(func(topic string, p services.RemoteProgress) {
			line := fmt.Sprintf("[%s] %s", p.ChapterNumber, p.Status)
			if p.Progress != nil {
				line += fmt.Sprintf(" %d%%", *p.Progress)
			}
			if p.Message != "" {
				line += "  " + p.Message
			}
			fmt.Fprintln(r.out, line)
		})
	})

	sess, _, err := a.Mount(ctx, projectID, r.templateID, "", nil)
	if sess == nil {
		return err
	}
	fmt.Fprintln(r.out, mutedStyle.Render("订阅 "+services.ProjectProgressTopic(projectID)))

	<-ctx.Done()
	return nil
}
