// internal/cli/serve.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaochaoqwe/wordllm/internal/api"
	"github.com/gaochaoqwe/wordllm/internal/app"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(r *runtime) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动本地控制台 (HTTP + WebSocket)",
		RunE: r.withApp(func(ctx context.Context, a *app.App, args []string) error {
			if port != "" {
				a.Config.Port = port
			}
			return Serve(ctx, a)
		}),
	}
	cmd.Flags().StringVar(&port, "port", "", "监听端口，覆盖配置")
	return cmd
}

// Serve 运行控制台直到 ctx 取消，然后优雅关闭
func Serve(ctx context.Context, a *app.App) error {
	router, hub := api.SetupRouter(a)
	defer hub.Close()

	srv := &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.Logger.Info("控制台已启动", map[string]interface{}{
		"addr":    "http://localhost:" + a.Config.Port,
		"backend": a.Config.APIBaseURL,
	})

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("启动服务器失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("正在关闭控制台", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	a.Logger.Info("控制台已关闭", nil)
	return nil
}
