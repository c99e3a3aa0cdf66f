// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gaochaoqwe/wordllm/internal/config"
	"github.com/gaochaoqwe/wordllm/internal/di"
	"github.com/gaochaoqwe/wordllm/internal/notify"
	"github.com/gaochaoqwe/wordllm/internal/realtime"
	"github.com/gaochaoqwe/wordllm/internal/resources"
	"github.com/gaochaoqwe/wordllm/internal/services"
	"github.com/gaochaoqwe/wordllm/internal/storage"
	"github.com/gaochaoqwe/wordllm/internal/transport"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// App 进程级资源：配置、日志、本地存储、后端客户端与提示出口
type App struct {
	Config    *config.Config
	Logger    *utils.Logger
	Store     storage.LocalStore
	Client    *transport.Client
	API       *resources.API
	Notifier  *notify.Broadcaster
	Metrics   *utils.RequestMetrics
	Progress  *services.ProgressService
	container *di.Container
	onSession []func(*Session)
	stop      context.CancelFunc

	mu      sync.Mutex
	session *Session
}

// Options 可选的覆盖项，测试时注入
type Options struct {
	Store    storage.LocalStore
	Notifier notify.Notifier
	// OnSession 每个新会话创建后调用，早于实时订阅
	OnSession func(*Session)
}

// New 按配置装配进程级依赖
func New(cfg *config.Config, logger *utils.Logger, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger = utils.OrDefault(logger)

	store := opts.Store
	if store == nil {
		var err error
		store, err = storage.Open(cfg.StoreDriver, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("打开本地存储失败: %w", err)
		}
	}

	broadcaster := notify.NewBroadcaster(notify.NewLogNotifier(logger))
	if opts.Notifier != nil {
		broadcaster.Add(opts.Notifier)
	}

	metrics := utils.NewRequestMetrics(nil, logger)
	client := transport.New(cfg.APIBaseURL,
		transport.WithTimeout(cfg.RequestTimeout),
		transport.WithLogger(logger),
		transport.WithNotifier(broadcaster),
		transport.WithMetrics(metrics),
	)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Client:    client,
		API:       resources.New(client),
		Notifier:  broadcaster,
		Metrics:   metrics,
		Progress:  services.NewProgressService(),
		container: di.NewContainer(),
	}
	if opts.OnSession != nil {
		a.onSession = append(a.onSession, opts.OnSession)
	}

	a.container.Register(di.ServiceConfig, cfg)
	a.container.Register(di.ServiceLogger, logger)
	a.container.Register(di.ServiceNotifier, broadcaster)
	a.container.Register(di.ServiceTransport, client)
	a.container.Register(di.ServiceResources, a.API)
	a.container.Register(di.ServiceStore, store)
	a.container.Register(di.ServiceMetrics, metrics)
	a.container.Register(di.ServiceProgress, a.Progress)

	var bg context.Context
	bg, a.stop = context.WithCancel(context.Background())
	a.Progress.StartCleanup(bg, services.ProgressCleanupInterval, services.ProgressRetention)
	return a, nil
}

// Container 进程级容器
func (a *App) Container() *di.Container {
	return a.container
}

// Session 一个编辑会话：独立的状态、实时连接与服务
type Session struct {
	Container *di.Container
	Editor    *services.DocumentEditor
	Realtime  *realtime.Client
	ctx       context.Context
	cancel    context.CancelFunc
}

// OnSession 注册会话创建回调
func (a *App) OnSession(fn func(*Session)) {
	a.mu.Lock()
	a.onSession = append(a.onSession, fn)
	a.mu.Unlock()
}

// Context 会话生命周期，会话关闭时取消
func (s *Session) Context() context.Context {
	return s.ctx
}

// NewSession 创建会话。connect 为 true 时立即启动实时连接
func (a *App) NewSession(ctx context.Context, connect bool) *Session {
	logger := a.Logger.With(map[string]interface{}{"component": "session"})

	rt := realtime.NewClient(realtime.Options{
		URL:               a.Config.RealtimeEndpoint(),
		ReconnectDelay:    a.Config.ReconnectDelay,
		HeartbeatIncoming: a.Config.HeartbeatIncoming,
		HeartbeatOutgoing: a.Config.HeartbeatOutgoing,
		Logger:            logger,
	})

	state := services.NewOutlineState()
	resolver := services.NewTemplateResolver(state, a.Store, logger)
	outline := services.NewOutlineService(state, a.API, nil, a.Notifier, logger)
	content := services.NewContentService(services.ContentServiceOptions{
		State:    state,
		Content:  a.API.Content,
		Repo:     a.API.Chapters,
		Resolver: resolver,
		Progress: a.Progress,
		Notifier: a.Notifier,
		Logger:   logger,
		Delay:    a.Config.GenerationDelay,
	})
	export := services.NewExportService(a.API, services.FileSaver{Dir: a.Config.DownloadDir}, a.Notifier, logger)

	editor := services.NewDocumentEditor(services.EditorDeps{
		State:    state,
		Outline:  outline,
		Content:  content,
		Export:   export,
		Progress: a.Progress,
		Realtime: rt,
		Store:    a.Store,
		Logger:   logger,
	})

	container := di.NewContainer()
	container.Register(di.ServiceRealtime, rt)
	container.Register(di.ServiceEditor, editor)

	sessionCtx, cancel := context.WithCancel(ctx)
	sess := &Session{Container: container, Editor: editor, Realtime: rt, ctx: sessionCtx, cancel: cancel}

	a.mu.Lock()
	hooks := append([]func(*Session){}, a.onSession...)
	a.mu.Unlock()
	for _, fn := range hooks {
		fn(sess)
	}

	if connect {
		rt.Connect(sessionCtx)
	}
	return sess
}

// Close 结束会话
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.Editor.Unmount()
	s.Realtime.Close()
	s.cancel()
}

// Mount 关闭旧会话后挂载新项目，作为控制台的当前会话
func (a *App) Mount(ctx context.Context, projectID, templateID, inputFileName string, location *url.URL) (*Session, services.Identifiers, error) {
	return a.mount(ctx, true, projectID, templateID, inputFileName, location)
}

// Open 不建立实时连接的挂载，供一次性命令使用
func (a *App) Open(ctx context.Context, projectID, templateID string) (*Session, services.Identifiers, error) {
	return a.mount(ctx, false, projectID, templateID, "", nil)
}

func (a *App) mount(ctx context.Context, connect bool, projectID, templateID, inputFileName string, location *url.URL) (*Session, services.Identifiers, error) {
	sess := a.NewSession(context.Background(), connect)
	ids, err := sess.Editor.Mount(ctx, projectID, templateID, inputFileName, location)
	if ids.ProjectID == "" {
		sess.Close()
		return nil, ids, err
	}

	a.mu.Lock()
	previous := a.session
	a.session = sess
	a.mu.Unlock()
	previous.Close()
	return sess, ids, err
}

// Current 当前会话，可能为 nil
func (a *App) Current() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Close 释放全部资源
func (a *App) Close() error {
	a.mu.Lock()
	sess := a.session
	a.session = nil
	a.mu.Unlock()
	sess.Close()
	a.stop()

	a.Logger.Sync()
	return a.Store.Close()
}
