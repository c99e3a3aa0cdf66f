// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaochaoqwe/wordllm/internal/app"
	"github.com/gaochaoqwe/wordllm/internal/cli"
	"github.com/gaochaoqwe/wordllm/internal/config"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

func main() {
	configPath := flag.String("config", "wordllm.yaml", "配置文件路径")
	flag.Parse()

	log.Println("🚀 启动 wordllm 控制台...")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 配置加载完成，后端: %s", cfg.APIBaseURL)

	// 2. 初始化日志
	logger, err := utils.InitLogger(utils.LogOptions{Mode: cfg.LogMode, Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	// 3. 装配依赖
	a, err := app.New(cfg, logger, app.Options{})
	if err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	defer a.Close()
	log.Printf("✅ 服务初始化完成，已注册: %v", a.Container().GetNames())

	// 4. 运行直到收到中断信号
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("🔗 访问地址: http://localhost:%s", cfg.Port)
	if err := cli.Serve(ctx, a); err != nil {
		log.Printf("❌ %v", err)
		return
	}
	log.Println("✅ 控制台优雅关闭完成")
}
