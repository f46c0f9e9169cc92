package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/weibaohui/wechaty-bot/bot"
	"github.com/weibaohui/wechaty-bot/bridge"
	"github.com/weibaohui/wechaty-bot/channels"
	"github.com/weibaohui/wechaty-bot/channels/wechaty"
	"github.com/weibaohui/wechaty-bot/config"
	"github.com/weibaohui/wechaty-bot/session"
	"github.com/weibaohui/wechaty-bot/voice"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var (
	debugGlobal   bool
	configFile    string
	workspaceFlag string
	channelFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "wechaty-bot",
	Short: "基于 Wechaty 的微信智能助手",
	Long:  `wechaty-bot - 通过 Wechaty puppet 服务接入微信，使用大模型回复私聊与群聊消息。`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动机器人",
	Long:  `登录微信并开始处理消息，使用 --channel terminal 可在命令行中调试。`,
	Run:   runBot,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "初始化配置",
	Long:  `生成默认配置文件和工作区。`,
	Run:   runOnboard,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wechaty-bot %s (built %s)\n", version, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugGlobal, "debug", "d", false, "调试模式")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径 (json/yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "工作区目录")

	runCmd.Flags().StringVar(&channelFlag, "channel", "", "渠道类型: wechaty / terminal，默认读取配置")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ========== Run 命令实现 ==========

func runBot(cmd *cobra.Command, args []string) {
	logger := initLogger(debugGlobal)
	defer logger.Sync()

	store := loadConfigStore(logger)
	cfg := store.Get()

	logger.Info("wechaty-bot 启动中",
		zap.String("渠道", cfg.ChannelType),
		zap.String("配置", store.Path()),
		zap.String("工作区", cfg.GetWorkspacePath()),
		zap.String("版本", version),
		zap.String("构建时间", buildDate),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessions := session.NewManager(session.Options{
		Dir:          config.GetSessionsPath(cfg.Workspace),
		SystemPrompt: cfg.Bot.CharacterDesc,
		MaxTokens:    cfg.Bot.ConversationMaxTokens,
		ExpiresIn:    time.Duration(cfg.Bot.ExpiresInSeconds) * time.Second,
	}, logger)
	if err := sessions.StartSweeper(""); err != nil {
		logger.Error("启动会话清理失败", zap.Error(err))
	}
	defer sessions.Stop()

	chatBot, err := bot.NewOpenAIBot(ctx, store, sessions, logger)
	if err != nil {
		logger.Fatal("创建机器人失败", zap.Error(err))
	}

	voiceEngine, err := voice.NewEngine(cfg, logger)
	if err != nil {
		logger.Error("创建语音引擎失败，语音功能不可用", zap.Error(err))
		voiceEngine = nil
	}
	br := bridge.NewBridge(chatBot, voiceEngine, logger)
	converter := voice.NewConverter(cfg.Voice.FFmpegPath, logger)

	channelManager := channels.NewManager(logger)
	channelManager.RegisterFactory("wechaty", func() (channels.Channel, error) {
		puppet := wechaty.NewSDKPuppet(cfg.Wechaty.PuppetServiceToken, cfg.Wechaty.Endpoint, logger)
		return wechaty.NewChannel(store, br, puppet, converter, logger), nil
	})
	channelManager.RegisterFactory("terminal", func() (channels.Channel, error) {
		return channels.NewTerminalChannel(store, br, nil, nil, logger), nil
	})

	if _, err := channelManager.Create(cfg.ChannelType); err != nil {
		logger.Fatal("创建渠道失败", zap.Error(err))
	}

	if err := channelManager.StartAll(ctx); err != nil {
		logger.Error("渠道运行出错", zap.Error(err))
	}

	logger.Info("正在关闭...")
	channelManager.StopAll()
	logger.Info("已关闭")
}

// ========== Onboard 命令实现 ==========

func runOnboard(cmd *cobra.Command, args []string) {
	logger := initLogger(debugGlobal)
	defer logger.Sync()

	configPath := configFile
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("配置已存在于 %s\n", configPath)
		fmt.Print("是否覆盖? (y/N): ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "y" && confirm != "Y" {
			fmt.Println("已取消")
			return
		}
	}

	cfg := config.DefaultConfig()
	if workspaceFlag != "" {
		cfg.Workspace = workspaceFlag
	}
	if err := config.SaveConfig(cfg, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "保存配置失败: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ 创建配置: %s\n", configPath)

	workspacePath := cfg.GetWorkspacePath()
	config.GetSessionsPath(cfg.Workspace)
	config.GetTmpDir(cfg)
	fmt.Printf("✓ 创建工作区: %s\n", workspacePath)

	fmt.Println()
	fmt.Println("wechaty-bot 已准备就绪!")
	fmt.Println()
	fmt.Println("下一步:")
	fmt.Printf("  1. 在 %s 中填写 wechaty.puppetServiceToken 与 providers.openai.apiKey\n", configPath)
	fmt.Println("  2. 命令行调试: wechaty-bot run --channel terminal")
	fmt.Println("  3. 登录微信: wechaty-bot run")
}

// ========== 辅助函数 ==========

func initLogger(debug bool) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	return zap.New(core, zap.AddCaller())
}

// loadConfigStore 按命令行参数查找并加载配置
func loadConfigStore(logger *zap.Logger) *config.Store {
	path := configFile
	if path == "" {
		workspace := workspaceFlag
		if workspace == "" {
			workspace = "."
		}
		path = config.FindConfigPath(workspace)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Fatal("加载配置失败", zap.String("path", path), zap.Error(err))
	}
	if path == "" {
		path = config.GetConfigPath()
		logger.Warn("未找到配置文件，使用默认配置", zap.String("path", path))
	}

	if workspaceFlag != "" {
		cfg.Workspace = workspaceFlag
	}
	if channelFlag != "" {
		cfg.ChannelType = channelFlag
	}
	return config.NewStore(cfg, path)
}
