// =============================================================================
// AgentPipe 命令行入口
// =============================================================================
//
// 使用方法:
//
//	agentpipe run --input '"hello"' workflow.yaml     # 执行工作流
//	agentpipe run --session s1 workflow.yaml          # 从会话恢复并保存
//	agentpipe validate workflow.yaml                  # 校验并打印计划
//	agentpipe plan workflow.yaml                      # 打印执行计划
//	agentpipe version                                 # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentpipe/config"
	"github.com/BaSui01/agentpipe/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = ""
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errUsage 表示参数错误，退出码为 2
var errUsage = errors.New("usage error")

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute 分发子命令并返回退出码
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "run":
		err = runCommand(ctx, args[1:], stdout, stderr)
	case "validate":
		err = planCommand("validate", args[1:], stdout, stderr)
	case "plan":
		err = planCommand("plan", args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func version() string {
	if Version != "" {
		return Version
	}
	return telemetry.BuildVersion()
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "AgentPipe %s\n", version())
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `AgentPipe - declarative workflow orchestration

Usage:
  agentpipe <command> [options] <workflow.yaml|workflow.json>

Commands:
  run       Execute a workflow and print the result as JSON
  validate  Validate a workflow and print its plan
  plan      Print the execution plan of a workflow
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>    Path to configuration file (YAML)
  --input <json>     Initial input stored under the "input" key
  --session <id>     Resume from and save to this session
  --strict           Reject shared output keys within a parallel group or wave

Options for 'validate' and 'plan':
  --config <path>    Path to configuration file (YAML)
  --strict           Reject shared output keys within a parallel group or wave

Examples:
  agentpipe validate examples/research.yaml
  agentpipe run --input '{"topic":"go"}' --session demo pipeline.yaml
  AGENTPIPE_SESSION_BACKEND=file agentpipe run --session demo pipeline.yaml`)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.WithValidator(func(c *config.Config) error { return c.Validate() }).Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("service", "agentpipe")), nil
}
