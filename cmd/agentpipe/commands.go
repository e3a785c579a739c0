package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/workflow"
	"github.com/BaSui01/agentpipe/workflow/dsl"
)

// =============================================================================
// ▶️ run 命令
// =============================================================================

// runOutput 是 run 命令写到 stdout 的结果
type runOutput struct {
	*workflow.RunResult
	Error string `json:"error,omitempty"`
}

func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	input := fs.String("input", "", "Initial input as JSON")
	sessionID := fs.String("session", "", "Session id to resume from and save to")
	strict := fs.Bool("strict", false, "Reject shared output keys within a parallel group or wave")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: run takes exactly one workflow file", errUsage)
	}

	var in any
	if *input != "" {
		if err := json.Unmarshal([]byte(*input), &in); err != nil {
			return fmt.Errorf("%w: --input is not valid JSON: %v", errUsage, err)
		}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *strict {
		cfg.Engine.StrictOutputKeys = true
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.close(context.Background()); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	wf, err := eng.hydrator.HydrateFile(fs.Arg(0))
	if err != nil {
		return err
	}

	res, runErr := eng.orchestrator.Run(ctx, wf, workflow.RunOptions{SessionID: *sessionID, Input: in})
	if res != nil {
		out := runOutput{RunResult: res}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	return runErr
}

// =============================================================================
// 🗺️ validate / plan 命令
// =============================================================================

func planCommand(name string, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	strict := fs.Bool("strict", false, "Reject shared output keys within a parallel group or wave")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: %s takes exactly one workflow file", errUsage, name)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	opts := cfg.Engine.HydratorOptions()
	if *strict {
		opts.StrictOutputKeys = true
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	h, err := dsl.NewHydrator(nil, nil, opts, logger)
	if err != nil {
		return err
	}
	wf, err := h.HydrateFile(fs.Arg(0))
	if err != nil {
		return err
	}

	if name == "validate" {
		fmt.Fprintf(stdout, "%s: ok\n", fs.Arg(0))
	}
	fmt.Fprint(stdout, dsl.Describe(wf))
	return nil
}
